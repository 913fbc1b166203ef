package deadline

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/clock"
	"github.com/rs/zerolog"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []uuid.UUID
}

func (f *fireRecorder) fire(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, id)
}

func (f *fireRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fired)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestMonitorFiresAtDeadline(t *testing.T) {
	rec := &fireRecorder{}
	m := NewMonitor(rec.fire, clock.System{}, zerolog.Nop())
	defer m.Shutdown()

	id := uuid.New()
	m.Track(id, time.Now().Add(20*time.Millisecond))

	if !m.Tracked(id) {
		t.Fatal("expected attempt to be tracked")
	}
	waitFor(t, func() bool { return rec.count() == 1 })
	if m.Tracked(id) {
		t.Fatal("fired timer should be removed")
	}
}

func TestMonitorCancelPreventsFire(t *testing.T) {
	rec := &fireRecorder{}
	m := NewMonitor(rec.fire, clock.System{}, zerolog.Nop())
	defer m.Shutdown()

	id := uuid.New()
	m.Track(id, time.Now().Add(30*time.Millisecond))
	m.Cancel(id)

	time.Sleep(60 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("cancelled timer fired %d times", rec.count())
	}
	if m.Tracked(id) {
		t.Fatal("cancelled attempt still tracked")
	}
}

func TestMonitorReTrackResetsTimer(t *testing.T) {
	rec := &fireRecorder{}
	m := NewMonitor(rec.fire, clock.System{}, zerolog.Nop())
	defer m.Shutdown()

	id := uuid.New()
	m.Track(id, time.Now().Add(20*time.Millisecond))
	m.Track(id, time.Now().Add(200*time.Millisecond))

	// The first deadline passes without a fire because re-tracking re-armed.
	time.Sleep(60 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("re-armed timer fired early %d times", rec.count())
	}

	waitFor(t, func() bool { return rec.count() == 1 })
}

func TestMonitorPastDeadlineFiresImmediately(t *testing.T) {
	rec := &fireRecorder{}
	m := NewMonitor(rec.fire, clock.System{}, zerolog.Nop())
	defer m.Shutdown()

	m.Track(uuid.New(), time.Now().Add(-time.Minute))
	waitFor(t, func() bool { return rec.count() == 1 })
}

func TestMonitorShutdownCancelsAll(t *testing.T) {
	rec := &fireRecorder{}
	m := NewMonitor(rec.fire, clock.System{}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		m.Track(uuid.New(), time.Now().Add(50*time.Millisecond))
	}
	m.Shutdown()

	time.Sleep(100 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("timers fired after shutdown: %d", rec.count())
	}
}
