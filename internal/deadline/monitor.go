package deadline

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/clock"
	"github.com/rs/zerolog"
)

// Monitor keeps one local fallback timer per live attempt. The timer exists
// for responsiveness only — firing routes into the same idempotent finalize
// path the manual submit and the expiry worker use, and finalize re-checks
// the authoritative deadline, so a spurious or late fire is harmless.
type Monitor struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
	fire   func(attemptID uuid.UUID)
	clk    clock.Clock
	log    zerolog.Logger
}

// NewMonitor creates a Monitor that invokes fire when an attempt's local
// timer elapses.
func NewMonitor(fire func(attemptID uuid.UUID), clk clock.Clock, log zerolog.Logger) *Monitor {
	return &Monitor{
		timers: make(map[uuid.UUID]*time.Timer),
		fire:   fire,
		clk:    clk,
		log:    log.With().Str("component", "deadline_monitor").Logger(),
	}
}

// Track arms (or re-arms) the fallback timer for an attempt. Tracking an
// already-tracked attempt resets its timer, so a resumed session after a
// page reload simply re-registers.
func (m *Monitor) Track(attemptID uuid.UUID, deadline time.Time) {
	remaining := deadline.Sub(m.clk.Now())
	if remaining < 0 {
		remaining = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[attemptID]; ok {
		t.Stop()
	}
	m.timers[attemptID] = time.AfterFunc(remaining, func() {
		m.mu.Lock()
		delete(m.timers, attemptID)
		m.mu.Unlock()
		m.log.Debug().Str("attempt_id", attemptID.String()).Msg("Local deadline timer fired")
		m.fire(attemptID)
	})
}

// Cancel stops and removes the attempt's timer. Called on finalize by any
// path and on session teardown.
func (m *Monitor) Cancel(attemptID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[attemptID]; ok {
		t.Stop()
		delete(m.timers, attemptID)
	}
}

// Tracked reports whether a timer is currently armed for the attempt.
func (m *Monitor) Tracked(attemptID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[attemptID]
	return ok
}

// Shutdown cancels every timer. Called on process teardown.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}
