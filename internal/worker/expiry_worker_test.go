package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/deadline"
	"github.com/quizforge/quizforge-backend/internal/model"
	"github.com/quizforge/quizforge-backend/internal/service"
	"github.com/quizforge/quizforge-backend/internal/store/memory"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeFinalizer struct {
	mu     sync.Mutex
	calls  map[uuid.UUID]int
	failOn map[uuid.UUID]error
}

func newFakeFinalizer() *fakeFinalizer {
	return &fakeFinalizer{calls: make(map[uuid.UUID]int), failOn: make(map[uuid.UUID]error)}
}

func (f *fakeFinalizer) FinalizeExpired(_ context.Context, attemptID uuid.UUID) (*model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[attemptID]++
	if err, ok := f.failOn[attemptID]; ok {
		return nil, err
	}
	return &model.Result{AttemptID: attemptID}, nil
}

func (f *fakeFinalizer) count(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func newWorkerEnv(t *testing.T) (*ExpiryWorker, *deadline.RedisCache, *memory.AttemptStore, *fakeFinalizer) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cache := deadline.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	attempts := memory.NewAttemptStore()
	fin := newFakeFinalizer()
	w := NewExpiryWorker(cache, attempts, fin, time.Second, zerolog.Nop())
	return w, cache, attempts, fin
}

func TestSweepFinalizesDueAttempts(t *testing.T) {
	ctx := context.Background()
	w, cache, _, fin := newWorkerEnv(t)

	due := uuid.New()
	notDue := uuid.New()
	if err := cache.Schedule(ctx, due, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := cache.Schedule(ctx, notDue, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	w.Sweep(ctx)

	if fin.count(due) != 1 {
		t.Fatalf("due attempt finalized %d times, want 1", fin.count(due))
	}
	if fin.count(notDue) != 0 {
		t.Fatal("future attempt must not be finalized")
	}

	// The due entry is consumed; the future one stays.
	remaining, err := cache.Due(ctx, time.Now().Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(remaining) != 1 || remaining[0] != notDue {
		t.Fatalf("expected only the future attempt scheduled, got %v", remaining)
	}
}

func TestSweepKeepsEntryOnTransientError(t *testing.T) {
	ctx := context.Background()
	w, cache, _, fin := newWorkerEnv(t)

	id := uuid.New()
	fin.failOn[id] = context.DeadlineExceeded
	if err := cache.Schedule(ctx, id, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	w.Sweep(ctx)

	// Still scheduled: the next sweep retries.
	due, err := cache.Due(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0] != id {
		t.Fatalf("transient failure should keep the entry, got %v", due)
	}
}

func TestSweepDropsVanishedAttempts(t *testing.T) {
	ctx := context.Background()
	w, cache, _, fin := newWorkerEnv(t)

	id := uuid.New()
	fin.failOn[id] = service.ErrNotFound
	if err := cache.Schedule(ctx, id, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	w.Sweep(ctx)

	due, err := cache.Due(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("vanished attempt should leave the schedule, got %v", due)
	}
}

func TestSweepBackstopCatchesUnscheduledOverdue(t *testing.T) {
	ctx := context.Background()
	w, _, attempts, fin := newWorkerEnv(t)

	// A STARTED attempt past its deadline with no schedule entry, as after a
	// Redis flush.
	started := time.Now().Add(-20 * time.Minute)
	dl := time.Now().Add(-10 * time.Minute)
	orphan := &model.Attempt{
		ID:           uuid.New(),
		AssignmentID: uuid.New(),
		LearnerID:    1,
		Ordinal:      1,
		Status:       model.AttemptStatusCreated,
		CreatedAt:    started,
	}
	if err := attempts.Create(ctx, orphan); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := attempts.MarkStarted(ctx, orphan.ID, started, &dl, 1); err != nil {
		t.Fatalf("mark started: %v", err)
	}

	// The first sweep runs the database backstop.
	w.Sweep(ctx)

	if fin.count(orphan.ID) != 1 {
		t.Fatalf("backstop finalized %d times, want 1", fin.count(orphan.ID))
	}
}
