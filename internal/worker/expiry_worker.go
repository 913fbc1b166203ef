package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/quizforge/quizforge-backend/internal/deadline"
	"github.com/quizforge/quizforge-backend/internal/model"
	"github.com/quizforge/quizforge-backend/internal/service"
	"github.com/quizforge/quizforge-backend/internal/store"
)

const (
	// ExpiryBatchSize caps how many overdue attempts one sweep handles.
	ExpiryBatchSize = 100
	// backstopEvery controls how often the sweep also queries the database
	// for overdue attempts the schedule may have missed.
	backstopEvery = 10
)

// Finalizer closes out an attempt whose deadline passed. Satisfied by
// service.AttemptService.
type Finalizer interface {
	FinalizeExpired(ctx context.Context, attemptID uuid.UUID) (*model.Result, error)
}

// ExpiryWorker sweeps the deadline schedule and finalizes overdue attempts.
// It is the safety net behind the in-process timers: if the process that
// armed a timer died, the sweep still closes the attempt.
type ExpiryWorker struct {
	cache     *deadline.RedisCache
	attempts  store.AttemptStore
	finalizer Finalizer
	interval  time.Duration
	log       zerolog.Logger

	sweeps int
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(cache *deadline.RedisCache, attempts store.AttemptStore, finalizer Finalizer, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		cache:     cache,
		attempts:  attempts,
		finalizer: finalizer,
		interval:  interval,
		log:       log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled, then performs one final
// sweep so nothing due at shutdown is left open.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Running final sweep...")
			w.Sweep(context.Background())
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep finalizes every attempt due by now. Exported so tests can drive it
// without the ticker.
func (w *ExpiryWorker) Sweep(ctx context.Context) {
	now := time.Now()
	w.sweeps++

	due, err := w.cache.Due(ctx, now, ExpiryBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("Reading deadline schedule failed")
	} else {
		w.finalizeAll(ctx, due)
	}

	// Periodic database backstop: attempts whose schedule entry was lost
	// (Redis flush, partial failure) still get closed.
	if w.sweeps%backstopEvery == 1 {
		overdue, err := w.attempts.ListOverdue(ctx, now, ExpiryBatchSize)
		if err != nil {
			w.log.Error().Err(err).Msg("Overdue backstop query failed")
			return
		}
		w.finalizeAll(ctx, overdue)
	}
}

func (w *ExpiryWorker) finalizeAll(ctx context.Context, ids []uuid.UUID) {
	for _, id := range ids {
		if _, err := w.finalizer.FinalizeExpired(ctx, id); err != nil {
			w.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Finalize failed")
			// A vanished attempt would otherwise be retried forever; drop
			// its schedule entry. Transient errors keep the entry for the
			// next sweep.
			if errors.Is(err, service.ErrNotFound) {
				_ = w.cache.Unschedule(ctx, id)
			}
			continue
		}
		if err := w.cache.Unschedule(ctx, id); err != nil {
			w.log.Warn().Err(err).Str("attempt_id", id.String()).Msg("Unschedule failed")
		}
	}
}
