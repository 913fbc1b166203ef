// Package event publishes attempt lifecycle events for telemetry and
// notification consumers. Delivery is best-effort and must never block or
// fail the operation that emitted the event.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Type names a lifecycle event.
type Type string

const (
	TypeAttemptStarted  Type = "attempt.started"
	TypeAttemptFinished Type = "attempt.finished"
	TypeAnswerSaved     Type = "answer.saved"
)

// Envelope is the wire form of one event.
type Envelope struct {
	Type         Type           `json:"type"`
	AttemptID    uuid.UUID      `json:"attempt_id"`
	AssignmentID uuid.UUID      `json:"assignment_id"`
	LearnerID    int64          `json:"learner_id"`
	At           time.Time      `json:"at"`
	Data         map[string]any `json:"data,omitempty"`
}

// Emitter publishes lifecycle events.
type Emitter interface {
	Emit(ctx context.Context, ev Envelope)
}

// publishTimeout bounds the detached publish round trip. The caller is not
// waiting on it.
const publishTimeout = 5 * time.Second

// RedisEmitter publishes events on a Redis PubSub channel. Publish errors
// are logged and swallowed.
type RedisEmitter struct {
	rdb     *redis.Client
	channel string
	log     zerolog.Logger
}

// NewRedisEmitter creates an emitter publishing on the given channel.
func NewRedisEmitter(rdb *redis.Client, channel string, log zerolog.Logger) *RedisEmitter {
	return &RedisEmitter{
		rdb:     rdb,
		channel: channel,
		log:     log.With().Str("component", "event_emitter").Logger(),
	}
}

// Emit publishes the event. Best-effort: failures are logged, never
// returned. The publish runs detached from the caller's context so a slow
// or unreachable broker cannot stall the operation that emitted the event.
func (e *RedisEmitter) Emit(_ context.Context, ev Envelope) {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.Error().Err(err).Str("type", string(ev.Type)).Msg("Marshal event failed")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := e.rdb.Publish(ctx, e.channel, payload).Err(); err != nil {
			e.log.Warn().Err(err).
				Str("type", string(ev.Type)).
				Str("attempt_id", ev.AttemptID.String()).
				Msg("Publish event failed")
		}
	}()
}

// NopEmitter discards events. Used in tests and to bootstrap wiring.
type NopEmitter struct{}

// Emit does nothing.
func (NopEmitter) Emit(context.Context, Envelope) {}
