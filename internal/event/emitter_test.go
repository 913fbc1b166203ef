package event

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestRedisEmitterPublishesEnvelope(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	channel := config.CacheKey.AttemptEventsChannel()

	ctx := context.Background()
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	emitter := NewRedisEmitter(client, channel, zerolog.Nop())
	want := Envelope{
		Type:         TypeAttemptFinished,
		AttemptID:    uuid.New(),
		AssignmentID: uuid.New(),
		LearnerID:    7,
		At:           time.Now().UTC().Truncate(time.Second),
		Data:         map[string]any{"reason": "submit"},
	}
	emitter.Emit(ctx, want)

	select {
	case msg := <-sub.Channel():
		var got Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if got.Type != want.Type || got.AttemptID != want.AttemptID || got.LearnerID != want.LearnerID {
			t.Fatalf("event mismatch: got %+v want %+v", got, want)
		}
		if got.Data["reason"] != "submit" {
			t.Fatalf("expected data to round-trip, got %v", got.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received within 1s")
	}
}

func TestRedisEmitterDoesNotBlockOnUnresponsiveBroker(t *testing.T) {
	// A listener that accepts connections and never replies, standing in
	// for a hung Redis. A synchronous publish would stall until the client
	// read timeout.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	client := redis.NewClient(&redis.Options{
		Addr:        ln.Addr().String(),
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	emitter := NewRedisEmitter(client, config.CacheKey.AttemptEventsChannel(), zerolog.Nop())

	start := time.Now()
	emitter.Emit(context.Background(), Envelope{Type: TypeAnswerSaved, AttemptID: uuid.New()})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Emit blocked for %v", elapsed)
	}
}

func TestRedisEmitterSwallowsPublishErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close() // force publish failures

	emitter := NewRedisEmitter(client, config.CacheKey.AttemptEventsChannel(), zerolog.Nop())
	// Must not panic or block.
	emitter.Emit(context.Background(), Envelope{Type: TypeAnswerSaved, AttemptID: uuid.New()})
}
