package deadline

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCache(client), mr
}

func TestDeadlineMirrorRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	id := uuid.New()
	deadline := time.Now().Add(10 * time.Minute).Truncate(time.Second)

	if err := cache.SetDeadline(ctx, id, deadline); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if !mr.Exists(config.CacheKey.AttemptDeadlineKey(id.String())) {
		t.Fatal("expected mirror key in redis")
	}

	got, ok, err := cache.GetDeadline(ctx, id)
	if err != nil || !ok {
		t.Fatalf("get deadline: ok=%v err=%v", ok, err)
	}
	if !got.Equal(deadline) {
		t.Fatalf("expected %v, got %v", deadline, got)
	}

	if err := cache.ClearDeadline(ctx, id); err != nil {
		t.Fatalf("clear deadline: %v", err)
	}
	_, ok, err = cache.GetDeadline(ctx, id)
	if err != nil || ok {
		t.Fatalf("expected miss after clear, ok=%v err=%v", ok, err)
	}
}

func TestGetDeadlineTreatsJunkAsMiss(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	id := uuid.New()
	mr.Set(config.CacheKey.AttemptDeadlineKey(id.String()), "not-a-unix-timestamp")

	_, ok, err := cache.GetDeadline(ctx, id)
	if err != nil {
		t.Fatalf("get deadline: %v", err)
	}
	if ok {
		t.Fatal("unparsable entry should read as a miss")
	}
}

func TestScheduleAndDue(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	now := time.Now()
	past := uuid.New()
	future := uuid.New()

	if err := cache.Schedule(ctx, past, now.Add(-time.Minute)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := cache.Schedule(ctx, future, now.Add(time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	due, err := cache.Due(ctx, now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0] != past {
		t.Fatalf("expected only the past attempt due, got %v", due)
	}

	if err := cache.Unschedule(ctx, past); err != nil {
		t.Fatalf("unschedule: %v", err)
	}
	due, err = cache.Due(ctx, now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected empty schedule, got %v", due)
	}
}

func TestDueDropsJunkMembers(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	mr.ZAdd(config.WorkerKey.DeadlineSchedule, 1, "garbage")
	valid := uuid.New()
	if err := cache.Schedule(ctx, valid, time.Unix(2, 0)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	due, err := cache.Due(ctx, time.Unix(100, 0), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0] != valid {
		t.Fatalf("expected junk skipped, got %v", due)
	}

	// The junk member must have been removed, not just skipped.
	due, err = cache.Due(ctx, time.Unix(100, 0), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected junk member purged, got %v", due)
	}
	members, _ := mr.ZMembers(config.WorkerKey.DeadlineSchedule)
	if len(members) != 1 {
		t.Fatalf("expected 1 member left in schedule, got %v", members)
	}
}
