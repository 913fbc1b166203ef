// Package deadline holds the Deadline Monitor: a Redis mirror of the
// authoritative deadlines, the expiry schedule the worker sweeps, and the
// local fallback timers that make auto-finalization responsive.
package deadline

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// Cache mirrors attempt deadlines and maintains the expiry schedule. The
// mirror is an optimization only — the attempt row stays the source of
// truth, and callers fall back to it on a miss.
type Cache interface {
	// SetDeadline mirrors the deadline. Keyed per attempt, no TTL: the key
	// is deleted on finalize.
	SetDeadline(ctx context.Context, attemptID uuid.UUID, deadline time.Time) error
	// GetDeadline returns the mirrored deadline and whether it was present.
	GetDeadline(ctx context.Context, attemptID uuid.UUID) (time.Time, bool, error)
	// ClearDeadline drops the mirror entry.
	ClearDeadline(ctx context.Context, attemptID uuid.UUID) error
	// Schedule registers the attempt in the expiry schedule.
	Schedule(ctx context.Context, attemptID uuid.UUID, deadline time.Time) error
	// Unschedule removes the attempt from the expiry schedule.
	Unschedule(ctx context.Context, attemptID uuid.UUID) error
}

// RedisCache implements Cache on Redis: a string key per deadline plus a
// ZSET scored by deadline unix time for the expiry worker.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache wraps a Redis client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) SetDeadline(ctx context.Context, attemptID uuid.UUID, deadline time.Time) error {
	key := config.CacheKey.AttemptDeadlineKey(attemptID.String())
	return c.rdb.Set(ctx, key, deadline.Unix(), 0).Err()
}

func (c *RedisCache) GetDeadline(ctx context.Context, attemptID uuid.UUID) (time.Time, bool, error) {
	key := config.CacheKey.AttemptDeadlineKey(attemptID.String())
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Unparsable entry: treat as a miss so the caller self-heals it.
		return time.Time{}, false, nil
	}
	return time.Unix(unix, 0), true, nil
}

func (c *RedisCache) ClearDeadline(ctx context.Context, attemptID uuid.UUID) error {
	key := config.CacheKey.AttemptDeadlineKey(attemptID.String())
	return c.rdb.Del(ctx, key).Err()
}

func (c *RedisCache) Schedule(ctx context.Context, attemptID uuid.UUID, deadline time.Time) error {
	return c.rdb.ZAdd(ctx, config.WorkerKey.DeadlineSchedule, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: attemptID.String(),
	}).Err()
}

func (c *RedisCache) Unschedule(ctx context.Context, attemptID uuid.UUID) error {
	return c.rdb.ZRem(ctx, config.WorkerKey.DeadlineSchedule, attemptID.String()).Err()
}

// Due returns up to limit attempt ids whose deadline passed at or before
// now. Consumed by the expiry worker.
func (c *RedisCache) Due(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error) {
	members, err := c.rdb.ZRangeByScore(ctx, config.WorkerKey.DeadlineSchedule, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			// Junk member: drop it so it does not wedge the sweep.
			c.rdb.ZRem(ctx, config.WorkerKey.DeadlineSchedule, m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
