package deadline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCache is an in-process Cache for tests and single-node setups
// without Redis.
type MemoryCache struct {
	mu        sync.Mutex
	deadlines map[uuid.UUID]time.Time
	schedule  map[uuid.UUID]time.Time
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		deadlines: make(map[uuid.UUID]time.Time),
		schedule:  make(map[uuid.UUID]time.Time),
	}
}

func (c *MemoryCache) SetDeadline(_ context.Context, attemptID uuid.UUID, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines[attemptID] = deadline
	return nil
}

func (c *MemoryCache) GetDeadline(_ context.Context, attemptID uuid.UUID) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.deadlines[attemptID]
	return d, ok, nil
}

func (c *MemoryCache) ClearDeadline(_ context.Context, attemptID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deadlines, attemptID)
	return nil
}

func (c *MemoryCache) Schedule(_ context.Context, attemptID uuid.UUID, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedule[attemptID] = deadline
	return nil
}

func (c *MemoryCache) Unschedule(_ context.Context, attemptID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.schedule, attemptID)
	return nil
}

// Scheduled reports whether the attempt is in the expiry schedule. Test
// helper.
func (c *MemoryCache) Scheduled(attemptID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.schedule[attemptID]
	return ok
}
