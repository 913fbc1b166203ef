package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptDeadlineKey returns the cache key mirroring an attempt's
// authoritative deadline (unix seconds).
func (r *CacheKeyStruct) AttemptDeadlineKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:deadline", attemptID)
}

// LearnerActiveAttemptKey returns the cache key for a learner's currently
// active attempt on an assignment.
func (r *CacheKeyStruct) LearnerActiveAttemptKey(assignmentID string, learnerID int64) string {
	return fmt.Sprintf("learner:%d:assignment:%s:active_attempt", learnerID, assignmentID)
}

// AttemptEventsChannel returns the Redis PubSub channel lifecycle events are
// published on.
func (r *CacheKeyStruct) AttemptEventsChannel() string {
	return "attempt:events"
}

var CacheKey = NewCacheKeyStruct()
