package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
type AttemptStatus string

const (
	AttemptStatusCreated  AttemptStatus = "CREATED"
	AttemptStatusStarted  AttemptStatus = "STARTED"
	AttemptStatusFinished AttemptStatus = "FINISHED"
)

// Attempt represents one timed instance of a learner taking an assignment.
// The deadline is fixed exactly once, at the CREATED→STARTED transition.
type Attempt struct {
	ID               uuid.UUID     `json:"id"`
	AssignmentID     uuid.UUID     `json:"assignment_id"`
	LearnerID        int64         `json:"learner_id"`
	Ordinal          int           `json:"ordinal"`
	Status           AttemptStatus `json:"status"`
	QuestionCount    int           `json:"question_count"`
	TimeLimitSeconds *int          `json:"time_limit_seconds,omitempty"` // nil = unlimited
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	Deadline         *time.Time    `json:"deadline,omitempty"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
}

// RemainingSeconds returns the authoritative remaining time at the given
// instant, clamped at zero. Returns nil for unlimited attempts and for
// attempts that have not started.
func (a *Attempt) RemainingSeconds(now time.Time) *float64 {
	if a.Deadline == nil || a.StartedAt == nil {
		return nil
	}
	rem := a.Deadline.Sub(now).Seconds()
	if rem < 0 {
		rem = 0
	}
	return &rem
}

// Expired reports whether the attempt's deadline has passed at the given
// instant. Unlimited attempts never expire.
func (a *Attempt) Expired(now time.Time) bool {
	return a.Deadline != nil && now.After(*a.Deadline)
}

// StartAttemptRequest is the payload for starting an attempt.
type StartAttemptRequest struct {
	AssignmentID string `json:"assignment_id" binding:"required,uuid"`
}
