package model

import (
	"time"

	"github.com/google/uuid"
)

// Assignment is the engine's view of an assignment as provided by the
// assignment collaborator: the active window, the attempt budget and the
// quiz the questions are drawn from.
type Assignment struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	QuizID           uuid.UUID  `json:"quiz_id"`
	TimeLimitSeconds *int       `json:"time_limit_seconds,omitempty"` // nil = unlimited
	AttemptsAllowed  int        `json:"attempts_allowed"`
	OpensAt          *time.Time `json:"opens_at,omitempty"`
	ClosesAt         *time.Time `json:"closes_at,omitempty"`
	ShowCorrectness  bool       `json:"show_correctness"`
}

// WindowOpen reports whether the assignment accepts new attempts at the
// given instant.
func (a *Assignment) WindowOpen(now time.Time) bool {
	if a.OpensAt != nil && now.Before(*a.OpensAt) {
		return false
	}
	if a.ClosesAt != nil && now.After(*a.ClosesAt) {
		return false
	}
	return true
}

// Eligibility is the assignment collaborator's verdict on whether a learner
// may start a new attempt.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}
