package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AnswerRecord holds the latest saved answer for one (attempt, question)
// pair. A later save replaces an earlier one; there is never more than one
// record per pair. Records are frozen once the attempt finishes.
type AnswerRecord struct {
	AttemptID  uuid.UUID       `json:"attempt_id"`
	QuestionID uuid.UUID       `json:"question_id"`
	Payload    json.RawMessage `json:"payload,omitempty"` // nil for flag-only records
	Flagged    bool            `json:"flagged"`
	SavedAt    time.Time       `json:"saved_at"`
}

// Answered reports whether the record carries an actual answer payload, as
// opposed to being a flag-only placeholder.
func (r *AnswerRecord) Answered() bool {
	return len(r.Payload) > 0 && string(r.Payload) != "null"
}

// SaveAnswerRequest is the payload for saving one answer.
type SaveAnswerRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// SaveAnswerAck confirms a successful save with progress counters so the
// client can update answered/total without re-fetching the attempt.
type SaveAnswerAck struct {
	QuestionID uuid.UUID `json:"question_id"`
	SavedAt    time.Time `json:"saved_at"`
	Answered   int       `json:"answered"`
	Total      int       `json:"total"`
}

// ToggleFlagAck confirms a flag toggle.
type ToggleFlagAck struct {
	QuestionID uuid.UUID `json:"question_id"`
	Flagged    bool      `json:"flagged"`
}
