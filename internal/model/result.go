package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is the scored outcome of a finished attempt. It is produced exactly
// once by finalization and is never recomputed in place.
type Result struct {
	AttemptID        uuid.UUID `json:"attempt_id"`
	Score            float64   `json:"score"`
	Possible         float64   `json:"possible"`
	CorrectCount     int       `json:"correct_count"`
	IncorrectCount   int       `json:"incorrect_count"`
	UnansweredCount  int       `json:"unanswered_count"`
	TimeSpentSeconds float64   `json:"time_spent_seconds"`
	FinishedAt       time.Time `json:"finished_at"`
	// ShowCorrectness controls whether the learner may view per-question
	// correctness, copied from the assignment at finalization time.
	ShowCorrectness bool `json:"show_correctness"`
}
