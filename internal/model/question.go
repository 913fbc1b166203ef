package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionKind selects the validate/score/render strategy for a question.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "MULTIPLE_CHOICE"
	KindMultiSelect    QuestionKind = "MULTI_SELECT"
	KindShortText      QuestionKind = "SHORT_TEXT"
)

// QuestionSnapshot is an immutable copy of a question as it existed when the
// attempt started. Later edits to the authoring copy never affect it.
type QuestionSnapshot struct {
	AttemptID  uuid.UUID       `json:"attempt_id"`
	QuestionID uuid.UUID       `json:"question_id"`
	Position   int             `json:"position"`
	Kind       QuestionKind    `json:"kind"`
	Prompt     string          `json:"prompt"`
	Options    json.RawMessage `json:"options"`
	AnswerKey  json.RawMessage `json:"-"` // never serialized to learners
	Points     float64         `json:"points"`
}

// QuestionForLearner is a snapshot view with the answer key stripped and a
// render hint attached for the client.
type QuestionForLearner struct {
	QuestionID uuid.UUID       `json:"question_id"`
	Position   int             `json:"position"`
	Kind       QuestionKind    `json:"kind"`
	Prompt     string          `json:"prompt"`
	Options    json.RawMessage `json:"options"`
	Points     float64         `json:"points"`
	RenderHint string          `json:"render_hint,omitempty"`
}

// ForLearner strips the answer key from a snapshot.
func (q *QuestionSnapshot) ForLearner(renderHint string) QuestionForLearner {
	return QuestionForLearner{
		QuestionID: q.QuestionID,
		Position:   q.Position,
		Kind:       q.Kind,
		Prompt:     q.Prompt,
		Options:    q.Options,
		Points:     q.Points,
		RenderHint: renderHint,
	}
}
