// Package scoring maps each question kind to its validate/score/render-hint
// strategy. Adding a new kind is a single Register call; nothing else in the
// engine branches on kind.
package scoring

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quizforge/quizforge-backend/internal/model"
)

// Domain errors.
var (
	ErrUnknownKind    = errors.New("unknown question kind")
	ErrInvalidPayload = errors.New("invalid answer payload")
)

// Outcome is the result of scoring one submitted answer against its key.
type Outcome struct {
	Correct       bool
	PointsAwarded float64
}

// Strategy bundles everything kind-specific: payload validation, scoring and
// the hint the client uses to pick an input widget.
type Strategy struct {
	// Validate checks a submitted payload's shape. It must not consult the
	// answer key.
	Validate func(payload json.RawMessage) error
	// Score compares a submitted payload against the snapshot's answer key.
	// Pure and deterministic.
	Score func(q model.QuestionSnapshot, payload json.RawMessage) (Outcome, error)
	// RenderHint tells the client how to render the question.
	RenderHint string
}

// Registry dispatches by question kind. Registration happens at startup;
// lookups afterward are read-only, so no locking is needed.
type Registry struct {
	strategies map[model.QuestionKind]Strategy
}

// NewRegistry returns a registry with the built-in kinds registered.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[model.QuestionKind]Strategy)}
	r.Register(model.KindMultipleChoice, multipleChoiceStrategy())
	r.Register(model.KindMultiSelect, multiSelectStrategy())
	r.Register(model.KindShortText, shortTextStrategy())
	return r
}

// Register adds or replaces the strategy for a kind.
func (r *Registry) Register(kind model.QuestionKind, s Strategy) {
	r.strategies[kind] = s
}

// Validate checks a payload's shape for the given kind.
func (r *Registry) Validate(kind model.QuestionKind, payload json.RawMessage) error {
	s, ok := r.strategies[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return s.Validate(payload)
}

// Score applies the kind's scoring function to one snapshot and payload.
func (r *Registry) Score(q model.QuestionSnapshot, payload json.RawMessage) (Outcome, error) {
	s, ok := r.strategies[q.Kind]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownKind, q.Kind)
	}
	return s.Score(q, payload)
}

// RenderHint returns the client rendering hint for a kind, or empty if the
// kind is unknown.
func (r *Registry) RenderHint(kind model.QuestionKind) string {
	return r.strategies[kind].RenderHint
}
