package scoring

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/quizforge/quizforge-backend/internal/model"
)

func TestScoreByKind(t *testing.T) {
	reg := NewRegistry()

	cases := []struct {
		name    string
		kind    model.QuestionKind
		key     string
		payload string
		points  float64
		correct bool
	}{
		{"multiple choice correct", model.KindMultipleChoice, `{"option_id":"b"}`, `{"option_id":"b"}`, 2, true},
		{"multiple choice wrong", model.KindMultipleChoice, `{"option_id":"b"}`, `{"option_id":"a"}`, 2, false},
		{"multi select exact match", model.KindMultiSelect, `{"option_ids":["a","c"]}`, `{"option_ids":["c","a"]}`, 3, true},
		{"multi select partial gets zero", model.KindMultiSelect, `{"option_ids":["a","c"]}`, `{"option_ids":["a"]}`, 3, false},
		{"multi select superset gets zero", model.KindMultiSelect, `{"option_ids":["a","c"]}`, `{"option_ids":["a","b","c"]}`, 3, false},
		{"short text exact", model.KindShortText, `{"accept":["Paris"]}`, `{"text":"Paris"}`, 1, true},
		{"short text case and whitespace", model.KindShortText, `{"accept":["Paris"]}`, `{"text":"  paris  "}`, 1, true},
		{"short text any accepted form", model.KindShortText, `{"accept":["NYC","New York"]}`, `{"text":"new york"}`, 1, true},
		{"short text wrong", model.KindShortText, `{"accept":["Paris"]}`, `{"text":"London"}`, 1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := model.QuestionSnapshot{
				Kind:      tc.kind,
				AnswerKey: json.RawMessage(tc.key),
				Points:    tc.points,
			}
			out, err := reg.Score(q, json.RawMessage(tc.payload))
			if err != nil {
				t.Fatalf("score failed: %v", err)
			}
			if out.Correct != tc.correct {
				t.Fatalf("expected correct=%v, got %v", tc.correct, out.Correct)
			}
			wantPoints := 0.0
			if tc.correct {
				wantPoints = tc.points
			}
			if out.PointsAwarded != wantPoints {
				t.Fatalf("expected %v points, got %v", wantPoints, out.PointsAwarded)
			}
		})
	}
}

func TestValidateRejectsMalformedPayloads(t *testing.T) {
	reg := NewRegistry()

	cases := []struct {
		name    string
		kind    model.QuestionKind
		payload string
	}{
		{"choice missing option_id", model.KindMultipleChoice, `{}`},
		{"choice not json", model.KindMultipleChoice, `not-json`},
		{"multi select empty list", model.KindMultiSelect, `{"option_ids":[]}`},
		{"short text blank", model.KindShortText, `{"text":"   "}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := reg.Validate(tc.kind, json.RawMessage(tc.payload))
			if !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestUnknownKind(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Validate("ESSAY", json.RawMessage(`{}`)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	_, err := reg.Score(model.QuestionSnapshot{Kind: "ESSAY"}, json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if hint := reg.RenderHint("ESSAY"); hint != "" {
		t.Fatalf("expected empty hint for unknown kind, got %q", hint)
	}
}

func TestRegisterReplacesStrategy(t *testing.T) {
	reg := NewRegistry()
	reg.Register(model.KindShortText, Strategy{
		RenderHint: "textarea",
		Validate:   func(json.RawMessage) error { return nil },
		Score: func(model.QuestionSnapshot, json.RawMessage) (Outcome, error) {
			return Outcome{Correct: true, PointsAwarded: 5}, nil
		},
	})

	out, err := reg.Score(model.QuestionSnapshot{Kind: model.KindShortText}, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if !out.Correct || out.PointsAwarded != 5 {
		t.Fatalf("replacement strategy not used: %+v", out)
	}
	if reg.RenderHint(model.KindShortText) != "textarea" {
		t.Fatalf("expected replaced render hint")
	}
}
