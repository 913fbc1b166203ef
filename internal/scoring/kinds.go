package scoring

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/quizforge/quizforge-backend/internal/model"
)

// ─── Multiple choice ────────────────────────────────────────────────
// Payload: {"option_id": "b"}   Key: {"option_id": "b"}

type choicePayload struct {
	OptionID string `json:"option_id"`
}

func multipleChoiceStrategy() Strategy {
	return Strategy{
		RenderHint: "radio",
		Validate: func(payload json.RawMessage) error {
			var p choicePayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
			if p.OptionID == "" {
				return fmt.Errorf("%w: option_id is required", ErrInvalidPayload)
			}
			return nil
		},
		Score: func(q model.QuestionSnapshot, payload json.RawMessage) (Outcome, error) {
			var submitted, key choicePayload
			if err := json.Unmarshal(payload, &submitted); err != nil {
				return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
			if err := json.Unmarshal(q.AnswerKey, &key); err != nil {
				return Outcome{}, fmt.Errorf("answer key for question %s: %w", q.QuestionID, err)
			}
			if submitted.OptionID == key.OptionID {
				return Outcome{Correct: true, PointsAwarded: q.Points}, nil
			}
			return Outcome{}, nil
		},
	}
}

// ─── Multi select ───────────────────────────────────────────────────
// Payload: {"option_ids": ["a","c"]}   Key: {"option_ids": ["a","c"]}
// All-or-nothing: full points on exact set match, zero otherwise.

type multiSelectPayload struct {
	OptionIDs []string `json:"option_ids"`
}

func multiSelectStrategy() Strategy {
	return Strategy{
		RenderHint: "checkbox",
		Validate: func(payload json.RawMessage) error {
			var p multiSelectPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
			if len(p.OptionIDs) == 0 {
				return fmt.Errorf("%w: option_ids must not be empty", ErrInvalidPayload)
			}
			return nil
		},
		Score: func(q model.QuestionSnapshot, payload json.RawMessage) (Outcome, error) {
			var submitted, key multiSelectPayload
			if err := json.Unmarshal(payload, &submitted); err != nil {
				return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
			if err := json.Unmarshal(q.AnswerKey, &key); err != nil {
				return Outcome{}, fmt.Errorf("answer key for question %s: %w", q.QuestionID, err)
			}
			if sameSet(submitted.OptionIDs, key.OptionIDs) {
				return Outcome{Correct: true, PointsAwarded: q.Points}, nil
			}
			return Outcome{}, nil
		},
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// ─── Short text ─────────────────────────────────────────────────────
// Payload: {"text": "paris"}   Key: {"accept": ["Paris"]}
// Case-insensitive, whitespace-trimmed match against any accepted form.

type shortTextPayload struct {
	Text string `json:"text"`
}

type shortTextKey struct {
	Accept []string `json:"accept"`
}

func shortTextStrategy() Strategy {
	return Strategy{
		RenderHint: "text",
		Validate: func(payload json.RawMessage) error {
			var p shortTextPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
			if strings.TrimSpace(p.Text) == "" {
				return fmt.Errorf("%w: text must not be empty", ErrInvalidPayload)
			}
			return nil
		},
		Score: func(q model.QuestionSnapshot, payload json.RawMessage) (Outcome, error) {
			var submitted shortTextPayload
			if err := json.Unmarshal(payload, &submitted); err != nil {
				return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
			var key shortTextKey
			if err := json.Unmarshal(q.AnswerKey, &key); err != nil {
				return Outcome{}, fmt.Errorf("answer key for question %s: %w", q.QuestionID, err)
			}
			got := strings.ToLower(strings.TrimSpace(submitted.Text))
			for _, accept := range key.Accept {
				if got == strings.ToLower(strings.TrimSpace(accept)) {
					return Outcome{Correct: true, PointsAwarded: q.Points}, nil
				}
			}
			return Outcome{}, nil
		},
	}
}
