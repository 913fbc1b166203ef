// Package session holds client-local attempt bookkeeping. Navigation is
// pure in-memory movement over the ordered question list obtained from the
// attempt view — no network calls, no failure modes.
package session

import (
	"github.com/quizforge/quizforge-backend/internal/model"
)

// Navigator tracks the current position within an attempt's question list.
type Navigator struct {
	questions []model.QuestionForLearner
	index     int
}

// NewNavigator wraps an ordered question list, positioned at the first
// question.
func NewNavigator(questions []model.QuestionForLearner) *Navigator {
	return &Navigator{questions: questions}
}

// Len returns the number of questions.
func (n *Navigator) Len() int { return len(n.questions) }

// Index returns the current zero-based position.
func (n *Navigator) Index() int { return n.index }

// Current returns the question at the current position, or false when the
// list is empty.
func (n *Navigator) Current() (model.QuestionForLearner, bool) {
	if len(n.questions) == 0 {
		return model.QuestionForLearner{}, false
	}
	return n.questions[n.index], true
}

// Next advances one question. Returns false (without moving) at the end.
func (n *Navigator) Next() bool {
	if n.index+1 >= len(n.questions) {
		return false
	}
	n.index++
	return true
}

// Prev moves back one question. Returns false (without moving) at the start.
func (n *Navigator) Prev() bool {
	if n.index == 0 {
		return false
	}
	n.index--
	return true
}

// JumpTo moves to a specific position. Returns false (without moving) when
// the index is out of range.
func (n *Navigator) JumpTo(i int) bool {
	if i < 0 || i >= len(n.questions) {
		return false
	}
	n.index = i
	return true
}
