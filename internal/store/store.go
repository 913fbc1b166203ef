// Package store defines the persistence contracts the session engine
// consumes. PostgreSQL implementations live in internal/repository; the
// memory subpackage provides in-process implementations for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/model"
)

// Sentinel errors returned by store implementations.
var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means an insert collided with a unique key.
	ErrConflict = errors.New("conflict")
	// ErrClosed means a write targeted an attempt that is no longer STARTED.
	ErrClosed = errors.New("attempt is not writable")
)

// AttemptStore persists attempt rows. Status transitions happen through the
// compare-and-set Mark* operations only, so exactly one caller can win each
// transition.
type AttemptStore interface {
	// Create inserts a CREATED attempt. Returns ErrConflict when the
	// (assignment, learner, ordinal) key is already taken.
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	// FindActive returns the learner's CREATED or STARTED attempt for the
	// assignment, or ErrNotFound.
	FindActive(ctx context.Context, assignmentID uuid.UUID, learnerID int64) (*model.Attempt, error)
	// CountByAssignment counts all attempts for the pair, any status.
	CountByAssignment(ctx context.Context, assignmentID uuid.UUID, learnerID int64) (int, error)
	// CountFinished counts the learner's FINISHED attempts for the assignment.
	CountFinished(ctx context.Context, assignmentID uuid.UUID, learnerID int64) (int, error)
	// MarkStarted performs the CREATED→STARTED transition, fixing the start
	// time, deadline and question count. Returns false when the attempt was
	// not in CREATED.
	MarkStarted(ctx context.Context, id uuid.UUID, startedAt time.Time, deadline *time.Time, questionCount int) (bool, error)
	// MarkFinished performs the STARTED→FINISHED transition. Returns false
	// when the attempt was not in STARTED — the caller lost the finalize
	// race and must read back the winner's result.
	MarkFinished(ctx context.Context, id uuid.UUID, finishedAt time.Time) (bool, error)
	// ListByLearner returns the learner's attempts, newest first.
	ListByLearner(ctx context.Context, learnerID int64) ([]model.Attempt, error)
	// ListOverdue returns ids of STARTED attempts whose deadline passed
	// before the given instant. Backstop for the expiry schedule.
	ListOverdue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

// AnswerStore is the keyed upsert store for answer records. The
// (attempt, question) key makes "one record per question" structural, and
// writes are conditioned on the attempt still being STARTED so a save racing
// finalization cannot land after scoring read the records.
type AnswerStore interface {
	// Upsert inserts or replaces the payload for the record's key, leaving
	// the flagged bit untouched on replace. Returns ErrClosed when the
	// attempt is no longer STARTED.
	Upsert(ctx context.Context, rec *model.AnswerRecord) error
	// ToggleFlag flips the flagged bit, creating an empty record if none
	// exists. Returns the new flagged state, or ErrClosed when the attempt
	// is no longer STARTED.
	ToggleFlag(ctx context.Context, attemptID, questionID uuid.UUID, at time.Time) (bool, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerRecord, error)
	// CountAnswered counts records that carry an actual payload.
	CountAnswered(ctx context.Context, attemptID uuid.UUID) (int, error)
}

// SnapshotStore persists the immutable question snapshots captured at start.
type SnapshotStore interface {
	// CreateBatch inserts snapshots, ignoring ones already present so a
	// replayed start is harmless.
	CreateBatch(ctx context.Context, snaps []model.QuestionSnapshot) error
	// ListByAttempt returns snapshots ordered by position.
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.QuestionSnapshot, error)
	Get(ctx context.Context, attemptID, questionID uuid.UUID) (*model.QuestionSnapshot, error)
}

// ResultStore persists exactly one result per finished attempt.
type ResultStore interface {
	// Create inserts the result; a concurrent duplicate insert is ignored
	// so the first stored result always wins.
	Create(ctx context.Context, r *model.Result) error
	GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Result, error)
}

// AssignmentDirectory is the assignment collaborator: it owns the active
// window and the attempt budget.
type AssignmentDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Assignment, error)
	// CheckEligibility decides whether the learner may start a new attempt
	// at the given instant.
	CheckEligibility(ctx context.Context, assignmentID uuid.UUID, learnerID int64, now time.Time) (*model.Eligibility, error)
}

// QuestionSource is the authoring collaborator: it serves the ordered
// question list snapshotted at attempt start. AttemptID is left unset on the
// returned snapshots; the caller stamps it.
type QuestionSource interface {
	LoadQuestionSnapshots(ctx context.Context, quizID uuid.UUID) ([]model.QuestionSnapshot, error)
}
