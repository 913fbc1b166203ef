package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizforge/quizforge-backend/internal/model"
	"github.com/quizforge/quizforge-backend/internal/store"
)

// AssignmentRepository is the PostgreSQL store.AssignmentDirectory: the
// reference implementation of the assignment collaborator, owning the
// active window and the attempt budget.
type AssignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

// GetByID retrieves an assignment by id.
func (r *AssignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	a := &model.Assignment{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, quiz_id, time_limit_seconds, attempts_allowed, opens_at, closes_at, show_correctness
		 FROM assignments
		 WHERE id = $1`, id,
	).Scan(&a.ID, &a.Title, &a.QuizID, &a.TimeLimitSeconds, &a.AttemptsAllowed,
		&a.OpensAt, &a.ClosesAt, &a.ShowCorrectness)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CheckEligibility decides whether the learner may start a new attempt:
// the window must be open and finished attempts must not exhaust the budget.
func (r *AssignmentRepository) CheckEligibility(ctx context.Context, assignmentID uuid.UUID, learnerID int64, now time.Time) (*model.Eligibility, error) {
	a, err := r.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if !a.WindowOpen(now) {
		return &model.Eligibility{Reason: "assignment window is closed"}, nil
	}

	var used int
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts
		 WHERE assignment_id = $1 AND learner_id = $2 AND status = $3`,
		assignmentID, learnerID, model.AttemptStatusFinished).Scan(&used)
	if err != nil {
		return nil, err
	}
	if a.AttemptsAllowed > 0 && used >= a.AttemptsAllowed {
		return &model.Eligibility{Reason: "no attempts remaining"}, nil
	}
	return &model.Eligibility{Eligible: true}, nil
}
