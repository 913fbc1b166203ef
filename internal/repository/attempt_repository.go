package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizforge/quizforge-backend/internal/model"
	"github.com/quizforge/quizforge-backend/internal/store"
)

const uniqueViolation = "23505"

// AttemptRepository is the PostgreSQL store.AttemptStore. Lifecycle
// transitions are single-statement compare-and-sets on status, so only one
// caller can win each transition.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, assignment_id, learner_id, ordinal, status, question_count,
	 time_limit_seconds, created_at, started_at, deadline, finished_at`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.AssignmentID, &a.LearnerID, &a.Ordinal, &a.Status, &a.QuestionCount,
		&a.TimeLimitSeconds, &a.CreatedAt, &a.StartedAt, &a.Deadline, &a.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a CREATED attempt. The (assignment, learner, ordinal)
// unique key turns a concurrent duplicate start into store.ErrConflict.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (id, assignment_id, learner_id, ordinal, status, time_limit_seconds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.AssignmentID, a.LearnerID, a.Ordinal, a.Status, a.TimeLimitSeconds, a.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrConflict
	}
	return err
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// FindActive returns the learner's most recent non-finished attempt for the
// assignment.
func (r *AttemptRepository) FindActive(ctx context.Context, assignmentID uuid.UUID, learnerID int64) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE assignment_id = $1 AND learner_id = $2 AND status <> $3
		 ORDER BY ordinal DESC
		 LIMIT 1`,
		assignmentID, learnerID, model.AttemptStatusFinished))
}

// CountByAssignment counts all attempts for the pair, any status.
func (r *AttemptRepository) CountByAssignment(ctx context.Context, assignmentID uuid.UUID, learnerID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE assignment_id = $1 AND learner_id = $2`,
		assignmentID, learnerID).Scan(&n)
	return n, err
}

// CountFinished counts the learner's FINISHED attempts for the assignment.
func (r *AttemptRepository) CountFinished(ctx context.Context, assignmentID uuid.UUID, learnerID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts
		 WHERE assignment_id = $1 AND learner_id = $2 AND status = $3`,
		assignmentID, learnerID, model.AttemptStatusFinished).Scan(&n)
	return n, err
}

// MarkStarted performs the CREATED→STARTED compare-and-set, fixing the
// start time and deadline exactly once.
func (r *AttemptRepository) MarkStarted(ctx context.Context, id uuid.UUID, startedAt time.Time, deadline *time.Time, questionCount int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, started_at = $2, deadline = $3, question_count = $4
		 WHERE id = $5 AND status = $6`,
		model.AttemptStatusStarted, startedAt, deadline, questionCount,
		id, model.AttemptStatusCreated)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFinished performs the STARTED→FINISHED compare-and-set. The loser of
// the finalize race gets false and must read back the winner's result.
func (r *AttemptRepository) MarkFinished(ctx context.Context, id uuid.UUID, finishedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = $2
		 WHERE id = $3 AND status = $4`,
		model.AttemptStatusFinished, finishedAt, id, model.AttemptStatusStarted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByLearner retrieves the learner's attempts, newest first.
func (r *AttemptRepository) ListByLearner(ctx context.Context, learnerID int64) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE learner_id = $1
		 ORDER BY created_at DESC`, learnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.AssignmentID, &a.LearnerID, &a.Ordinal, &a.Status, &a.QuestionCount,
			&a.TimeLimitSeconds, &a.CreatedAt, &a.StartedAt, &a.Deadline, &a.FinishedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListOverdue returns ids of STARTED attempts whose deadline has passed.
// Backstop for schedule entries lost from Redis.
func (r *AttemptRepository) ListOverdue(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM attempts
		 WHERE status = $1 AND deadline IS NOT NULL AND deadline < $2
		 ORDER BY deadline ASC
		 LIMIT $3`,
		model.AttemptStatusStarted, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
