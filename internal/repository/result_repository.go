package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizforge/quizforge-backend/internal/model"
	"github.com/quizforge/quizforge-backend/internal/store"
)

// ResultRepository is the PostgreSQL store.ResultStore. The attempt_id
// primary key plus ON CONFLICT DO NOTHING guarantees the first stored
// result is the only one, ever.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Create inserts the result, silently keeping an existing row.
func (r *ResultRepository) Create(ctx context.Context, res *model.Result) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_results
		 (attempt_id, score, possible, correct_count, incorrect_count, unanswered_count,
		  time_spent_seconds, finished_at, show_correctness)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (attempt_id) DO NOTHING`,
		res.AttemptID, res.Score, res.Possible, res.CorrectCount, res.IncorrectCount,
		res.UnansweredCount, res.TimeSpentSeconds, res.FinishedAt, res.ShowCorrectness,
	)
	return err
}

// GetByAttempt retrieves the result for an attempt.
func (r *ResultRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	res := &model.Result{}
	err := r.pool.QueryRow(ctx,
		`SELECT attempt_id, score, possible, correct_count, incorrect_count, unanswered_count,
		        time_spent_seconds, finished_at, show_correctness
		 FROM attempt_results
		 WHERE attempt_id = $1`, attemptID,
	).Scan(&res.AttemptID, &res.Score, &res.Possible, &res.CorrectCount, &res.IncorrectCount,
		&res.UnansweredCount, &res.TimeSpentSeconds, &res.FinishedAt, &res.ShowCorrectness)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
