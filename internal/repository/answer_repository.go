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

// AnswerRepository is the PostgreSQL store.AnswerStore. The
// (attempt_id, question_id) primary key makes the one-record-per-question
// invariant structural: a save is always an upsert, never an append.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert inserts or replaces the answer payload, leaving the flagged bit
// untouched on replace. The write is conditioned on the attempt row still
// being STARTED, so a save racing the finalize status flip lands as zero
// rows instead of a stored-but-unscored answer.
func (r *AnswerRepository) Upsert(ctx context.Context, rec *model.AnswerRecord) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, payload, flagged, saved_at)
		 SELECT $1::uuid, $2::uuid, $3::jsonb, FALSE, $4::timestamptz
		 WHERE EXISTS (SELECT 1 FROM attempts WHERE id = $1 AND status = 'STARTED')
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`,
		rec.AttemptID, rec.QuestionID, rec.Payload, rec.SavedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrClosed
	}
	return nil
}

// ToggleFlag flips the flagged bit, creating an empty record when the
// question has no saved answer yet. Guarded by the same STARTED condition
// as Upsert.
func (r *AnswerRepository) ToggleFlag(ctx context.Context, attemptID, questionID uuid.UUID, at time.Time) (bool, error) {
	var flagged bool
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, payload, flagged, saved_at)
		 SELECT $1::uuid, $2::uuid, NULL::jsonb, TRUE, $3::timestamptz
		 WHERE EXISTS (SELECT 1 FROM attempts WHERE id = $1 AND status = 'STARTED')
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET flagged = NOT attempt_answers.flagged, saved_at = EXCLUDED.saved_at
		 RETURNING flagged`,
		attemptID, questionID, at,
	).Scan(&flagged)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, store.ErrClosed
	}
	return flagged, err
}

// ListByAttempt retrieves all answer records for an attempt.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, payload, flagged, saved_at
		 FROM attempt_answers
		 WHERE attempt_id = $1
		 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.AnswerRecord
	for rows.Next() {
		var rec model.AnswerRecord
		if err := rows.Scan(&rec.AttemptID, &rec.QuestionID, &rec.Payload, &rec.Flagged, &rec.SavedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountAnswered counts records carrying an actual payload.
func (r *AnswerRepository) CountAnswered(ctx context.Context, attemptID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempt_answers
		 WHERE attempt_id = $1 AND payload IS NOT NULL`, attemptID).Scan(&n)
	return n, err
}
