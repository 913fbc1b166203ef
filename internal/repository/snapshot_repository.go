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

// SnapshotRepository is the PostgreSQL store.SnapshotStore. Snapshots are
// written once at attempt start and never updated.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// CreateBatch inserts snapshots in one round trip. Already-present rows are
// kept untouched, so a replayed start never changes the served view.
func (r *SnapshotRepository) CreateBatch(ctx context.Context, snaps []model.QuestionSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range snaps {
		batch.Queue(
			`INSERT INTO attempt_questions (attempt_id, question_id, position, kind, prompt, options, answer_key, points)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (attempt_id, question_id) DO NOTHING`,
			snaps[i].AttemptID, snaps[i].QuestionID, snaps[i].Position, snaps[i].Kind,
			snaps[i].Prompt, snaps[i].Options, snaps[i].AnswerKey, snaps[i].Points,
		)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range snaps {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListByAttempt retrieves the attempt's snapshots ordered by position.
func (r *SnapshotRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.QuestionSnapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, position, kind, prompt, options, answer_key, points
		 FROM attempt_questions
		 WHERE attempt_id = $1
		 ORDER BY position ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.QuestionSnapshot
	for rows.Next() {
		var q model.QuestionSnapshot
		if err := rows.Scan(&q.AttemptID, &q.QuestionID, &q.Position, &q.Kind,
			&q.Prompt, &q.Options, &q.AnswerKey, &q.Points); err != nil {
			return nil, err
		}
		snaps = append(snaps, q)
	}
	return snaps, rows.Err()
}

// Get retrieves one snapshot by its key.
func (r *SnapshotRepository) Get(ctx context.Context, attemptID, questionID uuid.UUID) (*model.QuestionSnapshot, error) {
	q := &model.QuestionSnapshot{}
	err := r.pool.QueryRow(ctx,
		`SELECT attempt_id, question_id, position, kind, prompt, options, answer_key, points
		 FROM attempt_questions
		 WHERE attempt_id = $1 AND question_id = $2`, attemptID, questionID,
	).Scan(&q.AttemptID, &q.QuestionID, &q.Position, &q.Kind,
		&q.Prompt, &q.Options, &q.AnswerKey, &q.Points)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}
