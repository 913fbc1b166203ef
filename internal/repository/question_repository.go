package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizforge/quizforge-backend/internal/model"
	"github.com/quizforge/quizforge-backend/internal/store"
)

// QuestionRepository is the PostgreSQL store.QuestionSource: the reference
// implementation of the authoring collaborator. It serves the ordered
// question list the engine snapshots at attempt start; the engine never
// reads the authoring rows again afterward.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// LoadQuestionSnapshots returns the quiz's questions ordered by position,
// as snapshot templates with AttemptID left unset.
func (r *QuestionRepository) LoadQuestionSnapshots(ctx context.Context, quizID uuid.UUID) ([]model.QuestionSnapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, position, kind, prompt, options, answer_key, points
		 FROM questions
		 WHERE quiz_id = $1
		 ORDER BY position ASC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.QuestionSnapshot
	for rows.Next() {
		var q model.QuestionSnapshot
		if err := rows.Scan(&q.QuestionID, &q.Position, &q.Kind, &q.Prompt,
			&q.Options, &q.AnswerKey, &q.Points); err != nil {
			return nil, err
		}
		snaps = append(snaps, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, store.ErrNotFound
	}
	return snaps, nil
}
