package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/auth"
	"github.com/quizforge/quizforge-backend/internal/config"
	"github.com/quizforge/quizforge-backend/internal/database"
	"github.com/quizforge/quizforge-backend/internal/logger"
	"github.com/quizforge/quizforge-backend/internal/model"
)

// Seeds a demo assignment with one question of each kind and prints a
// learner token, so a fresh database can be exercised with curl right away.
func main() {
	var learnerID int64
	var timeLimit int
	flag.Int64Var(&learnerID, "learner", 1, "Learner ID to mint a token for")
	flag.IntVar(&timeLimit, "time-limit", 600, "Assignment time limit in seconds (0 = unlimited)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	quizID := uuid.New()
	assignmentID := uuid.New()

	fmt.Println("=== Seeding Demo Assignment ===")

	var limit *int
	if timeLimit > 0 {
		limit = &timeLimit
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO assignments (id, title, quiz_id, time_limit_seconds, attempts_allowed, show_correctness)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		assignmentID, "Demo Quiz", quizID, limit, 3, true)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to insert assignment")
	}

	type q struct {
		kind      model.QuestionKind
		prompt    string
		options   string
		answerKey string
		points    float64
	}
	questions := []q{
		{
			kind:      model.KindMultipleChoice,
			prompt:    "Which planet is closest to the sun?",
			options:   `[{"id":"a","text":"Venus"},{"id":"b","text":"Mercury"},{"id":"c","text":"Mars"}]`,
			answerKey: `{"option_id":"b"}`,
			points:    1,
		},
		{
			kind:      model.KindMultiSelect,
			prompt:    "Select the prime numbers.",
			options:   `[{"id":"a","text":"2"},{"id":"b","text":"4"},{"id":"c","text":"5"},{"id":"d","text":"9"}]`,
			answerKey: `{"option_ids":["a","c"]}`,
			points:    2,
		},
		{
			kind:      model.KindShortText,
			prompt:    "What is the chemical symbol for gold?",
			options:   `null`,
			answerKey: `{"accept":["au"]}`,
			points:    1,
		},
	}

	for i, item := range questions {
		_, err := pool.Exec(ctx,
			`INSERT INTO questions (id, quiz_id, position, kind, prompt, options, answer_key, points)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), quizID, i, item.kind, item.prompt, []byte(item.options), []byte(item.answerKey), item.points)
		if err != nil {
			log.Fatal().Err(err).Int("position", i).Msg("Failed to insert question")
		}
	}

	token, err := auth.Sign(cfg.JWTSecret, learnerID, 24*time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign learner token")
	}

	fmt.Printf("Assignment ID: %s\n", assignmentID)
	fmt.Printf("Learner ID:    %d\n", learnerID)
	fmt.Printf("Bearer token:  %s\n", token)
	fmt.Println("\nStart an attempt with:")
	fmt.Printf("  curl -X POST -H 'Authorization: Bearer %s' \\\n", token)
	fmt.Printf("       -d '{\"assignment_id\":\"%s\"}' http://localhost:%s/api/v1/learner/attempts\n", assignmentID, cfg.ServerPort)
}
