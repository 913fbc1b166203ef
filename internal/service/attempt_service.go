package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/clock"
	"github.com/quizforge/quizforge-backend/internal/deadline"
	"github.com/quizforge/quizforge-backend/internal/event"
	"github.com/quizforge/quizforge-backend/internal/model"
	"github.com/quizforge/quizforge-backend/internal/scoring"
	"github.com/quizforge/quizforge-backend/internal/store"
	"github.com/rs/zerolog"
)

// Domain Errors
var (
	ErrNotEligible     = errors.New("learner is not eligible to start this assignment")
	ErrAttemptClosed   = errors.New("attempt is closed")
	ErrExpired         = errors.New("attempt deadline has passed")
	ErrNotFound        = errors.New("attempt not found")
	ErrForbidden       = errors.New("attempt belongs to a different learner")
	ErrNotStarted      = errors.New("attempt has not been started")
	ErrUnknownQuestion = errors.New("question does not belong to this attempt")
	ErrResultNotReady  = errors.New("result is not available yet")
)

const (
	// How long a finalize-race loser waits for the winner's result.
	resultWaitAttempts = 50
	resultWaitStep     = 20 * time.Millisecond
)

// AttemptService is the session controller: the only component callers
// (HTTP, WebSocket, workers) go through to start, answer, flag and submit
// attempts. Both the manual submit and the deadline expiry funnel into one
// idempotent finalize guarded by a compare-and-set status transition, so
// scoring runs at most once per attempt.
type AttemptService struct {
	attempts    store.AttemptStore
	answers     store.AnswerStore
	snapshots   store.SnapshotStore
	results     store.ResultStore
	assignments store.AssignmentDirectory
	questions   store.QuestionSource
	registry    *scoring.Registry
	cache       deadline.Cache
	monitor     *deadline.Monitor
	emitter     event.Emitter
	clk         clock.Clock
	log         zerolog.Logger
}

// NewAttemptService wires the session controller and its local deadline
// monitor.
func NewAttemptService(
	attempts store.AttemptStore,
	answers store.AnswerStore,
	snapshots store.SnapshotStore,
	results store.ResultStore,
	assignments store.AssignmentDirectory,
	questions store.QuestionSource,
	registry *scoring.Registry,
	cache deadline.Cache,
	emitter event.Emitter,
	clk clock.Clock,
	log zerolog.Logger,
) *AttemptService {
	s := &AttemptService{
		attempts:    attempts,
		answers:     answers,
		snapshots:   snapshots,
		results:     results,
		assignments: assignments,
		questions:   questions,
		registry:    registry,
		cache:       cache,
		emitter:     emitter,
		clk:         clk,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
	s.monitor = deadline.NewMonitor(s.onLocalTimerFired, clk, log)
	return s
}

// Shutdown cancels all local fallback timers. Call on process teardown.
func (s *AttemptService) Shutdown() {
	s.monitor.Shutdown()
}

// onLocalTimerFired routes a local fallback timer into the shared finalize
// path. A late fire after a manual submit is a no-op.
func (s *AttemptService) onLocalTimerFired(attemptID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.FinalizeExpired(ctx, attemptID); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", attemptID.String()).
			Str("operation", "finalize_expired").
			Msg("Local timer finalize failed")
	}
}

// ─── Start ──────────────────────────────────────────────────────────

// StartAttempt creates (or reuses) the learner's attempt for an assignment
// and transitions it to STARTED, fixing the deadline exactly once. Calling
// it again while an attempt is in progress returns that attempt instead of
// creating a duplicate.
func (s *AttemptService) StartAttempt(ctx context.Context, assignmentID uuid.UUID, learnerID int64) (*model.Attempt, error) {
	active, err := s.attempts.FindActive(ctx, assignmentID, learnerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find active attempt: %w", err)
	}
	if active != nil && active.Status == model.AttemptStatusStarted {
		// Idempotent start: the in-progress attempt is the answer.
		s.resumeTracking(ctx, active)
		return active, nil
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: assignment %s", ErrNotFound, assignmentID)
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}

	elig, err := s.assignments.CheckEligibility(ctx, assignmentID, learnerID, s.clk.Now())
	if err != nil {
		return nil, fmt.Errorf("check eligibility: %w", err)
	}
	if !elig.Eligible {
		return nil, fmt.Errorf("%w: %s", ErrNotEligible, elig.Reason)
	}

	attempt := active // a CREATED row left by an earlier interrupted start
	if attempt == nil {
		attempt, err = s.createAttempt(ctx, assignment, learnerID)
		if err != nil {
			return nil, err
		}
		if attempt.Status == model.AttemptStatusStarted {
			// A concurrent start won the race and already started it.
			s.resumeTracking(ctx, attempt)
			return attempt, nil
		}
	}

	// Snapshot the quiz's questions for this attempt. Replays are harmless:
	// existing snapshots are kept, so the view served at first start wins.
	snaps, err := s.questions.LoadQuestionSnapshots(ctx, assignment.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load question snapshots: %w", err)
	}
	for i := range snaps {
		snaps[i].AttemptID = attempt.ID
		snaps[i].Position = i
	}
	if err := s.snapshots.CreateBatch(ctx, snaps); err != nil {
		return nil, fmt.Errorf("store question snapshots: %w", err)
	}

	startedAt := s.clk.Now()
	var dl *time.Time
	if attempt.TimeLimitSeconds != nil {
		d := startedAt.Add(time.Duration(*attempt.TimeLimitSeconds) * time.Second)
		dl = &d
	}

	won, err := s.attempts.MarkStarted(ctx, attempt.ID, startedAt, dl, len(snaps))
	if err != nil {
		return nil, fmt.Errorf("mark started: %w", err)
	}
	if !won {
		// Someone else completed the CREATED→STARTED transition; theirs is
		// the deadline that counts.
		fresh, err := s.attempts.GetByID(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("reload attempt after start race: %w", err)
		}
		s.resumeTracking(ctx, fresh)
		return fresh, nil
	}

	attempt.Status = model.AttemptStatusStarted
	attempt.StartedAt = &startedAt
	attempt.Deadline = dl
	attempt.QuestionCount = len(snaps)

	if dl != nil {
		if err := s.cache.SetDeadline(ctx, attempt.ID, *dl); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Cache deadline failed")
		}
		if err := s.cache.Schedule(ctx, attempt.ID, *dl); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Schedule expiry failed")
		}
		s.monitor.Track(attempt.ID, *dl)
	}

	s.emitter.Emit(ctx, event.Envelope{
		Type:         event.TypeAttemptStarted,
		AttemptID:    attempt.ID,
		AssignmentID: attempt.AssignmentID,
		LearnerID:    attempt.LearnerID,
		At:           startedAt,
		Data:         map[string]any{"ordinal": attempt.Ordinal, "question_count": attempt.QuestionCount},
	})

	return attempt, nil
}

// createAttempt inserts a CREATED row with the next ordinal. A unique-key
// collision means a concurrent start created one first; that row wins.
func (s *AttemptService) createAttempt(ctx context.Context, assignment *model.Assignment, learnerID int64) (*model.Attempt, error) {
	for tries := 0; tries < 3; tries++ {
		used, err := s.attempts.CountByAssignment(ctx, assignment.ID, learnerID)
		if err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		attempt := &model.Attempt{
			ID:               uuid.New(),
			AssignmentID:     assignment.ID,
			LearnerID:        learnerID,
			Ordinal:          used + 1,
			Status:           model.AttemptStatusCreated,
			TimeLimitSeconds: assignment.TimeLimitSeconds,
			CreatedAt:        s.clk.Now(),
		}
		err = s.attempts.Create(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		existing, ferr := s.attempts.FindActive(ctx, assignment.ID, learnerID)
		if ferr == nil {
			return existing, nil
		}
		// Collided with a finished row at the same ordinal; recount and retry.
	}
	return nil, fmt.Errorf("create attempt: ordinal contention not resolved")
}

// resumeTracking re-arms the local fallback timer and self-heals the
// deadline cache for an already-started attempt, e.g. after a page reload
// or a start replayed from another device.
func (s *AttemptService) resumeTracking(ctx context.Context, a *model.Attempt) {
	if a.Status != model.AttemptStatusStarted || a.Deadline == nil {
		return
	}
	if err := s.cache.SetDeadline(ctx, a.ID, *a.Deadline); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Cache deadline self-heal failed")
	}
	s.monitor.Track(a.ID, *a.Deadline)
}

// ─── Read ───────────────────────────────────────────────────────────

// AttemptView is the full resumable session state: the attempt, its
// question snapshots (answer keys stripped) and every saved answer.
type AttemptView struct {
	Attempt          *model.Attempt             `json:"attempt"`
	Questions        []model.QuestionForLearner `json:"questions"`
	Answers          []model.AnswerRecord       `json:"answers"`
	RemainingSeconds *float64                   `json:"remaining_seconds,omitempty"`
}

// GetAttemptView loads everything a client needs to render or resume an
// attempt. Remaining time is recomputed from the authoritative deadline on
// every call; this is the countdown resynchronization point.
func (s *AttemptService) GetAttemptView(ctx context.Context, attemptID uuid.UUID, learnerID int64) (*AttemptView, error) {
	a, err := s.getOwned(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}

	if a.Status == model.AttemptStatusStarted && a.Expired(s.clk.Now()) {
		if _, err := s.FinalizeExpired(ctx, a.ID); err != nil {
			s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Expiry finalize on view failed")
		}
		if a, err = s.getOwned(ctx, attemptID, learnerID); err != nil {
			return nil, err
		}
	}

	snaps, err := s.snapshots.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	answers, err := s.answers.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	questions := make([]model.QuestionForLearner, 0, len(snaps))
	for i := range snaps {
		questions = append(questions, snaps[i].ForLearner(s.registry.RenderHint(snaps[i].Kind)))
	}

	view := &AttemptView{
		Attempt:   a,
		Questions: questions,
		Answers:   answers,
	}
	if a.Status == model.AttemptStatusStarted {
		view.RemainingSeconds = a.RemainingSeconds(s.clk.Now())
		if a.Deadline != nil {
			// Resumed session: re-arm the local fallback timer.
			s.monitor.Track(a.ID, *a.Deadline)
		}
	}
	return view, nil
}

// AttemptState is the lightweight countdown-resync payload.
type AttemptState struct {
	AttemptID        uuid.UUID           `json:"attempt_id"`
	Status           model.AttemptStatus `json:"status"`
	RemainingSeconds *float64            `json:"remaining_seconds,omitempty"`
	Answered         int                 `json:"answered"`
	Total            int                 `json:"total"`
}

// GetAttemptState returns status, progress and authoritative remaining time.
// The deadline comes from the cache when warm, falling back to the attempt
// row and self-healing on a miss.
func (s *AttemptService) GetAttemptState(ctx context.Context, attemptID uuid.UUID, learnerID int64) (*AttemptState, error) {
	a, err := s.getOwned(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}

	state := &AttemptState{
		AttemptID: a.ID,
		Status:    a.Status,
		Total:     a.QuestionCount,
	}

	if a.Status == model.AttemptStatusStarted && a.Deadline != nil {
		dl, hit, err := s.cache.GetDeadline(ctx, a.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Deadline cache read failed")
			hit = false
		}
		if !hit {
			dl = *a.Deadline
			if err := s.cache.SetDeadline(ctx, a.ID, dl); err != nil {
				s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Deadline cache self-heal failed")
			}
		}
		rem := dl.Sub(s.clk.Now()).Seconds()
		if rem <= 0 {
			rem = 0
			if _, err := s.FinalizeExpired(ctx, a.ID); err != nil {
				s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Expiry finalize on state failed")
			} else {
				state.Status = model.AttemptStatusFinished
			}
		}
		state.RemainingSeconds = &rem
	}

	answered, err := s.answers.CountAnswered(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("count answered: %w", err)
	}
	state.Answered = answered
	return state, nil
}

// AttemptSummary pairs an attempt with its result, when finished.
type AttemptSummary struct {
	Attempt model.Attempt `json:"attempt"`
	Result  *model.Result `json:"result,omitempty"`
}

// ListAttempts returns the learner's attempt history, newest first.
func (s *AttemptService) ListAttempts(ctx context.Context, learnerID int64) ([]AttemptSummary, error) {
	attempts, err := s.attempts.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]AttemptSummary, 0, len(attempts))
	for i := range attempts {
		summary := AttemptSummary{Attempt: attempts[i]}
		if attempts[i].Status == model.AttemptStatusFinished {
			res, err := s.results.GetByAttempt(ctx, attempts[i].ID)
			if err == nil {
				summary.Result = res
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("get result: %w", err)
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// GetResult returns the result of a finished attempt.
func (s *AttemptService) GetResult(ctx context.Context, attemptID uuid.UUID, learnerID int64) (*model.Result, error) {
	a, err := s.getOwned(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusFinished {
		return nil, ErrResultNotReady
	}
	res, err := s.results.GetByAttempt(ctx, attemptID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrResultNotReady
	}
	return res, err
}

// ─── Answer / flag ──────────────────────────────────────────────────

// SaveAnswer upserts the answer for one question. Safe to retry: replaying
// the same payload produces the same stored state. Rejected once the
// attempt is closed or its deadline has passed, even if the status flip has
// not landed yet.
func (s *AttemptService) SaveAnswer(ctx context.Context, attemptID uuid.UUID, learnerID int64, questionID uuid.UUID, payload []byte) (*model.SaveAnswerAck, error) {
	a, err := s.guardWritable(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshots.Get(ctx, attemptID, questionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if err := s.registry.Validate(snap.Kind, payload); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	rec := &model.AnswerRecord{
		AttemptID:  attemptID,
		QuestionID: questionID,
		Payload:    payload,
		SavedAt:    now,
	}
	if err := s.answers.Upsert(ctx, rec); err != nil {
		if errors.Is(err, store.ErrClosed) {
			// The attempt was finalized between the guard and the write.
			return nil, ErrAttemptClosed
		}
		return nil, fmt.Errorf("upsert answer: %w", err)
	}

	answered, err := s.answers.CountAnswered(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("count answered: %w", err)
	}

	s.emitter.Emit(ctx, event.Envelope{
		Type:         event.TypeAnswerSaved,
		AttemptID:    a.ID,
		AssignmentID: a.AssignmentID,
		LearnerID:    a.LearnerID,
		At:           now,
		Data:         map[string]any{"question_id": questionID.String(), "answered": answered, "total": a.QuestionCount},
	})

	return &model.SaveAnswerAck{
		QuestionID: questionID,
		SavedAt:    now,
		Answered:   answered,
		Total:      a.QuestionCount,
	}, nil
}

// ToggleFlag flips the review flag for one question. Independent of the
// answer payload; permitted with no answer saved yet.
func (s *AttemptService) ToggleFlag(ctx context.Context, attemptID uuid.UUID, learnerID int64, questionID uuid.UUID) (*model.ToggleFlagAck, error) {
	if _, err := s.guardWritable(ctx, attemptID, learnerID); err != nil {
		return nil, err
	}

	if _, err := s.snapshots.Get(ctx, attemptID, questionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	flagged, err := s.answers.ToggleFlag(ctx, attemptID, questionID, s.clk.Now())
	if err != nil {
		if errors.Is(err, store.ErrClosed) {
			return nil, ErrAttemptClosed
		}
		return nil, fmt.Errorf("toggle flag: %w", err)
	}
	return &model.ToggleFlagAck{QuestionID: questionID, Flagged: flagged}, nil
}

// guardWritable enforces the write-path state guards: the attempt must be
// STARTED and its authoritative deadline must not have passed. A write that
// loses the race with expiry fails with ErrExpired and triggers finalize
// rather than silently succeeding.
func (s *AttemptService) guardWritable(ctx context.Context, attemptID uuid.UUID, learnerID int64) (*model.Attempt, error) {
	a, err := s.getOwned(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusStarted {
		return nil, ErrAttemptClosed
	}
	if a.Expired(s.clk.Now()) {
		if _, err := s.FinalizeExpired(ctx, a.ID); err != nil {
			s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Expiry finalize on write failed")
		}
		return nil, ErrExpired
	}
	return a, nil
}

func (s *AttemptService) getOwned(ctx context.Context, attemptID uuid.UUID, learnerID int64) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.LearnerID != learnerID {
		return nil, ErrForbidden
	}
	return a, nil
}

// ─── Finalize ───────────────────────────────────────────────────────

// SubmitAttempt finishes the attempt and returns its result. Idempotent:
// repeated calls return the already-computed result without re-scoring.
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID uuid.UUID, learnerID int64) (*model.Result, error) {
	a, err := s.getOwned(ctx, attemptID, learnerID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case model.AttemptStatusFinished:
		res, err := s.results.GetByAttempt(ctx, attemptID)
		if errors.Is(err, store.ErrNotFound) {
			// Finalize winner is mid-scoring; wait for its result, scoring
			// ourselves if it never arrives.
			return s.awaitOrRecover(ctx, attemptID)
		}
		return res, err
	case model.AttemptStatusCreated:
		return nil, ErrNotStarted
	}
	return s.finalize(ctx, a)
}

// FinalizeExpired finalizes an attempt whose deadline has passed. Invoked
// by local fallback timers, the expiry worker and write-path deadline
// checks. Returns (nil, nil) when the attempt is not actually due, which
// happens when a stale schedule entry or drifted timer fires early.
func (s *AttemptService) FinalizeExpired(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	switch a.Status {
	case model.AttemptStatusFinished:
		// Already finalized by another path; nothing to do.
		res, err := s.results.GetByAttempt(ctx, attemptID)
		if errors.Is(err, store.ErrNotFound) {
			return s.awaitOrRecover(ctx, attemptID)
		}
		return res, err
	case model.AttemptStatusCreated:
		return nil, ErrNotStarted
	}

	if a.Deadline == nil {
		// Unlimited attempt: never auto-finalized. Drop any stray schedule
		// entry.
		if err := s.cache.Unschedule(ctx, a.ID); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Unschedule failed")
		}
		return nil, nil
	}
	if !a.Expired(s.clk.Now()) {
		// Fired early; re-arm for the real deadline.
		s.monitor.Track(a.ID, *a.Deadline)
		return nil, nil
	}
	return s.finalize(ctx, a)
}

// finalize is the single idempotent finish path. The compare-and-set on
// status decides the winner; the winner scores and stores the result, the
// loser reads it back. Scoring therefore executes at most once per attempt.
func (s *AttemptService) finalize(ctx context.Context, a *model.Attempt) (*model.Result, error) {
	if a.StartedAt == nil {
		return nil, ErrNotStarted
	}

	finishedAt := s.clk.Now()
	won, err := s.attempts.MarkFinished(ctx, a.ID, finishedAt)
	if err != nil {
		return nil, fmt.Errorf("mark finished: %w", err)
	}
	if !won {
		return s.awaitOrRecover(ctx, a.ID)
	}

	result, err := s.score(ctx, a, finishedAt)
	if err != nil {
		// The status flip already landed and cannot roll back. Surface the
		// error; the next submit or finalize finds FINISHED with no stored
		// result and recomputes through awaitOrRecover.
		return nil, err
	}

	s.teardown(ctx, a.ID)
	s.emitFinished(ctx, a, finishedAt, result)
	return result, nil
}

// teardown drops a finalized attempt's timer, cached deadline and expiry
// schedule entry.
func (s *AttemptService) teardown(ctx context.Context, attemptID uuid.UUID) {
	s.monitor.Cancel(attemptID)
	if err := s.cache.ClearDeadline(ctx, attemptID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Clear deadline cache failed")
	}
	if err := s.cache.Unschedule(ctx, attemptID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Unschedule failed")
	}
}

func (s *AttemptService) emitFinished(ctx context.Context, a *model.Attempt, at time.Time, result *model.Result) {
	s.emitter.Emit(ctx, event.Envelope{
		Type:         event.TypeAttemptFinished,
		AttemptID:    a.ID,
		AssignmentID: a.AssignmentID,
		LearnerID:    a.LearnerID,
		At:           at,
		Data:         map[string]any{"score": result.Score, "possible": result.Possible},
	})
}

// awaitOrRecover resolves a FINISHED attempt whose result is not stored
// yet. Normally the finalize winner is mid-scoring and a short wait is
// enough; when the winner failed mid-scoring the attempt would otherwise
// stay FINISHED with no result forever, so after the wait runs out the
// answers are rescored here. The result store keeps the first stored copy,
// so a recovery racing a late winner still yields exactly one result.
func (s *AttemptService) awaitOrRecover(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	res, err := s.waitForResult(ctx, attemptID)
	if err == nil || !errors.Is(err, ErrResultNotReady) {
		return res, err
	}

	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if a.Status != model.AttemptStatusFinished {
		return nil, ErrResultNotReady
	}
	if a.StartedAt == nil {
		return nil, ErrNotStarted
	}
	finishedAt := s.clk.Now()
	if a.FinishedAt != nil {
		finishedAt = *a.FinishedAt
	}

	s.log.Warn().Str("attempt_id", a.ID.String()).Msg("Rescoring finished attempt with no stored result")
	result, err := s.score(ctx, a, finishedAt)
	if err != nil {
		return nil, err
	}
	s.teardown(ctx, a.ID)
	s.emitFinished(ctx, a, finishedAt, result)
	return result, nil
}

// score applies the scoring registry to every snapshot against its answer
// record. Missing records count as unanswered with zero points. Time spent
// is capped at the deadline for auto-finalized attempts.
func (s *AttemptService) score(ctx context.Context, a *model.Attempt, finishedAt time.Time) (*model.Result, error) {
	snaps, err := s.snapshots.ListByAttempt(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	records, err := s.answers.ListByAttempt(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byQuestion := make(map[uuid.UUID]*model.AnswerRecord, len(records))
	for i := range records {
		byQuestion[records[i].QuestionID] = &records[i]
	}

	showCorrectness := false
	if assignment, err := s.assignments.GetByID(ctx, a.AssignmentID); err == nil {
		showCorrectness = assignment.ShowCorrectness
	} else {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Assignment lookup during scoring failed")
	}

	effectiveEnd := finishedAt
	if a.Deadline != nil && finishedAt.After(*a.Deadline) {
		effectiveEnd = *a.Deadline
	}

	result := &model.Result{
		AttemptID:        a.ID,
		FinishedAt:       finishedAt,
		TimeSpentSeconds: effectiveEnd.Sub(*a.StartedAt).Seconds(),
		ShowCorrectness:  showCorrectness,
	}

	for i := range snaps {
		result.Possible += snaps[i].Points
		rec, ok := byQuestion[snaps[i].QuestionID]
		if !ok || !rec.Answered() {
			result.UnansweredCount++
			continue
		}
		outcome, err := s.registry.Score(snaps[i], rec.Payload)
		if err != nil {
			s.log.Error().Err(err).
				Str("attempt_id", a.ID.String()).
				Str("question_id", snaps[i].QuestionID.String()).
				Msg("Scoring failed, counting as incorrect")
			result.IncorrectCount++
			continue
		}
		if outcome.Correct {
			result.CorrectCount++
			result.Score += outcome.PointsAwarded
		} else {
			result.IncorrectCount++
		}
	}

	if err := s.results.Create(ctx, result); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	// Read back so every caller returns the stored copy.
	stored, err := s.results.GetByAttempt(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("read back result: %w", err)
	}
	return stored, nil
}

// waitForResult polls briefly for a result another finalizer is writing.
func (s *AttemptService) waitForResult(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	for i := 0; i < resultWaitAttempts; i++ {
		res, err := s.results.GetByAttempt(ctx, attemptID)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("get result: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(resultWaitStep):
		}
	}
	return nil, ErrResultNotReady
}
