// Package memory provides in-process store implementations. They back the
// service tests and double as a reference for the persistence contracts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/model"
	"github.com/quizforge/quizforge-backend/internal/store"
)

// ─── Attempts ───────────────────────────────────────────────────────

// AttemptStore is an in-memory store.AttemptStore. A single mutex gives the
// Mark* operations the same atomicity the SQL compare-and-set has.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
	// key: assignment|learner|ordinal, mirrors the unique constraint
	byOrdinal map[ordinalKey]uuid.UUID
}

type ordinalKey struct {
	assignmentID uuid.UUID
	learnerID    int64
	ordinal      int
}

// NewAttemptStore returns an empty store.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[uuid.UUID]*model.Attempt),
		byOrdinal: make(map[ordinalKey]uuid.UUID),
	}
}

func (s *AttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ordinalKey{a.AssignmentID, a.LearnerID, a.Ordinal}
	if _, exists := s.byOrdinal[key]; exists {
		return store.ErrConflict
	}
	cp := *a
	s.attempts[a.ID] = &cp
	s.byOrdinal[key] = a.ID
	return nil
}

func (s *AttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *AttemptStore) FindActive(_ context.Context, assignmentID uuid.UUID, learnerID int64) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *model.Attempt
	for _, a := range s.attempts {
		if a.AssignmentID != assignmentID || a.LearnerID != learnerID {
			continue
		}
		if a.Status == model.AttemptStatusFinished {
			continue
		}
		if found == nil || a.Ordinal > found.Ordinal {
			found = a
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *AttemptStore) CountByAssignment(_ context.Context, assignmentID uuid.UUID, learnerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.AssignmentID == assignmentID && a.LearnerID == learnerID {
			n++
		}
	}
	return n, nil
}

func (s *AttemptStore) CountFinished(_ context.Context, assignmentID uuid.UUID, learnerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.AssignmentID == assignmentID && a.LearnerID == learnerID && a.Status == model.AttemptStatusFinished {
			n++
		}
	}
	return n, nil
}

func (s *AttemptStore) MarkStarted(_ context.Context, id uuid.UUID, startedAt time.Time, deadline *time.Time, questionCount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if a.Status != model.AttemptStatusCreated {
		return false, nil
	}
	a.Status = model.AttemptStatusStarted
	a.StartedAt = &startedAt
	a.Deadline = deadline
	a.QuestionCount = questionCount
	return true, nil
}

func (s *AttemptStore) MarkFinished(_ context.Context, id uuid.UUID, finishedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if a.Status != model.AttemptStatusStarted {
		return false, nil
	}
	a.Status = model.AttemptStatusFinished
	a.FinishedAt = &finishedAt
	return true, nil
}

func (s *AttemptStore) ListByLearner(_ context.Context, learnerID int64) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if a.LearnerID == learnerID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *AttemptStore) ListOverdue(_ context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for _, a := range s.attempts {
		if a.Status == model.AttemptStatusStarted && a.Deadline != nil && a.Deadline.Before(before) {
			out = append(out, a.ID)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ─── Answers ────────────────────────────────────────────────────────

// AnswerStore is an in-memory store.AnswerStore keyed by
// (attempt, question), mirroring the table's primary key. Writes consult
// the attempt store and are rejected once the attempt left STARTED, the
// same condition the SQL upsert carries.
type AnswerStore struct {
	mu       sync.Mutex
	records  map[answerKey]*model.AnswerRecord
	attempts store.AttemptStore
}

type answerKey struct {
	attemptID  uuid.UUID
	questionID uuid.UUID
}

// NewAnswerStore returns an empty store guarding writes through the given
// attempt store.
func NewAnswerStore(attempts store.AttemptStore) *AnswerStore {
	return &AnswerStore{
		records:  make(map[answerKey]*model.AnswerRecord),
		attempts: attempts,
	}
}

// writable rejects writes to attempts that are missing or no longer STARTED.
func (s *AnswerStore) writable(ctx context.Context, attemptID uuid.UUID) error {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.Status != model.AttemptStatusStarted {
		return store.ErrClosed
	}
	return nil
}

func (s *AnswerStore) Upsert(ctx context.Context, rec *model.AnswerRecord) error {
	if err := s.writable(ctx, rec.AttemptID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{rec.AttemptID, rec.QuestionID}
	if existing, ok := s.records[key]; ok {
		existing.Payload = append([]byte(nil), rec.Payload...)
		existing.SavedAt = rec.SavedAt
		return nil
	}
	cp := *rec
	cp.Payload = append([]byte(nil), rec.Payload...)
	s.records[key] = &cp
	return nil
}

func (s *AnswerStore) ToggleFlag(ctx context.Context, attemptID, questionID uuid.UUID, at time.Time) (bool, error) {
	if err := s.writable(ctx, attemptID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{attemptID, questionID}
	if existing, ok := s.records[key]; ok {
		existing.Flagged = !existing.Flagged
		existing.SavedAt = at
		return existing.Flagged, nil
	}
	s.records[key] = &model.AnswerRecord{
		AttemptID:  attemptID,
		QuestionID: questionID,
		Flagged:    true,
		SavedAt:    at,
	}
	return true, nil
}

func (s *AnswerStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AnswerRecord
	for key, rec := range s.records {
		if key.attemptID == attemptID {
			cp := *rec
			cp.Payload = append([]byte(nil), rec.Payload...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QuestionID.String() < out[j].QuestionID.String()
	})
	return out, nil
}

func (s *AnswerStore) CountAnswered(_ context.Context, attemptID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, rec := range s.records {
		if key.attemptID == attemptID && rec.Answered() {
			n++
		}
	}
	return n, nil
}

// ─── Snapshots ──────────────────────────────────────────────────────

// SnapshotStore is an in-memory store.SnapshotStore.
type SnapshotStore struct {
	mu    sync.Mutex
	snaps map[answerKey]*model.QuestionSnapshot
}

// NewSnapshotStore returns an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snaps: make(map[answerKey]*model.QuestionSnapshot)}
}

func (s *SnapshotStore) CreateBatch(_ context.Context, snaps []model.QuestionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range snaps {
		key := answerKey{snaps[i].AttemptID, snaps[i].QuestionID}
		if _, exists := s.snaps[key]; exists {
			continue
		}
		cp := snaps[i]
		s.snaps[key] = &cp
	}
	return nil
}

func (s *SnapshotStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.QuestionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QuestionSnapshot
	for key, snap := range s.snaps {
		if key.attemptID == attemptID {
			out = append(out, *snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *SnapshotStore) Get(_ context.Context, attemptID, questionID uuid.UUID) (*model.QuestionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[answerKey{attemptID, questionID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

// ─── Results ────────────────────────────────────────────────────────

// ResultStore is an in-memory store.ResultStore. Create keeps the first
// result for an attempt, like the SQL ON CONFLICT DO NOTHING.
type ResultStore struct {
	mu      sync.Mutex
	results map[uuid.UUID]*model.Result
}

// NewResultStore returns an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[uuid.UUID]*model.Result)}
}

func (s *ResultStore) Create(_ context.Context, r *model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[r.AttemptID]; exists {
		return nil
	}
	cp := *r
	s.results[r.AttemptID] = &cp
	return nil
}

func (s *ResultStore) GetByAttempt(_ context.Context, attemptID uuid.UUID) (*model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[attemptID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ─── Assignments ────────────────────────────────────────────────────

// Directory is an in-memory store.AssignmentDirectory. It consults the
// attempt store for the finished-attempt count, the same join the SQL
// directory performs.
type Directory struct {
	mu          sync.Mutex
	assignments map[uuid.UUID]*model.Assignment
	attempts    store.AttemptStore
}

// NewDirectory returns a directory counting attempts through the given store.
func NewDirectory(attempts store.AttemptStore) *Directory {
	return &Directory{
		assignments: make(map[uuid.UUID]*model.Assignment),
		attempts:    attempts,
	}
}

// Put registers an assignment.
func (d *Directory) Put(a *model.Assignment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *a
	d.assignments[a.ID] = &cp
}

func (d *Directory) GetByID(_ context.Context, id uuid.UUID) (*model.Assignment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.assignments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (d *Directory) CheckEligibility(ctx context.Context, assignmentID uuid.UUID, learnerID int64, now time.Time) (*model.Eligibility, error) {
	a, err := d.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if !a.WindowOpen(now) {
		return &model.Eligibility{Reason: "assignment window is closed"}, nil
	}
	used, err := d.attempts.CountFinished(ctx, assignmentID, learnerID)
	if err != nil {
		return nil, err
	}
	if a.AttemptsAllowed > 0 && used >= a.AttemptsAllowed {
		return &model.Eligibility{Reason: "no attempts remaining"}, nil
	}
	return &model.Eligibility{Eligible: true}, nil
}

// ─── Questions ──────────────────────────────────────────────────────

// QuestionSource is an in-memory store.QuestionSource keyed by quiz.
type QuestionSource struct {
	mu     sync.Mutex
	byQuiz map[uuid.UUID][]model.QuestionSnapshot
}

// NewQuestionSource returns an empty source.
func NewQuestionSource() *QuestionSource {
	return &QuestionSource{byQuiz: make(map[uuid.UUID][]model.QuestionSnapshot)}
}

// Put registers the ordered question list for a quiz.
func (q *QuestionSource) Put(quizID uuid.UUID, snaps []model.QuestionSnapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byQuiz[quizID] = append([]model.QuestionSnapshot(nil), snaps...)
}

func (q *QuestionSource) LoadQuestionSnapshots(_ context.Context, quizID uuid.UUID) ([]model.QuestionSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	snaps, ok := q.byQuiz[quizID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]model.QuestionSnapshot(nil), snaps...), nil
}
