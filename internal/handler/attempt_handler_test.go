package handler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quizforge/quizforge-backend/internal/auth"
	"github.com/quizforge/quizforge-backend/internal/clock"
	"github.com/quizforge/quizforge-backend/internal/config"
	"github.com/quizforge/quizforge-backend/internal/deadline"
	"github.com/quizforge/quizforge-backend/internal/event"
	"github.com/quizforge/quizforge-backend/internal/handler"
	"github.com/quizforge/quizforge-backend/internal/model"
	"github.com/quizforge/quizforge-backend/internal/router"
	"github.com/quizforge/quizforge-backend/internal/scoring"
	"github.com/quizforge/quizforge-backend/internal/service"
	"github.com/quizforge/quizforge-backend/internal/store/memory"
	"github.com/quizforge/quizforge-backend/internal/validator"
	"github.com/rs/zerolog"
)

const testSecret = "handler-test-secret"

type apiEnv struct {
	engine     *gin.Engine
	token      string
	assignment *model.Assignment
	clk        *clock.Fake
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	attempts := memory.NewAttemptStore()
	directory := memory.NewDirectory(attempts)
	questions := memory.NewQuestionSource()
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	limit := 300
	assignment := &model.Assignment{
		ID:               uuid.New(),
		Title:            "API Test Quiz",
		QuizID:           uuid.New(),
		TimeLimitSeconds: &limit,
		AttemptsAllowed:  1,
		ShowCorrectness:  true,
	}
	directory.Put(assignment)
	questions.Put(assignment.QuizID, []model.QuestionSnapshot{
		{
			QuestionID: uuid.New(),
			Kind:       model.KindMultipleChoice,
			Prompt:     "Pick b",
			Options:    json.RawMessage(`[{"id":"a"},{"id":"b"}]`),
			AnswerKey:  json.RawMessage(`{"option_id":"b"}`),
			Points:     1,
		},
	})

	svc := service.NewAttemptService(
		attempts, memory.NewAnswerStore(attempts), memory.NewSnapshotStore(), memory.NewResultStore(),
		directory, questions, scoring.NewRegistry(), deadline.NewMemoryCache(),
		event.NopEmitter{}, clk, zerolog.Nop(),
	)
	t.Cleanup(svc.Shutdown)

	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(svc, 30),
		WS:      handler.NewWSHandler(svc, zerolog.Nop(), nil),
	}
	cfg := &config.Config{GinMode: gin.TestMode, JWTSecret: testSecret, StateRefreshSeconds: 30}
	engine := router.SetupRouter(auth.NewVerifier(testSecret), handlers, cfg)

	token, err := auth.Sign(testSecret, 42, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return &apiEnv{engine: engine, token: token, assignment: assignment, clk: clk}
}

func (e *apiEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	var envelope map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, envelope
}

func errCode(envelope map[string]any) string {
	errBody, _ := envelope["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func (e *apiEnv) startAttempt(t *testing.T) (string, string) {
	t.Helper()
	rec, envelope := e.do(t, http.MethodPost, "/api/v1/learner/attempts",
		fmt.Sprintf(`{"assignment_id":%q}`, e.assignment.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("start attempt: status %d body %s", rec.Code, rec.Body.String())
	}
	data := envelope["data"].(map[string]any)
	attempt := data["attempt"].(map[string]any)
	attemptID := attempt["id"].(string)

	_, viewEnv := e.do(t, http.MethodGet, "/api/v1/learner/attempts/"+attemptID, "")
	view := viewEnv["data"].(map[string]any)
	questions := view["questions"].([]any)
	questionID := questions[0].(map[string]any)["question_id"].(string)
	return attemptID, questionID
}

func TestAttemptFlowOverHTTP(t *testing.T) {
	e := newAPIEnv(t)
	attemptID, questionID := e.startAttempt(t)

	// Save an answer.
	rec, envelope := e.do(t, http.MethodPut,
		"/api/v1/learner/attempts/"+attemptID+"/answers/"+questionID,
		`{"payload":{"option_id":"b"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save answer: status %d body %s", rec.Code, rec.Body.String())
	}
	ack := envelope["data"].(map[string]any)
	if ack["answered"].(float64) != 1 || ack["total"].(float64) != 1 {
		t.Fatalf("unexpected ack: %v", ack)
	}

	// Poll state.
	rec, envelope = e.do(t, http.MethodGet, "/api/v1/learner/attempts/"+attemptID+"/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get state: status %d", rec.Code)
	}
	data := envelope["data"].(map[string]any)
	if data["refresh_after_seconds"].(float64) != 30 {
		t.Fatalf("expected refresh hint, got %v", data)
	}
	state := data["state"].(map[string]any)
	if state["remaining_seconds"].(float64) != 300 {
		t.Fatalf("expected 300s remaining, got %v", state["remaining_seconds"])
	}

	// Flag a question.
	rec, envelope = e.do(t, http.MethodPost,
		"/api/v1/learner/attempts/"+attemptID+"/questions/"+questionID+"/flag", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("flag: status %d", rec.Code)
	}
	if envelope["data"].(map[string]any)["flagged"] != true {
		t.Fatal("expected flagged=true")
	}

	// Submit.
	rec, envelope = e.do(t, http.MethodPost, "/api/v1/learner/attempts/"+attemptID+"/submit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d body %s", rec.Code, rec.Body.String())
	}
	result := envelope["data"].(map[string]any)["result"].(map[string]any)
	if result["score"].(float64) != 1 {
		t.Fatalf("expected score 1, got %v", result["score"])
	}

	// Result endpoint returns the same result.
	rec, _ = e.do(t, http.MethodGet, "/api/v1/learner/attempts/"+attemptID+"/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get result: status %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	e := newAPIEnv(t)
	attemptID, questionID := e.startAttempt(t)

	// Bad answer payload for the kind.
	rec, envelope := e.do(t, http.MethodPut,
		"/api/v1/learner/attempts/"+attemptID+"/answers/"+questionID,
		`{"payload":{"text":"wrong shape"}}`)
	if rec.Code != http.StatusBadRequest || errCode(envelope) != "INVALID_PAYLOAD" {
		t.Fatalf("expected 400 INVALID_PAYLOAD, got %d %s", rec.Code, errCode(envelope))
	}

	// Unknown question.
	rec, envelope = e.do(t, http.MethodPut,
		"/api/v1/learner/attempts/"+attemptID+"/answers/"+uuid.NewString(),
		`{"payload":{"option_id":"b"}}`)
	if rec.Code != http.StatusBadRequest || errCode(envelope) != "UNKNOWN_QUESTION" {
		t.Fatalf("expected 400 UNKNOWN_QUESTION, got %d %s", rec.Code, errCode(envelope))
	}

	// Result before finish.
	rec, envelope = e.do(t, http.MethodGet, "/api/v1/learner/attempts/"+attemptID+"/result", "")
	if rec.Code != http.StatusConflict || errCode(envelope) != "RESULT_NOT_READY" {
		t.Fatalf("expected 409 RESULT_NOT_READY, got %d %s", rec.Code, errCode(envelope))
	}

	// Writes after submit.
	e.do(t, http.MethodPost, "/api/v1/learner/attempts/"+attemptID+"/submit", "")
	rec, envelope = e.do(t, http.MethodPut,
		"/api/v1/learner/attempts/"+attemptID+"/answers/"+questionID,
		`{"payload":{"option_id":"a"}}`)
	if rec.Code != http.StatusConflict || errCode(envelope) != "ATTEMPT_CLOSED" {
		t.Fatalf("expected 409 ATTEMPT_CLOSED, got %d %s", rec.Code, errCode(envelope))
	}

	// Attempts exhausted (AttemptsAllowed = 1).
	rec, envelope = e.do(t, http.MethodPost, "/api/v1/learner/attempts",
		fmt.Sprintf(`{"assignment_id":%q}`, e.assignment.ID))
	if rec.Code != http.StatusForbidden || errCode(envelope) != "NOT_ELIGIBLE" {
		t.Fatalf("expected 403 NOT_ELIGIBLE, got %d %s", rec.Code, errCode(envelope))
	}

	// Unknown attempt.
	rec, envelope = e.do(t, http.MethodGet, "/api/v1/learner/attempts/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound || errCode(envelope) != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %s", rec.Code, errCode(envelope))
	}

	// Malformed attempt id.
	rec, envelope = e.do(t, http.MethodGet, "/api/v1/learner/attempts/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest || errCode(envelope) != "INVALID_ID" {
		t.Fatalf("expected 400 INVALID_ID, got %d %s", rec.Code, errCode(envelope))
	}
}

func TestExpiredWriteOverHTTP(t *testing.T) {
	e := newAPIEnv(t)
	attemptID, questionID := e.startAttempt(t)

	e.clk.Advance(6 * time.Minute)
	rec, envelope := e.do(t, http.MethodPut,
		"/api/v1/learner/attempts/"+attemptID+"/answers/"+questionID,
		`{"payload":{"option_id":"b"}}`)
	if rec.Code != http.StatusConflict || errCode(envelope) != "ATTEMPT_EXPIRED" {
		t.Fatalf("expected 409 ATTEMPT_EXPIRED, got %d %s", rec.Code, errCode(envelope))
	}

	// Auto-finalized: the result is now readable.
	rec, _ = e.do(t, http.MethodGet, "/api/v1/learner/attempts/"+attemptID+"/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected result after expiry, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/learner/attempts", nil)
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/learner/attempts", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with junk token, got %d", rec.Code)
	}
}
