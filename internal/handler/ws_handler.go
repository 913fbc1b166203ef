package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/quizforge/quizforge-backend/internal/middleware"
	"github.com/quizforge/quizforge-backend/internal/scoring"
	"github.com/quizforge/quizforge-backend/internal/service"
	ws "github.com/quizforge/quizforge-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the WebSocket attempt stream.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptWebSocketStream godoc
// WS /ws/v1/learner/attempts/:attempt_id/stream
// Upgrades to WebSocket for low-latency answer saving, flagging and submit.
// Everything here goes through the same service paths as the REST endpoints,
// so the deadline and state-machine guards apply identically.
func (h *WSHandler) AttemptWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	learnerID := claims.LearnerID

	// Ownership check before upgrading: no stream for someone else's attempt.
	if _, err := h.attemptService.GetAttemptState(c.Request.Context(), attemptID, learnerID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no access to this attempt"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int64("learner_id", learnerID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Learner connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionSave:
			h.handleSave(c, conn, attemptID, learnerID, &msg)
		case ws.ActionFlag:
			h.handleFlag(c, conn, attemptID, learnerID, &msg)
		case ws.ActionSubmit:
			h.handleWSSubmit(c, conn, wsLog, attemptID, learnerID)
		case ws.ActionPing:
			h.handlePing(c, conn, attemptID, learnerID)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

func (h *WSHandler) handleSave(c *gin.Context, conn *websocket.Conn, attemptID uuid.UUID, learnerID int64, msg *ws.RequestPayload) {
	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}
	if len(msg.Payload) == 0 {
		ws.WriteError(conn, "payload is required")
		return
	}

	ack, err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, learnerID, questionID, msg.Payload)
	if err != nil {
		ws.WriteError(conn, wsErrorMessage(err))
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{
		Event:    ws.EventSaved,
		QID:      ack.QuestionID.String(),
		Answered: ack.Answered,
		Total:    ack.Total,
	})
}

func (h *WSHandler) handleFlag(c *gin.Context, conn *websocket.Conn, attemptID uuid.UUID, learnerID int64, msg *ws.RequestPayload) {
	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}

	ack, err := h.attemptService.ToggleFlag(c.Request.Context(), attemptID, learnerID, questionID)
	if err != nil {
		ws.WriteError(conn, wsErrorMessage(err))
		return
	}

	ws.WriteTyped(conn, ws.FlaggedResponse{
		Event:   ws.EventFlagged,
		QID:     ack.QuestionID.String(),
		Flagged: ack.Flagged,
	})
}

func (h *WSHandler) handleWSSubmit(c *gin.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, learnerID int64) {
	result, err := h.attemptService.SubmitAttempt(c.Request.Context(), attemptID, learnerID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Submit over WebSocket failed")
		ws.WriteError(conn, wsErrorMessage(err))
		return
	}

	wsLog.Info().
		Float64("score", result.Score).
		Float64("possible", result.Possible).
		Msg("Attempt submitted and graded")

	ws.WriteTyped(conn, ws.GradedResponse{
		Event:    ws.EventGraded,
		Score:    result.Score,
		Possible: result.Possible,
	})
}

// handlePing answers with the authoritative remaining time so clients can
// re-sync their countdown on every heartbeat.
func (h *WSHandler) handlePing(c *gin.Context, conn *websocket.Conn, attemptID uuid.UUID, learnerID int64) {
	state, err := h.attemptService.GetAttemptState(c.Request.Context(), attemptID, learnerID)
	if err != nil {
		ws.WriteError(conn, wsErrorMessage(err))
		return
	}
	ws.WriteTyped(conn, ws.PongResponse{
		Event:            ws.EventPong,
		RemainingSeconds: state.RemainingSeconds,
	})
}

// wsErrorMessage flattens service errors to client-safe strings.
func wsErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrAttemptClosed):
		return "attempt is already finished"
	case errors.Is(err, service.ErrExpired):
		return "attempt deadline has passed"
	case errors.Is(err, service.ErrNotStarted):
		return "attempt has not been started"
	case errors.Is(err, service.ErrUnknownQuestion):
		return "question does not belong to this attempt"
	case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrNotFound):
		return "no access to this attempt"
	case errors.Is(err, scoring.ErrInvalidPayload):
		return "answer payload does not match the question kind"
	default:
		return "internal error"
	}
}
