package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSave   Action = "save"
	ActionFlag   Action = "flag"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestPayload is the single client message shape. QID is required for
// save and flag; Payload only for save.
type RequestPayload struct {
	Action  Action          `json:"action"`
	QID     string          `json:"q_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSaved   Event = "saved"
	EventFlagged Event = "flagged"
	EventGraded  Event = "graded"
	EventPong    Event = "pong"
)

type SavedResponse struct {
	Event    Event  `json:"event"`
	QID      string `json:"q_id"`
	Answered int    `json:"answered"`
	Total    int    `json:"total"`
}

type FlaggedResponse struct {
	Event   Event  `json:"event"`
	QID     string `json:"q_id"`
	Flagged bool   `json:"flagged"`
}

type GradedResponse struct {
	Event    Event   `json:"event"`
	Score    float64 `json:"score"`
	Possible float64 `json:"possible"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event    `json:"event"`
	RemainingSeconds *float64 `json:"remaining_seconds"`
}
