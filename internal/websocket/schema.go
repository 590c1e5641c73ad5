package websocket

import "github.com/stemsi/bandexam-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionSubmit   Action = "submit"
	ActionEvent    Action = "event"
	ActionPing     Action = "ping"
)

// RequestPayload is the single client message shape; fields unused by an
// action are ignored.
type RequestPayload struct {
	Action       Action              `json:"action"`
	Answers      []model.AnswerInput `json:"answers,omitempty"`
	Cursor       *model.Cursor       `json:"cursor,omitempty"`
	ElapsedDelta *int                `json:"elapsed_delta,omitempty"`
	Kind         string              `json:"kind,omitempty"`
	Message      string              `json:"message,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSaved   Event = "saved"
	EventPaused  Event = "paused"
	EventResumed Event = "resumed"
	EventGraded  Event = "graded"
	EventExpired Event = "expired"
	EventLogged  Event = "logged"
	EventPong    Event = "pong"
)

type SavedResponse struct {
	Event                Event   `json:"event"`
	ElapsedSeconds       int     `json:"elapsed_seconds"`
	RemainingSeconds     *int    `json:"remaining_seconds,omitempty"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

type StatusResponse struct {
	Event            Event                  `json:"event"`
	Status           model.SubmissionStatus `json:"status"`
	RemainingSeconds *int                   `json:"remaining_seconds,omitempty"`
}

type GradedResponse struct {
	Event  Event                  `json:"event"`
	Status model.SubmissionStatus `json:"status"`
	Scores *model.Scores          `json:"scores,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
