package websocket

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-assess/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionReview   Action = "review"
	ActionFlag     Action = "flag"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest saves a single answer. Seq orders writes from one client;
// zero means unsequenced.
type AutosaveRequest struct {
	Action           Action        `json:"action"`
	QuestionID       uuid.UUID     `json:"question_id"`
	Answer           *model.Answer `json:"answer"`
	TimeSpentSeconds int           `json:"time_spent_seconds"`
	Seq              int64         `json:"seq"`
}

// ReviewRequest toggles the review mark of a question.
type ReviewRequest struct {
	Action          Action    `json:"action"`
	QuestionID      uuid.UUID `json:"question_id"`
	MarkedForReview bool      `json:"marked_for_review"`
}

// FlagRequest reports a proctoring event.
type FlagRequest struct {
	Action  Action `json:"action"`
	Type    string `json:"type"`
	Details string `json:"details"`
}

// SubmitRequest finishes the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventReviewed  Event = "reviewed"
	EventFlagged   Event = "flagged"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
	Seq        int64     `json:"seq"`
	Applied    bool      `json:"applied"`
}

type ReviewedResponse struct {
	Event           Event     `json:"event"`
	QuestionID      uuid.UUID `json:"question_id"`
	MarkedForReview bool      `json:"marked_for_review"`
}

type FlaggedResponse struct {
	Event Event          `json:"event"`
	Type  model.FlagType `json:"type"`
}

type SubmittedResponse struct {
	Event  Event                `json:"event"`
	Result *model.AttemptResult `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
