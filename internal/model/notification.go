package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event names carried by notifications.
const (
	EventExamPublished    = "exam.published"
	EventResultsReleased  = "results.released"
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventAttemptGraded    = "attempt.graded"
	EventAttemptAbandoned = "attempt.abandoned"
	EventProctorFlag      = "proctor.flag"
)

// Notification is a best-effort message emitted on state transitions.
type Notification struct {
	ID          uuid.UUID       `json:"id"`
	Event       string          `json:"event"`
	ExamID      uuid.UUID       `json:"exam_id"`
	AttemptID   *uuid.UUID      `json:"attempt_id,omitempty"`
	RecipientID *uuid.UUID      `json:"recipient_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewNotification builds a notification for exam, marshalling payload.
// A payload that cannot be marshalled is dropped.
func NewNotification(event string, examID uuid.UUID, payload any, now time.Time) Notification {
	n := Notification{
		ID:        uuid.New(),
		Event:     event,
		ExamID:    examID,
		CreatedAt: now,
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			n.Payload = raw
		}
	}
	return n
}

// ForAttempt sets the attempt the notification is about.
func (n Notification) ForAttempt(id uuid.UUID) Notification {
	n.AttemptID = &id
	return n
}

// To sets the recipient.
func (n Notification) To(id uuid.UUID) Notification {
	n.RecipientID = &id
	return n
}
