package model

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. Status only moves forward:
// in-progress → submitted → graded, or in-progress → abandoned.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in-progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusGraded     AttemptStatus = "graded"
	AttemptStatusAbandoned  AttemptStatus = "abandoned"
)

// AnswerSlot is one question of an attempt. Slots are created at start and
// never added or removed.
type AnswerSlot struct {
	QuestionID       uuid.UUID `json:"question_id"`
	Position         int       `json:"position"`
	OptionOrder      []int     `json:"option_order,omitempty"`
	Answer           *Answer   `json:"answer"`
	MarkedForReview  bool      `json:"marked_for_review"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	IsAnswered       bool      `json:"is_answered"`
	Seq              int64     `json:"seq"`
}

// Feedback is a grader's mark for one manually graded question.
type Feedback struct {
	QuestionID uuid.UUID `json:"question_id"`
	Marks      float64   `json:"marks"`
	Comment    string    `json:"comment"`
}

// Attempt is one student's sitting of an exam.
type Attempt struct {
	ID                uuid.UUID     `json:"id"`
	ExamID            uuid.UUID     `json:"exam_id"`
	StudentID         uuid.UUID     `json:"student_id"`
	Ordinal           int           `json:"ordinal"`
	StartedAt         time.Time     `json:"started_at"`
	ExpiresAt         time.Time     `json:"expires_at"`
	SubmittedAt       *time.Time    `json:"submitted_at,omitempty"`
	Status            AttemptStatus `json:"status"`
	Answers           []AnswerSlot  `json:"answers"`
	AutoGradedScore   float64       `json:"auto_graded_score"`
	ManualGradedScore float64       `json:"manual_graded_score"`
	TotalScore        float64       `json:"total_score"`
	Percentage        float64       `json:"percentage"`
	IsPassed          bool          `json:"is_passed"`
	Feedback          []Feedback    `json:"feedback"`
	GradedBy          *uuid.UUID    `json:"graded_by,omitempty"`
	GradedAt          *time.Time    `json:"graded_at,omitempty"`
}

// Slot returns the answer slot for qid, or nil.
func (a *Attempt) Slot(qid uuid.UUID) *AnswerSlot {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == qid {
			return &a.Answers[i]
		}
	}
	return nil
}

// Expired reports whether the attempt's time window has closed at now.
func (a *Attempt) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// ExpiryKey orders overdue attempts for the auto-submit sweep. The zero
// value sorts before every attempt.
type ExpiryKey struct {
	ExpiresAt time.Time
	ID        uuid.UUID
}

// After reports whether k sorts strictly after o.
func (k ExpiryKey) After(o ExpiryKey) bool {
	if !k.ExpiresAt.Equal(o.ExpiresAt) {
		return k.ExpiresAt.After(o.ExpiresAt)
	}
	return bytes.Compare(k.ID[:], o.ID[:]) > 0
}

// SaveAnswerRequest is the autosave payload.
type SaveAnswerRequest struct {
	QuestionID       uuid.UUID `json:"question_id" binding:"required"`
	Answer           *Answer   `json:"answer"`
	TimeSpentSeconds int       `json:"time_spent_seconds" binding:"gte=0"`
	Seq              int64     `json:"seq" binding:"gte=0"`
}

// MarkForReviewRequest toggles the review flag of a slot.
type MarkForReviewRequest struct {
	QuestionID      uuid.UUID `json:"question_id" binding:"required"`
	MarkedForReview bool      `json:"marked_for_review"`
}

// ManualGradeRequest is a grader's mark for one question.
type ManualGradeRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Marks      *float64  `json:"marks" binding:"required"`
	Comment    string    `json:"comment" binding:"omitempty,max=4000"`
}

// AttemptSummary is an attempt without its answer slots, for listings.
type AttemptSummary struct {
	ID          uuid.UUID     `json:"id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	StudentID   uuid.UUID     `json:"student_id"`
	Ordinal     int           `json:"ordinal"`
	Status      AttemptStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	TotalScore  float64       `json:"total_score"`
	Percentage  float64       `json:"percentage"`
	IsPassed    bool          `json:"is_passed"`
	GradedBy    *uuid.UUID    `json:"graded_by,omitempty"`
	GradedAt    *time.Time    `json:"graded_at,omitempty"`
}

// Summary drops the answer slots.
func (a *Attempt) Summary() AttemptSummary {
	return AttemptSummary{
		ID:          a.ID,
		ExamID:      a.ExamID,
		StudentID:   a.StudentID,
		Ordinal:     a.Ordinal,
		Status:      a.Status,
		StartedAt:   a.StartedAt,
		SubmittedAt: a.SubmittedAt,
		TotalScore:  a.TotalScore,
		Percentage:  a.Percentage,
		IsPassed:    a.IsPassed,
		GradedBy:    a.GradedBy,
		GradedAt:    a.GradedAt,
	}
}

// AnswerResult is one question of a result view.
type AnswerResult struct {
	QuestionID      uuid.UUID    `json:"question_id"`
	Text            string       `json:"question_text"`
	Type            QuestionType `json:"type"`
	Marks           float64      `json:"marks"`
	StudentAnswer   *Answer      `json:"student_answer"`
	TimeSpent       int          `json:"time_spent_seconds"`
	MarkedForReview bool         `json:"marked_for_review"`
	CorrectAnswer   *Answer      `json:"correct_answer,omitempty"`
	Explanation     string       `json:"explanation,omitempty"`
	IsCorrect       *bool        `json:"is_correct,omitempty"`
}

// AttemptResult is an attempt as shown after submission, filtered by the
// exam's visibility policy.
type AttemptResult struct {
	AttemptID       uuid.UUID      `json:"attempt_id"`
	ExamID          uuid.UUID      `json:"exam_id"`
	StudentID       uuid.UUID      `json:"student_id"`
	Status          AttemptStatus  `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	SubmittedAt     *time.Time     `json:"submitted_at,omitempty"`
	ResultsReleased bool           `json:"results_released"`
	MaxScore        float64        `json:"max_score"`
	PassingMarks    float64        `json:"passing_marks"`
	AutoGraded      *float64       `json:"auto_graded_score,omitempty"`
	ManualGraded    *float64       `json:"manual_graded_score,omitempty"`
	TotalScore      *float64       `json:"total_score,omitempty"`
	Percentage      *float64       `json:"percentage,omitempty"`
	IsPassed        *bool          `json:"is_passed,omitempty"`
	CorrectCount    *int           `json:"correct_count,omitempty"`
	TotalQuestions  int            `json:"total_questions"`
	Feedback        []Feedback     `json:"feedback,omitempty"`
	GradedBy        *uuid.UUID     `json:"graded_by,omitempty"`
	GradedAt        *time.Time     `json:"graded_at,omitempty"`
	Answers         []AnswerResult `json:"answers"`
}

// PendingAnswer is a manually graded answer awaiting a mark.
type PendingAnswer struct {
	QuestionID    uuid.UUID    `json:"question_id"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"type"`
	Marks         float64      `json:"marks"`
	StudentAnswer *Answer      `json:"student_answer"`
	Graded        bool         `json:"graded"`
}

// PendingGrading lists the manual answers of one submitted attempt.
type PendingGrading struct {
	AttemptID   uuid.UUID       `json:"attempt_id"`
	StudentID   uuid.UUID       `json:"student_id"`
	SubmittedAt *time.Time      `json:"submitted_at,omitempty"`
	Answers     []PendingAnswer `json:"answers"`
}
