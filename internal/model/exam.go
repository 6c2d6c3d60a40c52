package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusPublished ExamStatus = "published"
	ExamStatusScheduled ExamStatus = "scheduled"
	ExamStatusOngoing   ExamStatus = "ongoing"
	ExamStatusCompleted ExamStatus = "completed"
	ExamStatusArchived  ExamStatus = "archived"
)

// Open reports whether students may start attempts in this status.
func (s ExamStatus) Open() bool {
	return s == ExamStatusPublished || s == ExamStatusScheduled || s == ExamStatusOngoing
}

// Exam is an instructor-owned exam definition.
type Exam struct {
	ID                    uuid.UUID   `json:"id"`
	CourseID              uuid.UUID   `json:"course_id"`
	InstructorID          uuid.UUID   `json:"instructor_id"`
	Title                 string      `json:"title"`
	Description           string      `json:"description"`
	Instructions          string      `json:"instructions"`
	QuestionIDs           []uuid.UUID `json:"question_ids"`
	TotalMarks            float64     `json:"total_marks"`
	PassingMarks          float64     `json:"passing_marks"`
	DurationMinutes       int         `json:"duration_minutes"`
	StartDate             time.Time   `json:"start_date"`
	EndDate               time.Time   `json:"end_date"`
	MaxAttempts           int         `json:"max_attempts"`
	RandomizeQuestions    bool        `json:"randomize_questions"`
	RandomizeOptions      bool        `json:"randomize_options"`
	NegativeMarking       bool        `json:"negative_marking"`
	NegativeMarkingFactor float64     `json:"negative_marking_factor"`
	ShowResults           bool        `json:"show_results"`
	ShowCorrectAnswers    bool        `json:"show_correct_answers"`
	ShowExplanation       bool        `json:"show_explanation"`
	ResultReleaseDate     *time.Time  `json:"result_release_date,omitempty"`
	LockdownMode          bool        `json:"lockdown_mode"`
	RequireWebcam         bool        `json:"require_webcam"`
	Status                ExamStatus  `json:"status"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// HasQuestion reports whether qid is part of the exam's question set.
func (e *Exam) HasQuestion(qid uuid.UUID) bool {
	for _, id := range e.QuestionIDs {
		if id == qid {
			return true
		}
	}
	return false
}

// ResultsReleased applies the visibility policy: a release date, once set,
// overrides ShowResults and opens results only when reached.
func (e *Exam) ResultsReleased(now time.Time) bool {
	if e.ResultReleaseDate != nil {
		return !now.Before(*e.ResultReleaseDate)
	}
	return e.ShowResults
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	CourseID              uuid.UUID  `json:"course_id" binding:"required"`
	Title                 string     `json:"title" binding:"required,notblank,min=3,max=255"`
	Description           string     `json:"description" binding:"omitempty,max=4000"`
	Instructions          string     `json:"instructions" binding:"omitempty,max=4000"`
	TotalMarks            float64    `json:"total_marks" binding:"required,gt=0"`
	PassingMarks          float64    `json:"passing_marks" binding:"gte=0,ltefield=TotalMarks"`
	DurationMinutes       int        `json:"duration_minutes" binding:"required,min=1,max=600"`
	StartDate             time.Time  `json:"start_date" binding:"required"`
	EndDate               time.Time  `json:"end_date" binding:"required,gtfield=StartDate"`
	MaxAttempts           int        `json:"max_attempts" binding:"omitempty,min=1,max=100"`
	RandomizeQuestions    bool       `json:"randomize_questions"`
	RandomizeOptions      bool       `json:"randomize_options"`
	NegativeMarking       bool       `json:"negative_marking"`
	NegativeMarkingFactor float64    `json:"negative_marking_factor" binding:"gte=0,lte=1"`
	ShowResults           *bool      `json:"show_results"`
	ShowCorrectAnswers    *bool      `json:"show_correct_answers"`
	ShowExplanation       *bool      `json:"show_explanation"`
	ResultReleaseDate     *time.Time `json:"result_release_date"`
	LockdownMode          bool       `json:"lockdown_mode"`
	RequireWebcam         bool       `json:"require_webcam"`
}

// UpdateExamRequest is a partial update of a draft exam.
type UpdateExamRequest struct {
	Title                 *string    `json:"title" binding:"omitempty,min=3,max=255"`
	Description           *string    `json:"description" binding:"omitempty,max=4000"`
	Instructions          *string    `json:"instructions" binding:"omitempty,max=4000"`
	TotalMarks            *float64   `json:"total_marks" binding:"omitempty,gt=0"`
	PassingMarks          *float64   `json:"passing_marks" binding:"omitempty,gte=0"`
	DurationMinutes       *int       `json:"duration_minutes" binding:"omitempty,min=1,max=600"`
	StartDate             *time.Time `json:"start_date"`
	EndDate               *time.Time `json:"end_date"`
	MaxAttempts           *int       `json:"max_attempts" binding:"omitempty,min=1,max=100"`
	RandomizeQuestions    *bool      `json:"randomize_questions"`
	RandomizeOptions      *bool      `json:"randomize_options"`
	NegativeMarking       *bool      `json:"negative_marking"`
	NegativeMarkingFactor *float64   `json:"negative_marking_factor" binding:"omitempty,gte=0,lte=1"`
	LockdownMode          *bool      `json:"lockdown_mode"`
	RequireWebcam         *bool      `json:"require_webcam"`
	Visibility
}

// Visibility holds the result-visibility fields, editable after publish.
type Visibility struct {
	ShowResults        *bool      `json:"show_results"`
	ShowCorrectAnswers *bool      `json:"show_correct_answers"`
	ShowExplanation    *bool      `json:"show_explanation"`
	ResultReleaseDate  *time.Time `json:"result_release_date"`
}

// AddQuestionsRequest attaches bank questions to a draft exam.
type AddQuestionsRequest struct {
	QuestionIDs []uuid.UUID `json:"question_ids" binding:"required,min=1,dive,required"`
}

// ExamView is the student-facing paper for one attempt. It never carries
// correct answers or explanations.
type ExamView struct {
	ExamID          uuid.UUID      `json:"exam_id"`
	AttemptID       uuid.UUID      `json:"attempt_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Instructions    string         `json:"instructions"`
	DurationMinutes int            `json:"duration_minutes"`
	TotalMarks      float64        `json:"total_marks"`
	ExpiresAt       time.Time      `json:"expires_at"`
	LockdownMode    bool           `json:"lockdown_mode"`
	RequireWebcam   bool           `json:"require_webcam"`
	Questions       []QuestionView `json:"questions"`
}
