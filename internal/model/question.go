package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionTypeMCQ         QuestionType = "mcq"
	QuestionTypeTrueFalse   QuestionType = "true-false"
	QuestionTypeShortAnswer QuestionType = "short-answer"
	QuestionTypeEssay       QuestionType = "essay"
	QuestionTypeMatching    QuestionType = "matching"
)

// AutoGradable reports whether answers of this type are scored at submit time.
func (t QuestionType) AutoGradable() bool {
	return t == QuestionTypeMCQ || t == QuestionTypeTrueFalse
}

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMCQ, QuestionTypeTrueFalse, QuestionTypeShortAnswer, QuestionTypeEssay, QuestionTypeMatching:
		return true
	}
	return false
}

// Accepts reports whether an answer of the given kind fits this question type.
func (t QuestionType) Accepts(k AnswerKind) bool {
	switch t {
	case QuestionTypeMCQ:
		return k == AnswerKindChoice || k == AnswerKindChoices || k == AnswerKindText
	case QuestionTypeTrueFalse:
		return k == AnswerKindBoolean || k == AnswerKindText
	case QuestionTypeShortAnswer, QuestionTypeEssay:
		return k == AnswerKindText
	case QuestionTypeMatching:
		return k == AnswerKindMapping
	}
	return false
}

// Difficulty is an authoring hint surfaced in question statistics.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option is a single mcq choice.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is a bank item referenced by exams.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	CourseID      uuid.UUID    `json:"course_id"`
	CreatedBy     uuid.UUID    `json:"created_by"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"type"`
	Topic         string       `json:"topic"`
	Difficulty    Difficulty   `json:"difficulty"`
	Marks         float64      `json:"marks"`
	Options       []Option     `json:"options,omitempty"`
	CorrectAnswer *Answer      `json:"correct_answer"`
	Explanation   string       `json:"explanation,omitempty"`
	ImageURL      string       `json:"image_url,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// CreateQuestionRequest is the payload for adding a question to the bank.
type CreateQuestionRequest struct {
	CourseID      uuid.UUID `json:"course_id" binding:"required"`
	Text          string    `json:"question_text" binding:"required,notblank,max=4000"`
	Type          string    `json:"type" binding:"required,oneof=mcq true-false short-answer essay matching"`
	Topic         string    `json:"topic" binding:"required,max=255"`
	Difficulty    string    `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Marks         float64   `json:"marks" binding:"required,gte=0.5"`
	Options       []Option  `json:"options" binding:"omitempty,dive"`
	CorrectAnswer *Answer   `json:"correct_answer"`
	Explanation   string    `json:"explanation" binding:"omitempty,max=4000"`
	ImageURL      string    `json:"image_url" binding:"omitempty,max=1024"`
}

// UpdateQuestionRequest is the payload for editing a bank question.
type UpdateQuestionRequest struct {
	Text          *string   `json:"question_text" binding:"omitempty,min=1,max=4000"`
	Topic         *string   `json:"topic" binding:"omitempty,max=255"`
	Difficulty    *string   `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Marks         *float64  `json:"marks" binding:"omitempty,gte=0.5"`
	Options       *[]Option `json:"options"`
	CorrectAnswer *Answer   `json:"correct_answer"`
	Explanation   *string   `json:"explanation" binding:"omitempty,max=4000"`
	ImageURL      *string   `json:"image_url" binding:"omitempty,max=1024"`
}

// OptionView is an mcq option as shown to a student. Index is the original
// option position and is what the student answers with.
type OptionView struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// QuestionView is a question stripped of its answer key.
type QuestionView struct {
	ID       uuid.UUID    `json:"id"`
	Position int          `json:"position"`
	Text     string       `json:"question_text"`
	Type     QuestionType `json:"type"`
	Marks    float64      `json:"marks"`
	Options  []OptionView `json:"options,omitempty"`
	ImageURL string       `json:"image_url,omitempty"`
}

// QuestionFilter narrows bank listings. Empty fields match everything.
type QuestionFilter struct {
	Topic      string     `form:"topic" binding:"omitempty,max=255"`
	Difficulty Difficulty `form:"difficulty" binding:"omitempty,oneof=easy medium hard"`
}

// QuestionSummary is a bank entry without its content or answer key.
type QuestionSummary struct {
	ID         uuid.UUID    `json:"id"`
	Text       string       `json:"question_text"`
	Type       QuestionType `json:"type"`
	Topic      string       `json:"topic"`
	Difficulty Difficulty   `json:"difficulty"`
	Marks      float64      `json:"marks"`
}

// Summary strips q down to its bank listing fields.
func (q *Question) Summary() QuestionSummary {
	return QuestionSummary{
		ID:         q.ID,
		Text:       q.Text,
		Type:       q.Type,
		Topic:      q.Topic,
		Difficulty: q.Difficulty,
		Marks:      q.Marks,
	}
}

// QuestionBank is a course's bank ordered by topic, then difficulty, with
// the same entries grouped per topic.
type QuestionBank struct {
	Total     int                          `json:"total"`
	ByTopic   map[string][]QuestionSummary `json:"by_topic"`
	Questions []QuestionSummary            `json:"questions"`
}
