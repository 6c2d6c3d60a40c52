package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/response"
)

// QuestionService manages the question bank.
type QuestionService struct {
	questions QuestionStore
	exams     ExamStore
	log       zerolog.Logger
}

// NewQuestionService creates a new QuestionService. Exams are consulted to
// protect questions that published exams depend on.
func NewQuestionService(questions QuestionStore, exams ExamStore, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questions: questions,
		exams:     exams,
		log:       log.With().Str("component", "question_service").Logger(),
	}
}

// validateQuestion checks type/answer compatibility and normalizes the key.
func validateQuestion(q *model.Question) error {
	if !q.Type.Valid() {
		return validationf("unknown question type %q", q.Type)
	}
	if q.Marks < 0.5 {
		return validationf("marks must be at least 0.5")
	}
	if strings.TrimSpace(q.Text) == "" {
		return validationf("question text is required")
	}
	if q.CorrectAnswer != nil && !q.Type.Accepts(q.CorrectAnswer.Kind) {
		return validationf("a %s answer does not fit a %s question", q.CorrectAnswer.Kind, q.Type)
	}

	switch q.Type {
	case model.QuestionTypeMCQ:
		if len(q.Options) < 2 {
			return validationf("mcq questions need at least two options")
		}
		if err := checkOptionIndices(q.CorrectAnswer, len(q.Options)); err != nil {
			return err
		}
		if q.CorrectAnswer == nil {
			flagged := false
			for _, o := range q.Options {
				flagged = flagged || o.IsCorrect
			}
			if !flagged {
				return validationf("mcq questions need a correct answer or a correct option")
			}
		}
	case model.QuestionTypeTrueFalse:
		q.Options = nil
		q.CorrectAnswer = q.CorrectAnswer.Normalize(q.Type)
		if q.CorrectAnswer == nil || q.CorrectAnswer.Kind != model.AnswerKindBoolean {
			return validationf("true-false questions need a true or false answer")
		}
	case model.QuestionTypeMatching:
		q.Options = nil
		if q.CorrectAnswer == nil || len(q.CorrectAnswer.Mapping) == 0 {
			return validationf("matching questions need the correct pairs")
		}
	case model.QuestionTypeEssay:
		q.Options = nil
		q.CorrectAnswer = nil
	case model.QuestionTypeShortAnswer:
		q.Options = nil
	}
	return nil
}

func checkOptionIndices(a *model.Answer, n int) error {
	if a == nil {
		return nil
	}
	idx := a.Choices
	if a.Kind == model.AnswerKindChoice {
		idx = []int{a.Choice}
	}
	for _, i := range idx {
		if i < 0 || i >= n {
			return validationf("option index %d out of range", i)
		}
	}
	return nil
}

// Create adds a question to the bank.
func (s *QuestionService) Create(ctx context.Context, actor model.Actor, req *model.CreateQuestionRequest) (*model.Question, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: staff only", ErrAuthorization)
	}

	q := &model.Question{
		ID:            uuid.New(),
		CourseID:      req.CourseID,
		CreatedBy:     actor.UserID,
		Text:          req.Text,
		Type:          model.QuestionType(req.Type),
		Topic:         req.Topic,
		Difficulty:    model.Difficulty(req.Difficulty),
		Marks:         req.Marks,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Explanation:   req.Explanation,
		ImageURL:      req.ImageURL,
	}
	if q.Difficulty == "" {
		q.Difficulty = model.DifficultyMedium
	}
	if err := validateQuestion(q); err != nil {
		return nil, err
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return nil, storeErr("create question", err)
	}
	return q, nil
}

// scoringChanged reports whether an edit changes how answers are scored.
func scoringChanged(before, after *model.Question) bool {
	return before.Marks != after.Marks ||
		!slices.Equal(before.Options, after.Options) ||
		!model.Equal(after.Type, before.CorrectAnswer, after.CorrectAnswer)
}

// lockingExam returns the first exam using question id that matches locked.
func (s *QuestionService) lockingExam(ctx context.Context, id uuid.UUID, locked func(model.Exam) bool) (*model.Exam, error) {
	exams, err := s.exams.ListByQuestion(ctx, id)
	if err != nil {
		return nil, storeErr("list exams using question", err)
	}
	for i := range exams {
		if locked(exams[i]) {
			return &exams[i], nil
		}
	}
	return nil, nil
}

func (s *QuestionService) authored(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Question, error) {
	q, err := s.questions.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("question", err)
	}
	if !actor.IsAdmin() && q.CreatedBy != actor.UserID {
		return nil, fmt.Errorf("%w: not the question's author", ErrAuthorization)
	}
	return q, nil
}

// Update edits a bank question. Only its author or an admin may edit it.
// Marks, options and the answer key are frozen once a non-draft exam uses
// the question, since stored scores and result views are derived from them.
func (s *QuestionService) Update(ctx context.Context, actor model.Actor, id uuid.UUID, req *model.UpdateQuestionRequest) (*model.Question, error) {
	q, err := s.authored(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	before := *q

	setIf(&q.Text, req.Text)
	setIf(&q.Topic, req.Topic)
	setIf(&q.Marks, req.Marks)
	setIf(&q.Options, req.Options)
	setIf(&q.Explanation, req.Explanation)
	setIf(&q.ImageURL, req.ImageURL)
	if req.Difficulty != nil {
		q.Difficulty = model.Difficulty(*req.Difficulty)
	}
	if req.CorrectAnswer != nil {
		q.CorrectAnswer = req.CorrectAnswer
	}

	if err := validateQuestion(q); err != nil {
		return nil, err
	}
	if scoringChanged(&before, q) {
		exam, err := s.lockingExam(ctx, id, func(e model.Exam) bool { return e.Status != model.ExamStatusDraft })
		if err != nil {
			return nil, err
		}
		if exam != nil {
			return nil, fmt.Errorf("%w: question is used by %s exam %s", ErrConflict, exam.Status, exam.ID)
		}
	}
	if err := s.questions.Update(ctx, q); err != nil {
		return nil, storeErr("update question", err)
	}

	s.log.Debug().Str("question_id", id.String()).Msg("Question updated")
	return q, nil
}

// Get returns a question with its answer key, for staff.
func (s *QuestionService) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Question, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: staff only", ErrAuthorization)
	}
	q, err := s.questions.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("question", err)
	}
	return q, nil
}

// Delete removes a question no exam uses. Only its author or an admin may
// delete it; exams must drop the question first.
func (s *QuestionService) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if _, err := s.authored(ctx, actor, id); err != nil {
		return err
	}
	exam, err := s.lockingExam(ctx, id, func(model.Exam) bool { return true })
	if err != nil {
		return err
	}
	if exam != nil {
		return fmt.Errorf("%w: question is used by exam %s", ErrConflict, exam.ID)
	}
	if err := s.questions.Delete(ctx, id); err != nil {
		return storeErr("delete question", err)
	}

	s.log.Info().Str("question_id", id.String()).Str("actor_id", actor.UserID.String()).Msg("Question deleted")
	return nil
}

// Bank returns a course's questions matching filter, grouped by topic.
func (s *QuestionService) Bank(ctx context.Context, actor model.Actor, courseID uuid.UUID, filter model.QuestionFilter) (*model.QuestionBank, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: staff only", ErrAuthorization)
	}
	qs, err := s.questions.ListBank(ctx, courseID, filter)
	if err != nil {
		return nil, storeErr("list question bank", err)
	}

	bank := &model.QuestionBank{
		Total:     len(qs),
		ByTopic:   make(map[string][]model.QuestionSummary),
		Questions: make([]model.QuestionSummary, 0, len(qs)),
	}
	for i := range qs {
		sum := qs[i].Summary()
		bank.Questions = append(bank.Questions, sum)
		bank.ByTopic[sum.Topic] = append(bank.ByTopic[sum.Topic], sum)
	}
	return bank, nil
}

// Topics lists the distinct topics of a course's bank.
func (s *QuestionService) Topics(ctx context.Context, actor model.Actor, courseID uuid.UUID) ([]string, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: staff only", ErrAuthorization)
	}
	topics, err := s.questions.Topics(ctx, courseID)
	if err != nil {
		return nil, storeErr("list topics", err)
	}
	if topics == nil {
		topics = []string{}
	}
	return topics, nil
}

// ListByCourse pages through a course's question bank.
func (s *QuestionService) ListByCourse(ctx context.Context, actor model.Actor, courseID uuid.UUID, filter model.QuestionFilter, page Page) ([]model.Question, *response.Pagination, error) {
	if !actor.IsStaff() {
		return nil, nil, fmt.Errorf("%w: staff only", ErrAuthorization)
	}
	qs, total, err := s.questions.ListByCourse(ctx, courseID, filter, page.Limit(), page.Offset())
	if err != nil {
		return nil, nil, storeErr("list questions", err)
	}
	if qs == nil {
		qs = []model.Question{}
	}
	return qs, page.Pagination(total), nil
}

// questionMap loads ids into a lookup keyed by question id. Missing
// questions are reported as not found.
func questionMap(ctx context.Context, store QuestionStore, ids []uuid.UUID) (map[uuid.UUID]*model.Question, error) {
	found, err := store.GetMany(ctx, ids)
	if err != nil {
		return nil, storeErr("load questions", err)
	}
	m := make(map[uuid.UUID]*model.Question, len(found))
	for i := range found {
		m[found[i].ID] = &found[i]
	}
	for _, id := range ids {
		if _, ok := m[id]; !ok {
			return nil, fmt.Errorf("%w: question %s", ErrNotFound, id)
		}
	}
	return m, nil
}
