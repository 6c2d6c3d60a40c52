package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/scoring"
)

// Defaults applied when an exam is created without explicit values.
const (
	DefaultMaxAttempts           = 1
	DefaultNegativeMarkingFactor = 0.25
)

// ExamService manages exam definitions.
type ExamService struct {
	exams     ExamStore
	questions QuestionStore
	attempts  AttemptStore
	notifier  Notifier
	log       zerolog.Logger
}

// NewExamService creates a new ExamService. A nil notifier drops notifications.
func NewExamService(
	exams ExamStore,
	questions QuestionStore,
	attempts AttemptStore,
	notifier Notifier,
	log zerolog.Logger,
) *ExamService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ExamService{
		exams:     exams,
		questions: questions,
		attempts:  attempts,
		notifier:  notifier,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// canManage reports whether actor may mutate exam.
func canManage(actor model.Actor, exam *model.Exam) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.Role == model.RoleInstructor && exam.InstructorID == actor.UserID
}

// load fetches an exam and checks the actor may manage it.
func (s *ExamService) load(ctx context.Context, actor model.Actor, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, storeErr("exam", err)
	}
	if !canManage(actor, exam) {
		return nil, fmt.Errorf("%w: not the exam's instructor", ErrAuthorization)
	}
	return exam, nil
}

func validateExam(e *model.Exam) error {
	switch {
	case e.TotalMarks <= 0:
		return validationf("total marks must be positive")
	case e.PassingMarks < 0 || e.PassingMarks > e.TotalMarks:
		return validationf("passing marks must be between 0 and total marks")
	case e.NegativeMarkingFactor < 0 || e.NegativeMarkingFactor > 1:
		return validationf("negative marking factor must be between 0 and 1")
	case e.MaxAttempts < 1:
		return validationf("max attempts must be at least 1")
	case e.DurationMinutes < 1:
		return validationf("duration must be at least one minute")
	case !e.EndDate.After(e.StartDate):
		return validationf("end date must be after start date")
	}
	return nil
}

// Create stores a new draft exam owned by actor.
func (s *ExamService) Create(ctx context.Context, actor model.Actor, req *model.CreateExamRequest) (*model.Exam, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: only instructors create exams", ErrAuthorization)
	}

	exam := &model.Exam{
		ID:                    uuid.New(),
		CourseID:              req.CourseID,
		InstructorID:          actor.UserID,
		Title:                 req.Title,
		Description:           req.Description,
		Instructions:          req.Instructions,
		QuestionIDs:           []uuid.UUID{},
		TotalMarks:            req.TotalMarks,
		PassingMarks:          req.PassingMarks,
		DurationMinutes:       req.DurationMinutes,
		StartDate:             req.StartDate,
		EndDate:               req.EndDate,
		MaxAttempts:           req.MaxAttempts,
		RandomizeQuestions:    req.RandomizeQuestions,
		RandomizeOptions:      req.RandomizeOptions,
		NegativeMarking:       req.NegativeMarking,
		NegativeMarkingFactor: req.NegativeMarkingFactor,
		ShowResults:           true,
		ResultReleaseDate:     req.ResultReleaseDate,
		LockdownMode:          req.LockdownMode,
		RequireWebcam:         req.RequireWebcam,
		Status:                model.ExamStatusDraft,
	}
	if exam.MaxAttempts == 0 {
		exam.MaxAttempts = DefaultMaxAttempts
	}
	if exam.NegativeMarking && exam.NegativeMarkingFactor == 0 {
		exam.NegativeMarkingFactor = DefaultNegativeMarkingFactor
	}
	if req.ShowResults != nil {
		exam.ShowResults = *req.ShowResults
	}
	if req.ShowCorrectAnswers != nil {
		exam.ShowCorrectAnswers = *req.ShowCorrectAnswers
	}
	if req.ShowExplanation != nil {
		exam.ShowExplanation = *req.ShowExplanation
	}

	if err := validateExam(exam); err != nil {
		return nil, err
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, storeErr("create exam", err)
	}

	s.log.Info().Str("exam_id", exam.ID.String()).Str("instructor_id", actor.UserID.String()).Msg("Exam created")
	return exam, nil
}

// Update applies a partial update to a draft exam.
func (s *ExamService) Update(ctx context.Context, actor model.Actor, examID uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.load(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, fmt.Errorf("%w: exam is %s, only drafts can be edited", ErrInvalidState, exam.Status)
	}

	setIf(&exam.Title, req.Title)
	setIf(&exam.Description, req.Description)
	setIf(&exam.Instructions, req.Instructions)
	setIf(&exam.TotalMarks, req.TotalMarks)
	setIf(&exam.PassingMarks, req.PassingMarks)
	setIf(&exam.DurationMinutes, req.DurationMinutes)
	setIf(&exam.StartDate, req.StartDate)
	setIf(&exam.EndDate, req.EndDate)
	setIf(&exam.MaxAttempts, req.MaxAttempts)
	setIf(&exam.RandomizeQuestions, req.RandomizeQuestions)
	setIf(&exam.RandomizeOptions, req.RandomizeOptions)
	setIf(&exam.NegativeMarking, req.NegativeMarking)
	setIf(&exam.NegativeMarkingFactor, req.NegativeMarkingFactor)
	setIf(&exam.LockdownMode, req.LockdownMode)
	setIf(&exam.RequireWebcam, req.RequireWebcam)
	applyVisibility(exam, req.Visibility)

	if err := validateExam(exam); err != nil {
		return nil, err
	}
	if err := s.exams.UpdateDraft(ctx, exam); err != nil {
		return nil, storeErr("update exam", err)
	}
	return exam, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func applyVisibility(exam *model.Exam, v model.Visibility) {
	setIf(&exam.ShowResults, v.ShowResults)
	setIf(&exam.ShowCorrectAnswers, v.ShowCorrectAnswers)
	setIf(&exam.ShowExplanation, v.ShowExplanation)
	if v.ResultReleaseDate != nil {
		t := *v.ResultReleaseDate
		exam.ResultReleaseDate = &t
	}
}

// AddQuestions attaches bank questions to a draft exam. Questions already
// attached are ignored.
func (s *ExamService) AddQuestions(ctx context.Context, actor model.Actor, examID uuid.UUID, ids []uuid.UUID) (*model.Exam, error) {
	exam, err := s.load(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, fmt.Errorf("%w: questions can only change on drafts", ErrInvalidState)
	}

	var fresh []uuid.UUID
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || exam.HasQuestion(id) {
			continue
		}
		seen[id] = struct{}{}
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return exam, nil
	}

	found, err := s.questions.GetMany(ctx, fresh)
	if err != nil {
		return nil, storeErr("load questions", err)
	}
	byID := make(map[uuid.UUID]*model.Question, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	for _, id := range fresh {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: question %s", ErrNotFound, id)
		}
		if q.CourseID != exam.CourseID {
			return nil, validationf("question %s belongs to another course", id)
		}
	}

	exam.QuestionIDs = append(exam.QuestionIDs, fresh...)
	if err := s.exams.UpdateDraft(ctx, exam); err != nil {
		return nil, storeErr("update exam", err)
	}
	return exam, nil
}

// RemoveQuestion detaches a question from a draft exam.
func (s *ExamService) RemoveQuestion(ctx context.Context, actor model.Actor, examID, questionID uuid.UUID) (*model.Exam, error) {
	exam, err := s.load(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, fmt.Errorf("%w: questions can only change on drafts", ErrInvalidState)
	}
	if !exam.HasQuestion(questionID) {
		return nil, fmt.Errorf("%w: question %s is not on the exam", ErrNotFound, questionID)
	}

	kept := make([]uuid.UUID, 0, len(exam.QuestionIDs)-1)
	for _, id := range exam.QuestionIDs {
		if id != questionID {
			kept = append(kept, id)
		}
	}
	exam.QuestionIDs = kept
	if err := s.exams.UpdateDraft(ctx, exam); err != nil {
		return nil, storeErr("update exam", err)
	}
	return exam, nil
}

// Publish opens a draft exam to students. Loading the questions here also
// warms the question cache ahead of the first attempts.
func (s *ExamService) Publish(ctx context.Context, actor model.Actor, examID uuid.UUID, now time.Time) (*model.Exam, error) {
	exam, err := s.load(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if len(exam.QuestionIDs) == 0 {
		return nil, validationf("exam has no questions")
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, fmt.Errorf("%w: exam is %s, expected draft", ErrInvalidState, exam.Status)
	}

	found, err := s.questions.GetMany(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, storeErr("load questions", err)
	}
	if len(found) != len(exam.QuestionIDs) {
		return nil, fmt.Errorf("%w: %d of %d questions are missing", ErrNotFound, len(exam.QuestionIDs)-len(found), len(exam.QuestionIDs))
	}

	if err := s.exams.Publish(ctx, examID, exam.QuestionIDs); err != nil {
		return nil, storeErr("publish exam", err)
	}
	exam.Status = model.ExamStatusPublished

	s.notifier.Notify(model.NewNotification(model.EventExamPublished, exam.ID, map[string]any{
		"title":      exam.Title,
		"course_id":  exam.CourseID,
		"start_date": exam.StartDate,
		"end_date":   exam.EndDate,
	}, now))

	s.log.Info().Str("exam_id", examID.String()).Int("questions", len(found)).Msg("Exam published")
	return exam, nil
}

// UpdateVisibility changes the result visibility settings of a non-archived exam.
func (s *ExamService) UpdateVisibility(ctx context.Context, actor model.Actor, examID uuid.UUID, v model.Visibility) (*model.Exam, error) {
	exam, err := s.load(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status == model.ExamStatusArchived {
		return nil, fmt.Errorf("%w: exam is archived", ErrInvalidState)
	}

	applyVisibility(exam, v)
	if err := s.exams.UpdateVisibility(ctx, exam, exam.Status); err != nil {
		return nil, storeErr("update exam", err)
	}
	return exam, nil
}

// ReleaseResults releases results of a non-draft exam immediately.
func (s *ExamService) ReleaseResults(ctx context.Context, actor model.Actor, examID uuid.UUID, now time.Time) (*model.Exam, error) {
	exam, err := s.load(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status == model.ExamStatusDraft || exam.Status == model.ExamStatusArchived {
		return nil, fmt.Errorf("%w: exam is %s", ErrInvalidState, exam.Status)
	}

	exam.ShowResults = true
	exam.ResultReleaseDate = &now
	if err := s.exams.UpdateVisibility(ctx, exam, exam.Status); err != nil {
		return nil, storeErr("update exam", err)
	}

	s.notifier.Notify(model.NewNotification(model.EventResultsReleased, exam.ID, map[string]any{
		"title": exam.Title,
	}, now))
	s.log.Info().Str("exam_id", examID.String()).Msg("Results released")
	return exam, nil
}

// Archive retires an exam. Archived exams accept no new attempts.
func (s *ExamService) Archive(ctx context.Context, actor model.Actor, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.load(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status == model.ExamStatusArchived {
		return nil, fmt.Errorf("%w: exam is already archived", ErrInvalidState)
	}
	if err := s.exams.TransitionStatus(ctx, examID, exam.Status, model.ExamStatusArchived); err != nil {
		return nil, storeErr("archive exam", err)
	}
	exam.Status = model.ExamStatusArchived
	return exam, nil
}

// Delete removes an exam no attempt references.
func (s *ExamService) Delete(ctx context.Context, actor model.Actor, examID uuid.UUID) error {
	if _, err := s.load(ctx, actor, examID); err != nil {
		return err
	}

	n, err := s.attempts.CountByExam(ctx, examID)
	if err != nil {
		return storeErr("count attempts", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: exam has %d attempts", ErrConflict, n)
	}
	if err := s.exams.Delete(ctx, examID); err != nil {
		return storeErr("delete exam", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam deleted")
	return nil
}

// Get returns an exam. Students only see exams that are open.
func (s *ExamService) Get(ctx context.Context, actor model.Actor, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, storeErr("exam", err)
	}
	if actor.Role == model.RoleStudent && !exam.Status.Open() {
		return nil, fmt.Errorf("%w: exam %s", ErrNotFound, examID)
	}
	return exam, nil
}

// ListByCourse lists a course's exams for staff.
func (s *ExamService) ListByCourse(ctx context.Context, actor model.Actor, courseID uuid.UUID, page Page) ([]model.Exam, *response.Pagination, error) {
	if !actor.IsStaff() {
		return nil, nil, fmt.Errorf("%w: staff only", ErrAuthorization)
	}
	exams, total, err := s.exams.ListByCourse(ctx, courseID, page.Limit(), page.Offset())
	if err != nil {
		return nil, nil, storeErr("list exams", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, page.Pagination(total), nil
}

// ListByInstructor lists the exams owned by actor.
func (s *ExamService) ListByInstructor(ctx context.Context, actor model.Actor, page Page) ([]model.Exam, *response.Pagination, error) {
	if !actor.IsStaff() {
		return nil, nil, fmt.Errorf("%w: staff only", ErrAuthorization)
	}
	exams, total, err := s.exams.ListByInstructor(ctx, actor.UserID, page.Limit(), page.Offset())
	if err != nil {
		return nil, nil, storeErr("list exams", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, page.Pagination(total), nil
}

// ListAvailable lists the exams a student can currently see: open and not
// yet ended.
func (s *ExamService) ListAvailable(ctx context.Context, now time.Time) ([]model.Exam, error) {
	exams, err := s.exams.ListOpen(ctx, now)
	if err != nil {
		return nil, storeErr("list exams", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// Statistics are computed over graded attempts only.
func (s *ExamService) Statistics(ctx context.Context, actor model.Actor, examID uuid.UUID) (*scoring.ExamStatistics, error) {
	exam, err := s.load(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListByExam(ctx, examID)
	if err != nil {
		return nil, storeErr("list attempts", err)
	}
	qs, err := questionMap(ctx, s.questions, exam.QuestionIDs)
	if err != nil {
		return nil, err
	}
	stats := scoring.Statistics(exam, qs, attempts)
	return &stats, nil
}
