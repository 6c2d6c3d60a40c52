package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-assess/internal/model"
)

func createRequest(courseID uuid.UUID) *model.CreateExamRequest {
	return &model.CreateExamRequest{
		CourseID:        courseID,
		Title:           "Chemistry final",
		TotalMarks:      20,
		PassingMarks:    10,
		DurationMinutes: 90,
		StartDate:       t0,
		EndDate:         t0.Add(48 * time.Hour),
	}
}

func TestExamCreate_AppliesDefaults(t *testing.T) {
	f := newFixture()
	req := createRequest(uuid.New())
	req.NegativeMarking = true

	exam, err := f.examSvc.Create(context.Background(), f.instructor, req)
	require.NoError(t, err)

	assert.Equal(t, model.ExamStatusDraft, exam.Status)
	assert.Equal(t, f.instructor.UserID, exam.InstructorID)
	assert.Equal(t, DefaultMaxAttempts, exam.MaxAttempts)
	assert.Equal(t, DefaultNegativeMarkingFactor, exam.NegativeMarkingFactor)
	assert.True(t, exam.ShowResults)
	assert.False(t, exam.ShowCorrectAnswers)
	assert.Empty(t, exam.QuestionIDs)
}

func TestExamCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.CreateExamRequest)
	}{
		{"passing above total", func(r *model.CreateExamRequest) { r.PassingMarks = 25 }},
		{"end before start", func(r *model.CreateExamRequest) { r.EndDate = r.StartDate.Add(-time.Minute) }},
		{"factor above one", func(r *model.CreateExamRequest) { r.NegativeMarkingFactor = 1.5 }},
		{"zero duration", func(r *model.CreateExamRequest) { r.DurationMinutes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := createRequest(uuid.New())
			tt.mutate(req)
			_, err := f.examSvc.Create(context.Background(), f.instructor, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	f := newFixture()
	_, err := f.examSvc.Create(context.Background(), f.student, createRequest(uuid.New()))
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestExamAuthoring_Lifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	exam, err := f.examSvc.Create(ctx, f.instructor, createRequest(uuid.New()))
	require.NoError(t, err)

	_, err = f.examSvc.Publish(ctx, f.instructor, exam.ID, t0)
	assert.ErrorIs(t, err, ErrValidation)

	q1, q2 := mcq(10, model.ChoiceAnswer(1)), essay(10)
	q1.CourseID, q2.CourseID = exam.CourseID, exam.CourseID
	f.questions.put(q1, q2)

	exam, err = f.examSvc.AddQuestions(ctx, f.instructor, exam.ID, []uuid.UUID{q1.ID, q2.ID, q1.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{q1.ID, q2.ID}, exam.QuestionIDs)

	exam, err = f.examSvc.AddQuestions(ctx, f.instructor, exam.ID, []uuid.UUID{q2.ID})
	require.NoError(t, err)
	assert.Len(t, exam.QuestionIDs, 2)

	_, err = f.examSvc.AddQuestions(ctx, f.instructor, exam.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)

	title := "Chemistry final (v2)"
	exam, err = f.examSvc.Update(ctx, f.instructor, exam.ID, &model.UpdateExamRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, exam.Title)

	exam, err = f.examSvc.Publish(ctx, f.instructor, exam.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusPublished, exam.Status)
	assert.Equal(t, []string{model.EventExamPublished}, f.notes.events())

	_, err = f.examSvc.Publish(ctx, f.instructor, exam.ID, t0)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.examSvc.Update(ctx, f.instructor, exam.ID, &model.UpdateExamRequest{Title: &title})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.examSvc.RemoveQuestion(ctx, f.instructor, exam.ID, q1.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	show := true
	exam, err = f.examSvc.UpdateVisibility(ctx, f.instructor, exam.ID, model.Visibility{ShowCorrectAnswers: &show})
	require.NoError(t, err)
	assert.True(t, exam.ShowCorrectAnswers)

	exam, err = f.examSvc.Archive(ctx, f.instructor, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusArchived, exam.Status)

	_, err = f.examSvc.UpdateVisibility(ctx, f.instructor, exam.ID, model.Visibility{ShowCorrectAnswers: &show})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.examSvc.ReleaseResults(ctx, f.instructor, exam.ID, t0)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExamAddQuestions_RejectsOtherCourse(t *testing.T) {
	f := newFixture()
	exam, err := f.examSvc.Create(context.Background(), f.instructor, createRequest(uuid.New()))
	require.NoError(t, err)

	q := mcq(5, model.ChoiceAnswer(0))
	q.CourseID = uuid.New()
	f.questions.put(q)

	_, err = f.examSvc.AddQuestions(context.Background(), f.instructor, exam.ID, []uuid.UUID{q.ID})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExamRemoveQuestion(t *testing.T) {
	f := newFixture()
	q1, q2 := mcq(5, model.ChoiceAnswer(0)), essay(5)
	exam := f.openExam(t, func(e *model.Exam) { e.Status = model.ExamStatusDraft }, q1, q2)

	got, err := f.examSvc.RemoveQuestion(context.Background(), f.instructor, exam.ID, q1.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{q2.ID}, got.QuestionIDs)

	_, err = f.examSvc.RemoveQuestion(context.Background(), f.instructor, exam.ID, q1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExamMutations_RequireOwner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	exam, err := f.examSvc.Create(ctx, f.instructor, createRequest(uuid.New()))
	require.NoError(t, err)

	other := model.Actor{UserID: uuid.New(), Role: model.RoleInstructor}
	title := "hijacked"
	_, err = f.examSvc.Update(ctx, other, exam.ID, &model.UpdateExamRequest{Title: &title})
	assert.ErrorIs(t, err, ErrAuthorization)
	assert.ErrorIs(t, f.examSvc.Delete(ctx, other, exam.ID), ErrAuthorization)
	_, err = f.examSvc.Statistics(ctx, other, exam.ID)
	assert.ErrorIs(t, err, ErrAuthorization)

	admin := model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}
	_, err = f.examSvc.Update(ctx, admin, exam.ID, &model.UpdateExamRequest{Title: &title})
	assert.NoError(t, err)
}

func TestExamDelete_ConflictsWithAttempts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	exam := f.openExam(t, nil, mcq(5, model.ChoiceAnswer(1)))
	f.start(t, exam)

	assert.ErrorIs(t, f.examSvc.Delete(ctx, f.instructor, exam.ID), ErrConflict)

	empty := f.openExam(t, nil, mcq(5, model.ChoiceAnswer(1)))
	require.NoError(t, f.examSvc.Delete(ctx, f.instructor, empty.ID))
	_, err := f.examSvc.Get(ctx, f.instructor, empty.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExamGet_HidesDraftsFromStudents(t *testing.T) {
	f := newFixture()
	draft := f.openExam(t, func(e *model.Exam) { e.Status = model.ExamStatusDraft }, mcq(5, model.ChoiceAnswer(1)))

	_, err := f.examSvc.Get(context.Background(), f.student, draft.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.examSvc.Get(context.Background(), f.instructor, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, got.ID)
}

func TestExamListAvailable(t *testing.T) {
	f := newFixture()
	open := f.openExam(t, nil, mcq(5, model.ChoiceAnswer(1)))
	f.openExam(t, func(e *model.Exam) { e.Status = model.ExamStatusDraft }, mcq(5, model.ChoiceAnswer(1)))
	f.openExam(t, func(e *model.Exam) {
		e.StartDate = t0.Add(-time.Hour)
		e.EndDate = t0.Add(-time.Minute)
	}, mcq(5, model.ChoiceAnswer(1)))

	exams, err := f.examSvc.ListAvailable(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, open.ID, exams[0].ID)
}

func TestExamListByInstructor_Paginates(t *testing.T) {
	f := newFixture()
	for i := 0; i < 3; i++ {
		_, err := f.examSvc.Create(context.Background(), f.instructor, createRequest(uuid.New()))
		require.NoError(t, err)
	}

	exams, page, err := f.examSvc.ListByInstructor(context.Background(), f.instructor, NewPage(2, 2))
	require.NoError(t, err)
	assert.Len(t, exams, 1)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)

	_, _, err = f.examSvc.ListByInstructor(context.Background(), f.student, NewPage(1, 10))
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestExamReleaseResults_OpensVisibility(t *testing.T) {
	f := newFixture()
	q := mcq(10, model.ChoiceAnswer(1))
	exam := f.openExam(t, func(e *model.Exam) { e.ShowResults = false }, q)
	a := f.start(t, exam)
	f.answer(t, a, q, model.ChoiceAnswer(1))
	_, err := f.svc.Submit(context.Background(), f.student, a.ID, t0.Add(time.Minute))
	require.NoError(t, err)

	before, err := f.svc.GetResult(context.Background(), f.student, a.ID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, before.TotalScore)

	_, err = f.examSvc.ReleaseResults(context.Background(), f.instructor, exam.ID, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.EventResultsReleased, f.notes.last().Event)

	after, err := f.svc.GetResult(context.Background(), f.student, a.ID, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, after.TotalScore)
	assert.Equal(t, 10.0, *after.TotalScore)
}

func TestExamStatistics(t *testing.T) {
	f := newFixture()
	q := mcq(10, model.ChoiceAnswer(1))
	exam := f.openExam(t, func(e *model.Exam) { e.MaxAttempts = 2 }, q)
	ctx := context.Background()

	for _, ans := range []*model.Answer{model.ChoiceAnswer(1), model.ChoiceAnswer(0)} {
		a := f.start(t, exam)
		f.answer(t, a, q, ans)
		_, err := f.svc.Submit(ctx, f.student, a.ID, t0.Add(time.Minute))
		require.NoError(t, err)
	}

	stats, err := f.examSvc.Statistics(ctx, f.instructor, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAttempts)
	assert.Equal(t, 5.0, stats.AverageScore)
	assert.Equal(t, 10.0, stats.HighestScore)
	assert.Equal(t, 0.0, stats.LowestScore)
	assert.Equal(t, 50.0, stats.PassPercentage)
	require.Len(t, stats.Questions, 1)
	assert.Equal(t, 1, stats.Questions[0].CorrectCount)
	assert.Equal(t, 1, stats.Questions[0].IncorrectCount)
}

// staleExamStore serves a fixed copy of one exam, the view of a caller that
// read it just before a concurrent writer changed it.
type staleExamStore struct {
	*fakeExamStore
	snapshot model.Exam
}

func (s staleExamStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	if id == s.snapshot.ID {
		return cloneExam(s.snapshot), nil
	}
	return s.fakeExamStore.GetByID(ctx, id)
}

func TestExamDraftEdits_LoseToConcurrentPublish(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q1, q2 := mcq(5, model.ChoiceAnswer(0)), essay(5)
	exam := f.openExam(t, func(e *model.Exam) { e.Status = model.ExamStatusDraft }, q1, q2)

	stale := NewExamService(staleExamStore{f.exams, *cloneExam(*exam)}, f.questions, f.attempts, f.notes, zerolog.Nop())

	_, err := f.examSvc.Publish(ctx, f.instructor, exam.ID, t0)
	require.NoError(t, err)

	_, err = stale.RemoveQuestion(ctx, f.instructor, exam.ID, q1.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	title := "Renamed after publish"
	_, err = stale.Update(ctx, f.instructor, exam.ID, &model.UpdateExamRequest{Title: &title})
	assert.ErrorIs(t, err, ErrInvalidState)

	extra := mcq(5, model.ChoiceAnswer(2))
	extra.CourseID = exam.CourseID
	f.questions.put(extra)
	_, err = stale.AddQuestions(ctx, f.instructor, exam.ID, []uuid.UUID{extra.ID})
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := f.exams.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusPublished, got.Status)
	assert.Equal(t, []uuid.UUID{q1.ID, q2.ID}, got.QuestionIDs)
	assert.Equal(t, exam.Title, got.Title)
}

func TestExamPublish_RejectsChangedQuestionSet(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	q1 := mcq(5, model.ChoiceAnswer(0))
	exam := f.openExam(t, func(e *model.Exam) { e.Status = model.ExamStatusDraft }, q1)

	stale := NewExamService(staleExamStore{f.exams, *cloneExam(*exam)}, f.questions, f.attempts, f.notes, zerolog.Nop())

	emptied := cloneExam(*exam)
	emptied.QuestionIDs = []uuid.UUID{}
	f.exams.set(emptied)

	_, err := stale.Publish(ctx, f.instructor, exam.ID, t0)
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := f.exams.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusDraft, got.Status)
}

func TestExamUpdateVisibility_LosesToConcurrentArchive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	exam := f.openExam(t, nil, mcq(5, model.ChoiceAnswer(0)))

	stale := NewExamService(staleExamStore{f.exams, *cloneExam(*exam)}, f.questions, f.attempts, f.notes, zerolog.Nop())
	_, err := f.examSvc.Archive(ctx, f.instructor, exam.ID)
	require.NoError(t, err)

	show := true
	_, err = stale.UpdateVisibility(ctx, f.instructor, exam.ID, model.Visibility{ShowCorrectAnswers: &show})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = stale.ReleaseResults(ctx, f.instructor, exam.ID, t0)
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := f.exams.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusArchived, got.Status)
	assert.False(t, got.ShowCorrectAnswers)
	assert.Nil(t, got.ResultReleaseDate)
}
