package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/scoring"
)

// AttemptService runs the attempt state machine:
// in-progress → submitted → graded, or in-progress → abandoned.
// Every method takes the current time from the caller.
type AttemptService struct {
	exams     ExamStore
	questions QuestionStore
	attempts  AttemptStore
	shuffler  Shuffler
	notifier  Notifier
	log       zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	exams ExamStore,
	questions QuestionStore,
	attempts AttemptStore,
	shuffler Shuffler,
	notifier Notifier,
	log zerolog.Logger,
) *AttemptService {
	if shuffler == nil {
		shuffler = RandomShuffler{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &AttemptService{
		exams:     exams,
		questions: questions,
		attempts:  attempts,
		shuffler:  shuffler,
		notifier:  notifier,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start opens a new attempt for the calling student and returns it with the
// sanitized paper.
func (s *AttemptService) Start(ctx context.Context, actor model.Actor, examID uuid.UUID, now time.Time) (*model.Attempt, *model.ExamView, error) {
	if actor.Role != model.RoleStudent {
		return nil, nil, fmt.Errorf("%w: only students take exams", ErrAuthorization)
	}

	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, nil, storeErr("exam", err)
	}
	if !exam.Status.Open() {
		return nil, nil, fmt.Errorf("%w: exam is %s", ErrInvalidState, exam.Status)
	}
	if now.Before(exam.StartDate) {
		return nil, nil, fmt.Errorf("%w: opens at %s", ErrNotStarted, exam.StartDate.Format(time.RFC3339))
	}
	if now.After(exam.EndDate) {
		return nil, nil, fmt.Errorf("%w: closed at %s", ErrExamEnded, exam.EndDate.Format(time.RFC3339))
	}

	qs, err := questionMap(ctx, s.questions, exam.QuestionIDs)
	if err != nil {
		return nil, nil, err
	}

	attempt := &model.Attempt{
		ID:        uuid.New(),
		ExamID:    exam.ID,
		StudentID: actor.UserID,
		StartedAt: now,
		ExpiresAt: now.Add(time.Duration(exam.DurationMinutes) * time.Minute),
		Status:    model.AttemptStatusInProgress,
		Answers:   s.layout(exam, qs),
		Feedback:  []model.Feedback{},
	}

	if err := s.attempts.Create(ctx, attempt, exam.MaxAttempts); err != nil {
		return nil, nil, storeErr("start attempt", err)
	}

	s.notifier.Notify(model.NewNotification(model.EventAttemptStarted, exam.ID, map[string]any{
		"student_id": attempt.StudentID,
		"ordinal":    attempt.Ordinal,
		"expires_at": attempt.ExpiresAt,
	}, now).ForAttempt(attempt.ID).To(exam.InstructorID))

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("attempt_id", attempt.ID.String()).
		Int("ordinal", attempt.Ordinal).
		Msg("Attempt started")
	return attempt, buildView(exam, attempt, qs), nil
}

// layout fixes the question order and mcq option order of a new attempt.
func (s *AttemptService) layout(exam *model.Exam, qs map[uuid.UUID]*model.Question) []model.AnswerSlot {
	n := len(exam.QuestionIDs)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if exam.RandomizeQuestions {
		order = s.shuffler.Perm(n)
	}

	slots := make([]model.AnswerSlot, n)
	for pos, idx := range order {
		qid := exam.QuestionIDs[idx]
		slots[pos] = model.AnswerSlot{QuestionID: qid, Position: pos}
		if q := qs[qid]; exam.RandomizeOptions && q.Type == model.QuestionTypeMCQ {
			slots[pos].OptionOrder = s.shuffler.Perm(len(q.Options))
		}
	}
	return slots
}

// buildView renders an attempt's paper without answer keys or explanations.
func buildView(exam *model.Exam, a *model.Attempt, qs map[uuid.UUID]*model.Question) *model.ExamView {
	view := &model.ExamView{
		ExamID:          exam.ID,
		AttemptID:       a.ID,
		Title:           exam.Title,
		Description:     exam.Description,
		Instructions:    exam.Instructions,
		DurationMinutes: exam.DurationMinutes,
		TotalMarks:      exam.TotalMarks,
		ExpiresAt:       a.ExpiresAt,
		LockdownMode:    exam.LockdownMode,
		RequireWebcam:   exam.RequireWebcam,
		Questions:       make([]model.QuestionView, 0, len(a.Answers)),
	}

	for _, slot := range a.Answers {
		q, ok := qs[slot.QuestionID]
		if !ok {
			continue
		}
		qv := model.QuestionView{
			ID:       q.ID,
			Position: slot.Position,
			Text:     q.Text,
			Type:     q.Type,
			Marks:    q.Marks,
			ImageURL: q.ImageURL,
		}
		if len(q.Options) > 0 {
			order := slot.OptionOrder
			if len(order) != len(q.Options) {
				order = make([]int, len(q.Options))
				for i := range order {
					order[i] = i
				}
			}
			qv.Options = make([]model.OptionView, len(order))
			for i, idx := range order {
				qv.Options[i] = model.OptionView{Index: idx, Text: q.Options[idx].Text}
			}
		}
		view.Questions = append(view.Questions, qv)
	}
	return view
}

// activeSlot loads an attempt and the slot for questionID, applying the
// guards shared by answer writes.
func (s *AttemptService) activeSlot(ctx context.Context, actor model.Actor, attemptID, questionID uuid.UUID, now time.Time) (*model.Attempt, *model.AnswerSlot, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, nil, storeErr("attempt", err)
	}
	slot := a.Slot(questionID)
	if slot == nil {
		return nil, nil, fmt.Errorf("%w: question %s is not part of the attempt", ErrNotFound, questionID)
	}
	if a.StudentID != actor.UserID {
		return nil, nil, fmt.Errorf("%w: not the attempt's owner", ErrAuthorization)
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}
	if a.Expired(now) {
		return nil, nil, fmt.Errorf("%w: time is up", ErrInvalidState)
	}
	return a, slot, nil
}

// SaveAnswer stores the answer for one question. A sequenced write older
// than the stored one is ignored and reported as not applied.
func (s *AttemptService) SaveAnswer(ctx context.Context, actor model.Actor, attemptID uuid.UUID, req *model.SaveAnswerRequest, now time.Time) (*model.AnswerSlot, bool, error) {
	if req.TimeSpentSeconds < 0 || req.Seq < 0 {
		return nil, false, validationf("time spent and seq must not be negative")
	}

	a, slot, err := s.activeSlot(ctx, actor, attemptID, req.QuestionID, now)
	if err != nil {
		return nil, false, err
	}

	q, err := s.questions.GetByID(ctx, slot.QuestionID)
	if err != nil {
		return nil, false, storeErr("question", err)
	}
	answer := req.Answer.Normalize(q.Type)
	if answer != nil {
		if !q.Type.Accepts(answer.Kind) {
			return nil, false, validationf("a %s answer does not fit a %s question", answer.Kind, q.Type)
		}
		if q.Type == model.QuestionTypeMCQ {
			if err := checkOptionIndices(answer, len(q.Options)); err != nil {
				return nil, false, err
			}
		}
	}

	next := *slot
	next.Answer = answer
	next.IsAnswered = answer != nil
	next.TimeSpentSeconds = req.TimeSpentSeconds
	next.Seq = req.Seq

	applied, err := s.attempts.SaveSlot(ctx, a.ID, next)
	if err != nil {
		return nil, false, storeErr("save answer", err)
	}
	if !applied {
		s.log.Debug().
			Str("attempt_id", a.ID.String()).
			Str("question_id", q.ID.String()).
			Int64("seq", req.Seq).
			Msg("Stale answer write ignored")
		return slot, false, nil
	}
	return &next, true, nil
}

// MarkForReview toggles the review flag of one question.
func (s *AttemptService) MarkForReview(ctx context.Context, actor model.Actor, attemptID uuid.UUID, req *model.MarkForReviewRequest, now time.Time) error {
	a, _, err := s.activeSlot(ctx, actor, attemptID, req.QuestionID, now)
	if err != nil {
		return err
	}
	if err := s.attempts.SetReview(ctx, a.ID, req.QuestionID, req.MarkedForReview); err != nil {
		return storeErr("mark for review", err)
	}
	return nil
}

// Submit closes an in-progress attempt and auto-grades it. The owner or the
// system actor may submit. An attempt with no manually graded questions is
// graded straight away.
func (s *AttemptService) Submit(ctx context.Context, actor model.Actor, attemptID uuid.UUID, now time.Time) (*model.Attempt, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, storeErr("attempt", err)
	}
	if actor.Role != model.RoleSystem && a.StudentID != actor.UserID {
		return nil, fmt.Errorf("%w: not the attempt's owner", ErrAuthorization)
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}

	exam, err := s.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, storeErr("exam", err)
	}
	qs, err := questionMap(ctx, s.questions, slotQuestionIDs(a))
	if err != nil {
		return nil, err
	}
	manual := needsManualGrading(qs)

	updated, err := s.attempts.Transition(ctx, attemptID, model.AttemptStatusInProgress, func(cur *model.Attempt) error {
		at := now
		if at.After(cur.ExpiresAt) {
			at = cur.ExpiresAt
		}
		cur.SubmittedAt = &at

		res := scoring.AutoGrade(scoring.PolicyFor(exam), cur.Answers, qs)
		cur.AutoGradedScore = res.Score
		cur.ManualGradedScore = 0
		cur.TotalScore = scoring.Total(res.Score, 0)
		cur.Status = model.AttemptStatusSubmitted

		if !manual {
			cur.Percentage, cur.IsPassed = scoring.Derive(cur.TotalScore, exam.TotalMarks, exam.PassingMarks)
			cur.GradedAt = &at
			cur.Status = model.AttemptStatusGraded
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("submit attempt", err)
	}

	if updated.Status == model.AttemptStatusGraded {
		s.notifyGraded(exam, updated, now)
	} else {
		s.notifier.Notify(model.NewNotification(model.EventAttemptSubmitted, exam.ID, map[string]any{
			"student_id":        updated.StudentID,
			"auto_graded_score": updated.AutoGradedScore,
		}, now).ForAttempt(updated.ID).To(exam.InstructorID))
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("status", string(updated.Status)).
		Float64("auto_score", updated.AutoGradedScore).
		Bool("system", actor.Role == model.RoleSystem).
		Msg("Attempt submitted")
	return updated, nil
}

func (s *AttemptService) notifyGraded(exam *model.Exam, a *model.Attempt, now time.Time) {
	s.notifier.Notify(model.NewNotification(model.EventAttemptGraded, exam.ID, map[string]any{
		"title":           exam.Title,
		"results_visible": exam.ResultsReleased(now),
	}, now).ForAttempt(a.ID).To(a.StudentID))
}

func slotQuestionIDs(a *model.Attempt) []uuid.UUID {
	ids := make([]uuid.UUID, len(a.Answers))
	for i, slot := range a.Answers {
		ids[i] = slot.QuestionID
	}
	return ids
}

func needsManualGrading(qs map[uuid.UUID]*model.Question) bool {
	for _, q := range qs {
		if !q.Type.AutoGradable() {
			return true
		}
	}
	return false
}

// gradingContext loads an attempt with its exam and checks actor may grade it.
func (s *AttemptService) gradingContext(ctx context.Context, actor model.Actor, attemptID uuid.UUID) (*model.Attempt, *model.Exam, error) {
	a, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, nil, storeErr("attempt", err)
	}
	exam, err := s.exams.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, nil, storeErr("exam", err)
	}
	return a, exam, nil
}

// RecordManualGrade upserts the grader's mark for one manually graded question.
func (s *AttemptService) RecordManualGrade(ctx context.Context, actor model.Actor, attemptID uuid.UUID, req *model.ManualGradeRequest) (*model.Attempt, error) {
	a, exam, err := s.gradingContext(ctx, actor, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusSubmitted {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}
	if !canManage(actor, exam) {
		return nil, fmt.Errorf("%w: not the exam's instructor", ErrAuthorization)
	}
	if a.Slot(req.QuestionID) == nil {
		return nil, fmt.Errorf("%w: question %s is not part of the attempt", ErrNotFound, req.QuestionID)
	}
	if req.Marks == nil {
		return nil, validationf("marks are required")
	}

	q, err := s.questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		return nil, storeErr("question", err)
	}
	marks := *req.Marks
	if q.Type.AutoGradable() {
		return nil, validationf("%s questions are graded automatically", q.Type)
	}
	if marks < 0 || marks > q.Marks {
		return nil, validationf("marks must be between 0 and %g", q.Marks)
	}

	fb := model.Feedback{QuestionID: req.QuestionID, Marks: marks, Comment: req.Comment}
	updated, err := s.attempts.Transition(ctx, attemptID, model.AttemptStatusSubmitted, func(cur *model.Attempt) error {
		cur.Feedback = upsertFeedback(cur.Feedback, fb)
		cur.ManualGradedScore = scoring.ManualSum(cur.Feedback)
		cur.TotalScore = scoring.Total(cur.AutoGradedScore, cur.ManualGradedScore)
		return nil
	})
	if err != nil {
		return nil, storeErr("record grade", err)
	}
	return updated, nil
}

func upsertFeedback(list []model.Feedback, fb model.Feedback) []model.Feedback {
	for i := range list {
		if list[i].QuestionID == fb.QuestionID {
			list[i] = fb
			return list
		}
	}
	return append(list, fb)
}

// FinalizeGrading closes grading of a submitted attempt and derives the
// final score.
func (s *AttemptService) FinalizeGrading(ctx context.Context, actor model.Actor, attemptID uuid.UUID, now time.Time) (*model.Attempt, error) {
	a, exam, err := s.gradingContext(ctx, actor, attemptID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, exam) {
		return nil, fmt.Errorf("%w: not the exam's instructor", ErrAuthorization)
	}
	if a.Status != model.AttemptStatusSubmitted {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}

	grader := actor.UserID
	updated, err := s.attempts.Transition(ctx, attemptID, model.AttemptStatusSubmitted, func(cur *model.Attempt) error {
		cur.ManualGradedScore = scoring.ManualSum(cur.Feedback)
		cur.TotalScore = scoring.Total(cur.AutoGradedScore, cur.ManualGradedScore)
		cur.Percentage, cur.IsPassed = scoring.Derive(cur.TotalScore, exam.TotalMarks, exam.PassingMarks)
		cur.GradedBy = &grader
		cur.GradedAt = &now
		cur.Status = model.AttemptStatusGraded
		return nil
	})
	if err != nil {
		return nil, storeErr("finalize grading", err)
	}

	s.notifyGraded(exam, updated, now)
	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Float64("total", updated.TotalScore).
		Bool("passed", updated.IsPassed).
		Msg("Grading finalized")
	return updated, nil
}

// Abandon voids an in-progress attempt. Abandoned attempts do not count
// toward the attempt limit.
func (s *AttemptService) Abandon(ctx context.Context, actor model.Actor, attemptID uuid.UUID, now time.Time) (*model.Attempt, error) {
	a, exam, err := s.gradingContext(ctx, actor, attemptID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, exam) {
		return nil, fmt.Errorf("%w: not the exam's instructor", ErrAuthorization)
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}

	updated, err := s.attempts.Transition(ctx, attemptID, model.AttemptStatusInProgress, func(cur *model.Attempt) error {
		cur.Status = model.AttemptStatusAbandoned
		return nil
	})
	if err != nil {
		return nil, storeErr("abandon attempt", err)
	}

	s.notifier.Notify(model.NewNotification(model.EventAttemptAbandoned, exam.ID, map[string]any{
		"student_id": updated.StudentID,
	}, now).ForAttempt(updated.ID).To(updated.StudentID))
	return updated, nil
}

// GetPaper returns the sanitized paper of an in-progress attempt in its
// persisted order.
func (s *AttemptService) GetPaper(ctx context.Context, actor model.Actor, attemptID uuid.UUID) (*model.Attempt, *model.ExamView, error) {
	a, exam, err := s.gradingContext(ctx, actor, attemptID)
	if err != nil {
		return nil, nil, err
	}
	if a.StudentID != actor.UserID && !canManage(actor, exam) {
		return nil, nil, fmt.Errorf("%w: not the attempt's owner", ErrAuthorization)
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, nil, fmt.Errorf("%w: attempt is %s", ErrInvalidState, a.Status)
	}

	qs, err := questionMap(ctx, s.questions, slotQuestionIDs(a))
	if err != nil {
		return nil, nil, err
	}
	return a, buildView(exam, a, qs), nil
}

// GetResult renders a closed attempt. The owner sees it filtered by the
// exam's visibility settings, staff see everything.
func (s *AttemptService) GetResult(ctx context.Context, actor model.Actor, attemptID uuid.UUID, now time.Time) (*model.AttemptResult, error) {
	a, exam, err := s.gradingContext(ctx, actor, attemptID)
	if err != nil {
		return nil, err
	}
	staff := canManage(actor, exam)
	if !staff && a.StudentID != actor.UserID {
		return nil, fmt.Errorf("%w: not the attempt's owner", ErrAuthorization)
	}
	if a.Status == model.AttemptStatusInProgress {
		return nil, fmt.Errorf("%w: attempt has not been submitted", ErrInvalidState)
	}

	qs, err := questionMap(ctx, s.questions, slotQuestionIDs(a))
	if err != nil {
		return nil, err
	}

	released := staff || exam.ResultsReleased(now)
	showKey := staff || (released && exam.ShowCorrectAnswers)
	showExplanation := staff || (released && exam.ShowExplanation)

	res := &model.AttemptResult{
		AttemptID:       a.ID,
		ExamID:          a.ExamID,
		StudentID:       a.StudentID,
		Status:          a.Status,
		StartedAt:       a.StartedAt,
		SubmittedAt:     a.SubmittedAt,
		ResultsReleased: released,
		MaxScore:        exam.TotalMarks,
		PassingMarks:    exam.PassingMarks,
		TotalQuestions:  len(a.Answers),
		Answers:         make([]model.AnswerResult, 0, len(a.Answers)),
	}

	outcomes := scoring.AutoGrade(scoring.PolicyFor(exam), a.Answers, qs).Outcomes
	correct := 0
	for i, slot := range a.Answers {
		q := qs[slot.QuestionID]
		ar := model.AnswerResult{
			QuestionID:      q.ID,
			Text:            q.Text,
			Type:            q.Type,
			Marks:           q.Marks,
			StudentAnswer:   slot.Answer,
			TimeSpent:       slot.TimeSpentSeconds,
			MarkedForReview: slot.MarkedForReview,
		}
		if released && outcomes[i].Graded {
			ok := outcomes[i].Correct
			ar.IsCorrect = &ok
			if ok {
				correct++
			}
		}
		if showKey {
			ar.CorrectAnswer = scoring.AnswerKey(q)
		}
		if showExplanation {
			ar.Explanation = q.Explanation
		}
		res.Answers = append(res.Answers, ar)
	}

	if released {
		auto, manual, total := a.AutoGradedScore, a.ManualGradedScore, a.TotalScore
		res.AutoGraded, res.ManualGraded, res.TotalScore = &auto, &manual, &total
		res.CorrectCount = &correct
		res.Feedback = a.Feedback
		res.GradedBy, res.GradedAt = a.GradedBy, a.GradedAt
		if a.Status == model.AttemptStatusGraded {
			pct, passed := a.Percentage, a.IsPassed
			res.Percentage, res.IsPassed = &pct, &passed
		}
	}
	return res, nil
}

// ListAttempts lists an exam's attempts. Staff see all of them, students
// only their own, with scores hidden until results are released.
func (s *AttemptService) ListAttempts(ctx context.Context, actor model.Actor, examID uuid.UUID, now time.Time) ([]model.AttemptSummary, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, storeErr("exam", err)
	}

	var attempts []model.Attempt
	switch {
	case canManage(actor, exam):
		attempts, err = s.attempts.ListByExam(ctx, examID)
	case actor.Role == model.RoleStudent:
		attempts, err = s.attempts.ListByStudent(ctx, examID, actor.UserID)
	default:
		return nil, fmt.Errorf("%w: not the exam's instructor", ErrAuthorization)
	}
	if err != nil {
		return nil, storeErr("list attempts", err)
	}

	hide := !canManage(actor, exam) && !exam.ResultsReleased(now)
	out := make([]model.AttemptSummary, 0, len(attempts))
	for i := range attempts {
		sum := attempts[i].Summary()
		if hide {
			sum.TotalScore, sum.Percentage, sum.IsPassed = 0, 0, false
		}
		out = append(out, sum)
	}
	return out, nil
}

// ListPendingGradings lists submitted attempts that carry answered manually
// graded questions.
func (s *AttemptService) ListPendingGradings(ctx context.Context, actor model.Actor, examID uuid.UUID) ([]model.PendingGrading, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, storeErr("exam", err)
	}
	if !canManage(actor, exam) {
		return nil, fmt.Errorf("%w: not the exam's instructor", ErrAuthorization)
	}

	attempts, err := s.attempts.ListByExam(ctx, examID)
	if err != nil {
		return nil, storeErr("list attempts", err)
	}
	qs, err := questionMap(ctx, s.questions, exam.QuestionIDs)
	if err != nil {
		return nil, err
	}

	out := []model.PendingGrading{}
	for i := range attempts {
		a := &attempts[i]
		if a.Status != model.AttemptStatusSubmitted {
			continue
		}

		graded := make(map[uuid.UUID]bool, len(a.Feedback))
		for _, fb := range a.Feedback {
			graded[fb.QuestionID] = true
		}

		var pending []model.PendingAnswer
		for _, slot := range a.Answers {
			q, ok := qs[slot.QuestionID]
			if !ok || q.Type.AutoGradable() || !slot.IsAnswered {
				continue
			}
			pending = append(pending, model.PendingAnswer{
				QuestionID:    q.ID,
				Text:          q.Text,
				Type:          q.Type,
				Marks:         q.Marks,
				StudentAnswer: slot.Answer,
				Graded:        graded[q.ID],
			})
		}
		if len(pending) > 0 {
			out = append(out, model.PendingGrading{
				AttemptID:   a.ID,
				StudentID:   a.StudentID,
				SubmittedAt: a.SubmittedAt,
				Answers:     pending,
			})
		}
	}
	return out, nil
}

// ExpiryBatch reports one page of the auto-submit sweep.
type ExpiryBatch struct {
	Submitted int
	Scanned   int
	// Next resumes the sweep after the last attempt scanned, so attempts
	// that failed to submit do not hold back the ones behind them.
	Next model.ExpiryKey
}

// SubmitExpired auto-submits up to limit in-progress attempts whose time ran
// out before now, starting after the given key. Attempts submitted
// concurrently are skipped.
func (s *AttemptService) SubmitExpired(ctx context.Context, now time.Time, after model.ExpiryKey, limit int) (ExpiryBatch, error) {
	keys, err := s.attempts.ListExpired(ctx, now, after, limit)
	if err != nil {
		return ExpiryBatch{Next: after}, storeErr("list expired attempts", err)
	}

	batch := ExpiryBatch{Scanned: len(keys), Next: after}
	for _, k := range keys {
		batch.Next = k
		if _, err := s.Submit(ctx, model.SystemActor, k.ID, now); err != nil {
			if errors.Is(err, ErrInvalidState) {
				continue
			}
			s.log.Error().Err(err).Str("attempt_id", k.ID.String()).Msg("Auto-submit failed")
			continue
		}
		batch.Submitted++
	}
	return batch, nil
}
