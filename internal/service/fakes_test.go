package service

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/repository"
)

type fakeExamStore struct {
	mu    sync.Mutex
	exams map[uuid.UUID]model.Exam
}

func newFakeExamStore() *fakeExamStore {
	return &fakeExamStore{exams: map[uuid.UUID]model.Exam{}}
}

func cloneExam(e model.Exam) *model.Exam {
	e.QuestionIDs = append([]uuid.UUID(nil), e.QuestionIDs...)
	if e.ResultReleaseDate != nil {
		t := *e.ResultReleaseDate
		e.ResultReleaseDate = &t
	}
	return &e
}

func (s *fakeExamStore) Create(_ context.Context, e *model.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[e.ID]; ok {
		return repository.ErrDuplicate
	}
	s.exams[e.ID] = *cloneExam(*e)
	return nil
}

func (s *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneExam(e), nil
}

func (s *fakeExamStore) UpdateDraft(_ context.Context, e *model.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.exams[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != model.ExamStatusDraft {
		return repository.ErrNoTransition
	}
	next := *cloneExam(*e)
	next.Status = cur.Status
	s.exams[e.ID] = next
	return nil
}

func (s *fakeExamStore) UpdateVisibility(_ context.Context, e *model.Exam, from model.ExamStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.exams[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != from {
		return repository.ErrNoTransition
	}
	v := cloneExam(*e)
	cur.ShowResults = v.ShowResults
	cur.ShowCorrectAnswers = v.ShowCorrectAnswers
	cur.ShowExplanation = v.ShowExplanation
	cur.ResultReleaseDate = v.ResultReleaseDate
	s.exams[e.ID] = cur
	return nil
}

func (s *fakeExamStore) Publish(_ context.Context, id uuid.UUID, questionIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	if e.Status != model.ExamStatusDraft || !slices.Equal(e.QuestionIDs, questionIDs) {
		return repository.ErrNoTransition
	}
	e.Status = model.ExamStatusPublished
	s.exams[id] = e
	return nil
}

func (s *fakeExamStore) ListByQuestion(_ context.Context, qid uuid.UUID) ([]model.Exam, error) {
	return s.list(func(e model.Exam) bool { return e.HasQuestion(qid) }), nil
}

// set replaces the stored exam, bypassing the status guards.
func (s *fakeExamStore) set(e *model.Exam) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[e.ID] = *cloneExam(*e)
}

func (s *fakeExamStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to model.ExamStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	if e.Status != from {
		return repository.ErrNoTransition
	}
	e.Status = to
	s.exams[id] = e
	return nil
}

func (s *fakeExamStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exams[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.exams, id)
	return nil
}

func (s *fakeExamStore) list(keep func(model.Exam) bool) []model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Exam
	for _, e := range s.exams {
		if keep(e) {
			out = append(out, *cloneExam(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func window(all []model.Exam, limit, offset int) []model.Exam {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func (s *fakeExamStore) ListByCourse(_ context.Context, courseID uuid.UUID, limit, offset int) ([]model.Exam, int, error) {
	all := s.list(func(e model.Exam) bool { return e.CourseID == courseID })
	return window(all, limit, offset), len(all), nil
}

func (s *fakeExamStore) ListByInstructor(_ context.Context, instructorID uuid.UUID, limit, offset int) ([]model.Exam, int, error) {
	all := s.list(func(e model.Exam) bool { return e.InstructorID == instructorID })
	return window(all, limit, offset), len(all), nil
}

func (s *fakeExamStore) ListOpen(_ context.Context, now time.Time) ([]model.Exam, error) {
	return s.list(func(e model.Exam) bool { return e.Status.Open() && !now.After(e.EndDate) }), nil
}

type fakeQuestionStore struct {
	mu        sync.Mutex
	questions map[uuid.UUID]model.Question
}

func newFakeQuestionStore() *fakeQuestionStore {
	return &fakeQuestionStore{questions: map[uuid.UUID]model.Question{}}
}

func (s *fakeQuestionStore) put(qs ...*model.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range qs {
		s.questions[q.ID] = *q
	}
}

func (s *fakeQuestionStore) Create(_ context.Context, q *model.Question) error {
	s.put(q)
	return nil
}

func (s *fakeQuestionStore) Update(_ context.Context, q *model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		return repository.ErrNotFound
	}
	s.questions[q.ID] = *q
	return nil
}

func (s *fakeQuestionStore) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &q, nil
}

func (s *fakeQuestionStore) GetMany(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Question
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuestionStore) matching(courseID uuid.UUID, f model.QuestionFilter) []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.Question
	for _, q := range s.questions {
		if q.CourseID != courseID {
			continue
		}
		if (f.Topic != "" && q.Topic != f.Topic) || (f.Difficulty != "" && q.Difficulty != f.Difficulty) {
			continue
		}
		all = append(all, q)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Text < all[j].Text })
	return all
}

var difficultyRank = map[model.Difficulty]int{model.DifficultyEasy: 0, model.DifficultyMedium: 1, model.DifficultyHard: 2}

func (s *fakeQuestionStore) ListBank(_ context.Context, courseID uuid.UUID, f model.QuestionFilter) ([]model.Question, error) {
	all := s.matching(courseID, f)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Topic != all[j].Topic {
			return all[i].Topic < all[j].Topic
		}
		return difficultyRank[all[i].Difficulty] < difficultyRank[all[j].Difficulty]
	})
	return all, nil
}

func (s *fakeQuestionStore) Topics(_ context.Context, courseID uuid.UUID) ([]string, error) {
	seen := map[string]bool{}
	var topics []string
	for _, q := range s.matching(courseID, model.QuestionFilter{}) {
		if !seen[q.Topic] {
			seen[q.Topic] = true
			topics = append(topics, q.Topic)
		}
	}
	sort.Strings(topics)
	return topics, nil
}

func (s *fakeQuestionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.questions, id)
	return nil
}

func (s *fakeQuestionStore) ListByCourse(_ context.Context, courseID uuid.UUID, f model.QuestionFilter, limit, offset int) ([]model.Question, int, error) {
	all := s.matching(courseID, f)
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]model.Attempt
	// failTransition makes Transition fail for the listed attempts.
	failTransition map[uuid.UUID]error
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: map[uuid.UUID]model.Attempt{}}
}

func cloneAttempt(a model.Attempt) *model.Attempt {
	slots := make([]model.AnswerSlot, len(a.Answers))
	for i, s := range a.Answers {
		s.OptionOrder = append([]int(nil), s.OptionOrder...)
		slots[i] = s
	}
	a.Answers = slots
	a.Feedback = append([]model.Feedback{}, a.Feedback...)
	return &a
}

func (s *fakeAttemptStore) Create(_ context.Context, a *model.Attempt, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, all := 0, 0
	for _, cur := range s.attempts {
		if cur.ExamID != a.ExamID || cur.StudentID != a.StudentID {
			continue
		}
		all++
		if cur.Status != model.AttemptStatusAbandoned {
			active++
		}
	}
	if active >= maxAttempts {
		return repository.ErrLimitReached
	}
	a.Ordinal = all + 1
	s.attempts[a.ID] = *cloneAttempt(*a)
	return nil
}

func (s *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (s *fakeAttemptStore) SaveSlot(_ context.Context, attemptID uuid.UUID, slot model.AnswerSlot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if a.Status != model.AttemptStatusInProgress {
		return false, repository.ErrNoTransition
	}
	for i := range a.Answers {
		cur := &a.Answers[i]
		if cur.QuestionID != slot.QuestionID {
			continue
		}
		if slot.Seq > 0 && slot.Seq <= cur.Seq {
			return false, nil
		}
		cur.Answer = slot.Answer
		cur.IsAnswered = slot.IsAnswered
		cur.TimeSpentSeconds = slot.TimeSpentSeconds
		if slot.Seq > cur.Seq {
			cur.Seq = slot.Seq
		}
		s.attempts[attemptID] = a
		return true, nil
	}
	return false, repository.ErrNotFound
}

func (s *fakeAttemptStore) SetReview(_ context.Context, attemptID, questionID uuid.UUID, marked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return repository.ErrNotFound
	}
	if a.Status != model.AttemptStatusInProgress {
		return repository.ErrNoTransition
	}
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			a.Answers[i].MarkedForReview = marked
			s.attempts[attemptID] = a
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *fakeAttemptStore) Transition(_ context.Context, id uuid.UUID, from model.AttemptStatus, fn func(*model.Attempt) error) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTransition[id]; err != nil {
		return nil, err
	}
	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Status != from {
		return nil, repository.ErrNoTransition
	}
	cur := cloneAttempt(a)
	if err := fn(cur); err != nil {
		return nil, err
	}
	s.attempts[id] = *cloneAttempt(*cur)
	return cur, nil
}

func (s *fakeAttemptStore) filter(keep func(model.Attempt) bool) []model.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attempt
	for _, a := range s.attempts {
		if keep(a) {
			out = append(out, *cloneAttempt(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (s *fakeAttemptStore) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Attempt, error) {
	return s.filter(func(a model.Attempt) bool { return a.ExamID == examID }), nil
}

func (s *fakeAttemptStore) ListByStudent(_ context.Context, examID, studentID uuid.UUID) ([]model.Attempt, error) {
	return s.filter(func(a model.Attempt) bool { return a.ExamID == examID && a.StudentID == studentID }), nil
}

func (s *fakeAttemptStore) ListExpired(_ context.Context, now time.Time, after model.ExpiryKey, limit int) ([]model.ExpiryKey, error) {
	var keys []model.ExpiryKey
	for _, a := range s.filter(func(a model.Attempt) bool {
		return a.Status == model.AttemptStatusInProgress && !now.Before(a.ExpiresAt)
	}) {
		keys = append(keys, model.ExpiryKey{ExpiresAt: a.ExpiresAt, ID: a.ID})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[j].After(keys[i]) })

	var out []model.ExpiryKey
	for _, k := range keys {
		if len(out) == limit {
			break
		}
		if k.After(after) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *fakeAttemptStore) CountByExam(_ context.Context, examID uuid.UUID) (int, error) {
	return len(s.filter(func(a model.Attempt) bool { return a.ExamID == examID })), nil
}

func (s *fakeAttemptStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (n *recordingNotifier) Notify(msg model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, m := range n.sent {
		out[i] = m.Event
	}
	return out
}

func (n *recordingNotifier) last() model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

// reverseShuffler makes randomized layouts predictable.
type reverseShuffler struct{}

func (reverseShuffler) Perm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = n - 1 - i
	}
	return out
}

type fakeFlags struct {
	mu    sync.Mutex
	flags []model.SuspiciousFlag
}

func (f *fakeFlags) Enqueue(_ context.Context, flag model.SuspiciousFlag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = append(f.flags, flag)
	return nil
}

func (f *fakeFlags) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.SuspiciousFlag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SuspiciousFlag
	for _, fl := range f.flags {
		if fl.AttemptID == attemptID {
			out = append(out, fl)
		}
	}
	return out, nil
}

type fakeDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func (d *fakeDenylist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.revoked == nil {
		d.revoked = map[string]time.Duration{}
	}
	d.revoked[jti] = ttl
	return nil
}

func (d *fakeDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.revoked[jti]
	return ok, nil
}
