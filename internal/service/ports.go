package service

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assess/internal/model"
)

// ExamStore persists exam definitions.
type ExamStore interface {
	Create(ctx context.Context, e *model.Exam) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	// UpdateDraft overwrites the editable fields and question set of e only
	// while the stored exam is still a draft, failing with
	// repository.ErrNoTransition otherwise.
	UpdateDraft(ctx context.Context, e *model.Exam) error
	// UpdateVisibility writes only the result-visibility fields of e, and
	// only while the stored status still equals from.
	UpdateVisibility(ctx context.Context, e *model.Exam, from model.ExamStatus) error
	// TransitionStatus moves the exam from one status to another atomically,
	// failing with repository.ErrNoTransition when the stored status differs.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.ExamStatus) error
	// Publish moves a draft to published only if its stored question set
	// still equals questionIDs.
	Publish(ctx context.Context, id uuid.UUID, questionIDs []uuid.UUID) error
	// ListByQuestion returns every exam whose question set contains qid.
	ListByQuestion(ctx context.Context, qid uuid.UUID) ([]model.Exam, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCourse(ctx context.Context, courseID uuid.UUID, limit, offset int) ([]model.Exam, int, error)
	ListByInstructor(ctx context.Context, instructorID uuid.UUID, limit, offset int) ([]model.Exam, int, error)
	ListOpen(ctx context.Context, now time.Time) ([]model.Exam, error)
}

// QuestionStore is the question bank.
type QuestionStore interface {
	Create(ctx context.Context, q *model.Question) error
	Update(ctx context.Context, q *model.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	// GetMany returns the questions found among ids, in no particular order.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
	ListByCourse(ctx context.Context, courseID uuid.UUID, filter model.QuestionFilter, limit, offset int) ([]model.Question, int, error)
	// ListBank returns every question of a course matching filter, ordered by
	// topic, then difficulty from easy to hard.
	ListBank(ctx context.Context, courseID uuid.UUID, filter model.QuestionFilter) ([]model.Question, error)
	Topics(ctx context.Context, courseID uuid.UUID) ([]string, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AttemptStore persists attempts. Every mutation is atomic against
// concurrent callers.
type AttemptStore interface {
	// Create assigns the next ordinal and inserts a, unless the student
	// already holds maxAttempts non-abandoned attempts on the exam, in which
	// case it returns repository.ErrLimitReached.
	Create(ctx context.Context, a *model.Attempt, maxAttempts int) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	// SaveSlot writes answer, time spent and seq of one slot while the
	// attempt is in progress. A sequenced write not newer than the stored
	// seq is skipped and reported as not applied.
	SaveSlot(ctx context.Context, attemptID uuid.UUID, slot model.AnswerSlot) (applied bool, err error)
	SetReview(ctx context.Context, attemptID, questionID uuid.UUID, marked bool) error
	// Transition locks the attempt, checks its status equals from, applies
	// fn and stores the scoring and status fields fn changed. An error from
	// fn aborts the transition and leaves the stored attempt untouched.
	Transition(ctx context.Context, id uuid.UUID, from model.AttemptStatus, fn func(*model.Attempt) error) (*model.Attempt, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Attempt, error)
	ListByStudent(ctx context.Context, examID, studentID uuid.UUID) ([]model.Attempt, error)
	// ListExpired returns up to limit in-progress attempts overdue at now
	// that sort after the given key, ordered by (expires_at, id).
	ListExpired(ctx context.Context, now time.Time, after model.ExpiryKey, limit int) ([]model.ExpiryKey, error)
	CountByExam(ctx context.Context, examID uuid.UUID) (int, error)
}

// FlagQueue accepts proctoring flags for asynchronous persistence.
type FlagQueue interface {
	Enqueue(ctx context.Context, f model.SuspiciousFlag) error
}

// FlagStore reads persisted proctoring flags.
type FlagStore interface {
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SuspiciousFlag, error)
}

// Notifier delivers notifications best-effort. Notify never blocks the
// caller on delivery and never fails.
type Notifier interface {
	Notify(n model.Notification)
}

// Clock supplies the current time at the call boundary.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Shuffler produces permutations for randomized papers.
type Shuffler interface {
	Perm(n int) []int
}

// RandomShuffler draws from the process-wide generator.
type RandomShuffler struct{}

// Perm returns a random permutation of [0, n).
func (RandomShuffler) Perm(n int) []int { return rand.Perm(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(model.Notification) {}
