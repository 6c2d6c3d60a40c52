package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assess/internal/model"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AttemptRepository handles attempt data access. Each answer slot is a row
// of attempt_answers keyed by (attempt_id, question_id).
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, exam_id, student_id, ordinal, started_at, expires_at, submitted_at, status,
	auto_graded_score, manual_graded_score, total_score, percentage, is_passed, feedback, graded_by, graded_at`

const slotColumns = `attempt_id, question_id, position, option_order, answer, marked_for_review,
	time_spent_seconds, is_answered, seq`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var feedback []byte
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Ordinal, &a.StartedAt, &a.ExpiresAt, &a.SubmittedAt, &a.Status,
		&a.AutoGradedScore, &a.ManualGradedScore, &a.TotalScore, &a.Percentage, &a.IsPassed, &feedback,
		&a.GradedBy, &a.GradedAt)
	if err != nil {
		return nil, translate(err)
	}
	a.Feedback = []model.Feedback{}
	if len(feedback) > 0 {
		if err := json.Unmarshal(feedback, &a.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback of %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func scanSlot(rows pgx.Rows) (uuid.UUID, model.AnswerSlot, error) {
	var (
		attemptID uuid.UUID
		s         model.AnswerSlot
		answer    []byte
	)
	if err := rows.Scan(&attemptID, &s.QuestionID, &s.Position, &s.OptionOrder, &answer, &s.MarkedForReview,
		&s.TimeSpentSeconds, &s.IsAnswered, &s.Seq); err != nil {
		return uuid.Nil, s, err
	}
	var err error
	if s.Answer, err = decodeAnswer(answer); err != nil {
		return uuid.Nil, s, fmt.Errorf("decode answer of %s/%s: %w", attemptID, s.QuestionID, err)
	}
	return attemptID, s, nil
}

// loadSlots fills the answers of attempts with the slots matched by where.
func loadSlots(ctx context.Context, q querier, attempts []*model.Attempt, where string, args ...any) error {
	if len(attempts) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for _, a := range attempts {
		a.Answers = []model.AnswerSlot{}
		byID[a.ID] = a
	}

	rows, err := q.Query(ctx, `SELECT `+slotColumns+` FROM attempt_answers WHERE `+where+` ORDER BY attempt_id, position`, args...)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		attemptID, slot, err := scanSlot(rows)
		if err != nil {
			return err
		}
		if a, ok := byID[attemptID]; ok {
			a.Answers = append(a.Answers, slot)
		}
	}
	return rows.Err()
}

func (r *AttemptRepository) get(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*model.Attempt, error) {
	sql := `SELECT ` + attemptColumns + ` FROM attempts WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	a, err := scanAttempt(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, err
	}
	if err := loadSlots(ctx, q, []*model.Attempt{a}, `attempt_id = $1`, id); err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a with its slots. A transaction-scoped advisory lock on
// (exam, student) serializes concurrent starts so the limit check and the
// ordinal assignment cannot race.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt, maxAttempts int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		a.ExamID.String()+":"+a.StudentID.String()); err != nil {
		return fmt.Errorf("lock attempts: %w", err)
	}

	var active, all int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE status <> 'abandoned'), COUNT(*)
		 FROM attempts WHERE exam_id = $1 AND student_id = $2`,
		a.ExamID, a.StudentID,
	).Scan(&active, &all); err != nil {
		return translate(err)
	}
	if active >= maxAttempts {
		return ErrLimitReached
	}
	a.Ordinal = all + 1

	feedback, err := json.Marshal(a.Feedback)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO attempts (id, exam_id, student_id, ordinal, started_at, expires_at, status, feedback)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.ExamID, a.StudentID, a.Ordinal, a.StartedAt, a.ExpiresAt, a.Status, feedback,
	); err != nil {
		return translate(err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"attempt_answers"},
		[]string{"attempt_id", "question_id", "position", "option_order"},
		pgx.CopyFromSlice(len(a.Answers), func(i int) ([]any, error) {
			s := a.Answers[i]
			return []any{a.ID, s.QuestionID, s.Position, s.OptionOrder}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert slots: %w", translate(err))
	}

	return tx.Commit(ctx)
}

// GetByID retrieves an attempt with its slots in position order.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return r.get(ctx, r.pool, id, false)
}

// SaveSlot writes one slot if the attempt is still in progress. The status
// check takes a share lock on the attempt row, so a write racing a submit
// either lands before it or sees the new status.
func (r *AttemptRepository) SaveSlot(ctx context.Context, attemptID uuid.UUID, slot model.AnswerSlot) (bool, error) {
	answer, err := encodeAnswer(slot.Answer)
	if err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE attempt_answers AS aa
		 SET answer = $3, is_answered = $4, time_spent_seconds = $5,
		     seq = GREATEST(aa.seq, $6), updated_at = NOW()
		 WHERE aa.attempt_id = $1 AND aa.question_id = $2
		   AND ($6 = 0 OR aa.seq < $6)
		   AND EXISTS (SELECT 1 FROM attempts WHERE id = $1 AND status = 'in-progress' FOR SHARE)`,
		attemptID, slot.QuestionID, answer, slot.IsAnswered, slot.TimeSpentSeconds, slot.Seq)
	if err != nil {
		return false, translate(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.explainMiss(ctx, attemptID, slot.QuestionID); err != nil {
		return false, err
	}
	return false, nil
}

// SetReview toggles the review flag of one slot while the attempt is in progress.
func (r *AttemptRepository) SetReview(ctx context.Context, attemptID, questionID uuid.UUID, marked bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempt_answers SET marked_for_review = $3, updated_at = NOW()
		 WHERE attempt_id = $1 AND question_id = $2
		   AND EXISTS (SELECT 1 FROM attempts WHERE id = $1 AND status = 'in-progress' FOR SHARE)`,
		attemptID, questionID, marked)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainMiss(ctx, attemptID, questionID)
}

// explainMiss reports why a slot update touched no row. It returns nil when
// the slot exists on an in-progress attempt, i.e. the write was stale.
func (r *AttemptRepository) explainMiss(ctx context.Context, attemptID, questionID uuid.UUID) error {
	var (
		status  model.AttemptStatus
		hasSlot bool
	)
	err := r.pool.QueryRow(ctx,
		`SELECT a.status, EXISTS (SELECT 1 FROM attempt_answers WHERE attempt_id = a.id AND question_id = $2)
		 FROM attempts a WHERE a.id = $1`,
		attemptID, questionID,
	).Scan(&status, &hasSlot)
	switch {
	case err != nil:
		return translate(err)
	case status != model.AttemptStatusInProgress:
		return ErrNoTransition
	case !hasSlot:
		return ErrNotFound
	}
	return nil
}

// Transition locks the attempt row, checks its status and persists what fn
// changed. fn sees the attempt with its slots as of the lock.
func (r *AttemptRepository) Transition(ctx context.Context, id uuid.UUID, from model.AttemptStatus, fn func(*model.Attempt) error) (*model.Attempt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := r.get(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if a.Status != from {
		return nil, ErrNoTransition
	}
	if err := fn(a); err != nil {
		return nil, err
	}

	feedback, err := json.Marshal(a.Feedback)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE attempts SET status = $2, submitted_at = $3, auto_graded_score = $4, manual_graded_score = $5,
		        total_score = $6, percentage = $7, is_passed = $8, feedback = $9, graded_by = $10, graded_at = $11
		 WHERE id = $1`,
		a.ID, a.Status, a.SubmittedAt, a.AutoGradedScore, a.ManualGradedScore,
		a.TotalScore, a.Percentage, a.IsPassed, feedback, a.GradedBy, a.GradedAt,
	); err != nil {
		return nil, translate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return a, nil
}

func (r *AttemptRepository) list(ctx context.Context, where string, args ...any) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE `+where+` ORDER BY started_at`, args...)
	if err != nil {
		return nil, translate(err)
	}

	var ptrs []*model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ptrs = append(ptrs, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	ids := make([]uuid.UUID, len(ptrs))
	for i, a := range ptrs {
		ids[i] = a.ID
	}
	if err := loadSlots(ctx, r.pool, ptrs, `attempt_id = ANY($1)`, ids); err != nil {
		return nil, err
	}

	out := make([]model.Attempt, len(ptrs))
	for i, a := range ptrs {
		out[i] = *a
	}
	return out, nil
}

// ListByExam returns every attempt of an exam with its slots.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Attempt, error) {
	return r.list(ctx, `exam_id = $1`, examID)
}

// ListByStudent returns one student's attempts of an exam.
func (r *AttemptRepository) ListByStudent(ctx context.Context, examID, studentID uuid.UUID) ([]model.Attempt, error) {
	return r.list(ctx, `exam_id = $1 AND student_id = $2`, examID, studentID)
}

// ListExpired pages through in-progress attempts whose time ran out at now,
// oldest first, starting after the given key.
func (r *AttemptRepository) ListExpired(ctx context.Context, now time.Time, after model.ExpiryKey, limit int) ([]model.ExpiryKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT expires_at, id FROM attempts
		 WHERE status = 'in-progress' AND expires_at <= $1
		   AND (expires_at, id) > ($2, $3)
		 ORDER BY expires_at, id LIMIT $4`, now, after.ExpiresAt, after.ID, limit)
	if err != nil {
		return nil, translate(err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.ExpiryKey])
	if err != nil {
		return nil, translate(err)
	}
	return keys, nil
}

// CountByExam counts all attempts of an exam, abandoned ones included.
func (r *AttemptRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID).Scan(&n)
	return n, translate(err)
}
