package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assess/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, course_id, instructor_id, title, description, instructions, question_ids,
	total_marks, passing_marks, duration_minutes, start_date, end_date, max_attempts,
	randomize_questions, randomize_options, negative_marking, negative_marking_factor,
	show_results, show_correct_answers, show_explanation, result_release_date,
	lockdown_mode, require_webcam, status, created_at, updated_at`

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.CourseID, &e.InstructorID, &e.Title, &e.Description, &e.Instructions, &e.QuestionIDs,
		&e.TotalMarks, &e.PassingMarks, &e.DurationMinutes, &e.StartDate, &e.EndDate, &e.MaxAttempts,
		&e.RandomizeQuestions, &e.RandomizeOptions, &e.NegativeMarking, &e.NegativeMarkingFactor,
		&e.ShowResults, &e.ShowCorrectAnswers, &e.ShowExplanation, &e.ResultReleaseDate,
		&e.LockdownMode, &e.RequireWebcam, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if e.QuestionIDs == nil {
		e.QuestionIDs = []uuid.UUID{}
	}
	return e, nil
}

func collectExams(rows pgx.Rows) ([]model.Exam, error) {
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exams (id, course_id, instructor_id, title, description, instructions, question_ids,
		        total_marks, passing_marks, duration_minutes, start_date, end_date, max_attempts,
		        randomize_questions, randomize_options, negative_marking, negative_marking_factor,
		        show_results, show_correct_answers, show_explanation, result_release_date,
		        lockdown_mode, require_webcam, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		         $18, $19, $20, $21, $22, $23, $24)
		 RETURNING created_at, updated_at`,
		e.ID, e.CourseID, e.InstructorID, e.Title, e.Description, e.Instructions, e.QuestionIDs,
		e.TotalMarks, e.PassingMarks, e.DurationMinutes, e.StartDate, e.EndDate, e.MaxAttempts,
		e.RandomizeQuestions, e.RandomizeOptions, e.NegativeMarking, e.NegativeMarkingFactor,
		e.ShowResults, e.ShowCorrectAnswers, e.ShowExplanation, e.ResultReleaseDate,
		e.LockdownMode, e.RequireWebcam, e.Status,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	return translate(err)
}

// UpdateDraft overwrites the editable fields of an exam while it is still a
// draft. Status changes go through TransitionStatus and Publish.
func (r *ExamRepository) UpdateDraft(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE exams SET title = $2, description = $3, instructions = $4, question_ids = $5,
		        total_marks = $6, passing_marks = $7, duration_minutes = $8, start_date = $9, end_date = $10,
		        max_attempts = $11, randomize_questions = $12, randomize_options = $13,
		        negative_marking = $14, negative_marking_factor = $15, show_results = $16,
		        show_correct_answers = $17, show_explanation = $18, result_release_date = $19,
		        lockdown_mode = $20, require_webcam = $21, updated_at = NOW()
		 WHERE id = $1 AND status = 'draft'
		 RETURNING updated_at`,
		e.ID, e.Title, e.Description, e.Instructions, e.QuestionIDs,
		e.TotalMarks, e.PassingMarks, e.DurationMinutes, e.StartDate, e.EndDate,
		e.MaxAttempts, e.RandomizeQuestions, e.RandomizeOptions,
		e.NegativeMarking, e.NegativeMarkingFactor, e.ShowResults,
		e.ShowCorrectAnswers, e.ShowExplanation, e.ResultReleaseDate,
		e.LockdownMode, e.RequireWebcam,
	).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missedUpdate(ctx, e.ID)
	}
	return translate(err)
}

// UpdateVisibility writes the result-visibility columns of an exam whose
// stored status still equals from.
func (r *ExamRepository) UpdateVisibility(ctx context.Context, e *model.Exam, from model.ExamStatus) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE exams SET show_results = $3, show_correct_answers = $4, show_explanation = $5,
		        result_release_date = $6, updated_at = NOW()
		 WHERE id = $1 AND status = $2
		 RETURNING updated_at`,
		e.ID, from, e.ShowResults, e.ShowCorrectAnswers, e.ShowExplanation, e.ResultReleaseDate,
	).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missedUpdate(ctx, e.ID)
	}
	return translate(err)
}

// TransitionStatus moves an exam from one status to another in a single
// conditional update.
func (r *ExamRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.ExamStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missedUpdate(ctx, id)
}

// Publish opens a draft whose question set is still exactly questionIDs.
func (r *ExamRepository) Publish(ctx context.Context, id uuid.UUID, questionIDs []uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = 'published', updated_at = NOW()
		 WHERE id = $1 AND status = 'draft' AND question_ids = $2`,
		id, questionIDs)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missedUpdate(ctx, id)
}

// missedUpdate explains a conditional update that matched no row.
func (r *ExamRepository) missedUpdate(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM exams WHERE id = $1)`, id).Scan(&exists); err != nil {
		return translate(err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrNoTransition
}

// ListByQuestion returns the exams that include a question.
func (r *ExamRepository) ListByQuestion(ctx context.Context, qid uuid.UUID) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE $1 = ANY(question_ids) ORDER BY created_at`, qid)
	if err != nil {
		return nil, translate(err)
	}
	return collectExams(rows)
}

// Delete removes an exam. Exams referenced by attempts are protected by the
// foreign key and yield ErrReferenced.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ExamRepository) listPaginated(ctx context.Context, column string, value uuid.UUID, limit, offset int) ([]model.Exam, int, error) {
	// 1. Get total count
	var total int
	if err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM exams WHERE %s = $1`, column), value,
	).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	// 2. Get paginated data
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM exams WHERE %s = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, examColumns, column),
		value, limit, offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	exams, err := collectExams(rows)
	return exams, total, err
}

// ListByCourse retrieves a course's exams with pagination.
func (r *ExamRepository) ListByCourse(ctx context.Context, courseID uuid.UUID, limit, offset int) ([]model.Exam, int, error) {
	return r.listPaginated(ctx, "course_id", courseID, limit, offset)
}

// ListByInstructor retrieves an instructor's exams with pagination.
func (r *ExamRepository) ListByInstructor(ctx context.Context, instructorID uuid.UUID, limit, offset int) ([]model.Exam, int, error) {
	return r.listPaginated(ctx, "instructor_id", instructorID, limit, offset)
}

// ListOpen returns the exams students can start or browse at now.
func (r *ExamRepository) ListOpen(ctx context.Context, now time.Time) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE status IN ('published', 'scheduled', 'ongoing') AND end_date >= $1
		 ORDER BY start_date`, now)
	if err != nil {
		return nil, translate(err)
	}
	return collectExams(rows)
}
