package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assess/internal/model"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, course_id, created_by, question_text, type, topic, difficulty, marks,
	options, correct_answer, explanation, image_url, created_at, updated_at`

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	var options, key []byte
	err := row.Scan(&q.ID, &q.CourseID, &q.CreatedBy, &q.Text, &q.Type, &q.Topic, &q.Difficulty, &q.Marks,
		&options, &key, &q.Explanation, &q.ImageURL, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", q.ID, err)
		}
	}
	if q.CorrectAnswer, err = decodeAnswer(key); err != nil {
		return nil, fmt.Errorf("decode answer key of %s: %w", q.ID, err)
	}
	return q, nil
}

// encodeQuestion serializes the JSONB columns of q.
func encodeQuestion(q *model.Question) (options, key []byte, err error) {
	opts := q.Options
	if opts == nil {
		opts = []model.Option{}
	}
	if options, err = json.Marshal(opts); err != nil {
		return nil, nil, err
	}
	if key, err = encodeAnswer(q.CorrectAnswer); err != nil {
		return nil, nil, err
	}
	return options, key, nil
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	options, key, err := encodeQuestion(q)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO questions (id, course_id, created_by, question_text, type, topic, difficulty, marks,
		        options, correct_answer, explanation, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		q.ID, q.CourseID, q.CreatedBy, q.Text, q.Type, q.Topic, q.Difficulty, q.Marks,
		options, key, q.Explanation, q.ImageURL,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	return translate(err)
}

// Update overwrites a question's content.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	options, key, err := encodeQuestion(q)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`UPDATE questions SET question_text = $2, topic = $3, difficulty = $4, marks = $5,
		        options = $6, correct_answer = $7, explanation = $8, image_url = $9, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		q.ID, q.Text, q.Topic, q.Difficulty, q.Marks, options, key, q.Explanation, q.ImageURL,
	).Scan(&q.UpdatedAt)
	return translate(err)
}

// GetByID retrieves a question by its UUID.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	return scanQuestion(r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
}

// GetMany retrieves the questions among ids that exist.
func (r *QuestionRepository) GetMany(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, translate(err)
	}
	return collectQuestions(rows)
}

// filterClause matches a course's questions, with empty filter fields
// matching everything. It takes $1 to $3.
const filterClause = `course_id = $1 AND ($2 = '' OR topic = $2) AND ($3 = '' OR difficulty = $3)`

// ListByCourse retrieves a course's questions with pagination.
func (r *QuestionRepository) ListByCourse(ctx context.Context, courseID uuid.UUID, filter model.QuestionFilter, limit, offset int) ([]model.Question, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE `+filterClause, courseID, filter.Topic, string(filter.Difficulty),
	).Scan(&total); err != nil {
		return nil, 0, translate(err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE `+filterClause+`
		 ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		courseID, filter.Topic, string(filter.Difficulty), limit, offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	qs, err := collectQuestions(rows)
	return qs, total, err
}

// ListBank retrieves all of a course's matching questions grouped for the
// bank view.
func (r *QuestionRepository) ListBank(ctx context.Context, courseID uuid.UUID, filter model.QuestionFilter) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE `+filterClause+`
		 ORDER BY topic,
		          CASE difficulty WHEN 'easy' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		          created_at`,
		courseID, filter.Topic, string(filter.Difficulty))
	if err != nil {
		return nil, translate(err)
	}
	return collectQuestions(rows)
}

// Topics lists the distinct topics of a course's bank.
func (r *QuestionRepository) Topics(ctx context.Context, courseID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT topic FROM questions WHERE course_id = $1 ORDER BY topic`, courseID)
	if err != nil {
		return nil, translate(err)
	}
	topics, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate(err)
	}
	return topics, nil
}

// Delete removes a question from the bank.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectQuestions(rows pgx.Rows) ([]model.Question, error) {
	defer rows.Close()

	var qs []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		qs = append(qs, *q)
	}
	return qs, rows.Err()
}
