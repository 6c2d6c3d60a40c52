package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assess/internal/model"
)

// FlagRepository persists proctoring flags.
type FlagRepository struct {
	pool *pgxpool.Pool
}

// NewFlagRepository creates a new FlagRepository.
func NewFlagRepository(pool *pgxpool.Pool) *FlagRepository {
	return &FlagRepository{pool: pool}
}

// InsertBatch bulk-loads flags with COPY.
func (r *FlagRepository) InsertBatch(ctx context.Context, flags []model.SuspiciousFlag) error {
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"suspicious_flags"},
		[]string{"attempt_id", "exam_id", "student_id", "type", "details", "recorded_at"},
		pgx.CopyFromSlice(len(flags), func(i int) ([]any, error) {
			f := flags[i]
			return []any{f.AttemptID, f.ExamID, f.StudentID, f.Type, f.Details, f.RecordedAt}, nil
		}),
	)
	return translate(err)
}

// Insert stores a single flag.
func (r *FlagRepository) Insert(ctx context.Context, f model.SuspiciousFlag) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO suspicious_flags (attempt_id, exam_id, student_id, type, details, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		f.AttemptID, f.ExamID, f.StudentID, f.Type, f.Details, f.RecordedAt)
	return translate(err)
}

// ListByAttempt returns an attempt's flags in the order they were raised.
func (r *FlagRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SuspiciousFlag, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, exam_id, student_id, type, details, recorded_at
		 FROM suspicious_flags WHERE attempt_id = $1
		 ORDER BY recorded_at, id`, attemptID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var flags []model.SuspiciousFlag
	for rows.Next() {
		var (
			f  model.SuspiciousFlag
			at time.Time
		)
		if err := rows.Scan(&f.AttemptID, &f.ExamID, &f.StudentID, &f.Type, &f.Details, &at); err != nil {
			return nil, err
		}
		f.RecordedAt = at.UTC()
		flags = append(flags, f)
	}
	return flags, rows.Err()
}
