package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assess/internal/model"
)

// NotificationRepository persists delivered notifications.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// InsertBatch stores notifications in one round trip. Rows already stored
// are skipped, so a requeued batch is safe to replay.
func (r *NotificationRepository) InsertBatch(ctx context.Context, batch []model.Notification) error {
	b := &pgx.Batch{}
	for _, n := range batch {
		var payload []byte
		if len(n.Payload) > 0 {
			payload = n.Payload
		}
		b.Queue(
			`INSERT INTO notifications (id, event, exam_id, attempt_id, recipient_id, payload, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING`,
			n.ID, n.Event, n.ExamID, n.AttemptID, n.RecipientID, payload, n.CreatedAt,
		)
	}
	return translate(r.pool.SendBatch(ctx, b).Close())
}

// ListByRecipient returns the latest notifications addressed to userID.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event, exam_id, attempt_id, recipient_id, payload, created_at
		 FROM notifications WHERE recipient_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n       model.Notification
			payload []byte
		)
		if err := rows.Scan(&n.ID, &n.Event, &n.ExamID, &n.AttemptID, &n.RecipientID, &payload, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Payload = payload
		out = append(out, n)
	}
	return out, rows.Err()
}
