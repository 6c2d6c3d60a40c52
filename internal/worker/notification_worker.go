package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
)

// NotificationStore persists notifications. InsertBatch must ignore rows it
// already holds so a requeued batch can be replayed.
type NotificationStore interface {
	InsertBatch(ctx context.Context, batch []model.Notification) error
}

// NotificationWorker moves queued notifications into the notifications table.
type NotificationWorker struct {
	queue Queue
	store NotificationStore
	log   zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
	backoff      time.Duration
}

// NewNotificationWorker creates a new NotificationWorker.
func NewNotificationWorker(queue Queue, store NotificationStore, batchSize int, log zerolog.Logger) *NotificationWorker {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &NotificationWorker{
		queue:        queue,
		store:        store,
		log:          log.With().Str("component", "notification_worker").Logger(),
		batchSize:    batchSize,
		batchTimeout: BatchTimeout,
		pollTimeout:  PollTimeout,
		backoff:      retryBackoff,
	}
}

// Start runs until ctx is cancelled, then flushes whatever is buffered.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Msg("NotificationWorker started")

	batch := make([]model.Notification, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 && (len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(batch)
			return
		default:
		}

		raw, err := w.queue.Pop(ctx, w.pollTimeout)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(batch)
				return
			}
			w.log.Error().Err(err).Msg("Queue read failed, backing off")
			pause(ctx, w.backoff)
			continue
		}

		var n model.Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			w.log.Error().Err(err).Str("data", string(raw)).Msg("Discarding malformed notification")
			continue
		}
		batch = append(batch, n)
	}
}

// flush stores the batch or pushes all of it back for a later replay.
func (w *NotificationWorker) flush(ctx context.Context, batch []model.Notification) {
	err := w.store.InsertBatch(ctx, batch)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Notification insert failed, requeueing batch")

	items := make([][]byte, 0, len(batch))
	for _, n := range batch {
		raw, err := json.Marshal(n)
		if err != nil {
			continue
		}
		items = append(items, raw)
	}
	if err := w.queue.Push(ctx, items...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: failed to requeue notifications, data lost")
		return
	}
	pause(ctx, w.backoff)
}

func (w *NotificationWorker) shutdown(batch []model.Notification) {
	w.log.Info().Int("pending", len(batch)).Msg("NotificationWorker stopping, flushing buffer")
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	w.flush(ctx, batch)
}
