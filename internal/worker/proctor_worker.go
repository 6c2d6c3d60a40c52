package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
)

const (
	DefaultBatchSize = 50
	BatchTimeout     = 2 * time.Second
	PollTimeout      = 1 * time.Second
	ShutdownTimeout  = 5 * time.Second
	retryBackoff     = 2 * time.Second
)

// FlagStore is the durable home of proctoring flags.
type FlagStore interface {
	InsertBatch(ctx context.Context, flags []model.SuspiciousFlag) error
	Insert(ctx context.Context, f model.SuspiciousFlag) error
}

// ProctorWorker drains queued proctoring flags into PostgreSQL in batches.
type ProctorWorker struct {
	queue Queue
	store FlagStore
	log   zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
	backoff      time.Duration
}

// NewProctorWorker creates a new ProctorWorker.
func NewProctorWorker(queue Queue, store FlagStore, batchSize int, log zerolog.Logger) *ProctorWorker {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &ProctorWorker{
		queue:        queue,
		store:        store,
		log:          log.With().Str("component", "proctor_worker").Logger(),
		batchSize:    batchSize,
		batchTimeout: BatchTimeout,
		pollTimeout:  PollTimeout,
		backoff:      retryBackoff,
	}
}

// Start runs until ctx is cancelled, then flushes whatever is buffered.
func (w *ProctorWorker) Start(ctx context.Context) {
	w.log.Info().Int("batch_size", w.batchSize).Msg("ProctorWorker started")

	buffer := make([]model.SuspiciousFlag, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		raw, err := w.queue.Pop(ctx, w.pollTimeout)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Queue read failed, backing off")
			pause(ctx, w.backoff)
			continue
		}

		var f model.SuspiciousFlag
		if err := json.Unmarshal(raw, &f); err != nil {
			w.log.Error().Err(err).Str("data", string(raw)).Msg("Discarding malformed flag")
			continue
		}
		buffer = append(buffer, f)
	}
}

// flushSafe tries a bulk insert, then row by row, then requeues what failed.
func (w *ProctorWorker) flushSafe(ctx context.Context, batch []model.SuspiciousFlag) {
	err := w.store.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Flags persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []model.SuspiciousFlag
	for _, f := range batch {
		if err := w.store.Insert(ctx, f); err != nil {
			w.log.Error().Err(err).Str("attempt_id", f.AttemptID.String()).Msg("Insert failed, requeueing")
			failed = append(failed, f)
		}
	}
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *ProctorWorker) requeue(ctx context.Context, flags []model.SuspiciousFlag) {
	items := make([][]byte, 0, len(flags))
	for _, f := range flags {
		raw, err := json.Marshal(f)
		if err != nil {
			continue
		}
		items = append(items, raw)
	}
	if err := w.queue.Push(ctx, items...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: failed to requeue flags, data lost")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed flags")
	pause(ctx, w.backoff)
}

func (w *ProctorWorker) shutdown(buffer []model.SuspiciousFlag) {
	w.log.Info().Int("pending", len(buffer)).Msg("ProctorWorker stopping, flushing buffer")
	if len(buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	w.flushSafe(ctx, buffer)
}
