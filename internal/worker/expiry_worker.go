package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/config"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/service"
)

// maxSweepRounds bounds how many batches one sweep submits.
const maxSweepRounds = 10

// ExpirySubmitter auto-submits attempts whose time ran out.
type ExpirySubmitter interface {
	SubmitExpired(ctx context.Context, now time.Time, after model.ExpiryKey, limit int) (service.ExpiryBatch, error)
}

// ExpiryWorker periodically submits overdue attempts. A Redis lease keeps
// concurrent API instances from sweeping the same interval twice.
type ExpiryWorker struct {
	submitter ExpirySubmitter
	locker    Locker
	clock     service.Clock
	interval  time.Duration
	batchSize int
	log       zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(submitter ExpirySubmitter, locker Locker, clock service.Clock, interval time.Duration, batchSize int, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &ExpiryWorker{
		submitter: submitter,
		locker:    locker,
		clock:     clock,
		interval:  interval,
		batchSize: batchSize,
		log:       log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start sweeps every interval until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep returns the number of attempts it submitted.
func (w *ExpiryWorker) sweep(ctx context.Context) int {
	ok, err := w.locker.TryLock(ctx, config.WorkerKey.ExpirySweeperLock, w.interval)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to acquire sweeper lock")
		return 0
	}
	if !ok {
		return 0
	}

	total := 0
	var after model.ExpiryKey
	for round := 0; round < maxSweepRounds; round++ {
		batch, err := w.submitter.SubmitExpired(ctx, w.clock.Now(), after, w.batchSize)
		if err != nil {
			w.log.Error().Err(err).Msg("Expiry sweep failed")
			break
		}
		total += batch.Submitted
		if batch.Scanned < w.batchSize {
			break
		}
		after = batch.Next
	}
	if total > 0 {
		w.log.Info().Int("submitted", total).Msg("Auto-submitted expired attempts")
	}
	return total
}
