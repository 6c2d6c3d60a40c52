package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assess/internal/config"
	"github.com/stemsi/exstem-assess/internal/model"
)

// FlagQueue buffers proctoring flags in a Redis list until the proctor
// worker flushes them to PostgreSQL.
type FlagQueue struct {
	rdb *redis.Client
}

// NewFlagQueue creates a new FlagQueue.
func NewFlagQueue(rdb *redis.Client) *FlagQueue {
	return &FlagQueue{rdb: rdb}
}

// Enqueue appends f to the persist queue.
func (q *FlagQueue) Enqueue(ctx context.Context, f model.SuspiciousFlag) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal flag: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistFlagsQueue, raw).Err()
}
