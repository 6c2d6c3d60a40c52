package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assess/internal/config"
	"github.com/stemsi/exstem-assess/internal/model"
)

// RedisSink queues notifications for persistence and fans them out to the
// live monitor channel of their exam.
type RedisSink struct {
	rdb *redis.Client
}

// NewRedisSink creates a new RedisSink.
func NewRedisSink(rdb *redis.Client) *RedisSink {
	return &RedisSink{rdb: rdb}
}

// Deliver pushes n onto the notifications queue and publishes it.
func (s *RedisSink) Deliver(ctx context.Context, n model.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.NotificationsQueue, raw)
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(n.ExamID.String()), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	return nil
}
