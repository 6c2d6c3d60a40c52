package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/config"
)

// readTimeout must exceed the longest BLPOP the workers issue.
const readTimeout = 5 * time.Second

// NewRedisClient creates a Redis client and waits for the server to answer.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opt.ReadTimeout < readTimeout {
		opt.ReadTimeout = readTimeout
	}

	rdb := redis.NewClient(opt)

	err = retry(ctx, connectAttempts, connectBackoff, func() error { return rdb.Ping(ctx).Err() }, func(attempt int, err error) {
		log.Warn().Err(err).Int("attempt", attempt).Msg("Redis not ready, retrying")
	})
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", rdb.Options().PoolSize).
		Msg("Redis connected")

	return rdb, nil
}
