package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/config"
)

const (
	minIdleConns      = 2
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second
	connectAttempts   = 5
	connectBackoff    = time.Second
)

// NewPostgresPool creates a PostgreSQL pool and waits for the server to
// answer, retrying with backoff while the database container starts.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxDBConns
	poolCfg.MinConns = min(minIdleConns, cfg.MaxDBConns)
	poolCfg.MaxConnIdleTime = maxConnIdleTime
	poolCfg.HealthCheckPeriod = healthCheckPeriod
	poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   queryLogger(log),
		LogLevel: traceLevel(cfg.LogLevel),
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	err = retry(ctx, connectAttempts, connectBackoff, func() error { return pool.Ping(ctx) }, func(attempt int, err error) {
		log.Warn().Err(err).Int("attempt", attempt).Msg("PostgreSQL not ready, retrying")
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Int32("max_conns", poolCfg.MaxConns).
		Int32("min_conns", poolCfg.MinConns).
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Msg("PostgreSQL connected")

	return pool, nil
}

// queryLogger routes pgx trace output through zerolog.
func queryLogger(log zerolog.Logger) tracelog.Logger {
	l := log.With().Str("component", "pgx").Logger()
	return tracelog.LoggerFunc(func(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		var ev *zerolog.Event
		switch level {
		case tracelog.LogLevelError:
			ev = l.Error()
		case tracelog.LogLevelWarn:
			ev = l.Warn()
		case tracelog.LogLevelInfo:
			ev = l.Info()
		default:
			ev = l.Debug()
		}
		ev.Fields(data).Msg(msg)
	})
}

// traceLevel keeps query tracing quiet unless the app runs at debug level.
func traceLevel(appLevel string) tracelog.LogLevel {
	switch appLevel {
	case "trace", "debug":
		return tracelog.LogLevelDebug
	default:
		return tracelog.LogLevelWarn
	}
}

// retry calls fn up to attempts times, doubling the wait after each failure.
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error, onRetry func(int, error)) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		if onRetry != nil {
			onRetry(i, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
