package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls, retries := 0, 0
		err := retry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		}, func(int, error) { retries++ })

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("returns the last error", func(t *testing.T) {
		err := retry(context.Background(), 2, time.Millisecond, func() error {
			return errors.New("connection refused")
		}, nil)
		assert.EqualError(t, err, "connection refused")
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := retry(ctx, 5, time.Hour, func() error { return errors.New("down") }, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTraceLevel(t *testing.T) {
	assert.Equal(t, tracelog.LogLevelDebug, traceLevel("debug"))
	assert.Equal(t, tracelog.LogLevelWarn, traceLevel("info"))
	assert.Equal(t, tracelog.LogLevelWarn, traceLevel(""))
}
