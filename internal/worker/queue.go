package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Pop when nothing arrived within the timeout.
var ErrQueueEmpty = errors.New("queue empty")

// Queue is a FIFO of raw payloads shared between API instances and workers.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Push(ctx context.Context, items ...[]byte) error
}

// Locker grants a short-lived lease so only one instance runs a job.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisQueue is a Queue backed by a Redis list.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a queue over the list at key.
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

// Pop blocks up to timeout for the head of the list. Redis rejects
// timeouts under one second, so shorter values are rounded up.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout < time.Second {
		timeout = time.Second
	}
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, ErrQueueEmpty
	}
	return []byte(res[1]), nil
}

// Push appends items to the tail of the list.
func (q *RedisQueue) Push(ctx context.Context, items ...[]byte) error {
	if len(items) == 0 {
		return nil
	}
	args := make([]any, len(items))
	for i, it := range items {
		args[i] = it
	}
	return q.rdb.RPush(ctx, q.key, args...).Err()
}

// RedisLock implements Locker with SET NX.
type RedisLock struct {
	rdb *redis.Client
}

// NewRedisLock creates a new RedisLock.
func NewRedisLock(rdb *redis.Client) *RedisLock {
	return &RedisLock{rdb: rdb}
}

// TryLock acquires key for ttl. It reports false when another holder has it.
func (l *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, "1", ttl).Result()
}

// pause sleeps for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
