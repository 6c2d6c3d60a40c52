package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/config"
	"github.com/stemsi/exstem-assess/internal/model"
)

// questionBackend is the store QuestionCache reads through to.
type questionBackend interface {
	Create(ctx context.Context, q *model.Question) error
	Update(ctx context.Context, q *model.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	GetMany(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
	ListByCourse(ctx context.Context, courseID uuid.UUID, filter model.QuestionFilter, limit, offset int) ([]model.Question, int, error)
	ListBank(ctx context.Context, courseID uuid.UUID, filter model.QuestionFilter) ([]model.Question, error)
	Topics(ctx context.Context, courseID uuid.UUID) ([]string, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// QuestionCache keeps questions in Redis in front of the question bank.
// Papers are rendered and attempts graded from the cache; a Redis failure
// falls back to the backend.
type QuestionCache struct {
	next questionBackend
	rdb  *redis.Client
	ttl  time.Duration
	log  zerolog.Logger
}

// NewQuestionCache wraps next with a read-through cache.
func NewQuestionCache(next questionBackend, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuestionCache {
	return &QuestionCache{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
		log:  log.With().Str("component", "question_cache").Logger(),
	}
}

func questionKey(id uuid.UUID) string {
	return config.CacheKey.QuestionKey(id.String())
}

// Create inserts q and primes its cache entry.
func (c *QuestionCache) Create(ctx context.Context, q *model.Question) error {
	if err := c.next.Create(ctx, q); err != nil {
		return err
	}
	c.store(ctx, []model.Question{*q})
	return nil
}

// Update writes q and drops its cache entry.
func (c *QuestionCache) Update(ctx context.Context, q *model.Question) error {
	if err := c.next.Update(ctx, q); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, questionKey(q.ID)).Err(); err != nil {
		c.log.Warn().Err(err).Str("question_id", q.ID.String()).Msg("Cache invalidation failed")
	}
	return nil
}

// GetByID returns a question, from Redis when cached.
func (c *QuestionCache) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	data, err := c.rdb.Get(ctx, questionKey(id)).Bytes()
	if err == nil {
		var q model.Question
		if err := json.Unmarshal(data, &q); err == nil {
			return &q, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Msg("Cache read failed, using database")
	}

	q, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, []model.Question{*q})
	return q, nil
}

// GetMany returns the questions among ids, loading cache misses in one
// backend query.
func (c *QuestionCache) GetMany(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = questionKey(id)
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache read failed, using database")
		return c.next.GetMany(ctx, ids)
	}

	out := make([]model.Question, 0, len(ids))
	var missing []uuid.UUID
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var q model.Question
		if err := json.Unmarshal([]byte(s), &q); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		out = append(out, q)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.next.GetMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	c.store(ctx, loaded)
	return append(out, loaded...), nil
}

// ListByCourse is served by the backend.
func (c *QuestionCache) ListByCourse(ctx context.Context, courseID uuid.UUID, filter model.QuestionFilter, limit, offset int) ([]model.Question, int, error) {
	return c.next.ListByCourse(ctx, courseID, filter, limit, offset)
}

// ListBank is served by the backend.
func (c *QuestionCache) ListBank(ctx context.Context, courseID uuid.UUID, filter model.QuestionFilter) ([]model.Question, error) {
	return c.next.ListBank(ctx, courseID, filter)
}

// Topics is served by the backend.
func (c *QuestionCache) Topics(ctx context.Context, courseID uuid.UUID) ([]string, error) {
	return c.next.Topics(ctx, courseID)
}

// Delete removes the question and its cache entry.
func (c *QuestionCache) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, questionKey(id)).Err(); err != nil {
		c.log.Warn().Err(err).Str("question_id", id.String()).Msg("Cache invalidation failed")
	}
	return nil
}

func (c *QuestionCache) store(ctx context.Context, qs []model.Question) {
	if len(qs) == 0 {
		return
	}
	pipe := c.rdb.Pipeline()
	for i := range qs {
		data, err := json.Marshal(&qs[i])
		if err != nil {
			continue
		}
		pipe.Set(ctx, questionKey(qs[i].ID), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Int("count", len(qs)).Msg("Cache write failed")
	}
}
