package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-assess/internal/config"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/service"
)

type fakeQueue struct {
	mu     sync.Mutex
	items  [][]byte
	pushed [][]byte
}

func (q *fakeQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		it := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return it, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, ErrQueueEmpty
	}
}

func (q *fakeQueue) Push(_ context.Context, items ...[]byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, items...)
	return nil
}

func (q *fakeQueue) pushedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pushed)
}

func (q *fakeQueue) add(t *testing.T, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	q.items = append(q.items, raw)
}

type fakeFlagStore struct {
	mu       sync.Mutex
	batches  [][]model.SuspiciousFlag
	singles  []model.SuspiciousFlag
	batchErr error
	reject   string
}

func (s *fakeFlagStore) InsertBatch(_ context.Context, flags []model.SuspiciousFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return s.batchErr
	}
	s.batches = append(s.batches, append([]model.SuspiciousFlag(nil), flags...))
	return nil
}

func (s *fakeFlagStore) Insert(_ context.Context, f model.SuspiciousFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Details == s.reject {
		return errors.New("check constraint violated")
	}
	s.singles = append(s.singles, f)
	return nil
}

func (s *fakeFlagStore) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.batches))
	for i, b := range s.batches {
		out[i] = len(b)
	}
	return out
}

func (s *fakeFlagStore) singleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.singles)
}

type fakeNotificationStore struct {
	mu     sync.Mutex
	stored []model.Notification
	err    error
	calls  int
}

func (s *fakeNotificationStore) InsertBatch(_ context.Context, batch []model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, batch...)
	return nil
}

func (s *fakeNotificationStore) count() (stored, calls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored), s.calls
}

func flag(details string) model.SuspiciousFlag {
	return model.SuspiciousFlag{
		AttemptID:  uuid.New(),
		ExamID:     uuid.New(),
		StudentID:  uuid.New(),
		Type:       model.FlagTabSwitch,
		Details:    details,
		RecordedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func fastProctorWorker(q Queue, s FlagStore, batchSize int) *ProctorWorker {
	w := NewProctorWorker(q, s, batchSize, zerolog.Nop())
	w.pollTimeout = 5 * time.Millisecond
	w.batchTimeout = time.Hour
	w.backoff = 0
	return w
}

func run(ctx context.Context, start func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		start(ctx)
	}()
	return done
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan struct{}) {
	t.Helper()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestProctorWorker_FlushesFullBatchesAndDrainsOnShutdown(t *testing.T) {
	q := &fakeQueue{}
	for i := 0; i < 3; i++ {
		q.add(t, flag("tab hidden"))
	}
	store := &fakeFlagStore{}
	w := fastProctorWorker(q, store, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, w.Start)

	require.Eventually(t, func() bool { return len(store.batchSizes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{2}, store.batchSizes())

	stop(t, cancel, done)
	assert.Equal(t, []int{2, 1}, store.batchSizes())
}

func TestProctorWorker_FallsBackRowByRowAndRequeuesFailures(t *testing.T) {
	q := &fakeQueue{}
	q.add(t, flag("ok"))
	q.add(t, flag("bad"))
	store := &fakeFlagStore{batchErr: errors.New("copy failed"), reject: "bad"}
	w := fastProctorWorker(q, store, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, w.Start)

	require.Eventually(t, func() bool { return q.pushedCount() == 1 }, time.Second, 5*time.Millisecond)
	stop(t, cancel, done)

	assert.Equal(t, 1, store.singleCount())
	var requeued model.SuspiciousFlag
	require.NoError(t, json.Unmarshal(q.pushed[0], &requeued))
	assert.Equal(t, "bad", requeued.Details)
}

func TestProctorWorker_DiscardsMalformedPayloads(t *testing.T) {
	q := &fakeQueue{items: [][]byte{[]byte("{not json")}}
	q.add(t, flag("ok"))
	store := &fakeFlagStore{}
	w := fastProctorWorker(q, store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, w.Start)

	require.Eventually(t, func() bool { return len(store.batchSizes()) == 1 }, time.Second, 5*time.Millisecond)
	stop(t, cancel, done)
	assert.Equal(t, []int{1}, store.batchSizes())
	assert.Zero(t, q.pushedCount())
}

func TestNotificationWorker_StoresBatches(t *testing.T) {
	q := &fakeQueue{}
	examID := uuid.New()
	for i := 0; i < 4; i++ {
		q.add(t, model.NewNotification(model.EventAttemptSubmitted, examID, nil, time.Now()))
	}
	store := &fakeNotificationStore{}
	w := NewNotificationWorker(q, store, 2, zerolog.Nop())
	w.pollTimeout = 5 * time.Millisecond
	w.backoff = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, w.Start)

	require.Eventually(t, func() bool { n, _ := store.count(); return n == 4 }, time.Second, 5*time.Millisecond)
	stop(t, cancel, done)

	_, calls := store.count()
	assert.Equal(t, 2, calls)
}

func TestNotificationWorker_RequeuesWholeBatchOnFailure(t *testing.T) {
	q := &fakeQueue{}
	examID := uuid.New()
	q.add(t, model.NewNotification(model.EventAttemptGraded, examID, nil, time.Now()))
	q.add(t, model.NewNotification(model.EventAttemptGraded, examID, nil, time.Now()))
	store := &fakeNotificationStore{err: errors.New("db down")}
	w := NewNotificationWorker(q, store, 2, zerolog.Nop())
	w.pollTimeout = 5 * time.Millisecond
	w.backoff = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, w.Start)

	require.Eventually(t, func() bool { return q.pushedCount() == 2 }, time.Second, 5*time.Millisecond)
	stop(t, cancel, done)

	var n model.Notification
	require.NoError(t, json.Unmarshal(q.pushed[0], &n))
	assert.Equal(t, model.EventAttemptGraded, n.Event)
}

type fakeLocker struct {
	ok   bool
	err  error
	keys []string
	ttls []time.Duration
}

func (l *fakeLocker) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	l.ttls = append(l.ttls, ttl)
	return l.ok, l.err
}

type fakeSubmitter struct {
	batches []service.ExpiryBatch
	err     error
	nows    []time.Time
	limits  []int
	afters  []model.ExpiryKey
}

// fullBatches returns n batches that each scan and submit size attempts.
func fullBatches(n, size int) []service.ExpiryBatch {
	out := make([]service.ExpiryBatch, n)
	for i := range out {
		out[i] = service.ExpiryBatch{Submitted: size, Scanned: size, Next: model.ExpiryKey{ID: uuid.New()}}
	}
	return out
}

func (s *fakeSubmitter) SubmitExpired(_ context.Context, now time.Time, after model.ExpiryKey, limit int) (service.ExpiryBatch, error) {
	s.nows = append(s.nows, now)
	s.limits = append(s.limits, limit)
	s.afters = append(s.afters, after)
	if s.err != nil {
		return service.ExpiryBatch{}, s.err
	}
	if len(s.batches) == 0 {
		return service.ExpiryBatch{}, nil
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestExpiryWorker_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("drains full batches until a short one", func(t *testing.T) {
		locker := &fakeLocker{ok: true}
		batches := append(fullBatches(2, 5), service.ExpiryBatch{Submitted: 2, Scanned: 2})
		sub := &fakeSubmitter{batches: batches}
		w := NewExpiryWorker(sub, locker, fixedClock{now}, time.Minute, 5, zerolog.Nop())

		assert.Equal(t, 12, w.sweep(context.Background()))
		assert.Equal(t, []int{5, 5, 5}, sub.limits)
		assert.Equal(t, []model.ExpiryKey{{}, batches[0].Next, batches[1].Next}, sub.afters)
		assert.Equal(t, now, sub.nows[0])
		assert.Equal(t, []string{config.WorkerKey.ExpirySweeperLock}, locker.keys)
		assert.Equal(t, []time.Duration{time.Minute}, locker.ttls)
	})

	t.Run("skips when another instance holds the lease", func(t *testing.T) {
		sub := &fakeSubmitter{batches: fullBatches(1, 1)}
		w := NewExpiryWorker(sub, &fakeLocker{ok: false}, fixedClock{now}, time.Minute, 5, zerolog.Nop())

		assert.Zero(t, w.sweep(context.Background()))
		assert.Empty(t, sub.nows)
	})

	t.Run("skips when the lease cannot be checked", func(t *testing.T) {
		sub := &fakeSubmitter{}
		w := NewExpiryWorker(sub, &fakeLocker{err: errors.New("redis down")}, fixedClock{now}, time.Minute, 5, zerolog.Nop())

		assert.Zero(t, w.sweep(context.Background()))
		assert.Empty(t, sub.nows)
	})

	t.Run("stops on submit error", func(t *testing.T) {
		sub := &fakeSubmitter{err: errors.New("db down")}
		w := NewExpiryWorker(sub, &fakeLocker{ok: true}, fixedClock{now}, time.Minute, 5, zerolog.Nop())

		assert.Zero(t, w.sweep(context.Background()))
		assert.Len(t, sub.nows, 1)
	})

	t.Run("bounds rounds per sweep", func(t *testing.T) {
		sub := &fakeSubmitter{batches: fullBatches(20, 1)}
		w := NewExpiryWorker(sub, &fakeLocker{ok: true}, fixedClock{now}, time.Minute, 1, zerolog.Nop())

		assert.Equal(t, maxSweepRounds, w.sweep(context.Background()))
	})

	t.Run("pages past attempts that failed to submit", func(t *testing.T) {
		stuck := model.ExpiryKey{ExpiresAt: now.Add(-time.Hour), ID: uuid.New()}
		sub := &fakeSubmitter{batches: []service.ExpiryBatch{
			{Submitted: 0, Scanned: 2, Next: stuck},
			{Submitted: 1, Scanned: 1},
		}}
		w := NewExpiryWorker(sub, &fakeLocker{ok: true}, fixedClock{now}, time.Minute, 2, zerolog.Nop())

		assert.Equal(t, 1, w.sweep(context.Background()))
		assert.Equal(t, []model.ExpiryKey{{}, stuck}, sub.afters)
	})
}

func TestExpiryWorker_StartStopsOnCancel(t *testing.T) {
	sub := &fakeSubmitter{}
	w := NewExpiryWorker(sub, &fakeLocker{ok: true}, fixedClock{time.Now()}, time.Hour, 5, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, w.Start)
	stop(t, cancel, done)
	assert.Empty(t, sub.nows)
}
