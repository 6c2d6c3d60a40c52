package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/model"
)

// DeliverTimeout bounds a single sink delivery.
const DeliverTimeout = 3 * time.Second

// Sink delivers one notification somewhere durable.
type Sink interface {
	Deliver(ctx context.Context, n model.Notification) error
}

// Async hands notifications to a sink from a background goroutine so that
// state transitions never wait on delivery. When the buffer is full the
// notification is dropped and logged.
type Async struct {
	sink Sink
	ch   chan model.Notification
	log  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync creates an Async dispatcher with room for buffer pending notifications.
func NewAsync(sink Sink, buffer int, log zerolog.Logger) *Async {
	if buffer < 1 {
		buffer = 1
	}
	return &Async{
		sink: sink,
		ch:   make(chan model.Notification, buffer),
		log:  log.With().Str("component", "notifier").Logger(),
		done: make(chan struct{}),
	}
}

// Start runs the delivery loop until Close. Call in a goroutine.
func (a *Async) Start() {
	defer close(a.done)
	for n := range a.ch {
		a.deliver(n)
	}
}

func (a *Async) deliver(n model.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), DeliverTimeout)
	defer cancel()

	if err := a.sink.Deliver(ctx, n); err != nil {
		a.log.Warn().Err(err).
			Str("event", n.Event).
			Str("exam_id", n.ExamID.String()).
			Msg("Notification delivery failed")
	}
}

// Notify enqueues n without blocking.
func (a *Async) Notify(n model.Notification) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.ch <- n:
	default:
		a.log.Warn().Str("event", n.Event).Str("exam_id", n.ExamID.String()).Msg("Notification buffer full, dropping")
	}
}

// Close stops accepting notifications and waits until the buffered ones are
// delivered or ctx expires.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
