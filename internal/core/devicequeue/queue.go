// Package devicequeue serializes render operations destined for one
// physical display. Concurrent triggers (rotation ticks, overrides, ad-hoc
// renders) never interleave writes to the same device.
package devicequeue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultWarnDepth is the queue depth above which a warning is emitted, to
// surface runaway automation triggers without dropping work.
const DefaultWarnDepth = 20

// ErrClosed is delivered to waiters whose items were still pending when the
// queue shut down.
var ErrClosed = errors.New("device queue closed")

// DepthObserver receives the queue depth after every enqueue and dequeue.
type DepthObserver func(depth int)

type item struct {
	id   uuid.UUID
	fn   func(context.Context) error
	done chan error
}

// Queue is an unbounded FIFO drained by a single in-order worker. Enqueue
// never blocks; callers wait only on their own item.
type Queue struct {
	name      string
	warnDepth int
	logger    *logrus.Logger
	observe   DepthObserver

	mu     sync.Mutex
	items  []*item
	warned bool
	closed bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	idle   sync.WaitGroup
}

// New creates a queue and starts its worker. observe may be nil.
func New(name string, warnDepth int, logger *logrus.Logger, observe DepthObserver) *Queue {
	if warnDepth <= 0 {
		warnDepth = DefaultWarnDepth
	}
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:      name,
		warnDepth: warnDepth,
		logger:    logger,
		observe:   observe,
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	q.idle.Add(1)
	go q.run()
	return q
}

// Enqueue appends fn and returns the channel its completion is reported
// on. The channel receives exactly one value.
func (q *Queue) Enqueue(fn func(context.Context) error) <-chan error {
	it := &item{id: uuid.New(), fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		it.done <- ErrClosed
		return it.done
	}
	q.items = append(q.items, it)
	depth := len(q.items)
	if depth > q.warnDepth && !q.warned {
		q.warned = true
		q.logger.WithFields(logrus.Fields{
			"device": q.name,
			"depth":  depth,
			"limit":  q.warnDepth,
		}).Warn("Device queue depth exceeded threshold")
	}
	q.mu.Unlock()

	if q.observe != nil {
		q.observe(depth)
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return it.done
}

// Do enqueues fn and waits for its completion. The caller's context only
// bounds the wait; an item already picked up by the worker still runs to
// completion.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	done := q.Enqueue(fn)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth returns the number of pending items.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the worker and fails all pending items with ErrClosed. It
// returns once the worker has exited; no item runs afterwards.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.idle.Wait()
		return
	}
	q.closed = true
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	q.cancel()
	for _, it := range pending {
		it.done <- ErrClosed
	}
	q.idle.Wait()

	if q.observe != nil {
		q.observe(0)
	}
}

func (q *Queue) run() {
	defer q.idle.Done()
	for {
		it, depth := q.next()
		if it == nil {
			select {
			case <-q.wake:
				continue
			case <-q.ctx.Done():
				return
			}
		}
		if q.observe != nil {
			q.observe(depth)
		}

		err := it.fn(q.ctx)
		it.done <- err
	}
}

func (q *Queue) next() (*item, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, 0
	}
	it := q.items[0]
	q.items = q.items[1:]
	if len(q.items) <= q.warnDepth {
		q.warned = false
	}
	return it, len(q.items)
}
