// Package queue provides an unbounded, closable FIFO that can be waited on in a select.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close, and by Recv once a closed queue is drained.
var ErrClosed = errors.New("queue: closed")

// Queue is an unbounded FIFO. Push never blocks. Consumers either call Recv,
// or select on Ready and then call TryPop.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	ready  chan struct{}
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends v. It fails with ErrClosed once the queue has been closed.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.signal()
	return nil
}

// Ready receives a value whenever items may be available or the queue was closed.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// TryPop removes the head item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 || q.closed {
		q.signal()
	}
	return v, true
}

// Recv blocks until an item is available, the queue is closed and drained, or ctx is done.
func (q *Queue[T]) Recv(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		if q.Closed() {
			var zero T
			return zero, ErrClosed
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close stops further pushes. Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.signal()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
