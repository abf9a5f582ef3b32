// Package substrate implements the minimal in-memory queue primitive that
// backs both the per-status event queues (internal/queue/statusqueue) and
// the per-order execution queue (internal/queue/execqueue). Each order gets
// its own substrate scope; tearing one down simply drops its queues.
package substrate

import (
	"context"
	"fmt"
	"sync"
)

// Job is a single enqueued unit of work. Key is used for dedup when a queue
// is constructed with dedup enabled; Attempt is incremented by the caller on
// each retried dequeue, not by the queue itself.
type Job[T any] struct {
	Key     string
	Payload T
	Attempt int
}

// Queue is a bounded FIFO channel of jobs, optionally deduplicating
// still-buffered jobs by key; a key is forgotten once its job is dequeued.
// A zero-value Queue is not usable; use NewQueue.
type Queue[T any] struct {
	name  string
	ch    chan Job[T]
	dedup bool

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool

	trackID uint64
}

// NewQueue constructs a queue named name with the given buffer depth. When
// dedup is true, Enqueue is a no-op for a key already pending.
func NewQueue[T any](name string, buffer int, dedup bool) *Queue[T] {
	if buffer <= 0 {
		buffer = 1
	}
	q := &Queue[T]{
		name:  name,
		ch:    make(chan Job[T], buffer),
		dedup: dedup,
	}
	if dedup {
		q.pending = make(map[string]struct{})
	}
	q.trackID = track(q)
	return q
}

// Depth reports the number of jobs currently buffered in the queue.
func (q *Queue[T]) Depth() int {
	return len(q.ch)
}

// Capacity reports the queue's fixed buffer size.
func (q *Queue[T]) Capacity() int {
	return cap(q.ch)
}

// Name returns the queue's diagnostic name, e.g. "status/confirmed/ord_123".
func (q *Queue[T]) Name() string {
	return q.name
}

// Enqueue adds a job under key. It reports enqueued=false without error when
// dedup is enabled and key is already pending. It blocks until the queue has
// room or ctx is done.
func (q *Queue[T]) Enqueue(ctx context.Context, key string, payload T) (enqueued bool, err error) {
	if q.dedup {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return false, fmt.Errorf("substrate: queue %s is closed", q.name)
		}
		if _, exists := q.pending[key]; exists {
			q.mu.Unlock()
			return false, nil
		}
		q.pending[key] = struct{}{}
		q.mu.Unlock()
	}

	select {
	case q.ch <- Job[T]{Key: key, Payload: payload}:
		return true, nil
	case <-ctx.Done():
		if q.dedup {
			q.mu.Lock()
			delete(q.pending, key)
			q.mu.Unlock()
		}
		return false, ctx.Err()
	}
}

// Dequeue blocks until a job is available, the queue is closed and drained
// (ok=false), or ctx is done (ok=false).
func (q *Queue[T]) Dequeue(ctx context.Context) (Job[T], bool) {
	select {
	case job, open := <-q.ch:
		if !open {
			return Job[T]{}, false
		}
		if q.dedup {
			q.mu.Lock()
			delete(q.pending, job.Key)
			q.mu.Unlock()
		}
		return job, true
	case <-ctx.Done():
		return Job[T]{}, false
	}
}

// Close marks the queue closed and closes the underlying channel. Enqueue
// calls made after Close return an error; Dequeue drains remaining buffered
// jobs before reporting ok=false.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.ch)
	untrack(q.trackID)
}
