package streaminfo

import (
	"container/list"
	"context"
	"sync"
)

// QueueSnapshot reports queue occupancy.
type QueueSnapshot struct {
	Running int `json:"running"`
	Pending int `json:"pending"`
	Peak    int `json:"peak"`
	Limit   int `json:"limit"`
}

// RequestQueue runs tasks FIFO with a fixed concurrency ceiling. It is the
// only scheduling point shared between tiles and is owned by the console root.
type RequestQueue struct {
	limit int

	mu      sync.Mutex
	running int
	peak    int
	pending *list.List // of *waiter
}

type waiter struct {
	ready   chan struct{}
	granted bool
}

// NewRequestQueue creates a queue admitting at most limit concurrent tasks.
func NewRequestQueue(limit int) *RequestQueue {
	if limit < 1 {
		limit = 1
	}
	return &RequestQueue{limit: limit, pending: list.New()}
}

// Do waits for a slot and runs fn. If ctx ends while the task is still
// pending, the task is dropped without running and ctx.Err() is returned.
func (q *RequestQueue) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := q.acquire(ctx); err != nil {
		return err
	}
	defer q.release()

	// a slot granted at the same moment as cancellation is passed on unused
	if err := ctx.Err(); err != nil {
		return err
	}

	return fn(ctx)
}

func (q *RequestQueue) acquire(ctx context.Context) error {
	q.mu.Lock()
	if q.running < q.limit && q.pending.Len() == 0 {
		q.admitLocked()
		q.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	elem := q.pending.PushBack(w)
	q.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		if !w.granted {
			q.pending.Remove(elem)
			q.mu.Unlock()
			return ctx.Err()
		}
		q.mu.Unlock()
		// granted concurrently: hand the slot to the next waiter
		q.release()
		return ctx.Err()
	}
}

func (q *RequestQueue) admitLocked() {
	q.running++
	if q.running > q.peak {
		q.peak = q.running
	}
}

func (q *RequestQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.running--
	front := q.pending.Front()
	if front == nil {
		return
	}
	q.pending.Remove(front)
	w := front.Value.(*waiter)
	w.granted = true
	q.admitLocked()
	close(w.ready)
}

// Snapshot returns the current occupancy.
func (q *RequestQueue) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueSnapshot{
		Running: q.running,
		Pending: q.pending.Len(),
		Peak:    q.peak,
		Limit:   q.limit,
	}
}
