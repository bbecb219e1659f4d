// Package queue provides a sequential task queue: at most one task from a
// given queue instance executes at a time, in strict enqueue order.
//
// Each external resource that cannot tolerate concurrent access gets its own
// instance: one guards the shared browser session, one guards the facilitator
// wallet's signing and submission path.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Task is a deferred unit of work.
type Task func(ctx context.Context) error

// Handle resolves with its task's own outcome once the task has settled.
type Handle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task settles or the context is cancelled. The task
// itself keeps running on cancellation; only the wait is abandoned.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the task has settled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Queue chains tasks on the completion channel of the current tail. A new
// task is appended after the tail regardless of whether the tail succeeded
// or failed, so one task's failure never blocks subsequent tasks.
type Queue struct {
	mu   sync.Mutex
	tail chan struct{}
	name string
	log  *slog.Logger
}

// New creates a queue. The name appears in log lines only.
func New(name string, log *slog.Logger) *Queue {
	settled := make(chan struct{})
	close(settled)
	return &Queue{
		tail: settled,
		name: name,
		log:  log.With("queue", name),
	}
}

// Drain blocks until every task enqueued before the call has settled, or the
// context expires. Tasks enqueued after Drain starts are not waited for.
func (q *Queue) Drain(ctx context.Context) error {
	q.mu.Lock()
	tail := q.tail
	q.mu.Unlock()

	select {
	case <-tail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue appends the task after the queue's current tail and returns a
// handle for its outcome. Task errors propagate only to the handle; they are
// swallowed at queue level so they cannot leak into the continuation chain.
func (q *Queue) Enqueue(ctx context.Context, task Task) *Handle {
	h := &Handle{done: make(chan struct{})}

	q.mu.Lock()
	prev := q.tail
	q.tail = h.done
	q.mu.Unlock()

	go func() {
		<-prev
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("task panicked: %v", r)
				q.log.Error("queued task panicked", "panic", r)
			}
		}()
		if err := task(ctx); err != nil {
			h.err = err
		}
	}()

	return h
}
