// Package limiter provides a bounded-parallelism primitive with strict
// FIFO admission and an optional queue timeout. It is independent of
// the orchestration domain.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CapacityExceededError is returned when a queued caller is not granted
// a slot within the configured queue timeout.
type CapacityExceededError struct {
	// RetryAfter hints how long the caller should wait before retrying.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded, retry after %s", e.RetryAfter)
}

// waiter is one queued caller awaiting a slot.
type waiter struct {
	// ready is closed when the waiter is granted a slot.
	ready chan struct{}
	// abandoned is set when the waiter timed out or was cancelled;
	// grants skip abandoned waiters.
	abandoned bool
}

// Limiter bounds the number of concurrently running tasks. Queued
// callers are admitted in strict FIFO order with no priorities.
type Limiter struct {
	maxConcurrent int
	queueTimeout  time.Duration

	mu      sync.Mutex
	running int
	queue   []*waiter
}

// New creates a Limiter allowing up to maxConcurrent tasks at once.
// Construction fails for maxConcurrent < 1. A queueTimeout of zero
// means queued callers wait indefinitely (until context cancellation).
func New(maxConcurrent int, queueTimeout time.Duration) (*Limiter, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("maxConcurrent must be >= 1, got %d", maxConcurrent)
	}
	return &Limiter{
		maxConcurrent: maxConcurrent,
		queueTimeout:  queueTimeout,
	}, nil
}

// Run executes task, waiting for a slot if the limiter is at capacity.
// The slot is released even if the task panics. Queued callers that
// outlive the queue timeout fail with *CapacityExceededError.
func (l *Limiter) Run(ctx context.Context, task func() error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return task()
}

// TryRun executes task only if a slot is immediately available.
// It returns false without running the task when the limiter is full.
func (l *Limiter) TryRun(task func() error) (bool, error) {
	l.mu.Lock()
	if l.running >= l.maxConcurrent {
		l.mu.Unlock()
		return false, nil
	}
	l.running++
	l.mu.Unlock()

	defer l.release()
	return true, task()
}

// Running returns the number of tasks currently holding a slot.
func (l *Limiter) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Waiting returns the number of callers queued for a slot.
func (l *Limiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, w := range l.queue {
		if !w.abandoned {
			n++
		}
	}
	return n
}

// acquire blocks until a slot is granted, the queue timeout elapses, or
// the context is cancelled.
func (l *Limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.running < l.maxConcurrent && len(l.queue) == 0 {
		l.running++
		l.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	l.queue = append(l.queue, w)
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.queueTimeout > 0 {
		timer := time.NewTimer(l.queueTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-w.ready:
		return nil
	case <-timeout:
		if l.abandon(w) {
			return &CapacityExceededError{RetryAfter: l.queueTimeout}
		}
		// A grant raced the timeout; the slot is ours.
		return nil
	case <-ctx.Done():
		if l.abandon(w) {
			return ctx.Err()
		}
		// Granted before cancellation was observed. Release the slot
		// and surface the cancellation.
		l.release()
		return ctx.Err()
	}
}

// abandon removes the waiter from the queue. It returns false if the
// waiter was already granted a slot, in which case the caller owns it.
func (l *Limiter) abandon(w *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-w.ready:
		return false
	default:
	}
	w.abandoned = true
	return true
}

// release frees a slot and hands it to the earliest queued waiter.
func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.queue) > 0 {
		w := l.queue[0]
		l.queue = l.queue[1:]
		if w.abandoned {
			continue
		}
		// Transfer the slot without decrementing the running count.
		close(w.ready)
		return
	}
	l.running--
}
