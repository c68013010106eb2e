// Package queue holds notifications between admission and delivery.
// The queue is a fixed-capacity FIFO: producers never block, and a full
// queue rejects so callers can release ownership and alert.
package queue

import (
	"context"
	"errors"

	"groupwatch/internal/notify"
)

// ErrQueueFull is returned by TryEnqueue when capacity is exhausted.
var ErrQueueFull = errors.New("queue: full")

// Queue is a bounded FIFO of pending notifications.
type Queue struct {
	ch chan notify.Notification
}

// New creates a queue with the given capacity. Capacity must be positive.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan notify.Notification, capacity)}
}

// TryEnqueue appends n without blocking. It returns ErrQueueFull when the
// queue is at capacity; the notification is dropped in that case.
func (q *Queue) TryEnqueue(n notify.Notification) error {
	select {
	case q.ch <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a notification is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (notify.Notification, error) {
	select {
	case n := <-q.ch:
		return n, nil
	case <-ctx.Done():
		return notify.Notification{}, ctx.Err()
	}
}

// Len reports the number of queued notifications.
func (q *Queue) Len() int { return len(q.ch) }

// Cap reports the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
