package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"groupwatch/internal/dedup"
	"groupwatch/internal/notify"
)

func note(id int) notify.Notification {
	return notify.Notification{Key: dedup.Key{Origin: -1, Event: id}}
}

func TestTryEnqueueRejectsWhenFull(t *testing.T) {
	t.Parallel()

	q := New(2)
	if err := q.TryEnqueue(note(1)); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	if err := q.TryEnqueue(note(2)); err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}
	if err := q.TryEnqueue(note(3)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("enqueue 3: got %v, want ErrQueueFull", err)
	}
	if q.Len() != 2 {
		t.Fatalf("Len = %d, want 2", q.Len())
	}
}

func TestDequeueFIFO(t *testing.T) {
	t.Parallel()

	q := New(4)
	for i := 1; i <= 3; i++ {
		if err := q.TryEnqueue(note(i)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		n, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if n.Key.Event != i {
			t.Fatalf("dequeue %d: got event %d", i, n.Key.Event)
		}
	}
}

func TestDequeueHonorsContext(t *testing.T) {
	t.Parallel()

	q := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Dequeue on empty queue: got %v, want deadline exceeded", err)
	}
}

func TestRejectedItemDoesNotDisplace(t *testing.T) {
	t.Parallel()

	q := New(1)
	if err := q.TryEnqueue(note(1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.TryEnqueue(note(2)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("want ErrQueueFull, got %v", err)
	}
	n, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if n.Key.Event != 1 {
		t.Fatalf("got event %d, want the original occupant 1", n.Key.Event)
	}
}
