package deliver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"groupwatch/internal/catalog"
	"groupwatch/internal/dedup"
	"groupwatch/internal/notify"
	"groupwatch/internal/queue"
	"groupwatch/internal/transport"
	"groupwatch/pkg/logx"
)

type fakeSink struct {
	mu    sync.Mutex
	calls int
	// failures holds an error per attempt; nil means success. Attempts past
	// the slice succeed.
	failures []error
	// block, when set, parks Send until the channel is closed or ctx ends.
	block chan struct{}
}

func (f *fakeSink) Send(ctx context.Context, _ transport.ChatTarget, _ string, _ transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	blk := f.block
	var fail error
	if i < len(f.failures) {
		fail = f.failures[i]
	}
	f.mu.Unlock()

	if blk != nil {
		select {
		case <-ctx.Done():
			return transport.MessageRef{}, ctx.Err()
		case <-blk:
		}
	}
	if fail != nil {
		return transport.MessageRef{}, fail
	}
	return transport.MessageRef{ChatID: 1, MessageID: i + 1}, nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu   sync.Mutex
	hits []catalog.Hit
}

func (f *fakeStore) Keywords(context.Context) ([]string, error)              { return nil, nil }
func (f *fakeStore) SetKeywords(context.Context, []string) error             { return nil }
func (f *fakeStore) Groups(context.Context) ([]catalog.Group, error)         { return nil, nil }
func (f *fakeStore) BlockedGroups(context.Context) (map[int64]bool, error)   { return nil, nil }
func (f *fakeStore) UpsertGroup(context.Context, catalog.Group) error        { return nil }
func (f *fakeStore) SetAccountStatus(context.Context, string, catalog.AccountStatus, string) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) AppendHit(_ context.Context, h catalog.Hit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, h)
	return nil
}

func (f *fakeStore) hitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hits)
}

func testNotification(cache *dedup.Cache) notify.Notification {
	key := dedup.Key{Origin: -100500, Event: 42}
	cache.Admit(key, "acc1")
	return notify.Notification{Key: key, Account: "acc1", Keyword: "taxi", OriginTitle: "City"}
}

func newHarness(sink *fakeSink) (*Service, *queue.Queue, *dedup.Cache, *fakeStore) {
	q := queue.New(8)
	cache := dedup.New(dedup.Config{})
	store := &fakeStore{}
	svc := New(Config{Workers: 1, RatePerSec: 1000, RetryMax: 3, RetryMargin: time.Millisecond, SinkChat: 777},
		sink, q, cache, store, logx.Nop())
	return svc, q, cache, store
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestDeliverSuccessSettles(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	svc, q, cache, store := newHarness(sink)
	n := testNotification(cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if err := q.TryEnqueue(n); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return store.hitCount() == 1 })

	// Ownership is terminal: a re-observation of the same event is rejected.
	v := cache.Admit(n.Key, "acc2")
	if v.Admitted {
		t.Fatal("sent event re-admitted")
	}
	if v.PriorState != dedup.StateSent {
		t.Fatalf("prior state = %v, want sent", v.PriorState)
	}
}

func TestDeliverRetriesOnRetryAfterHint(t *testing.T) {
	t.Parallel()

	throttle := transport.RetryAfter(errors.New("telegram: retry after 0"), 0)
	sink := &fakeSink{failures: []error{throttle, throttle}}
	svc, q, cache, store := newHarness(sink)
	n := testNotification(cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if err := q.TryEnqueue(n); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool { return store.hitCount() == 1 })

	if got := sink.count(); got != 3 {
		t.Fatalf("send attempts = %d, want 3", got)
	}
}

func TestDeliverReleasesOnHardFailure(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{failures: []error{errors.New("chat not found")}}
	svc, q, cache, store := newHarness(sink)
	n := testNotification(cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if err := q.TryEnqueue(n); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// Release makes the key re-admittable; that is the observable outcome.
	waitFor(t, func() bool {
		return cache.Admit(n.Key, "acc2").Admitted
	})

	if got := sink.count(); got != 1 {
		t.Fatalf("send attempts = %d, want 1 (no retry without a hint)", got)
	}
	if store.hitCount() != 0 {
		t.Fatalf("hits = %d, want 0", store.hitCount())
	}
}

func TestStopAbortsInFlightSend(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{block: make(chan struct{})}
	svc, q, cache, store := newHarness(sink)
	n := testNotification(cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	if err := q.TryEnqueue(n); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// The worker is parked inside Send once the call is counted.
	waitFor(t, func() bool { return sink.count() == 1 })

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	started := time.Now()
	svc.Stop(stopCtx)
	if time.Since(started) > time.Second {
		t.Fatal("stop waited for the blocked send instead of aborting it")
	}

	// The aborted notification gave its ownership back.
	waitFor(t, func() bool {
		return cache.Admit(n.Key, "acc2").Admitted
	})
	if store.hitCount() != 0 {
		t.Fatalf("hits = %d, want 0 for an aborted send", store.hitCount())
	}
}

func TestDeliverGivesUpAfterRetryMax(t *testing.T) {
	t.Parallel()

	throttle := transport.RetryAfter(errors.New("telegram: retry after 0"), 0)
	sink := &fakeSink{failures: []error{throttle, throttle, throttle, throttle, throttle}}
	svc, q, cache, store := newHarness(sink)
	n := testNotification(cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if err := q.TryEnqueue(n); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(t, func() bool {
		return cache.Admit(n.Key, "acc2").Admitted
	})

	if got := sink.count(); got != 3 {
		t.Fatalf("send attempts = %d, want RetryMax=3", got)
	}
	if store.hitCount() != 0 {
		t.Fatalf("hits = %d, want 0", store.hitCount())
	}
}
