package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"

	"groupwatch/internal/catalog"
	"groupwatch/internal/match"
	"groupwatch/pkg/logx"
)

type stubStore struct {
	mu       sync.Mutex
	keywords []string
	blocked  map[int64]bool
	fail     bool
}

func (s *stubStore) Keywords(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("catalog unavailable")
	}
	return append([]string(nil), s.keywords...), nil
}

func (s *stubStore) BlockedGroups(context.Context) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("catalog unavailable")
	}
	out := make(map[int64]bool, len(s.blocked))
	for k, v := range s.blocked {
		out[k] = v
	}
	return out, nil
}

func (s *stubStore) set(keywords []string, blocked map[int64]bool, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = keywords
	s.blocked = blocked
	s.fail = fail
}

func (s *stubStore) SetKeywords(context.Context, []string) error      { return nil }
func (s *stubStore) Groups(context.Context) ([]catalog.Group, error)  { return nil, nil }
func (s *stubStore) UpsertGroup(context.Context, catalog.Group) error { return nil }
func (s *stubStore) SetAccountStatus(context.Context, string, catalog.AccountStatus, string) error {
	return nil
}
func (s *stubStore) AppendHit(context.Context, catalog.Hit) error { return nil }
func (s *stubStore) Close() error                                 { return nil }

func TestPrimeLoadsIndexAndBlocked(t *testing.T) {
	t.Parallel()

	store := &stubStore{keywords: []string{"taxi", "ride"}, blocked: map[int64]bool{-5: true}}
	idx := match.NewIndex()
	svc := New(Config{}, store, idx, nil, logx.Nop())

	if err := svc.Prime(context.Background()); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("index terms = %d, want 2", idx.Len())
	}
	if !svc.Blocked(-5) {
		t.Fatal("blocked group not loaded")
	}
	if svc.Blocked(-6) {
		t.Fatal("unexpected blocked group")
	}
}

func TestFailedCycleKeepsLastState(t *testing.T) {
	t.Parallel()

	store := &stubStore{keywords: []string{"taxi"}, blocked: map[int64]bool{-5: true}}
	idx := match.NewIndex()
	svc := New(Config{}, store, idx, nil, logx.Nop())
	ctx := context.Background()

	if err := svc.Prime(ctx); err != nil {
		t.Fatalf("prime: %v", err)
	}

	store.set(nil, nil, true)
	if err := svc.refreshKeywords(ctx); err == nil {
		t.Fatal("expected failure")
	}
	if err := svc.refreshBlocked(ctx); err == nil {
		t.Fatal("expected failure")
	}

	// Last-known-good survives the failed cycle.
	if idx.Len() != 1 {
		t.Fatalf("index terms = %d, want 1", idx.Len())
	}
	if !svc.Blocked(-5) {
		t.Fatal("blocked set lost after failed refresh")
	}
}

func TestGroupSyncFuncErrorPropagates(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	svc := New(Config{}, store, match.NewIndex(), func(context.Context) error {
		return errors.New("telegram unreachable")
	}, logx.Nop())

	if err := svc.syncGroups(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
}
