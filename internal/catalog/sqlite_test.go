package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"groupwatch/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "catalog.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestKeywordsRoundTrip(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	if err := st.SetKeywords(ctx, []string{"taxi", "  ride ", "", "taxi"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := st.Keywords(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Sorted, trimmed, deduplicated.
	want := []string{"ride", "taxi"}
	if len(got) != len(want) {
		t.Fatalf("keywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keywords = %v, want %v", got, want)
		}
	}

	// Replacement is total, not additive.
	if err := st.SetKeywords(ctx, []string{"bus"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err = st.Keywords(ctx)
	if err != nil {
		t.Fatalf("get after replace: %v", err)
	}
	if len(got) != 1 || got[0] != "bus" {
		t.Fatalf("keywords = %v, want [bus]", got)
	}
}

func TestGroupUpsertAndBlocked(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertGroup(ctx, Group{ChatID: -100500, Title: "City", Username: "citychat"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.UpsertGroup(ctx, Group{ChatID: -100600, Title: "Spam", Blocked: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	groups, err := st.Groups(ctx)
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}

	blocked, err := st.BlockedGroups(ctx)
	if err != nil {
		t.Fatalf("blocked: %v", err)
	}
	if !blocked[-100600] || blocked[-100500] {
		t.Fatalf("blocked = %v", blocked)
	}

	// Unblocking via upsert takes effect.
	if err := st.UpsertGroup(ctx, Group{ChatID: -100600, Title: "Spam"}); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	blocked, err = st.BlockedGroups(ctx)
	if err != nil {
		t.Fatalf("blocked: %v", err)
	}
	if len(blocked) != 0 {
		t.Fatalf("blocked = %v, want empty", blocked)
	}
}

func TestAccountStatusTransitions(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	for _, status := range []AccountStatus{StatusPending, StatusConnecting, StatusActive, StatusError} {
		if err := st.SetAccountStatus(ctx, "acc1", status, ""); err != nil {
			t.Fatalf("set %s: %v", status, err)
		}
	}
	if err := st.SetAccountStatus(ctx, "acc1", StatusError, "flood wait"); err != nil {
		t.Fatalf("set with detail: %v", err)
	}
}

func TestAppendHit(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()

	err := st.AppendHit(ctx, Hit{
		Account: "acc1",
		Origin:  -100500,
		EventID: 42,
		Keyword: "taxi",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty path")
	}
}
