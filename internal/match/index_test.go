package match

import (
	"sync"
	"testing"
)

func TestMatchCaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()
	idx := NewIndex()
	idx.Rebuild([]string{"Ride", "parcel"})

	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{name: "exact", text: "need a ride now", want: "ride", ok: true},
		{name: "upper", text: "NEED A RIDE NOW", want: "ride", ok: true},
		{name: "embedded", text: "xxparcelxx", want: "parcel", ok: true},
		{name: "no match", text: "nothing here", ok: false},
		{name: "empty text", text: "", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := idx.Match(tt.text)
			if ok != tt.ok {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("Match(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestMatchPrefersLongestTermAtSamePosition(t *testing.T) {
	t.Parallel()
	idx := NewIndex()
	idx.Rebuild([]string{"taxi", "taxi zakaz"})

	got, ok := idx.Match("kerak taxi zakaz qilaman")
	if !ok || got != "taxi zakaz" {
		t.Fatalf("Match = %q (ok=%v), want %q", got, ok, "taxi zakaz")
	}
}

func TestMatchPrefersEarliestPosition(t *testing.T) {
	t.Parallel()
	idx := NewIndex()
	idx.Rebuild([]string{"pochta", "taxi"})

	got, ok := idx.Match("taxi yoki pochta")
	if !ok || got != "taxi" {
		t.Fatalf("Match = %q (ok=%v), want %q", got, ok, "taxi")
	}
}

func TestEmptyIndexNeverMatches(t *testing.T) {
	t.Parallel()
	idx := NewIndex()
	if _, ok := idx.Match("anything at all"); ok {
		t.Fatal("empty index must not match")
	}
	idx.Rebuild(nil)
	if _, ok := idx.Match("anything at all"); ok {
		t.Fatal("rebuilt-empty index must not match")
	}
}

func TestRebuildNormalizesTerms(t *testing.T) {
	t.Parallel()
	idx := NewIndex()
	idx.Rebuild([]string{"  Taxi ", "taxi", "", "POCHTA"})
	if idx.Len() != 2 {
		t.Fatalf("Len = %d, want 2", idx.Len())
	}
	if _, ok := idx.Match("pochta kerak"); !ok {
		t.Fatal("expected normalized term to match")
	}
}

func TestConcurrentMatchDuringRebuild(t *testing.T) {
	t.Parallel()
	idx := NewIndex()
	idx.Rebuild([]string{"ride"})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			idx.Rebuild([]string{"ride", "taxi"})
		}
	}()

	for i := 0; i < 10000; i++ {
		if _, ok := idx.Match("need a ride"); !ok {
			t.Error("match lost during rebuild")
			break
		}
	}
	close(stop)
	wg.Wait()
}
