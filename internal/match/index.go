// Package match holds the keyword index: the current set of match terms
// compiled into a single matcher, swapped wholesale on refresh so concurrent
// readers never observe a partially-built index.
package match

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Index matches text against a set of lowercase terms.
//
// Match is safe to call concurrently with Rebuild; Rebuild replaces the
// compiled term set atomically.
type Index struct {
	cur atomic.Pointer[matcher]
}

// matcher is an immutable compiled term set.
// Terms are sorted longest-first so that, at equal text positions, the more
// specific term wins.
type matcher struct {
	terms []string
}

func NewIndex() *Index {
	idx := &Index{}
	idx.cur.Store(&matcher{})
	return idx
}

// Rebuild replaces the active term set. Terms are lowercased, trimmed, and
// de-duplicated; empty terms are dropped. An empty set means Match never
// matches.
func (x *Index) Rebuild(terms []string) {
	seen := make(map[string]struct{}, len(terms))
	compiled := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		compiled = append(compiled, t)
	}
	sort.Slice(compiled, func(i, j int) bool {
		if len(compiled[i]) != len(compiled[j]) {
			return len(compiled[i]) > len(compiled[j])
		}
		return compiled[i] < compiled[j]
	})
	x.cur.Store(&matcher{terms: compiled})
}

// Match returns the matched term and true if text contains any registered
// term as a case-insensitive substring. The earliest match position wins;
// at equal positions the longest term wins.
func (x *Index) Match(text string) (string, bool) {
	m := x.cur.Load()
	if m == nil || len(m.terms) == 0 || text == "" {
		return "", false
	}
	lower := strings.ToLower(text)

	best := ""
	bestPos := -1
	for _, t := range m.terms {
		i := strings.Index(lower, t)
		if i < 0 {
			continue
		}
		// Longest-first ordering: ties on position keep the first (longer) hit.
		if bestPos == -1 || i < bestPos {
			bestPos = i
			best = t
		}
	}
	if bestPos == -1 {
		return "", false
	}
	return best, true
}

// Len reports the number of active terms.
func (x *Index) Len() int {
	m := x.cur.Load()
	if m == nil {
		return 0
	}
	return len(m.terms)
}
