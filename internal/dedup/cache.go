// Package dedup implements the cross-account ownership cache: a time-windowed
// map from (origin, event-id) to delivery state. It is the single
// synchronization point guaranteeing that a group observed by several
// accounts produces one notification.
package dedup

import (
	"sync"
	"time"
)

type State int8

const (
	StateQueued State = iota
	StateSent
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateSent:
		return "sent"
	default:
		return "unknown"
	}
}

// Key identifies one origin event. Event ids are unique within an origin.
type Key struct {
	Origin int64
	Event  int
}

type Config struct {
	// TTL bounds entry lifetime regardless of state (default 300s).
	TTL time.Duration

	// TakeoverAfter is the stale-queued reclaim threshold (default 15s).
	// A queued entry older than this is presumed abandoned: its owner's queue
	// submission failed silently or the owner died. Re-admitting here opens a
	// small race window (a slow owner may still deliver, yielding a rare
	// duplicate); that is accepted rather than hidden.
	TakeoverAfter time.Duration
}

type entry struct {
	state State
	owner string
	at    time.Time
}

// Verdict is the admission outcome.
type Verdict struct {
	Admitted bool
	// Takeover is set when an abandoned queued entry was re-claimed.
	Takeover bool
	// PriorState is meaningful only when Admitted is false.
	PriorState State
}

// Cache is safe for concurrent use by all account connections. The critical
// region covers only map lookup and state transition; delivery I/O happens
// outside it.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[Key]entry

	now func() time.Time
}

func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 300 * time.Second
	}
	if cfg.TakeoverAfter <= 0 {
		cfg.TakeoverAfter = 15 * time.Second
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[Key]entry),
		now:     time.Now,
	}
}

// Admit claims key for delivery on behalf of owner.
//
// Exactly one of two concurrent callers admits for a fresh key; a sent entry
// rejects until expiry; a queued entry rejects while fresh and is taken over
// once older than TakeoverAfter.
func (c *Cache) Admit(key Key, owner string) Verdict {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked(now)

	e, ok := c.entries[key]
	if !ok {
		c.entries[key] = entry{state: StateQueued, owner: owner, at: now}
		return Verdict{Admitted: true}
	}
	if e.state == StateSent {
		return Verdict{PriorState: StateSent}
	}
	if now.Sub(e.at) < c.cfg.TakeoverAfter {
		return Verdict{PriorState: StateQueued}
	}
	// Stale queued entry: presume the original owner abandoned it.
	c.entries[key] = entry{state: StateQueued, owner: owner, at: now}
	return Verdict{Admitted: true, Takeover: true}
}

// MarkSent finalizes a queued entry after successful delivery. The entry
// becomes terminal until TTL expiry. Reports whether the entry existed.
func (c *Cache) MarkSent(key Key) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked(now)

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.state = StateSent
	e.at = now
	c.entries[key] = e
	return true
}

// Release rolls back an admission after a failed enqueue or delivery,
// making the key eligible for a later duplicate to retry.
func (c *Cache) Release(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Owner reports the current owning account for key, if present.
func (c *Cache) Owner(key Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	return e.owner, true
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// purgeLocked drops entries older than TTL regardless of state, bounding
// memory without a dedicated background sweep. Call with c.mu held.
func (c *Cache) purgeLocked(now time.Time) {
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.cfg.TTL {
			delete(c.entries, k)
		}
	}
}
