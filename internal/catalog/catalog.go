// Package catalog is the persistent configuration and audit store: the
// keyword list, the watched-group roster, per-account status, and the
// record of delivered matches.
package catalog

import (
	"context"
	"time"
)

// AccountStatus tracks an ingestion account's lifecycle.
type AccountStatus string

const (
	StatusPending    AccountStatus = "pending"
	StatusConnecting AccountStatus = "connecting"
	StatusActive     AccountStatus = "active"
	StatusError      AccountStatus = "error"
	StatusStopped    AccountStatus = "stopped"
)

// Group is a watched chat. Blocked groups stay in the roster but their
// events are discarded before matching.
type Group struct {
	ChatID   int64
	Title    string
	Username string
	Blocked  bool
}

// Hit records one successful delivery.
type Hit struct {
	At          time.Time
	Account     string
	Origin      int64
	EventID     int
	Keyword     string
	OriginTitle string
}

// Config holds store settings.
type Config struct {
	// Path is the sqlite database file. Required.
	Path string
	// BusyTimeout is applied as PRAGMA busy_timeout.
	BusyTimeout time.Duration
}

// Store is the catalog persistence interface.
type Store interface {
	// Keywords returns the active keyword terms.
	Keywords(ctx context.Context) ([]string, error)
	// SetKeywords replaces the keyword list atomically.
	SetKeywords(ctx context.Context, terms []string) error

	// Groups returns the full watched-group roster, blocked included.
	Groups(ctx context.Context) ([]Group, error)
	// BlockedGroups returns the chat IDs currently marked blocked.
	BlockedGroups(ctx context.Context) (map[int64]bool, error)
	// UpsertGroup inserts or refreshes one roster entry.
	UpsertGroup(ctx context.Context, g Group) error

	// SetAccountStatus records an account lifecycle transition.
	SetAccountStatus(ctx context.Context, name string, status AccountStatus, detail string) error

	// AppendHit records a delivered match.
	AppendHit(ctx context.Context, h Hit) error

	Close() error
}
