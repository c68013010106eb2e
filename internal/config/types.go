package config

type Config struct {
	Sink     SinkConfig      `json:"sink"`
	Accounts []AccountConfig `json:"accounts"`
	Logging  LoggingConfig   `json:"logging"`
	Catalog  CatalogConfig   `json:"catalog"`
	Keywords KeywordsConfig  `json:"keywords"`
	Groups   GroupsConfig    `json:"groups"`
	Dedup    DedupConfig     `json:"dedup"`
	Delivery DeliveryConfig  `json:"delivery"`
	Alerts   AlertsConfig    `json:"alerts"`
}

// SinkConfig identifies the delivery endpoint: the bot that forwards matched
// messages and the single destination chat they are forwarded to.
type SinkConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// AccountConfig describes one monitored account connection.
// Each account runs its own long-poll loop and contributes events
// independently; one failing account never stops the others.
type AccountConfig struct {
	Name  string `json:"name"`
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// CatalogConfig controls the keyword/group/account catalog store.
//
// Example:
//
//	"catalog": { "path": "./groupwatch.db" }
type CatalogConfig struct {
	Path string `json:"path"`

	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// KeywordsConfig controls the keyword index refresh cadence.
// A failed refresh keeps the previous index in force.
type KeywordsConfig struct {
	// RefreshEvery is a Go duration string. Default "300s".
	RefreshEvery string `json:"refresh_every,omitempty"`

	// Seed, when non-empty, replaces the catalog keyword set at startup.
	// Runtime keyword changes go through the catalog directly.
	Seed []string `json:"seed,omitempty"`
}

type GroupsConfig struct {
	// SyncEvery controls the account group-inventory sync. Default "30m".
	SyncEvery string `json:"sync_every,omitempty"`

	// BlockedRefreshEvery controls the blocked-group set refresh. Default "2m".
	BlockedRefreshEvery string `json:"blocked_refresh_every,omitempty"`
}

// DedupConfig tunes the cross-account dedup cache.
//
// TakeoverAfter is deliberately a tunable, not load-bearing precision: a
// queued entry older than this is presumed abandoned and may be re-claimed
// by another account. The race window this opens is accepted (worst case a
// few duplicate notifications for one event).
type DedupConfig struct {
	// TTL bounds entry lifetime regardless of state. Default "300s".
	TTL string `json:"ttl,omitempty"`

	// TakeoverAfter is the stale-queued reclaim threshold. Default "15s".
	TakeoverAfter string `json:"takeover_after,omitempty"`
}

// DeliveryConfig controls the outbound worker pool.
//
// All durations are Go duration strings.
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - rate_per_sec: 10
//   - retry_max: 8
//   - retry_margin: "1s"
type DeliveryConfig struct {
	Workers    int `json:"workers,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`

	// RetryMax bounds internal attempts per notification when the endpoint
	// answers with a rate-limit wait hint.
	RetryMax int `json:"retry_max,omitempty"`

	// RetryMargin is added on top of the endpoint's retry-after hint.
	RetryMargin string `json:"retry_margin,omitempty"`
}

// AlertsConfig controls the operator side-channel.
type AlertsConfig struct {
	ChatID int64 `json:"chat_id,omitempty"`

	// Cooldown is the minimum interval between alerts for the same key.
	// Default "120s".
	Cooldown string `json:"cooldown,omitempty"`
}
