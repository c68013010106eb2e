package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// checkDuration rejects malformed or negative duration strings. Empty means
// "use the default" and is always fine.
func checkDuration(path, raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return fmt.Errorf("%s: duration must be >= 0", path)
	}
	return nil
}

// Duration resolves an optional duration field to a concrete value. Fields
// pass through Validate before anything reads them, so a value that fails to
// parse here can only mean the config was never validated; def is returned.
func Duration(raw string, def time.Duration) time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate checks structural requirements before a config is committed.
// Duration strings are parsed here so a typo is caught at (re)load time,
// not when the value is first used.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Sink.Token) == "" {
		return errors.New("sink.token is required")
	}
	if cfg.Sink.ChatID == 0 {
		return errors.New("sink.chat_id is required")
	}
	if len(cfg.Accounts) == 0 {
		return errors.New("at least one account is required")
	}
	seen := make(map[string]bool, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return fmt.Errorf("accounts[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("accounts[%d].name %q is duplicated", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(a.Token) == "" {
			return fmt.Errorf("accounts[%d].token is required", i)
		}
		if err := checkDuration(fmt.Sprintf("accounts[%d].poll_timeout", i), a.PollTimeout); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.Catalog.Path) == "" {
		return errors.New("catalog.path is required")
	}

	durations := []struct {
		path string
		raw  string
	}{
		{"catalog.busy_timeout", cfg.Catalog.BusyTimeout},
		{"keywords.refresh_every", cfg.Keywords.RefreshEvery},
		{"groups.sync_every", cfg.Groups.SyncEvery},
		{"groups.blocked_refresh_every", cfg.Groups.BlockedRefreshEvery},
		{"dedup.ttl", cfg.Dedup.TTL},
		{"dedup.takeover_after", cfg.Dedup.TakeoverAfter},
		{"delivery.retry_margin", cfg.Delivery.RetryMargin},
		{"alerts.cooldown", cfg.Alerts.Cooldown},
	}
	for _, d := range durations {
		if err := checkDuration(d.path, d.raw); err != nil {
			return err
		}
	}

	if cfg.Delivery.Workers < 0 {
		return errors.New("delivery.workers must not be negative")
	}
	if cfg.Delivery.QueueSize < 0 {
		return errors.New("delivery.queue_size must not be negative")
	}
	return nil
}
