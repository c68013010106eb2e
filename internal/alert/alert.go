// Package alert sends operator notices to a dedicated Telegram chat.
// Notices are keyed and rate-limited per key so a sustained fault does
// not flood the operator.
package alert

import (
	"context"
	"sync"
	"time"

	"groupwatch/internal/transport"
	"groupwatch/pkg/logx"
	"groupwatch/pkg/tgui"
)

// DefaultCooldown suppresses repeats of the same alert key.
const DefaultCooldown = 2 * time.Minute

// Config holds alerter settings.
type Config struct {
	// ChatID receives operator alerts. Zero disables sending; alerts are
	// still logged.
	ChatID int64
	// Cooldown is the minimum interval between alerts sharing a key.
	Cooldown time.Duration
}

// Alerter de-duplicates and delivers operator alerts.
type Alerter struct {
	cfg  Config
	sink transport.Sink
	log  logx.Logger

	mu   sync.Mutex
	last map[string]time.Time

	now func() time.Time
}

// New creates an Alerter sending through sink.
func New(cfg Config, sink transport.Sink, log logx.Logger) *Alerter {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Alerter{
		cfg:  cfg,
		sink: sink,
		log:  log,
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Notify emits an alert identified by key. Alerts with the same key inside
// the cooldown window are dropped. Send failures are logged, never returned:
// alerting is best-effort and must not stall the caller.
func (a *Alerter) Notify(ctx context.Context, key, text string) {
	if !a.admit(key) {
		return
	}
	a.log.Warn("operator alert", logx.String("key", key), logx.String("text", text))
	if a.cfg.ChatID == 0 || a.sink == nil {
		return
	}
	body := tgui.B("⚠️ Alert").String() + "\n\n" + tgui.Esc(text).String()
	_, err := a.sink.Send(ctx, transport.ChatTarget{ChatID: a.cfg.ChatID}, body, transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		a.log.Error("alert send failed", logx.String("key", key), logx.Err(err))
	}
}

func (a *Alerter) admit(key string) bool {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	if at, ok := a.last[key]; ok && now.Sub(at) < a.cfg.Cooldown {
		return false
	}
	a.last[key] = now
	// Drop entries old enough to be irrelevant so the map stays small.
	for k, at := range a.last {
		if now.Sub(at) >= 2*a.cfg.Cooldown {
			delete(a.last, k)
		}
	}
	return true
}
