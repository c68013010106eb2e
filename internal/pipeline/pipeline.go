// Package pipeline ties ingestion to delivery: each inbound event is
// filtered, classified, admitted through the dedup cache, and enqueued as
// a notification. Exactly one observer of an event reaches the queue.
package pipeline

import (
	"context"

	"groupwatch/internal/alert"
	"groupwatch/internal/classify"
	"groupwatch/internal/dedup"
	"groupwatch/internal/event"
	"groupwatch/internal/extract"
	"groupwatch/internal/notify"
	"groupwatch/internal/queue"
	"groupwatch/pkg/logx"
)

// BlockedFunc reports whether an origin chat is currently blocked.
type BlockedFunc func(chatID int64) bool

// Pipeline processes inbound events from all accounts.
type Pipeline struct {
	classifier *classify.Classifier
	cache      *dedup.Cache
	queue      *queue.Queue
	alerts     *alert.Alerter
	blocked    BlockedFunc
	log        logx.Logger
}

// New assembles the pipeline. blocked may be nil (nothing blocked).
func New(classifier *classify.Classifier, cache *dedup.Cache, q *queue.Queue, alerts *alert.Alerter, blocked BlockedFunc, log logx.Logger) *Pipeline {
	if blocked == nil {
		blocked = func(int64) bool { return false }
	}
	return &Pipeline{
		classifier: classifier,
		cache:      cache,
		queue:      q,
		alerts:     alerts,
		blocked:    blocked,
		log:        log,
	}
}

// Consume drains in until ctx is done. Run exactly one Consume per channel:
// a single drainer is what keeps same-origin events admitted in arrival
// order. Process itself is safe for concurrent use across channels.
func (p *Pipeline) Consume(ctx context.Context, in <-chan event.InboundEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-in:
			p.Process(ctx, ev)
		}
	}
}

// Process runs one event through the full admission path.
func (p *Pipeline) Process(ctx context.Context, ev event.InboundEvent) {
	if p.blocked(ev.Origin) {
		p.log.Trace("event from blocked group dropped",
			logx.Int64("origin", ev.Origin), logx.Int("event", ev.ID))
		return
	}

	term, matched, reason := p.classifier.Classify(ev)
	if !matched {
		if reason != classify.ReasonNoMatch {
			p.log.Trace("event skipped",
				logx.Int64("origin", ev.Origin), logx.Int("event", ev.ID),
				logx.String("reason", string(reason)))
		}
		return
	}

	key := dedup.Key{Origin: ev.Origin, Event: ev.ID}
	v := p.cache.Admit(key, ev.Account)
	if !v.Admitted {
		p.log.Trace("event already owned",
			logx.Int64("origin", ev.Origin), logx.Int("event", ev.ID),
			logx.String("state", v.PriorState.String()))
		return
	}
	if v.Takeover {
		p.log.Debug("stale ownership taken over",
			logx.Int64("origin", ev.Origin), logx.Int("event", ev.ID),
			logx.String("account", ev.Account))
	}

	res := extract.Extract(ev.Text, ev.Entities, ev.Media)
	n := notify.Build(ev, term, res)

	if err := p.queue.TryEnqueue(n); err != nil {
		// Give the event back so a later observer can retry once there is
		// room again.
		p.cache.Release(key)
		p.log.Warn("delivery queue full, notification dropped",
			logx.Int64("origin", ev.Origin), logx.Int("event", ev.ID),
			logx.String("keyword", term))
		if p.alerts != nil {
			p.alerts.Notify(ctx, "queue_full", "delivery queue is full, notifications are being dropped")
		}
		return
	}

	p.log.Info("match queued",
		logx.Int64("origin", ev.Origin), logx.Int("event", ev.ID),
		logx.String("keyword", term), logx.String("account", ev.Account))
}
