// Package classify decides, for each inbound event, whether it should be
// forwarded: loop-prevention checks first, then the keyword index.
package classify

import (
	"groupwatch/internal/event"
	"groupwatch/internal/match"
)

// Reason explains why an event was not matched. Checks are ordered and
// short-circuit: sink-origin first (absolute), then self-origin, then the
// keyword scan.
type Reason string

const (
	// ReasonSinkOrigin: the event originated in the notification sink chat.
	// Forwarding it would feed the pipeline its own output.
	ReasonSinkOrigin Reason = "sink_origin"
	// ReasonSelfOrigin: the monitoring account sent the message itself.
	ReasonSelfOrigin Reason = "self_origin"
	ReasonNoMatch    Reason = "no_match"
)

type Classifier struct {
	index    *match.Index
	sinkChat int64
}

func New(index *match.Index, sinkChat int64) *Classifier {
	return &Classifier{index: index, sinkChat: sinkChat}
}

// Classify returns the matched keyword, or the ignore reason when the event
// must not be forwarded.
func (c *Classifier) Classify(ev event.InboundEvent) (term string, matched bool, reason Reason) {
	if ev.Origin == c.sinkChat {
		return "", false, ReasonSinkOrigin
	}
	if ev.SelfOrigin {
		return "", false, ReasonSelfOrigin
	}
	term, ok := c.index.Match(ev.Text)
	if !ok {
		return "", false, ReasonNoMatch
	}
	return term, true, ""
}
