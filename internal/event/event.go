// Package event defines the inbound contract between account connections and
// the matching pipeline: one immutable InboundEvent per observed message, and
// the Source capability that produces them.
package event

import "context"

type EntityKind string

const (
	// EntityURL marks a span of the raw text that is itself a URL.
	EntityURL EntityKind = "url"
	// EntityTextLink marks a span whose link target is carried out-of-band.
	EntityTextLink EntityKind = "text_link"
)

// Entity is one annotated span of the raw text.
// Offset/Length are in runes, matching the Telegram wire format.
type Entity struct {
	Kind   EntityKind
	Offset int
	Length int

	// URL is set for EntityTextLink.
	URL string
}

// Media summarizes attachment presence; the pipeline never downloads media.
type Media struct {
	Photo    bool
	Video    bool
	Document bool
	Audio    bool
	Voice    bool
	Sticker  bool
}

func (m Media) Any() bool {
	return m.Photo || m.Video || m.Document || m.Audio || m.Voice || m.Sticker
}

// Sender describes who sent the message. Channel posts and anonymous group
// admins have no user identity; Anonymous is set instead.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	Anonymous bool
}

// Label returns the best human-readable sender name.
func (s Sender) Label() string {
	if s.Anonymous {
		return ""
	}
	if s.Username != "" {
		return "@" + s.Username
	}
	return s.FirstName
}

// InboundEvent is one message observed by an account connection.
// Immutable once received; the core never persists it.
type InboundEvent struct {
	// Account names the connection that observed the event.
	Account string

	// Origin is the chat/group the message appeared in.
	Origin int64
	// OriginTitle is the display name of the origin, best-effort.
	OriginTitle string
	// OriginUsername is the public @name of the origin, if it has one.
	// Needed for public t.me permalinks.
	OriginUsername string

	// ID is the message identifier, unique within Origin.
	ID int

	Sender Sender

	// Text is the raw text or media caption.
	Text string

	Entities []Entity
	Media    Media

	// SelfOrigin marks messages sent by the monitoring account itself.
	// These are excluded to avoid amplifying our own traffic.
	SelfOrigin bool
}

// Source is one account connection: it produces a stream of InboundEvent
// until ctx is canceled or the connection fails.
//
// Run delivers events on out; it must not close out (the channel is shared
// by the pipeline). Reconnection policy is the caller's concern (the
// pipeline runs sources under a restart supervisor).
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- InboundEvent) error
}
