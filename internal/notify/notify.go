// Package notify assembles the queued delivery unit for one admitted event:
// HTML body, permalinks, and the inline button layout.
package notify

import (
	"fmt"
	"strings"

	"groupwatch/internal/dedup"
	"groupwatch/internal/event"
	"groupwatch/internal/extract"
	"groupwatch/internal/transport"
	"groupwatch/pkg/tgui"
)

// MaxLinks bounds extracted URLs carried into a notification.
const MaxLinks = 3

// Notification is created once per admitted dedup entry and consumed
// exactly once by a delivery worker.
type Notification struct {
	Key     dedup.Key
	Account string
	Keyword string

	OriginTitle string
	Text        string
	URLs        []string
	Sender      event.Sender

	OriginLink  string
	MessageLink string
}

// Build derives the notification from a classified event and its extraction.
func Build(ev event.InboundEvent, keyword string, res extract.Result) Notification {
	urls := res.URLs
	if len(urls) > MaxLinks {
		urls = urls[:MaxLinks]
	}
	title := strings.TrimSpace(ev.OriginTitle)
	if title == "" {
		title = fmt.Sprintf("Group %d", ev.Origin)
	}
	return Notification{
		Key:         dedup.Key{Origin: ev.Origin, Event: ev.ID},
		Account:     ev.Account,
		Keyword:     keyword,
		OriginTitle: title,
		Text:        MaskPhoneNumbers(res.Text),
		URLs:        urls,
		Sender:      ev.Sender,
		OriginLink:  OriginLink(ev),
		MessageLink: MessageLink(ev),
	}
}

// BodyHTML renders the sink message. Safe for ParseMode="HTML".
func (n Notification) BodyHTML() string {
	var b strings.Builder
	b.WriteString(tgui.B("🔔 Keyword match").String())
	b.WriteString("\n\n")
	b.WriteString(tgui.JoinH("\n",
		tgui.Raw("📍 "+tgui.B("Group:").String()+" "+tgui.Esc(n.OriginTitle).String()),
		tgui.Raw("🔑 "+tgui.B("Keyword:").String()+" "+tgui.Code(n.Keyword).String()),
	).String())
	b.WriteString("\n\n")
	b.WriteString(tgui.Esc(n.Text).String())

	if len(n.URLs) > 0 {
		b.WriteString("\n")
		for _, u := range n.URLs {
			b.WriteString("\n🔗 ")
			b.WriteString(tgui.Esc(u).String())
		}
	}

	if mention := n.senderHTML(); mention != "" {
		b.WriteString("\n\n👤 ")
		b.WriteString(mention)
	}
	return b.String()
}

func (n Notification) senderHTML() string {
	s := n.Sender
	if s.Anonymous {
		return ""
	}
	label := s.Label()
	if label == "" {
		return ""
	}
	if s.ID != 0 {
		return tgui.Mention(label, s.ID).String()
	}
	// No user ID to deep-link; italics signal the name is display-only.
	return tgui.I(label).String()
}

// Buttons builds the inline keyboard: sender deep-link when available,
// group/message navigation, then one button per extracted link.
func (n Notification) Buttons() [][]transport.Button {
	rows := make([][]transport.Button, 0, 2+len(n.URLs))
	if !n.Sender.Anonymous && n.Sender.ID != 0 {
		rows = append(rows, []transport.Button{{
			Text: "👤 Sender",
			URL:  fmt.Sprintf("tg://user?id=%d", n.Sender.ID),
		}})
	}
	nav := []transport.Button{}
	if n.OriginLink != "" {
		nav = append(nav, transport.Button{Text: "📍 Go to group", URL: n.OriginLink})
	}
	if n.MessageLink != "" {
		nav = append(nav, transport.Button{Text: "🔗 Go to message", URL: n.MessageLink})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	for i, u := range n.URLs {
		rows = append(rows, []transport.Button{{
			Text: fmt.Sprintf("Link %d", i+1),
			URL:  u,
		}})
	}
	return rows
}

// MessageLink builds the t.me permalink for the event.
// Public chats link by username; private supergroups use the /c/ form with
// the -100 prefix stripped.
func MessageLink(ev event.InboundEvent) string {
	if ev.OriginUsername != "" {
		return fmt.Sprintf("https://t.me/%s/%d", ev.OriginUsername, ev.ID)
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", privateChatSlug(ev.Origin), ev.ID)
}

// OriginLink builds the t.me link for the origin chat itself.
func OriginLink(ev event.InboundEvent) string {
	if ev.OriginUsername != "" {
		return "https://t.me/" + ev.OriginUsername
	}
	return "https://t.me/c/" + privateChatSlug(ev.Origin)
}

func privateChatSlug(origin int64) string {
	s := fmt.Sprintf("%d", origin)
	s = strings.TrimPrefix(s, "-100")
	return strings.TrimPrefix(s, "-")
}
