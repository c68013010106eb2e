package notify

import (
	"strings"
	"testing"

	"groupwatch/internal/event"
	"groupwatch/internal/extract"
)

func TestMessageLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   event.InboundEvent
		want string
	}{
		{
			name: "public chat by username",
			ev:   event.InboundEvent{Origin: -1001234567890, OriginUsername: "citychat", ID: 42},
			want: "https://t.me/citychat/42",
		},
		{
			name: "private supergroup strips -100 prefix",
			ev:   event.InboundEvent{Origin: -1001234567890, ID: 42},
			want: "https://t.me/c/1234567890/42",
		},
		{
			name: "plain negative id strips sign",
			ev:   event.InboundEvent{Origin: -987654, ID: 7},
			want: "https://t.me/c/987654/7",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MessageLink(tt.ev); got != tt.want {
				t.Fatalf("MessageLink() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaskPhoneNumbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain number masked",
			in:   "call 0777123456 now",
			want: "call 07*****56 now",
		},
		{
			name: "international with separators",
			in:   "+998 90 123 45 67",
			want: "+99*****67",
		},
		{
			name: "short numbers untouched",
			in:   "room 404, price 123456",
			want: "room 404, price 123456",
		},
		{
			name: "multiple numbers",
			in:   "0777123456 or 0888654321",
			want: "07*****56 or 08*****21",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MaskPhoneNumbers(tt.in); got != tt.want {
				t.Fatalf("MaskPhoneNumbers(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildBoundsLinks(t *testing.T) {
	t.Parallel()

	ev := event.InboundEvent{
		Account:     "acc1",
		Origin:      -100555,
		OriginTitle: "Ride Share",
		ID:          10,
		Sender:      event.Sender{ID: 99, FirstName: "Ann"},
	}
	res := extract.Result{
		Text: "need a ride",
		URLs: []string{"https://a.example", "https://b.example", "https://c.example", "https://d.example"},
	}
	n := Build(ev, "ride", res)

	if len(n.URLs) != MaxLinks {
		t.Fatalf("URLs = %d, want %d", len(n.URLs), MaxLinks)
	}
	if n.Key.Origin != ev.Origin || n.Key.Event != ev.ID {
		t.Fatalf("Key = %+v, want origin=%d event=%d", n.Key, ev.Origin, ev.ID)
	}
	if n.Keyword != "ride" {
		t.Fatalf("Keyword = %q", n.Keyword)
	}
}

func TestBuildMasksPhonesInText(t *testing.T) {
	t.Parallel()

	ev := event.InboundEvent{Origin: -1, ID: 1, OriginTitle: "G"}
	n := Build(ev, "taxi", extract.Result{Text: "taxi to airport 0777123456"})
	if strings.Contains(n.Text, "0777123456") {
		t.Fatalf("phone not masked: %q", n.Text)
	}
	if !strings.Contains(n.Text, "07*****56") {
		t.Fatalf("unexpected mask output: %q", n.Text)
	}
}

func TestBodyHTMLEscapes(t *testing.T) {
	t.Parallel()

	n := Notification{
		OriginTitle: "A <B> & C",
		Keyword:     "k",
		Text:        "x < y",
		Sender:      event.Sender{ID: 5, FirstName: "Bob"},
	}
	body := n.BodyHTML()
	if strings.Contains(body, "A <B>") {
		t.Fatalf("origin title not escaped: %q", body)
	}
	if !strings.Contains(body, "x &lt; y") {
		t.Fatalf("text not escaped: %q", body)
	}
	if !strings.Contains(body, `tg://user?id=5`) {
		t.Fatalf("sender mention missing: %q", body)
	}

	// Without a user ID there is nothing to deep-link; the name renders
	// in italics instead.
	noID := Notification{OriginTitle: "G", Keyword: "k", Text: "t",
		Sender: event.Sender{FirstName: "Chan"}}
	if !strings.Contains(noID.BodyHTML(), "<i>Chan</i>") {
		t.Fatalf("unlinkable sender not italicized: %q", noID.BodyHTML())
	}
}

func TestButtonsLayout(t *testing.T) {
	t.Parallel()

	n := Notification{
		Sender:      event.Sender{ID: 9, FirstName: "Ann"},
		OriginLink:  "https://t.me/c/123",
		MessageLink: "https://t.me/c/123/4",
		URLs:        []string{"https://a.example"},
	}
	rows := n.Buttons()
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if len(rows[1]) != 2 {
		t.Fatalf("nav row = %d buttons, want 2", len(rows[1]))
	}

	anon := Notification{Sender: event.Sender{Anonymous: true}, MessageLink: "https://t.me/c/1/2"}
	rows = anon.Buttons()
	if len(rows) != 1 {
		t.Fatalf("anonymous sender rows = %d, want 1", len(rows))
	}
}
