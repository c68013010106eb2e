package extract

import (
	"reflect"
	"testing"

	"groupwatch/internal/event"
)

func TestExtractPureURLText(t *testing.T) {
	t.Parallel()
	res := Extract("https://example.com/a", nil, event.Media{})
	if res.Text != PlaceholderLinkOnly {
		t.Fatalf("Text = %q, want placeholder", res.Text)
	}
	if len(res.URLs) != 1 || res.URLs[0] != "https://example.com/a" {
		t.Fatalf("URLs = %v", res.URLs)
	}
}

func TestExtractStripsURLsAndCollapsesWhitespace(t *testing.T) {
	t.Parallel()
	raw := "check this https://a.example/x \n\n\n  and   also\nwww.b.example/y tail"
	res := Extract(raw, nil, event.Media{})
	if want := "check this\n\nand also\ntail"; res.Text != want {
		t.Fatalf("Text = %q, want %q", res.Text, want)
	}
	want := []string{"https://a.example/x", "www.b.example/y"}
	if !reflect.DeepEqual(res.URLs, want) {
		t.Fatalf("URLs = %v, want %v", res.URLs, want)
	}
}

func TestExtractEntityURLs(t *testing.T) {
	t.Parallel()
	raw := "see t.me/somegroup/5 here"
	entities := []event.Entity{
		{Kind: event.EntityURL, Offset: 4, Length: 16},
		{Kind: event.EntityTextLink, URL: "https://hidden.example/z"},
	}
	res := Extract(raw, entities, event.Media{})

	want := []string{"t.me/somegroup/5", "https://hidden.example/z"}
	if !reflect.DeepEqual(res.URLs, want) {
		t.Fatalf("URLs = %v, want %v", res.URLs, want)
	}
	if res.Text != "see here" {
		t.Fatalf("Text = %q", res.Text)
	}
}

func TestExtractStripsBareDomainEntitySpans(t *testing.T) {
	t.Parallel()
	// A bare domain carries an URL entity but has no scheme or www. prefix
	// for the generic pattern to find.
	raw := "need a ride example.com/book now"
	entities := []event.Entity{{Kind: event.EntityURL, Offset: 12, Length: 16}}
	res := Extract(raw, entities, event.Media{})

	want := []string{"example.com/book"}
	if !reflect.DeepEqual(res.URLs, want) {
		t.Fatalf("URLs = %v, want %v", res.URLs, want)
	}
	if res.Text != "need a ride now" {
		t.Fatalf("Text = %q, want the entity span removed", res.Text)
	}
}

func TestExtractDeduplicatesFirstSeenOrder(t *testing.T) {
	t.Parallel()
	raw := "https://x.example https://y.example https://x.example"
	res := Extract(raw, nil, event.Media{})
	want := []string{"https://x.example", "https://y.example"}
	if !reflect.DeepEqual(res.URLs, want) {
		t.Fatalf("URLs = %v, want %v", res.URLs, want)
	}
}

func TestExtractMediaOnly(t *testing.T) {
	t.Parallel()
	res := Extract("", nil, event.Media{Photo: true})
	if res.Text != PlaceholderMedia {
		t.Fatalf("Text = %q, want media placeholder", res.Text)
	}
	if !res.HadMedia {
		t.Fatal("HadMedia = false")
	}
	if len(res.URLs) != 0 {
		t.Fatalf("URLs = %v, want none", res.URLs)
	}
}

func TestExtractEmptyEverything(t *testing.T) {
	t.Parallel()
	res := Extract("", nil, event.Media{})
	if res.Text != PlaceholderMessage {
		t.Fatalf("Text = %q, want generic placeholder", res.Text)
	}
}

func TestExtractEntityOffsetsInRunes(t *testing.T) {
	t.Parallel()
	// Cyrillic prefix: byte offsets would slice wrong.
	raw := "салом https://a.example/б"
	entities := []event.Entity{{Kind: event.EntityURL, Offset: 6, Length: 19}}
	res := Extract(raw, entities, event.Media{})
	if len(res.URLs) == 0 || res.URLs[0] != "https://a.example/б" {
		t.Fatalf("URLs = %v", res.URLs)
	}
}
