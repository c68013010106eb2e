// Package extract derives the displayable parts of a raw event: cleaned body
// text, the ordered set of embedded URLs, and a media-presence flag.
// Pure string work, no I/O.
package extract

import (
	"regexp"
	"strings"

	"groupwatch/internal/event"
)

// Placeholders substituted when stripping leaves no body text. Link-only and
// media-only posts must never be silently dropped for having no text.
const (
	PlaceholderLinkOnly = "(link-only post)"
	PlaceholderMedia    = "(media post)"
	PlaceholderMessage  = "(message)"
)

var urlPattern = regexp.MustCompile(`(?i)(?:https?://|www\.|t\.me/)[^\s<>()"']+`)

// Result is the extractor output.
type Result struct {
	// Text is the cleaned display text; never empty.
	Text string
	// URLs are embedded links in first-seen order, de-duplicated.
	URLs []string
	// HadMedia reports whether any media flag was set on the event.
	HadMedia bool
}

// Extract cleans raw text and collects URLs from both explicit link entities
// and a generic pattern scan.
func Extract(raw string, entities []event.Entity, media event.Media) Result {
	urls := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	// Entity offsets are rune-based. Remember each URL span so it can be
	// blanked out of the body: bare domains (no scheme, no www.) are real
	// URL entities yet invisible to the generic pattern.
	runes := []rune(raw)
	var spans [][2]int
	for _, e := range entities {
		switch e.Kind {
		case event.EntityURL:
			if e.Offset >= 0 && e.Length > 0 && e.Offset+e.Length <= len(runes) {
				add(string(runes[e.Offset : e.Offset+e.Length]))
				spans = append(spans, [2]int{e.Offset, e.Offset + e.Length})
			}
		case event.EntityTextLink:
			add(e.URL)
		}
	}
	for _, u := range urlPattern.FindAllString(raw, -1) {
		add(u)
	}

	body := raw
	if len(spans) > 0 {
		blanked := append([]rune(nil), runes...)
		for _, sp := range spans {
			for i := sp[0]; i < sp[1]; i++ {
				blanked[i] = ' '
			}
		}
		body = string(blanked)
	}
	cleaned := collapseWhitespace(urlPattern.ReplaceAllString(body, " "))

	if cleaned == "" {
		switch {
		case len(urls) > 0:
			cleaned = PlaceholderLinkOnly
		case media.Any():
			cleaned = PlaceholderMedia
		case strings.TrimSpace(raw) != "":
			cleaned = strings.TrimSpace(raw)
		default:
			cleaned = PlaceholderMessage
		}
	}

	return Result{Text: cleaned, URLs: urls, HadMedia: media.Any()}
}

// collapseWhitespace squeezes runs of spaces/tabs to one space and runs of
// blank lines to a single blank line, then trims the edges.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, ln)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
