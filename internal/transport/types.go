// Package transport defines the outbound delivery contract: a Sink accepts
// one "send message" call and reports success, a rate-limit signal carrying a
// wait hint, or a hard failure for that attempt.
package transport

import "context"

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Button is one inline keyboard button. URL-only; the pipeline never needs
// callback buttons.
type Button struct {
	Text string
	URL  string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool

	// Buttons is the inline keyboard layout, row by row.
	Buttons [][]Button
}

// Sink is the delivery endpoint.
//
// Send returns a RetryAfterError (see errors.go) when the endpoint signals a
// rate limit with a wait hint; any other error is a hard failure for the attempt.
type Sink interface {
	Send(ctx context.Context, to ChatTarget, html string, opt SendOptions) (MessageRef, error)
}
