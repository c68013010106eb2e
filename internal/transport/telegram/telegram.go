// Package telegram implements transport.Sink on top of the Telegram Bot API
// via telebot. It is outbound-only: inbound account streams live in
// internal/source/telegram.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"groupwatch/internal/transport"
	"groupwatch/pkg/logx"
)

type Config struct {
	Token string
}

type Sink struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram sink token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{bot: b, log: log}, nil
}

func (s *Sink) Send(ctx context.Context, to transport.ChatTarget, html string, opt transport.SendOptions) (transport.MessageRef, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return transport.MessageRef{}, ctx.Err()
		default:
		}
	}

	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
	if rm := markupFor(opt.Buttons); rm != nil {
		sendOpt.ReplyMarkup = rm
	}

	msg, err := s.bot.Send(&tele.Chat{ID: to.ChatID}, html, sendOpt)
	if err != nil {
		return transport.MessageRef{}, classifySendError(err)
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func markupFor(rows [][]transport.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		r := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			if b.Text == "" || b.URL == "" {
				continue
			}
			r = append(r, tele.InlineButton{Text: b.Text, URL: b.URL})
		}
		if len(r) > 0 {
			kb = append(kb, r)
		}
	}
	if len(kb) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: kb}
}

// classifySendError maps Telegram flood responses to a transport.RetryAfterError
// so workers can honor the endpoint's wait hint. Everything else passes through
// as a hard failure for the attempt.
func classifySendError(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		after := time.Duration(flood.RetryAfter) * time.Second
		return transport.RetryAfter(err, after)
	}
	return err
}
