// Package telegram ingests group messages and channel posts through one
// bot account and converts them into inbound events for the matching
// pipeline.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"groupwatch/internal/catalog"
	"groupwatch/internal/event"
	"groupwatch/pkg/logx"
)

// Config holds one account's connection settings.
type Config struct {
	// Name identifies the account in logs and status records.
	Name string
	// Token is the bot token.
	Token string
	// PollTimeout is the long-poll timeout.
	PollTimeout time.Duration
}

// Source is one monitoring account. It implements event.Source.
type Source struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	out atomic.Value // stores (chan<- event.InboundEvent)

	// droppedEvents counts events dropped because the pipeline was slower
	// than the poll loop. Reported periodically to avoid per-event spam.
	droppedEvents uint64
}

// New builds the account source and registers its handlers.
func New(cfg Config, log logx.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("account token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Source{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- event.InboundEvent
	s.out.Store(nilOut)
	s.registerHandlers()
	return s, nil
}

// Name implements event.Source.
func (s *Source) Name() string { return s.cfg.Name }

func (s *Source) registerHandlers() {
	// Every handler forwards to the CURRENT output channel; Run() swaps it.
	forward := func(c tele.Context) error {
		if m := c.Message(); m != nil {
			s.emit(m)
		}
		return nil
	}
	for _, kind := range []string{
		tele.OnText, tele.OnPhoto, tele.OnVideo, tele.OnDocument,
		tele.OnAudio, tele.OnVoice, tele.OnSticker,
		// Channel posts arrive through their own update kinds, never
		// through the message handlers above.
		tele.OnChannelPost, tele.OnEditedChannelPost,
	} {
		s.bot.Handle(kind, forward)
	}
}

func (s *Source) emit(m *tele.Message) {
	if m.Chat == nil || !isMonitoredChat(m.Chat.Type) {
		return
	}
	ev := s.convert(m)

	v := s.out.Load()
	out, _ := v.(chan<- event.InboundEvent)
	if out == nil {
		return
	}
	select {
	case out <- ev:
	default:
		atomic.AddUint64(&s.droppedEvents, 1)
	}
}

func isMonitoredChat(t tele.ChatType) bool {
	switch t {
	case tele.ChatGroup, tele.ChatSuperGroup, tele.ChatChannel, tele.ChatChannelPrivate:
		return true
	}
	return false
}

func (s *Source) convert(m *tele.Message) event.InboundEvent {
	text := m.Text
	entities := m.Entities
	if text == "" && m.Caption != "" {
		text = m.Caption
		entities = m.CaptionEntities
	}

	ev := event.InboundEvent{
		Account:     s.cfg.Name,
		Origin:      m.Chat.ID,
		OriginTitle: m.Chat.Title,
		ID:          m.ID,
		Text:        text,
		Media: event.Media{
			Photo:    m.Photo != nil,
			Video:    m.Video != nil,
			Document: m.Document != nil,
			Audio:    m.Audio != nil,
			Voice:    m.Voice != nil,
			Sticker:  m.Sticker != nil,
		},
	}
	if m.Chat.Username != "" {
		ev.OriginUsername = m.Chat.Username
	}
	for _, e := range entities {
		switch e.Type {
		case tele.EntityURL:
			ev.Entities = append(ev.Entities, event.Entity{
				Kind: event.EntityURL, Offset: e.Offset, Length: e.Length,
			})
		case tele.EntityTextLink:
			ev.Entities = append(ev.Entities, event.Entity{
				Kind: event.EntityTextLink, Offset: e.Offset, Length: e.Length, URL: e.URL,
			})
		}
	}

	if m.Sender == nil {
		ev.Sender = event.Sender{Anonymous: true}
	} else {
		ev.Sender = event.Sender{
			ID:        m.Sender.ID,
			Username:  m.Sender.Username,
			FirstName: m.Sender.FirstName,
			Anonymous: m.Sender.IsBot && m.Sender.Username == "GroupAnonymousBot",
		}
		if s.bot != nil && s.bot.Me != nil && m.Sender.ID == s.bot.Me.ID {
			ev.SelfOrigin = true
		}
	}
	return ev
}

// Run implements event.Source: it polls until ctx is cancelled, forwarding
// converted events to out without blocking the poll loop.
func (s *Source) Run(ctx context.Context, out chan<- event.InboundEvent) error {
	s.out.Store(out)
	defer func() {
		var nilOut chan<- event.InboundEvent
		s.out.Store(nilOut)
	}()

	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.bot.Stop()
				if n := atomic.SwapUint64(&s.droppedEvents, 0); n > 0 {
					s.log.Warn("inbound events dropped (channel full)",
						logx.String("account", s.cfg.Name), logx.Uint64("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&s.droppedEvents, 0); n > 0 {
					s.log.Warn("inbound events dropped (channel full)",
						logx.String("account", s.cfg.Name), logx.Uint64("count", n))
				}
			}
		}
	}()

	s.log.Info("polling started", logx.String("account", s.cfg.Name))
	// Start blocks until Stop() is called from the watcher goroutine.
	s.bot.Start()
	s.log.Info("polling stopped", logx.String("account", s.cfg.Name))
	<-stopDone
	return ctx.Err()
}

// SyncGroups refreshes roster titles and usernames from Telegram for every
// group already present in the catalog. Chats this account cannot see are
// skipped.
func (s *Source) SyncGroups(ctx context.Context, store catalog.Store) error {
	groups, err := store.Groups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		chat, err := s.bot.ChatByID(g.ChatID)
		if err != nil {
			s.log.Debug("group metadata fetch failed",
				logx.String("account", s.cfg.Name), logx.Int64("chat_id", g.ChatID), logx.Err(err))
			continue
		}
		g.Title = chat.Title
		g.Username = chat.Username
		if err := store.UpsertGroup(ctx, g); err != nil {
			return err
		}
	}
	return nil
}
