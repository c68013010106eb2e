// Package refresh keeps the in-memory working set (keyword index, blocked
// groups, group roster) aligned with the catalog on periodic schedules.
// A failed cycle keeps the last-known-good state.
package refresh

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"groupwatch/internal/catalog"
	"groupwatch/internal/match"
	"groupwatch/pkg/logx"
)

// Config holds the refresh intervals.
type Config struct {
	// Keywords is the keyword-index rebuild interval.
	Keywords time.Duration
	// Groups is the group roster sync interval.
	Groups time.Duration
	// Blocked is the blocked-set refresh interval.
	Blocked time.Duration
}

// GroupSyncFunc reconciles the roster with the outside world (e.g. upserts
// current chat metadata). Optional.
type GroupSyncFunc func(ctx context.Context) error

// Service runs the periodic refresh jobs.
type Service struct {
	cfg   Config
	store catalog.Store
	index *match.Index
	sync  GroupSyncFunc
	log   logx.Logger

	blocked atomic.Pointer[map[int64]bool]

	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

// New creates the refresh service. Intervals default to 5m keywords, 30m
// groups, 2m blocked.
func New(cfg Config, store catalog.Store, index *match.Index, sync GroupSyncFunc, log logx.Logger) *Service {
	if cfg.Keywords <= 0 {
		cfg.Keywords = 5 * time.Minute
	}
	if cfg.Groups <= 0 {
		cfg.Groups = 30 * time.Minute
	}
	if cfg.Blocked <= 0 {
		cfg.Blocked = 2 * time.Minute
	}
	s := &Service{cfg: cfg, store: store, index: index, sync: sync, log: log}
	empty := map[int64]bool{}
	s.blocked.Store(&empty)
	return s
}

// Blocked reports whether chatID is currently blocked.
func (s *Service) Blocked(chatID int64) bool {
	return (*s.blocked.Load())[chatID]
}

// Prime loads everything once, synchronously. Called before ingestion
// starts so the first events see a populated index.
func (s *Service) Prime(ctx context.Context) error {
	if err := s.refreshKeywords(ctx); err != nil {
		return fmt.Errorf("prime keywords: %w", err)
	}
	if err := s.refreshBlocked(ctx); err != nil {
		return fmt.Errorf("prime blocked groups: %w", err)
	}
	return nil
}

// Start registers the cron entries and begins the schedules.
func (s *Service) Start(ctx context.Context) error {
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New()

	jobs := []struct {
		name  string
		every time.Duration
		run   func(ctx context.Context) error
	}{
		{"keywords", s.cfg.Keywords, s.refreshKeywords},
		{"blocked_groups", s.cfg.Blocked, s.refreshBlocked},
		{"group_sync", s.cfg.Groups, s.syncGroups},
	}
	for _, j := range jobs {
		j := j
		spec := fmt.Sprintf("@every %s", j.every)
		_, err := s.c.AddFunc(spec, func() {
			start := time.Now()
			if err := j.run(s.runCtx); err != nil {
				s.log.Warn("refresh cycle failed, keeping last state",
					logx.String("job", j.name), logx.Err(err))
				return
			}
			s.log.Debug("refresh cycle done",
				logx.String("job", j.name), logx.Duration("took", time.Since(start)))
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}
	s.c.Start()
	s.log.Info("refresh schedules started",
		logx.Duration("keywords", s.cfg.Keywords),
		logx.Duration("groups", s.cfg.Groups),
		logx.Duration("blocked", s.cfg.Blocked))
	return nil
}

// Stop halts the schedules and waits for a running job to finish.
func (s *Service) Stop(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	if s.c == nil {
		return
	}
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("refresh stop timed out")
	}
}

func (s *Service) refreshKeywords(ctx context.Context) error {
	terms, err := s.store.Keywords(ctx)
	if err != nil {
		return err
	}
	s.index.Rebuild(terms)
	s.log.Debug("keyword index rebuilt", logx.Int("terms", s.index.Len()))
	return nil
}

func (s *Service) refreshBlocked(ctx context.Context) error {
	blocked, err := s.store.BlockedGroups(ctx)
	if err != nil {
		return err
	}
	if blocked == nil {
		blocked = map[int64]bool{}
	}
	s.blocked.Store(&blocked)
	return nil
}

func (s *Service) syncGroups(ctx context.Context) error {
	if s.sync != nil {
		if err := s.sync(ctx); err != nil {
			return err
		}
	}
	// Blocked flags may have changed during the sync.
	return s.refreshBlocked(ctx)
}
