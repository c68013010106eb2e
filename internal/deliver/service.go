// Package deliver drains the notification queue through a rate-limited
// worker pool and settles each notification's dedup ownership: sent on
// success, released on failure so another observer may retry.
package deliver

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"groupwatch/internal/catalog"
	"groupwatch/internal/dedup"
	"groupwatch/internal/notify"
	"groupwatch/internal/queue"
	"groupwatch/internal/transport"
	"groupwatch/pkg/logx"
)

// Config holds delivery pool settings.
type Config struct {
	// Workers is the pool size.
	Workers int
	// RatePerSec caps sink sends across all workers.
	RatePerSec int
	// RetryMax bounds send attempts for one notification.
	RetryMax int
	// RetryMargin is added on top of server retry-after hints.
	RetryMargin time.Duration
	// SinkChat receives the notifications.
	SinkChat int64
	// SinkThread optionally targets a forum topic.
	SinkThread int
}

// Service is the delivery worker pool.
type Service struct {
	sink  transport.Sink
	queue *queue.Queue
	cache *dedup.Cache
	store catalog.Store
	log   logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed when workers fully exit.
	stopDone  chan struct{}
	workerWG  sync.WaitGroup
	runCtx    context.Context
	runCancel context.CancelFunc
}

// New creates the delivery service. The queue, cache, and store are shared
// with the ingestion pipeline.
func New(cfg Config, sink transport.Sink, q *queue.Queue, cache *dedup.Cache, store catalog.Store, log logx.Logger) *Service {
	cfg = withDefaults(cfg)
	return &Service{
		sink:    sink,
		queue:   q,
		cache:   cache,
		store:   store,
		log:     log,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 8
	}
	if cfg.RetryMargin <= 0 {
		cfg.RetryMargin = time.Second
	}
	return cfg
}

// Apply installs new settings. The limiter changes immediately; the pool
// size changes on next Start.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the worker pool. Safe to call after Stop completes.
func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to finish first so two
	// worker pools never overlap.
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			s.mu.Unlock()
			return // already running
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	stopCh := s.stopCh
	runCtx := s.runCtx

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in delivery worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, idx)
		}()
	}
	s.log.Info("delivery started", logx.Int("workers", workers), logx.Int("rps", s.cfg.RatePerSec))
}

// Stop shuts the pool down. In-flight sends are aborted rather than
// drained: an aborted notification's dedup entry is released, so a later
// observer of the same event can deliver it. ctx bounds the wait for the
// workers to exit.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	cancel := s.runCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	finished := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		s.log.Warn("delivery stop timed out waiting for workers")
	}

	s.mu.Lock()
	s.stopCh = nil
	s.stopDone = nil
	s.mu.Unlock()
	close(done)
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, idx int) {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		n, err := s.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		s.deliver(ctx, n, idx)
	}
}

func (s *Service) deliver(ctx context.Context, n notify.Notification, idx int) {
	s.mu.Lock()
	lim := s.limiter
	cfg := s.cfg
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		s.cache.Release(n.Key)
		return
	}

	to := transport.ChatTarget{ChatID: cfg.SinkChat, ThreadID: cfg.SinkThread}
	opt := transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
		Buttons:        n.Buttons(),
	}

	var last error
	for attempt := 1; attempt <= cfg.RetryMax; attempt++ {
		_, err := s.sink.Send(ctx, to, n.BodyHTML(), opt)
		if err == nil {
			s.settleSent(ctx, n)
			return
		}
		last = err

		hint, retryable := transport.RetryHint(err)
		if !retryable {
			break
		}
		delay := hint + cfg.RetryMargin
		s.log.Debug("delivery throttled, retry scheduled",
			logx.Int("worker", idx),
			logx.Int64("origin", n.Key.Origin), logx.Int("event", n.Key.Event),
			logx.Int("attempt", attempt), logx.Duration("delay", delay))
		if err := sleepCtx(ctx, delay); err != nil {
			break
		}
	}

	s.cache.Release(n.Key)
	s.log.Warn("delivery failed, ownership released",
		logx.Int64("origin", n.Key.Origin), logx.Int("event", n.Key.Event),
		logx.String("keyword", n.Keyword), logx.Err(last))
}

func (s *Service) settleSent(ctx context.Context, n notify.Notification) {
	s.cache.MarkSent(n.Key)
	err := s.store.AppendHit(ctx, catalog.Hit{
		Account:     n.Account,
		Origin:      n.Key.Origin,
		EventID:     n.Key.Event,
		Keyword:     n.Keyword,
		OriginTitle: n.OriginTitle,
	})
	if err != nil {
		// Delivery already happened; the audit row is best-effort.
		s.log.Warn("hit record failed", logx.Int64("origin", n.Key.Origin), logx.Err(err))
	}
	s.log.Info("notification delivered",
		logx.Int64("origin", n.Key.Origin), logx.Int("event", n.Key.Event),
		logx.String("keyword", n.Keyword), logx.String("account", n.Account))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
