// Package core assembles the watcher: config, logging, catalog, the
// per-account ingestion sources, the matching pipeline, and the delivery
// pool, all under one supervisor.
package core

import (
	"context"
	"fmt"
	"time"

	"groupwatch/internal/alert"
	"groupwatch/internal/catalog"
	"groupwatch/internal/classify"
	"groupwatch/internal/config"
	"groupwatch/internal/dedup"
	"groupwatch/internal/deliver"
	"groupwatch/internal/event"
	"groupwatch/internal/match"
	"groupwatch/internal/pipeline"
	"groupwatch/internal/queue"
	"groupwatch/internal/refresh"
	rtsup "groupwatch/internal/runtime/supervisor"
	srctelegram "groupwatch/internal/source/telegram"
	sinktelegram "groupwatch/internal/transport/telegram"
	"groupwatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	store catalog.Store
	sink  *sinktelegram.Sink

	index   *match.Index
	cache   *dedup.Cache
	queue   *queue.Queue
	alerts  *alert.Alerter
	deliver *deliver.Service
	refresh *refresh.Service
	pipe    *pipeline.Pipeline

	sources []*srctelegram.Source
	events  chan event.InboundEvent
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout := config.Duration(cfg.Catalog.BusyTimeout, 5*time.Second)
	store, err := catalog.Open(catalog.Config{
		Path:        cfg.Catalog.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "catalog")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	sink, err := sinktelegram.New(sinktelegram.Config{Token: cfg.Sink.Token},
		log.With(logx.String("comp", "sink")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("sink: %w", err)
	}

	sources := make([]*srctelegram.Source, 0, len(cfg.Accounts))
	for _, ac := range cfg.Accounts {
		pollTimeout := config.Duration(ac.PollTimeout, 10*time.Second)
		src, err := srctelegram.New(srctelegram.Config{
			Name:        ac.Name,
			Token:       ac.Token,
			PollTimeout: pollTimeout,
		}, log.With(logx.String("comp", "source"), logx.String("account", ac.Name)))
		if err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("account %s: %w", ac.Name, err)
		}
		sources = append(sources, src)
	}

	ttl := config.Duration(cfg.Dedup.TTL, 0)
	takeover := config.Duration(cfg.Dedup.TakeoverAfter, 0)
	cache := dedup.New(dedup.Config{TTL: ttl, TakeoverAfter: takeover})

	queueSize := cfg.Delivery.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	q := queue.New(queueSize)

	cooldown := config.Duration(cfg.Alerts.Cooldown, 0)
	alerts := alert.New(alert.Config{ChatID: cfg.Alerts.ChatID, Cooldown: cooldown},
		sink, log.With(logx.String("comp", "alerts")))

	retryMargin := config.Duration(cfg.Delivery.RetryMargin, 0)
	deliverSvc := deliver.New(deliver.Config{
		Workers:     cfg.Delivery.Workers,
		RatePerSec:  cfg.Delivery.RatePerSec,
		RetryMax:    cfg.Delivery.RetryMax,
		RetryMargin: retryMargin,
		SinkChat:    cfg.Sink.ChatID,
	}, sink, q, cache, store, log.With(logx.String("comp", "deliver")))

	index := match.NewIndex()

	keywordsEvery := config.Duration(cfg.Keywords.RefreshEvery, 0)
	groupsEvery := config.Duration(cfg.Groups.SyncEvery, 0)
	blockedEvery := config.Duration(cfg.Groups.BlockedRefreshEvery, 0)
	groupSync := func(ctx context.Context) error {
		// Every account refreshes the groups it can see; unseen chats are
		// skipped inside SyncGroups.
		for _, src := range sources {
			if err := src.SyncGroups(ctx, store); err != nil {
				return err
			}
		}
		return nil
	}
	refreshSvc := refresh.New(refresh.Config{
		Keywords: keywordsEvery,
		Groups:   groupsEvery,
		Blocked:  blockedEvery,
	}, store, index, groupSync, log.With(logx.String("comp", "refresh")))

	classifier := classify.New(index, cfg.Sink.ChatID)
	pipe := pipeline.New(classifier, cache, q, alerts, refreshSvc.Blocked,
		log.With(logx.String("comp", "pipeline")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		sink:    sink,
		index:   index,
		cache:   cache,
		queue:   q,
		alerts:  alerts,
		deliver: deliverSvc,
		refresh: refreshSvc,
		pipe:    pipe,
		sources: sources,
		events:  make(chan event.InboundEvent, 256),
	}, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional hot reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	if seed := a.cfgm.Get().Keywords.Seed; len(seed) > 0 {
		if err := a.store.SetKeywords(a.sup.Context(), seed); err != nil {
			return fmt.Errorf("seed keywords: %w", err)
		}
		a.log.Info("keyword set seeded", logx.Int("count", len(seed)))
	}

	// The first events must see a populated index and blocked set.
	if err := a.refresh.Prime(a.sup.Context()); err != nil {
		return err
	}
	if err := a.refresh.Start(a.sup.Context()); err != nil {
		return err
	}

	a.deliver.Start(a.sup.Context())

	// A single consumer keeps admission order equal to arrival order for
	// events from the same origin. Process is cheap; the delivery pool is
	// where the concurrency lives.
	a.sup.Go("pipeline.consume", func(c context.Context) error {
		return a.pipe.Consume(c, a.events)
	})

	for _, src := range a.sources {
		src := src
		name := src.Name()
		_ = a.store.SetAccountStatus(a.sup.Context(), name, catalog.StatusConnecting, "")
		a.sup.GoRestart("source."+name, func(c context.Context) error {
			_ = a.store.SetAccountStatus(c, name, catalog.StatusActive, "")
			err := src.Run(c, a.events)
			if err != nil && c.Err() == nil {
				_ = a.store.SetAccountStatus(c, name, catalog.StatusError, err.Error())
			}
			return err
		},
			rtsup.WithRestartBackoff(time.Second, time.Minute),
			rtsup.WithStopOnCleanExit(false),
			rtsup.WithMaxRestarts(20),
			rtsup.WithOnGiveUp(func(err error) {
				// One account giving up does not stop the others, but the
				// operator must know coverage shrank.
				_ = a.store.SetAccountStatus(context.Background(), name, catalog.StatusError, err.Error())
				a.alerts.Notify(context.Background(), "account_down:"+name,
					fmt.Sprintf("account %s stopped after repeated failures: %v", name, err))
			}),
		)
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(newCfg)
			}
		}
	})

	a.log.Info("watcher started",
		logx.Int("accounts", len(a.sources)),
		logx.Int64("sink_chat", a.cfgm.Get().Sink.ChatID))
	return nil
}

// applyReload applies the hot-reloadable sections of a committed config.
// Account, sink, and catalog changes need a restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	retryMargin := config.Duration(cfg.Delivery.RetryMargin, 0)
	a.deliver.Apply(deliver.Config{
		Workers:     cfg.Delivery.Workers,
		RatePerSec:  cfg.Delivery.RatePerSec,
		RetryMax:    cfg.Delivery.RetryMax,
		RetryMargin: retryMargin,
		SinkChat:    cfg.Sink.ChatID,
	})

	a.log.Info("config reloaded",
		logx.String("level", cfg.Logging.Level),
		logx.Int("delivery_rps", cfg.Delivery.RatePerSec))
	a.log.Debug("accounts, sink, and catalog sections require a restart to change")
}

// Stop shuts everything down in dependency order: ingestion first, then the
// schedules, then the delivery pool (aborted sends release their dedup
// entries), then storage.
func (a *App) Stop(ctx context.Context) {
	a.log.Info("stopping")

	if a.sup != nil {
		a.sup.Cancel()
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = a.sup.Wait(waitCtx)
		cancel()
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	a.refresh.Stop(stopCtx)
	cancel()

	stopCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
	a.deliver.Stop(stopCtx)
	cancel()

	for _, src := range a.sources {
		_ = a.store.SetAccountStatus(context.Background(), src.Name(), catalog.StatusStopped, "")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("catalog close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
}
