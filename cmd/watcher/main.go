package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"groupwatch/internal/core"
	"groupwatch/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Bootstrap logger for failures before the configured log service is up.
	boot := logx.NewConsole("info")

	app, err := core.NewApp(cfgPath)
	if err != nil {
		boot.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		boot.Error("start failed", logx.Err(err))
		app.Stop(context.Background())
		os.Exit(1)
	}

	// No-op outside systemd units.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-app.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	app.Stop(context.Background())

	if err := app.Err(); err != nil && ctx.Err() == nil {
		boot.Error("exited with error", logx.Err(err))
		os.Exit(1)
	}
}
