// Command scheduler runs the single-leader periodic enqueuer. Multiple
// replicas are safe: each tick is guarded by a short-lived redis lock.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/app"
	"github.com/oversift/trustwatch/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	immediate := flag.Bool("now", false, "run one scheduling pass immediately, then follow the cron cadence")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, *configPath)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()

	s, err := scheduler.New(a.Store, a.Queue, a.Locker, a.Cfg.Schedule.Cron, a.Logger)
	if err != nil {
		a.Logger.Fatal("build scheduler", zap.Error(err))
	}

	if *immediate {
		if err := s.Tick(ctx); err != nil {
			a.Logger.Error("immediate tick failed", zap.Error(err))
		}
	}

	a.Logger.Info("scheduler running", zap.String("cron", a.Cfg.Schedule.Cron))
	s.Run(ctx)
}
