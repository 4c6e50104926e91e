// Command api runs the HTTP surface: company management, manual scans, and
// event acknowledgement. It enqueues jobs and never fetches external
// content.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/api"
	"github.com/oversift/trustwatch/internal/app"
	"github.com/oversift/trustwatch/internal/clock/system"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, *configPath)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()

	server := api.NewServer(
		a.Store,
		a.Queue,
		system.New(),
		a.Cfg.Demo.UserID,
		a.Logger,
		a.Store.Ping,
		func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("api listening", zap.Int("port", a.Cfg.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("http shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("http server failed", zap.Error(err))
			a.Close()
			os.Exit(1)
		}
	}
}
