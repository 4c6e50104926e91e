// Command worker runs the job consumers: crawl workers, evidence workers,
// and the alert mailer, plus the queue retention sweeper.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/oversift/trustwatch/internal/app"
	"github.com/oversift/trustwatch/internal/clock/system"
	"github.com/oversift/trustwatch/internal/queue"
	"github.com/oversift/trustwatch/internal/trust"
	"github.com/oversift/trustwatch/internal/worker"
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

	clock := system.New()
	cfg := a.Cfg

	crawlWorker := worker.NewCrawlWorker(a.Store, a.Fetcher, a.Queue, clock, worker.CrawlConfig{
		FetchTimeout:   cfg.FetchTimeout(),
		AlertHourlyCap: cfg.Alerts.HourlyCap,
	}, a.Logger.Named("crawl"))
	evidenceWorker := worker.NewEvidenceWorker(a.Store, a.Parser, clock, cfg.ParseTimeout(), a.Logger.Named("evidence"))
	alertWorker := worker.NewAlertWorker(a.Store, a.Mailer, clock, cfg.Alerts.HourlyCap, a.Logger.Named("alert"))

	pools := []*queue.Pool{
		queue.NewPool(a.Queue, trust.QueueCrawlTarget, crawlWorker.Handle, cfg.Crawler.Concurrency, cfg.PollInterval(), a.Logger.Named("crawl")),
		queue.NewPool(a.Queue, trust.QueueProcessEvidence, evidenceWorker.Handle, cfg.Evidence.Concurrency, cfg.PollInterval(), a.Logger.Named("evidence")),
		queue.NewPool(a.Queue, trust.QueueSendAlertEmail, alertWorker.Handle, cfg.Alerts.Concurrency, cfg.PollInterval(), a.Logger.Named("alert")),
	}

	a.Logger.Info("workers running")

	var wg sync.WaitGroup
	for _, pool := range pools {
		wg.Add(1)
		go func(p *queue.Pool) {
			defer wg.Done()
			p.Run(ctx)
		}(pool)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.RunSweeper(ctx, a.Queue, 10*time.Minute, a.Logger.Named("sweeper"))
	}()

	wg.Wait()
}
