package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/metrics"
)

// Handler executes one job. A returned error is surfaced to the queue so
// backoff applies.
type Handler func(ctx context.Context, job Job) error

// Pool runs a fixed number of workers against one named queue.
type Pool struct {
	source       Source
	queueName    string
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewPool constructs a Pool.
func NewPool(source Source, queueName string, handler Handler, concurrency int, pollInterval time.Duration, logger *zap.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Pool{
		source:       source,
		queueName:    queueName,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run blocks until the context finishes. Workers stop claiming new jobs on
// cancellation and let in-flight jobs complete.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, ok, err := p.source.Claim(ctx, p.queueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("claim failed", zap.String("queue", p.queueName), zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if !ok {
			p.sleep(ctx)
			continue
		}
		p.execute(ctx, job)
	}
}

func (p *Pool) execute(ctx context.Context, job Job) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	// In-flight jobs finish even when shutdown begins mid-execution.
	jobCtx := context.WithoutCancel(ctx)

	if err := p.handler(jobCtx, job); err != nil {
		p.logger.Warn("job failed",
			zap.String("queue", p.queueName),
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		metrics.ObserveJob(p.queueName, "failed")
		if ferr := p.source.Fail(jobCtx, job.ID, err); ferr != nil {
			p.logger.Error("record job failure", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		return
	}
	metrics.ObserveJob(p.queueName, "completed")
	if err := p.source.Complete(jobCtx, job.ID); err != nil {
		p.logger.Error("record job completion", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (p *Pool) sleep(ctx context.Context) {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// RunSweeper deletes expired completed/failed jobs on a fixed cadence until
// the context finishes.
func RunSweeper(ctx context.Context, q *Postgres, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Sweep(ctx); err != nil {
				logger.Warn("queue sweep failed", zap.Error(err))
			}
		}
	}
}
