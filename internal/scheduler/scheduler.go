// Package scheduler implements the single-leader periodic enqueuer. Replicas
// contend for a short-lived redis lock; the winner enumerates every watched
// target and submits a batch of crawl jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/trust"
)

// LockKey is the shared leader-election key.
const LockKey = "scheduler:crawl:lock"

// LockTTL is deliberately shorter than any sane tick period so a crashed
// tick cannot wedge scheduling.
const LockTTL = 60 * time.Second

// Locker is the subset of redislock.Client the scheduler uses.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// Stores is the read surface the scheduler needs.
type Stores interface {
	ListCompanies(ctx context.Context) ([]trust.Company, error)
	ListTargets(ctx context.Context, companyID string) ([]trust.CrawlTarget, error)
}

// Scheduler fires EnqueueAll on a cron cadence while holding the lock.
type Scheduler struct {
	stores   Stores
	enqueuer trust.Enqueuer
	locker   Locker
	schedule cron.Schedule
	logger   *zap.Logger
}

// New parses the cron expression (standard five fields) and builds a
// Scheduler.
func New(stores Stores, enqueuer trust.Enqueuer, locker Locker, cronExpr string, logger *zap.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", cronExpr, err)
	}
	return &Scheduler{
		stores:   stores,
		enqueuer: enqueuer,
		locker:   locker,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Run blocks, ticking on the cron schedule until the context finishes.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", zap.Error(err))
		}
	}
}

// Tick runs one scheduling pass. Losing the lock race is a silent no-op so
// replicas are safe; the lock is left to expire by TTL, keeping replicas
// that tick within the window out.
func (s *Scheduler) Tick(ctx context.Context) error {
	_, err := s.locker.Obtain(ctx, LockKey, LockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		s.logger.Debug("scheduler lock held elsewhere; skipping tick")
		return nil
	}
	if err != nil {
		return fmt.Errorf("obtain scheduler lock: %w", err)
	}

	enqueued, err := s.EnqueueAll(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("scheduled crawl cycle", zap.Int("jobs", enqueued))
	return nil
}

// EnqueueAll submits a crawl job per watched target. Per-target enqueue
// errors are logged and do not abort the batch.
func (s *Scheduler) EnqueueAll(ctx context.Context) (int, error) {
	companies, err := s.stores.ListCompanies(ctx)
	if err != nil {
		return 0, fmt.Errorf("list companies: %w", err)
	}

	enqueued := 0
	for _, company := range companies {
		targets, err := s.stores.ListTargets(ctx, company.ID)
		if err != nil {
			s.logger.Error("list targets failed", zap.String("company_id", company.ID), zap.Error(err))
			continue
		}
		for _, target := range targets {
			payload := trust.CrawlPayload{
				CompanyID: company.ID,
				TargetID:  target.ID,
				URL:       target.URL,
			}
			if _, err := s.enqueuer.Enqueue(ctx, trust.QueueCrawlTarget, payload, trust.CrawlKey(company.ID, target.ID), trust.PriorityCrawl); err != nil {
				s.logger.Error("enqueue crawl failed",
					zap.String("company_id", company.ID),
					zap.String("target_id", target.ID),
					zap.Error(err),
				)
				continue
			}
			enqueued++
		}
	}
	return enqueued, nil
}
