package store

import (
	"context"
	"fmt"
	"time"

	"github.com/oversift/trustwatch/internal/trust"
)

// StartRun inserts a running crawl run.
func (s *Store) StartRun(ctx context.Context, run trust.CrawlRun) error {
	var companyID any
	if run.CompanyID != "" {
		companyID = run.CompanyID
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO crawl_runs (id, company_id, started_at, status)
		VALUES ($1, $2, $3, $4)
	`, run.ID, companyID, run.StartedAt, trust.RunRunning); err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

// FinishRun stamps the run with its final status, counters, and errors.
func (s *Store) FinishRun(ctx context.Context, id string, status trust.RunStatus, counters trust.RunCounters, errs []string, at time.Time) error {
	if errs == nil {
		errs = []string{}
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE crawl_runs
		SET status = $2, pages = $3, claims = $4, events = $5, errors = $6, finished_at = $7
		WHERE id = $1
	`, id, status, counters.Pages, counters.Claims, counters.Events, errs, at); err != nil {
		return fmt.Errorf("finish crawl run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]trust.CrawlRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, company_id, started_at, finished_at, pages, claims, events, errors, status
		FROM crawl_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []trust.CrawlRun
	for rows.Next() {
		var r trust.CrawlRun
		var companyID *string
		if err := rows.Scan(&r.ID, &companyID, &r.StartedAt, &r.FinishedAt, &r.Counters.Pages, &r.Counters.Claims, &r.Counters.Events, &r.Errors, &r.Status); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if companyID != nil {
			r.CompanyID = *companyID
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
