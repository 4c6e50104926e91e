package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oversift/trustwatch/internal/trust"
)

const targetColumns = `id, company_id, url, kind, content_digest, last_crawled_at, created_at`

func scanTarget(row pgx.Row) (trust.CrawlTarget, error) {
	var t trust.CrawlTarget
	err := row.Scan(&t.ID, &t.CompanyID, &t.URL, &t.Kind, &t.ContentDigest, &t.LastCrawledAt, &t.CreatedAt)
	return t, err
}

// CreateTargets inserts targets, skipping (company, url) pairs that already
// exist.
func (s *Store) CreateTargets(ctx context.Context, targets []trust.CrawlTarget) error {
	for _, t := range targets {
		if _, err := s.db.Exec(ctx, `
			INSERT INTO crawl_targets (id, company_id, url, kind, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (company_id, url) DO NOTHING
		`, t.ID, t.CompanyID, t.URL, t.Kind, t.CreatedAt); err != nil {
			return fmt.Errorf("insert target %s: %w", t.URL, err)
		}
	}
	return nil
}

// GetTarget loads a target by id.
func (s *Store) GetTarget(ctx context.Context, id string) (trust.CrawlTarget, error) {
	t, err := scanTarget(s.db.QueryRow(ctx, `SELECT `+targetColumns+` FROM crawl_targets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return trust.CrawlTarget{}, trust.ErrNotFound
	}
	if err != nil {
		return trust.CrawlTarget{}, fmt.Errorf("get target %s: %w", id, err)
	}
	return t, nil
}

// ListTargets returns a company's targets.
func (s *Store) ListTargets(ctx context.Context, companyID string) ([]trust.CrawlTarget, error) {
	return s.listTargets(ctx, `SELECT `+targetColumns+` FROM crawl_targets WHERE company_id = $1 ORDER BY created_at`, companyID)
}

// ListAllTargets returns every target across all companies.
func (s *Store) ListAllTargets(ctx context.Context) ([]trust.CrawlTarget, error) {
	return s.listTargets(ctx, `SELECT `+targetColumns+` FROM crawl_targets ORDER BY company_id, created_at`)
}

func (s *Store) listTargets(ctx context.Context, sql string, args ...any) ([]trust.CrawlTarget, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []trust.CrawlTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTargetCrawl stamps a target's observed digest and crawl time.
func (s *Store) UpdateTargetCrawl(ctx context.Context, id, digest string, at time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE crawl_targets SET content_digest = $2, last_crawled_at = $3 WHERE id = $1
	`, id, digest, at); err != nil {
		return fmt.Errorf("update target crawl: %w", err)
	}
	return nil
}
