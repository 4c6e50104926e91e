package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oversift/trustwatch/internal/trust"
)

const companyColumns = `id, display_name, domain, categories, risk_score, user_id, last_crawled_at, created_at, updated_at`

func scanCompany(row pgx.Row) (trust.Company, error) {
	var c trust.Company
	var cats []string
	err := row.Scan(&c.ID, &c.DisplayName, &c.Domain, &cats, &c.RiskScore, &c.UserID, &c.LastCrawledAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return trust.Company{}, err
	}
	c.Categories = make([]trust.Category, len(cats))
	for i, cat := range cats {
		c.Categories[i] = trust.Category(cat)
	}
	return c, nil
}

func categoryStrings(cats []trust.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

// CreateCompany inserts a company row.
func (s *Store) CreateCompany(ctx context.Context, c trust.Company) error {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO companies (id, display_name, domain, categories, risk_score, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.DisplayName, c.Domain, categoryStrings(c.Categories), c.RiskScore, c.UserID, c.CreatedAt, c.UpdatedAt); err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

// GetCompany loads a company by id.
func (s *Store) GetCompany(ctx context.Context, id string) (trust.Company, error) {
	c, err := scanCompany(s.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return trust.Company{}, trust.ErrNotFound
	}
	if err != nil {
		return trust.Company{}, fmt.Errorf("get company %s: %w", id, err)
	}
	return c, nil
}

// ListCompanies returns all companies.
func (s *Store) ListCompanies(ctx context.Context) ([]trust.Company, error) {
	return s.listCompanies(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY created_at`)
}

// ListCompaniesByUser returns the companies owned by userID.
func (s *Store) ListCompaniesByUser(ctx context.Context, userID string) ([]trust.Company, error) {
	return s.listCompanies(ctx, `SELECT `+companyColumns+` FROM companies WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (s *Store) listCompanies(ctx context.Context, sql string, args ...any) ([]trust.Company, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []trust.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCompany removes a company; its targets cascade. Claims, versions,
// events, runs, and evidence are kept for audit.
func (s *Store) DeleteCompany(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete company %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return trust.ErrNotFound
	}
	return nil
}

// AddRiskScore bumps the risk score by delta, clamped to [0, 100]. The
// increment is atomic so concurrent events do not lose updates.
func (s *Store) AddRiskScore(ctx context.Context, id string, delta int) error {
	if delta == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE companies
		SET risk_score = LEAST(100, GREATEST(0, risk_score + $2)), updated_at = now()
		WHERE id = $1
	`, id, delta); err != nil {
		return fmt.Errorf("add risk score: %w", err)
	}
	return nil
}

// TouchCompanyCrawled stamps last_crawled_at.
func (s *Store) TouchCompanyCrawled(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE companies SET last_crawled_at = $2, updated_at = now() WHERE id = $1
	`, id, at); err != nil {
		return fmt.Errorf("touch company crawled: %w", err)
	}
	return nil
}
