package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oversift/trustwatch/internal/trust"
)

const claimColumns = `id, company_id, claim_type, key, status, first_seen_at, last_seen_at, snippet, source_url, confidence`

func scanClaim(row pgx.Row) (trust.Claim, error) {
	var c trust.Claim
	err := row.Scan(&c.ID, &c.CompanyID, &c.Type, &c.Key, &c.Status, &c.FirstSeenAt, &c.LastSeenAt, &c.Snippet, &c.SourceURL, &c.Confidence)
	return c, err
}

func metaJSON(m *trust.Numeric) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal claim meta: %w", err)
	}
	return b, nil
}

// FindClaim looks up the summary row for (company, type, key).
func (s *Store) FindClaim(ctx context.Context, companyID string, t trust.ClaimType, key string) (trust.Claim, error) {
	c, err := scanClaim(s.db.QueryRow(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE company_id = $1 AND claim_type = $2 AND key = $3
	`, companyID, t, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return trust.Claim{}, trust.ErrNotFound
	}
	if err != nil {
		return trust.Claim{}, fmt.Errorf("find claim %s/%s: %w", t, key, err)
	}
	return c, nil
}

// LatestVersion returns the most recent version of a claim.
func (s *Store) LatestVersion(ctx context.Context, claimID string) (trust.ClaimVersion, error) {
	var v trust.ClaimVersion
	var meta []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, claim_id, company_id, snippet, source_url, digest, seen_at, polarity, meta
		FROM claim_versions
		WHERE claim_id = $1
		ORDER BY seen_at DESC
		LIMIT 1
	`, claimID).Scan(&v.ID, &v.ClaimID, &v.CompanyID, &v.Snippet, &v.SourceURL, &v.Digest, &v.SeenAt, &v.Polarity, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return trust.ClaimVersion{}, trust.ErrNotFound
	}
	if err != nil {
		return trust.ClaimVersion{}, fmt.Errorf("latest version of %s: %w", claimID, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &v.Meta); err != nil {
			return trust.ClaimVersion{}, fmt.Errorf("unmarshal claim meta: %w", err)
		}
	}
	return v, nil
}

// TouchClaimSeen stamps last_seen_at on an unchanged claim.
func (s *Store) TouchClaimSeen(ctx context.Context, claimID string, at time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE claims SET last_seen_at = $2 WHERE id = $1
	`, claimID, at); err != nil {
		return fmt.Errorf("touch claim seen: %w", err)
	}
	return nil
}

// ReactivateClaim flips a claim back to ACTIVE and stamps last_seen_at.
func (s *Store) ReactivateClaim(ctx context.Context, claimID string, at time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE claims SET status = $2, last_seen_at = $3 WHERE id = $1
	`, claimID, trust.ClaimActive, at); err != nil {
		return fmt.Errorf("reactivate claim: %w", err)
	}
	return nil
}

// CreateClaim inserts a new claim with its first version and ADDED event in
// one transaction, so the version never appears without its event.
func (s *Store) CreateClaim(ctx context.Context, c trust.Claim, v trust.ClaimVersion, ev trust.ChangeEvent) error {
	meta, err := metaJSON(v.Meta)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO claims (id, company_id, claim_type, key, status, first_seen_at, last_seen_at, snippet, source_url, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, c.ID, c.CompanyID, c.Type, c.Key, c.Status, c.FirstSeenAt, c.LastSeenAt, c.Snippet, c.SourceURL, c.Confidence); err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}
		if err := insertVersion(ctx, tx, v, meta); err != nil {
			return err
		}
		return insertEvent(ctx, tx, ev)
	})
}

// RecordChange appends a version and its classification event, refreshing
// the claim's current snapshot, in one transaction.
func (s *Store) RecordChange(ctx context.Context, claimID string, v trust.ClaimVersion, ev trust.ChangeEvent) error {
	meta, err := metaJSON(v.Meta)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertVersion(ctx, tx, v, meta); err != nil {
			return err
		}
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE claims SET snippet = $2, source_url = $3, last_seen_at = $4, status = $5 WHERE id = $1
		`, claimID, v.Snippet, v.SourceURL, v.SeenAt, trust.ClaimActive); err != nil {
			return fmt.Errorf("refresh claim snapshot: %w", err)
		}
		return nil
	})
}

// RemoveClaim flips the claim to REMOVED and appends the REMOVED event in
// one transaction.
func (s *Store) RemoveClaim(ctx context.Context, claimID string, ev trust.ChangeEvent) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE claims SET status = $2 WHERE id = $1
		`, claimID, trust.ClaimRemoved); err != nil {
			return fmt.Errorf("mark claim removed: %w", err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

// ActiveClaimsForSource lists the ACTIVE claims whose current source is the
// given URL; the removal sweep diffs these against the extraction pass.
func (s *Store) ActiveClaimsForSource(ctx context.Context, companyID, sourceURL string) ([]trust.Claim, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE company_id = $1 AND source_url = $2 AND status = $3
	`, companyID, sourceURL, trust.ClaimActive)
	if err != nil {
		return nil, fmt.Errorf("list claims for source: %w", err)
	}
	defer rows.Close()

	var out []trust.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertVersion(ctx context.Context, tx pgx.Tx, v trust.ClaimVersion, meta []byte) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO claim_versions (id, claim_id, company_id, snippet, source_url, digest, seen_at, polarity, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, v.ID, v.ClaimID, v.CompanyID, v.Snippet, v.SourceURL, v.Digest, v.SeenAt, v.Polarity, meta); err != nil {
		return fmt.Errorf("insert claim version: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev trust.ChangeEvent) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO change_events (id, company_id, claim_type, key, event_type, severity, old_snippet, new_snippet, source_url, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ev.ID, ev.CompanyID, ev.ClaimType, ev.Key, ev.Type, ev.Severity, ev.OldSnippet, ev.NewSnippet, ev.SourceURL, ev.DetectedAt); err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
