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

// CreateEvidenceIfAbsent inserts a PENDING evidence row unless the company
// already tracks the PDF URL.
func (s *Store) CreateEvidenceIfAbsent(ctx context.Context, e trust.Evidence) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO evidence (id, company_id, claim_type, pdf_url, source_url, context, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company_id, pdf_url) DO NOTHING
	`, e.ID, e.CompanyID, e.ClaimType, e.PDFURL, e.SourceURL, e.Context, e.Status, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert evidence: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetEvidence loads an evidence row by id.
func (s *Store) GetEvidence(ctx context.Context, id string) (trust.Evidence, error) {
	var e trust.Evidence
	var fields []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, company_id, claim_type, pdf_url, source_url, context, status, error, fields, processed_at, created_at
		FROM evidence WHERE id = $1
	`, id).Scan(&e.ID, &e.CompanyID, &e.ClaimType, &e.PDFURL, &e.SourceURL, &e.Context, &e.Status, &e.Error, &fields, &e.ProcessedAt, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return trust.Evidence{}, trust.ErrNotFound
	}
	if err != nil {
		return trust.Evidence{}, fmt.Errorf("get evidence %s: %w", id, err)
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &e.Fields); err != nil {
			return trust.Evidence{}, fmt.Errorf("unmarshal evidence fields: %w", err)
		}
	}
	return e, nil
}

// MarkEvidenceReady persists the extracted fields and flips the row READY.
func (s *Store) MarkEvidenceReady(ctx context.Context, id string, fields trust.EvidenceFields, at time.Time) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal evidence fields: %w", err)
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE evidence SET status = $2, fields = $3, error = '', processed_at = $4 WHERE id = $1
	`, id, trust.EvidenceReady, body, at); err != nil {
		return fmt.Errorf("mark evidence ready: %w", err)
	}
	return nil
}

// MarkEvidenceFailed records the error and flips the row FAILED.
func (s *Store) MarkEvidenceFailed(ctx context.Context, id, errText string, at time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE evidence SET status = $2, error = $3, processed_at = $4 WHERE id = $1
	`, id, trust.EvidenceFailed, errText, at); err != nil {
		return fmt.Errorf("mark evidence failed: %w", err)
	}
	return nil
}
