package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oversift/trustwatch/internal/trust"
)

const eventColumns = `id, company_id, claim_type, key, event_type, severity, old_snippet, new_snippet, source_url, detected_at, acknowledged, emailed_at`

func scanEvent(row pgx.Row) (trust.ChangeEvent, error) {
	var e trust.ChangeEvent
	err := row.Scan(&e.ID, &e.CompanyID, &e.ClaimType, &e.Key, &e.Type, &e.Severity, &e.OldSnippet, &e.NewSnippet, &e.SourceURL, &e.DetectedAt, &e.Acknowledged, &e.EmailedAt)
	return e, err
}

// GetEvent loads one event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (trust.ChangeEvent, error) {
	e, err := scanEvent(s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM change_events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return trust.ChangeEvent{}, trust.ErrNotFound
	}
	if err != nil {
		return trust.ChangeEvent{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// ListEvents returns events matching the filter, newest first.
func (s *Store) ListEvents(ctx context.Context, f trust.EventFilter) ([]trust.ChangeEvent, error) {
	sql := `SELECT ` + eventColumns + ` FROM change_events WHERE 1=1`
	var args []any
	if f.CompanyID != "" {
		args = append(args, f.CompanyID)
		sql += fmt.Sprintf(" AND company_id = $%d", len(args))
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		sql += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if f.Unacknowledged {
		sql += " AND NOT acknowledged"
	}
	sql += " ORDER BY detected_at DESC"
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []trust.ChangeEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEmailedCritical counts critical events with a non-null emailed_at
// stamped after since; the alert rate limit derives from this.
func (s *Store) CountEmailedCritical(ctx context.Context, companyID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM change_events
		WHERE company_id = $1 AND severity = $2 AND emailed_at IS NOT NULL AND emailed_at > $3
	`, companyID, trust.SeverityCritical, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count emailed critical: %w", err)
	}
	return n, nil
}

// MarkEmailed stamps emailed_at after a successful alert delivery.
func (s *Store) MarkEmailed(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE change_events SET emailed_at = $2 WHERE id = $1
	`, id, at); err != nil {
		return fmt.Errorf("mark event emailed: %w", err)
	}
	return nil
}

// AckEvent sets acknowledged on an event whose company is owned by userID.
func (s *Store) AckEvent(ctx context.Context, id, userID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE change_events e SET acknowledged = true
		FROM companies c
		WHERE e.id = $1 AND e.company_id = c.id AND c.user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("ack event %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return trust.ErrNotFound
	}
	return nil
}
