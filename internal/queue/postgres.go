package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oversift/trustwatch/internal/id/uuid"
)

// DB is the subset of pgxpool.Pool the queue uses; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres is the durable queue implementation.
type Postgres struct {
	db    DB
	idGen *uuid.Generator
}

// NewPostgres builds a Postgres queue on an existing pool.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, idGen: uuid.NewUUIDGenerator()}
}

// Enqueue inserts a job unless one with the same idempotency key is already
// waiting, active, or delayed; in that case the existing job's id is
// returned and nothing changes. Completed and failed jobs never block a
// re-enqueue.
func (q *Postgres) Enqueue(ctx context.Context, queue string, payload any, key string, priority int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	jobID, err := q.idGen.NewID()
	if err != nil {
		return "", err
	}

	var id string
	err = q.db.QueryRow(ctx, `
		INSERT INTO jobs (id, queue, payload, idempotency_key, priority, status, max_attempts)
		VALUES ($1, $2, $3, $4, $5, 'waiting', $6)
		ON CONFLICT (idempotency_key) WHERE status IN ('waiting', 'active', 'delayed') DO NOTHING
		RETURNING id
	`, jobID, queue, body, key, priority, MaxAttempts).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate key; the pre-existing job owns execution.
		err = q.db.QueryRow(ctx, `
			SELECT id FROM jobs
			WHERE idempotency_key = $1 AND status IN ('waiting', 'active', 'delayed')
		`, key).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			// The duplicate finished between the two statements; try the insert again.
			return q.Enqueue(ctx, queue, payload, key, priority)
		}
	}
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return id, nil
}

// Claim selects the next runnable job using SKIP LOCKED and marks it active.
func (q *Postgres) Claim(ctx context.Context, queue string) (job Job, ok bool, err error) {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return Job{}, false, fmt.Errorf("begin claim: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		SELECT id, queue, payload, idempotency_key, priority, attempts, max_attempts
		FROM jobs
		WHERE queue = $1 AND status IN ('waiting', 'delayed') AND run_at <= now()
		ORDER BY priority, run_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, queue).Scan(&job.ID, &job.Queue, &job.Payload, &job.Key, &job.Priority, &job.Attempt, &job.MaxAttempts)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("claim from %s: %w", queue, err)
	}

	if _, err = tx.Exec(ctx, `
		UPDATE jobs SET status = 'active', attempts = attempts + 1, updated_at = now() WHERE id = $1
	`, job.ID); err != nil {
		return Job{}, false, fmt.Errorf("activate job %s: %w", job.ID, err)
	}
	job.Attempt++
	return job, true, nil
}

// Complete marks a job done.
func (q *Postgres) Complete(ctx context.Context, jobID string) error {
	if _, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = 'completed', updated_at = now(), finished_at = now() WHERE id = $1
	`, jobID); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// Fail records an attempt failure. Jobs with remaining attempts are delayed
// by exponential backoff; spent jobs are retained as failed.
func (q *Postgres) Fail(ctx context.Context, jobID string, jobErr error) error {
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	if _, err := q.db.Exec(ctx, `
		UPDATE jobs SET
			status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'delayed' END,
			run_at = now() + make_interval(secs => $2 * power(2, attempts - 1)),
			last_error = $3,
			updated_at = now(),
			finished_at = CASE WHEN attempts >= max_attempts THEN now() ELSE NULL END
		WHERE id = $1
	`, jobID, InitialBackoff.Seconds(), msg); err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}

// Sweep applies retention: completed jobs kept for 1 hour or the newest
// 1000, failed jobs for 24 hours or the newest 500.
func (q *Postgres) Sweep(ctx context.Context) error {
	for _, rule := range []struct {
		status string
		age    string
		keep   int
	}{
		{StatusCompleted, "1 hour", CompletedKeep},
		{StatusFailed, "24 hours", FailedKeep},
	} {
		if _, err := q.db.Exec(ctx, fmt.Sprintf(`
			DELETE FROM jobs
			WHERE status = $1
			  AND (finished_at < now() - interval '%s'
			   OR id IN (
				SELECT id FROM jobs WHERE status = $1
				ORDER BY finished_at DESC OFFSET $2
			  ))
		`, rule.age), rule.status, rule.keep); err != nil {
			return fmt.Errorf("sweep %s jobs: %w", rule.status, err)
		}
	}
	return nil
}

// Depth returns the number of runnable jobs per queue, for telemetry.
func (q *Postgres) Depth(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.Query(ctx, `
		SELECT queue, count(*) FROM jobs
		WHERE status IN ('waiting', 'delayed') GROUP BY queue
	`)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan depth row: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}
