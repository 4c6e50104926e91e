// Package queue implements the durable job queue: named queues with JSON
// payloads, idempotency-key dedup, retry with exponential backoff, and
// bounded retention, backed by Postgres row locks.
package queue

import (
	"context"
	"time"
)

// Job statuses persisted in the jobs table.
const (
	StatusWaiting   = "waiting"
	StatusActive    = "active"
	StatusDelayed   = "delayed"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Retry policy: up to 3 attempts with 5s, 10s, 20s backoff.
const (
	MaxAttempts    = 3
	InitialBackoff = 5 * time.Second
)

// Retention bounds applied by Sweep.
const (
	CompletedRetention = time.Hour
	CompletedKeep      = 1000
	FailedRetention    = 24 * time.Hour
	FailedKeep         = 500
)

// Job is one unit of queued work.
type Job struct {
	ID          string
	Queue       string
	Payload     []byte
	Key         string
	Priority    int
	Attempt     int
	MaxAttempts int
}

// Backoff returns the delay before the next attempt after attempt failures
// (attempt is 1-based).
func Backoff(attempt int) time.Duration {
	d := InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Source is the claim side of a queue, consumed by Pool.
type Source interface {
	// Claim pops the next runnable job from the named queue; ok is false
	// when the queue is empty.
	Claim(ctx context.Context, queue string) (job Job, ok bool, err error)
	Complete(ctx context.Context, jobID string) error
	// Fail records an attempt failure: the job is delayed for its backoff
	// window, or marked failed once its attempt budget is spent.
	Fail(ctx context.Context, jobID string, jobErr error) error
}
