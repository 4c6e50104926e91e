// Package memory provides an in-memory queue for local development and
// tests. It mirrors the durable queue's dedup and retry semantics without a
// database.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oversift/trustwatch/internal/queue"
)

type record struct {
	job    queue.Job
	status string
	runAt  time.Time
	seq    int
}

// Queue is an in-memory queue.Source and trust.Enqueuer.
type Queue struct {
	mu   sync.Mutex
	jobs map[string]*record
	seq  int
	now  func() time.Time
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		jobs: make(map[string]*record),
		now:  time.Now,
	}
}

// SetClock overrides the queue's time source for tests.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue adds a job unless its key is already pending.
func (q *Queue) Enqueue(_ context.Context, queueName string, payload any, key string, priority int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, r := range q.jobs {
		if r.job.Key == key && pending(r.status) {
			return r.job.ID, nil
		}
	}

	q.seq++
	id := fmt.Sprintf("job-%d", q.seq)
	q.jobs[id] = &record{
		job: queue.Job{
			ID:          id,
			Queue:       queueName,
			Payload:     body,
			Key:         key,
			Priority:    priority,
			MaxAttempts: queue.MaxAttempts,
		},
		status: queue.StatusWaiting,
		runAt:  q.now(),
		seq:    q.seq,
	}
	return id, nil
}

func pending(status string) bool {
	return status == queue.StatusWaiting || status == queue.StatusActive || status == queue.StatusDelayed
}

// Claim pops the highest-priority runnable job from the named queue.
func (q *Queue) Claim(_ context.Context, queueName string) (queue.Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var candidates []*record
	now := q.now()
	for _, r := range q.jobs {
		if r.job.Queue == queueName && (r.status == queue.StatusWaiting || r.status == queue.StatusDelayed) && !r.runAt.After(now) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return queue.Job{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].job.Priority != candidates[j].job.Priority {
			return candidates[i].job.Priority < candidates[j].job.Priority
		}
		return candidates[i].seq < candidates[j].seq
	})

	r := candidates[0]
	r.status = queue.StatusActive
	r.job.Attempt++
	return r.job, true, nil
}

// Complete marks a job done.
func (q *Queue) Complete(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if r, ok := q.jobs[jobID]; ok {
		r.status = queue.StatusCompleted
	}
	return nil
}

// Fail delays the job for its backoff window or marks it failed when the
// attempt budget is spent.
func (q *Queue) Fail(_ context.Context, jobID string, _ error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.jobs[jobID]
	if !ok {
		return nil
	}
	if r.job.Attempt >= r.job.MaxAttempts {
		r.status = queue.StatusFailed
		return nil
	}
	r.status = queue.StatusDelayed
	r.runAt = q.now().Add(queue.Backoff(r.job.Attempt))
	return nil
}

// Status reports a job's current status, for tests.
func (q *Queue) Status(jobID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.jobs[jobID]
	if !ok {
		return "", false
	}
	return r.status, true
}
