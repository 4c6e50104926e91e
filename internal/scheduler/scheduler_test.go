package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/trust"
)

type fakeStores struct {
	companies []trust.Company
	targets   map[string][]trust.CrawlTarget
}

func (f *fakeStores) ListCompanies(context.Context) ([]trust.Company, error) {
	return f.companies, nil
}

func (f *fakeStores) ListTargets(_ context.Context, companyID string) ([]trust.CrawlTarget, error) {
	return f.targets[companyID], nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, _ string, payload any, key string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	for _, k := range f.keys {
		if k == key {
			return "dup", nil
		}
	}
	f.keys = append(f.keys, key)
	f.body = append(f.body, b)
	return key, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	obtained int
}

func (f *fakeLocker) Obtain(_ context.Context, _ string, _ time.Duration, _ *redislock.Options) (*redislock.Lock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return nil, redislock.ErrNotObtained
	}
	f.held = true
	f.obtained++
	return nil, nil
}

func seededStores() *fakeStores {
	return &fakeStores{
		companies: []trust.Company{
			{ID: "co-1", Domain: "acme.example"},
			{ID: "co-2", Domain: "globex.example"},
		},
		targets: map[string][]trust.CrawlTarget{
			"co-1": {
				{ID: "t1", CompanyID: "co-1", URL: "https://acme.example/security"},
				{ID: "t2", CompanyID: "co-1", URL: "https://acme.example/privacy"},
			},
			"co-2": {
				{ID: "t3", CompanyID: "co-2", URL: "https://globex.example/trust"},
			},
		},
	}
}

func TestTickEnqueuesEveryTarget(t *testing.T) {
	t.Parallel()

	enq := &fakeEnqueuer{}
	s, err := New(seededStores(), enq, &fakeLocker{}, "0 */6 * * *", zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Tick(context.Background()))

	assert.ElementsMatch(t, []string{
		"crawl-co-1-t1", "crawl-co-1-t2", "crawl-co-2-t3",
	}, enq.keys)

	var payload trust.CrawlPayload
	require.NoError(t, json.Unmarshal(enq.body[0], &payload))
	assert.NotEmpty(t, payload.URL)
}

func TestTickIsNoOpWhenLockHeld(t *testing.T) {
	t.Parallel()

	enq := &fakeEnqueuer{}
	locker := &fakeLocker{held: true}
	s, err := New(seededStores(), enq, locker, "0 */6 * * *", zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Tick(context.Background()))
	assert.Empty(t, enq.keys)
}

func TestConcurrentReplicasScheduleOnce(t *testing.T) {
	t.Parallel()

	enq := &fakeEnqueuer{}
	locker := &fakeLocker{}
	stores := seededStores()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		s, err := New(stores, enq, locker, "0 */6 * * *", zap.NewNop())
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Tick(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, locker.obtained)
	assert.Len(t, enq.keys, 3)
}

func TestNewRejectsBadCron(t *testing.T) {
	t.Parallel()

	_, err := New(seededStores(), &fakeEnqueuer{}, &fakeLocker{}, "not a cron", zap.NewNop())
	require.Error(t, err)
}
