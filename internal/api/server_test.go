package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/trust"
)

type fakeStores struct {
	mu        sync.Mutex
	users     map[string]trust.User
	companies map[string]trust.Company
	targets   map[string]trust.CrawlTarget
	events    map[string]*trust.ChangeEvent
	runs      []trust.CrawlRun
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		users:     make(map[string]trust.User),
		companies: make(map[string]trust.Company),
		targets:   make(map[string]trust.CrawlTarget),
		events:    make(map[string]*trust.ChangeEvent),
	}
}

func (f *fakeStores) CreateUser(_ context.Context, u trust.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeStores) GetUser(_ context.Context, id string) (trust.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return trust.User{}, trust.ErrNotFound
	}
	return u, nil
}

func (f *fakeStores) CreateCompany(_ context.Context, c trust.Company) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companies[c.ID] = c
	return nil
}

func (f *fakeStores) GetCompany(_ context.Context, id string) (trust.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[id]
	if !ok {
		return trust.Company{}, trust.ErrNotFound
	}
	return c, nil
}

func (f *fakeStores) ListCompanies(_ context.Context) ([]trust.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []trust.Company
	for _, c := range f.companies {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStores) ListCompaniesByUser(_ context.Context, userID string) ([]trust.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []trust.Company
	for _, c := range f.companies {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStores) DeleteCompany(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.companies[id]; !ok {
		return trust.ErrNotFound
	}
	delete(f.companies, id)
	for tid, t := range f.targets {
		if t.CompanyID == id {
			delete(f.targets, tid)
		}
	}
	return nil
}

func (f *fakeStores) AddRiskScore(context.Context, string, int) error { return nil }

func (f *fakeStores) TouchCompanyCrawled(context.Context, string, time.Time) error { return nil }

func (f *fakeStores) CreateTargets(_ context.Context, targets []trust.CrawlTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range targets {
		f.targets[t.ID] = t
	}
	return nil
}

func (f *fakeStores) GetTarget(_ context.Context, id string) (trust.CrawlTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[id]
	if !ok {
		return trust.CrawlTarget{}, trust.ErrNotFound
	}
	return t, nil
}

func (f *fakeStores) ListTargets(_ context.Context, companyID string) ([]trust.CrawlTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []trust.CrawlTarget
	for _, t := range f.targets {
		if t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (f *fakeStores) ListAllTargets(_ context.Context) ([]trust.CrawlTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []trust.CrawlTarget
	for _, t := range f.targets {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStores) UpdateTargetCrawl(context.Context, string, string, time.Time) error { return nil }

func (f *fakeStores) GetEvent(_ context.Context, id string) (trust.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return trust.ChangeEvent{}, trust.ErrNotFound
	}
	return *e, nil
}

func (f *fakeStores) ListEvents(_ context.Context, filter trust.EventFilter) ([]trust.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []trust.ChangeEvent
	for _, e := range f.events {
		if filter.CompanyID != "" && e.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Severity != "" && e.Severity != filter.Severity {
			continue
		}
		if filter.Unacknowledged && e.Acknowledged {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeStores) CountEmailedCritical(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeStores) MarkEmailed(context.Context, string, time.Time) error { return nil }

func (f *fakeStores) AckEvent(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return trust.ErrNotFound
	}
	c, ok := f.companies[e.CompanyID]
	if !ok || c.UserID != userID {
		return trust.ErrNotFound
	}
	e.Acknowledged = true
	return nil
}

func (f *fakeStores) StartRun(_ context.Context, run trust.CrawlRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStores) FinishRun(context.Context, string, trust.RunStatus, trust.RunCounters, []string, time.Time) error {
	return nil
}

func (f *fakeStores) ListRuns(_ context.Context, limit int) ([]trust.CrawlRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]trust.CrawlRun, len(f.runs))
	copy(out, f.runs)
	return out, nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	keys []string
	seq  int
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, _ string, _ any, key string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k == key {
			return "dup", nil
		}
	}
	f.seq++
	f.keys = append(f.keys, key)
	return fmt.Sprintf("job-%d", f.seq), nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestServer(t *testing.T) (*Server, *fakeStores, *fakeEnqueuer) {
	t.Helper()
	stores := newFakeStores()
	enq := &fakeEnqueuer{}
	clock := fixedClock{t: time.Unix(1700000000, 0).UTC()}
	s := NewServer(stores, enq, clock, "", zap.NewNop())
	return s, stores, enq
}

func doJSON(t *testing.T, s *Server, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateCompanySeedsTargetsAndEnqueues(t *testing.T) {
	t.Parallel()

	s, stores, enq := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/companies", "user-1", createCompanyRequest{
		Domain:      "acme.example",
		DisplayName: "Acme",
		Categories:  []string{"security", "privacy"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Company trust.Company       `json:"company"`
		Targets []trust.CrawlTarget `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "user-1", resp.Company.UserID)
	require.Len(t, resp.Targets, 5)

	var urls []string
	for _, target := range resp.Targets {
		urls = append(urls, target.URL)
	}
	assert.ElementsMatch(t, []string{
		"https://acme.example/security",
		"https://acme.example/trust",
		"https://acme.example/compliance",
		"https://acme.example/privacy",
		"https://acme.example/terms",
	}, urls)

	assert.Len(t, enq.keys, 5)
	targets, err := stores.ListTargets(context.Background(), resp.Company.ID)
	require.NoError(t, err)
	assert.Len(t, targets, 5)
}

func TestCreateCompanyValidation(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/companies", "user-1", createCompanyRequest{Categories: []string{"security"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/companies", "user-1", createCompanyRequest{Domain: "acme.example"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/companies", "user-1", createCompanyRequest{
		Domain: "acme.example", Categories: []string{"marketing"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/companies", "", createCompanyRequest{
		Domain: "acme.example", Categories: []string{"security"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCompanyCascadesTargetsOnly(t *testing.T) {
	t.Parallel()

	s, stores, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/companies", "user-1", createCompanyRequest{
		Domain: "acme.example", Categories: []string{"pricing"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Company trust.Company `json:"company"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Another user cannot delete it.
	rec = doJSON(t, s, http.MethodDelete, "/api/companies/"+resp.Company.ID, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/companies/"+resp.Company.ID, "user-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := stores.GetCompany(context.Background(), resp.Company.ID)
	assert.ErrorIs(t, err, trust.ErrNotFound)
	targets, err := stores.ListTargets(context.Background(), resp.Company.ID)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestRunCrawlSingleAndAll(t *testing.T) {
	t.Parallel()

	s, _, enq := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/companies", "user-1", createCompanyRequest{
		Domain: "acme.example", Categories: []string{"sla"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Company trust.Company `json:"company"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	baseline := len(enq.keys)

	// Targeted scan re-enqueues both sla targets; keys dedup against the
	// creation batch, so the recorded key set does not grow.
	rec = doJSON(t, s, http.MethodPost, "/api/crawl/run", "user-1", runCrawlRequest{CompanyID: created.Company.ID})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var out map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out["enqueued"])
	assert.Len(t, enq.keys, baseline)

	// All-owned scan.
	rec = doJSON(t, s, http.MethodPost, "/api/crawl/run", "user-1", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// A foreign company id reads as not found.
	rec = doJSON(t, s, http.MethodPost, "/api/crawl/run", "user-2", runCrawlRequest{CompanyID: created.Company.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAckEventOwnership(t *testing.T) {
	t.Parallel()

	s, stores, _ := newTestServer(t)
	require.NoError(t, stores.CreateCompany(context.Background(), trust.Company{ID: "co-1", UserID: "user-1"}))
	stores.events["ev-1"] = &trust.ChangeEvent{ID: "ev-1", CompanyID: "co-1", Severity: trust.SeverityCritical}

	rec := doJSON(t, s, http.MethodPost, "/api/events/ev-1/ack", "user-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/events/ev-1/ack", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	event, err := stores.GetEvent(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.True(t, event.Acknowledged)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	stores := newFakeStores()
	failing := func(context.Context) error { return assert.AnError }
	s := NewServer(stores, &fakeEnqueuer{}, fixedClock{t: time.Now()}, "", zap.NewNop(), failing)

	rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
