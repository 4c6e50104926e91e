package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oversift/trustwatch/internal/trust"
)

// fakeClock is a settable trust.Clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeEnqueuer records enqueued jobs with pending-key dedup.
type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueuedJob
	seq  int
}

type enqueuedJob struct {
	ID       string
	Queue    string
	Payload  []byte
	Key      string
	Priority int
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, queueName string, payload any, key string, priority int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Key == key {
			return j.ID, nil
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	f.seq++
	j := enqueuedJob{
		ID:       fmt.Sprintf("job-%d", f.seq),
		Queue:    queueName,
		Payload:  body,
		Key:      key,
		Priority: priority,
	}
	f.jobs = append(f.jobs, j)
	return j.ID, nil
}

func (f *fakeEnqueuer) byQueue(queueName string) []enqueuedJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enqueuedJob
	for _, j := range f.jobs {
		if j.Queue == queueName {
			out = append(out, j)
		}
	}
	return out
}

// fakeStore implements CrawlStores and AlertStores in memory.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]trust.User
	companies map[string]*trust.Company
	targets   map[string]*trust.CrawlTarget
	claims    map[string]*trust.Claim
	versions  map[string][]trust.ClaimVersion
	events    map[string]*trust.ChangeEvent
	eventIDs  []string
	runs      map[string]*trust.CrawlRun
	evidence  map[string]*trust.Evidence
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]trust.User),
		companies: make(map[string]*trust.Company),
		targets:   make(map[string]*trust.CrawlTarget),
		claims:    make(map[string]*trust.Claim),
		versions:  make(map[string][]trust.ClaimVersion),
		events:    make(map[string]*trust.ChangeEvent),
		runs:      make(map[string]*trust.CrawlRun),
		evidence:  make(map[string]*trust.Evidence),
	}
}

func (s *fakeStore) CreateUser(_ context.Context, u trust.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, id string) (trust.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return trust.User{}, trust.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) CreateCompany(_ context.Context, c trust.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[c.ID] = &c
	return nil
}

func (s *fakeStore) GetCompany(_ context.Context, id string) (trust.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return trust.Company{}, trust.ErrNotFound
	}
	return *c, nil
}

func (s *fakeStore) ListCompanies(_ context.Context) ([]trust.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trust.Company
	for _, c := range s.companies {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListCompaniesByUser(_ context.Context, userID string) ([]trust.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trust.Company
	for _, c := range s.companies {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteCompany(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[id]; !ok {
		return trust.ErrNotFound
	}
	delete(s.companies, id)
	for tid, t := range s.targets {
		if t.CompanyID == id {
			delete(s.targets, tid)
		}
	}
	return nil
}

func (s *fakeStore) AddRiskScore(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return trust.ErrNotFound
	}
	score := c.RiskScore + delta
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	c.RiskScore = score
	return nil
}

func (s *fakeStore) TouchCompanyCrawled(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.companies[id]; ok {
		c.LastCrawledAt = &at
	}
	return nil
}

func (s *fakeStore) CreateTargets(_ context.Context, targets []trust.CrawlTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range targets {
		dup := false
		for _, existing := range s.targets {
			if existing.CompanyID == t.CompanyID && existing.URL == t.URL {
				dup = true
				break
			}
		}
		if !dup {
			target := t
			s.targets[t.ID] = &target
		}
	}
	return nil
}

func (s *fakeStore) GetTarget(_ context.Context, id string) (trust.CrawlTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return trust.CrawlTarget{}, trust.ErrNotFound
	}
	return *t, nil
}

func (s *fakeStore) ListTargets(_ context.Context, companyID string) ([]trust.CrawlTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trust.CrawlTarget
	for _, t := range s.targets {
		if t.CompanyID == companyID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (s *fakeStore) ListAllTargets(_ context.Context) ([]trust.CrawlTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trust.CrawlTarget
	for _, t := range s.targets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (s *fakeStore) UpdateTargetCrawl(_ context.Context, id, digest string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.targets[id]; ok {
		t.ContentDigest = digest
		t.LastCrawledAt = &at
	}
	return nil
}

func (s *fakeStore) FindClaim(_ context.Context, companyID string, ct trust.ClaimType, key string) (trust.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.CompanyID == companyID && c.Type == ct && c.Key == key {
			return *c, nil
		}
	}
	return trust.Claim{}, trust.ErrNotFound
}

func (s *fakeStore) LatestVersion(_ context.Context, claimID string) (trust.ClaimVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.versions[claimID]
	if len(vs) == 0 {
		return trust.ClaimVersion{}, trust.ErrNotFound
	}
	return vs[len(vs)-1], nil
}

func (s *fakeStore) TouchClaimSeen(_ context.Context, claimID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[claimID]; ok {
		c.LastSeenAt = at
	}
	return nil
}

func (s *fakeStore) ReactivateClaim(_ context.Context, claimID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[claimID]; ok {
		c.Status = trust.ClaimActive
		c.LastSeenAt = at
	}
	return nil
}

func (s *fakeStore) CreateClaim(_ context.Context, c trust.Claim, v trust.ClaimVersion, ev trust.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim := c
	s.claims[c.ID] = &claim
	s.versions[c.ID] = append(s.versions[c.ID], v)
	event := ev
	s.events[ev.ID] = &event
	s.eventIDs = append(s.eventIDs, ev.ID)
	return nil
}

func (s *fakeStore) RecordChange(_ context.Context, claimID string, v trust.ClaimVersion, ev trust.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[claimID] = append(s.versions[claimID], v)
	event := ev
	s.events[ev.ID] = &event
	s.eventIDs = append(s.eventIDs, ev.ID)
	if c, ok := s.claims[claimID]; ok {
		c.Snippet = v.Snippet
		c.SourceURL = v.SourceURL
		c.LastSeenAt = v.SeenAt
		c.Status = trust.ClaimActive
	}
	return nil
}

func (s *fakeStore) RemoveClaim(_ context.Context, claimID string, ev trust.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[claimID]; ok {
		c.Status = trust.ClaimRemoved
	}
	event := ev
	s.events[ev.ID] = &event
	s.eventIDs = append(s.eventIDs, ev.ID)
	return nil
}

func (s *fakeStore) ActiveClaimsForSource(_ context.Context, companyID, sourceURL string) ([]trust.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trust.Claim
	for _, c := range s.claims {
		if c.CompanyID == companyID && c.SourceURL == sourceURL && c.Status == trust.ClaimActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *fakeStore) GetEvent(_ context.Context, id string) (trust.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return trust.ChangeEvent{}, trust.ErrNotFound
	}
	return *e, nil
}

func (s *fakeStore) ListEvents(_ context.Context, f trust.EventFilter) ([]trust.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trust.ChangeEvent
	for i := len(s.eventIDs) - 1; i >= 0; i-- {
		e := s.events[s.eventIDs[i]]
		if f.CompanyID != "" && e.CompanyID != f.CompanyID {
			continue
		}
		if f.Severity != "" && e.Severity != f.Severity {
			continue
		}
		if f.Unacknowledged && e.Acknowledged {
			continue
		}
		out = append(out, *e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) CountEmailedCritical(_ context.Context, companyID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.CompanyID == companyID && e.Severity == trust.SeverityCritical && e.EmailedAt != nil && e.EmailedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) MarkEmailed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.events[id]; ok {
		e.EmailedAt = &at
	}
	return nil
}

func (s *fakeStore) AckEvent(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return trust.ErrNotFound
	}
	c, ok := s.companies[e.CompanyID]
	if !ok || c.UserID != userID {
		return trust.ErrNotFound
	}
	e.Acknowledged = true
	return nil
}

func (s *fakeStore) StartRun(_ context.Context, run trust.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := run
	s.runs[run.ID] = &r
	return nil
}

func (s *fakeStore) FinishRun(_ context.Context, id string, status trust.RunStatus, counters trust.RunCounters, errs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		r.Status = status
		r.Counters = counters
		r.Errors = errs
		r.FinishedAt = &at
	}
	return nil
}

func (s *fakeStore) ListRuns(_ context.Context, limit int) ([]trust.CrawlRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trust.CrawlRun
	for _, r := range s.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CreateEvidenceIfAbsent(_ context.Context, e trust.Evidence) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.evidence {
		if existing.CompanyID == e.CompanyID && existing.PDFURL == e.PDFURL {
			return false, nil
		}
	}
	row := e
	s.evidence[e.ID] = &row
	return true, nil
}

func (s *fakeStore) GetEvidence(_ context.Context, id string) (trust.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.evidence[id]
	if !ok {
		return trust.Evidence{}, trust.ErrNotFound
	}
	return *e, nil
}

func (s *fakeStore) MarkEvidenceReady(_ context.Context, id string, fields trust.EvidenceFields, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.evidence[id]; ok {
		e.Status = trust.EvidenceReady
		e.Fields = &fields
		e.Error = ""
		e.ProcessedAt = &at
	}
	return nil
}

func (s *fakeStore) MarkEvidenceFailed(_ context.Context, id, errText string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.evidence[id]; ok {
		e.Status = trust.EvidenceFailed
		e.Error = errText
		e.ProcessedAt = &at
	}
	return nil
}

func (s *fakeStore) eventsByType(t trust.EventType) []trust.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trust.ChangeEvent
	for _, id := range s.eventIDs {
		if s.events[id].Type == t {
			out = append(out, *s.events[id])
		}
	}
	return out
}

func (s *fakeStore) allEvents() []trust.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []trust.ChangeEvent
	for _, id := range s.eventIDs {
		out = append(out, *s.events[id])
	}
	return out
}

func (s *fakeStore) versionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, vs := range s.versions {
		n += len(vs)
	}
	return n
}

func (s *fakeStore) claimByKey(key string) (trust.Claim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.claims {
		if c.Key == key {
			return *c, true
		}
	}
	return trust.Claim{}, false
}
