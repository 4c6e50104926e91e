package trust

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// Page is the canonicalised result of fetching a watched URL.
type Page struct {
	URL        string
	Text       string
	StatusCode int
	Duration   time.Duration
}

// Fetcher retrieves a URL and returns its plain-text representation.
// Transport and HTTP errors are surfaced as errors; an empty page is not.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// PDFDocument is the parsed representation returned by a PDFParser.
type PDFDocument struct {
	Text  string
	Pages map[int]string
}

// PDFParser parses a remote PDF out-of-band.
type PDFParser interface {
	Parse(ctx context.Context, pdfURL string) (PDFDocument, error)
}

// Alert is the material handed to the mail capability for one critical event.
type Alert struct {
	Recipient string
	Company   Company
	Event     ChangeEvent
}

// Mailer delivers alert email through the transactional mail capability.
type Mailer interface {
	SendAlert(ctx context.Context, alert Alert) error
}

// Enqueuer submits jobs to the durable queue. Enqueueing a key that is
// already waiting, active, or delayed is a no-op returning the existing
// job id.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload any, key string, priority int) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// UserStore reads alert recipients.
type UserStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	CreateUser(ctx context.Context, u User) error
}

// CompanyStore persists companies.
type CompanyStore interface {
	CreateCompany(ctx context.Context, c Company) error
	GetCompany(ctx context.Context, id string) (Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)
	ListCompaniesByUser(ctx context.Context, userID string) ([]Company, error)
	DeleteCompany(ctx context.Context, id string) error
	// AddRiskScore bumps the risk score by delta, clamped to [0, 100].
	AddRiskScore(ctx context.Context, id string, delta int) error
	TouchCompanyCrawled(ctx context.Context, id string, at time.Time) error
}

// TargetStore persists crawl targets.
type TargetStore interface {
	CreateTargets(ctx context.Context, targets []CrawlTarget) error
	GetTarget(ctx context.Context, id string) (CrawlTarget, error)
	ListTargets(ctx context.Context, companyID string) ([]CrawlTarget, error)
	ListAllTargets(ctx context.Context) ([]CrawlTarget, error)
	UpdateTargetCrawl(ctx context.Context, id, digest string, at time.Time) error
}

// ClaimStore persists claims and their version history. The composite
// operations run in a single transaction so a version is never visible
// without its generated event.
type ClaimStore interface {
	FindClaim(ctx context.Context, companyID string, t ClaimType, key string) (Claim, error)
	LatestVersion(ctx context.Context, claimID string) (ClaimVersion, error)
	TouchClaimSeen(ctx context.Context, claimID string, at time.Time) error
	// ReactivateClaim flips a non-active claim back to ACTIVE when its key
	// re-appears with unchanged text; no version or event is produced.
	ReactivateClaim(ctx context.Context, claimID string, at time.Time) error
	// CreateClaim inserts the claim, its initial version, and the ADDED event.
	CreateClaim(ctx context.Context, c Claim, v ClaimVersion, ev ChangeEvent) error
	// RecordChange appends a version plus its event and refreshes the claim's
	// current snippet, source URL, and last-seen stamp.
	RecordChange(ctx context.Context, claimID string, v ClaimVersion, ev ChangeEvent) error
	// RemoveClaim flips the claim to REMOVED and appends the REMOVED event.
	RemoveClaim(ctx context.Context, claimID string, ev ChangeEvent) error
	ActiveClaimsForSource(ctx context.Context, companyID, sourceURL string) ([]Claim, error)
}

// EventFilter narrows event listings.
type EventFilter struct {
	CompanyID      string
	Severity       Severity
	Unacknowledged bool
	Limit          int
}

// EventStore reads and mutates change events.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (ChangeEvent, error)
	ListEvents(ctx context.Context, f EventFilter) ([]ChangeEvent, error)
	// CountEmailedCritical counts critical events with a non-null emailed_at
	// stamped after since, for the alert rate limit.
	CountEmailedCritical(ctx context.Context, companyID string, since time.Time) (int, error)
	MarkEmailed(ctx context.Context, id string, at time.Time) error
	// AckEvent sets acknowledged if the event belongs to a company owned by
	// userID; it returns ErrNotFound otherwise.
	AckEvent(ctx context.Context, id, userID string) error
}

// RunStore persists crawl run telemetry.
type RunStore interface {
	StartRun(ctx context.Context, run CrawlRun) error
	FinishRun(ctx context.Context, id string, status RunStatus, counters RunCounters, errs []string, at time.Time) error
	ListRuns(ctx context.Context, limit int) ([]CrawlRun, error)
}

// EvidenceStore persists discovered PDF evidence.
type EvidenceStore interface {
	// CreateEvidenceIfAbsent inserts e unless (company_id, pdf_url) already
	// exists; created reports whether a row was inserted.
	CreateEvidenceIfAbsent(ctx context.Context, e Evidence) (created bool, err error)
	GetEvidence(ctx context.Context, id string) (Evidence, error)
	MarkEvidenceReady(ctx context.Context, id string, fields EvidenceFields, at time.Time) error
	MarkEvidenceFailed(ctx context.Context, id, errText string, at time.Time) error
}
