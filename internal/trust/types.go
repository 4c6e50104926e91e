// Package trust defines core types shared across subsystems.
package trust

import "time"

// ClaimType classifies what a claim asserts about a vendor.
type ClaimType string

// Claim types persisted on claims and events.
const (
	ClaimCompliance ClaimType = "compliance"
	ClaimPrivacy    ClaimType = "privacy"
	ClaimSLA        ClaimType = "sla"
	ClaimSecurity   ClaimType = "security"
)

// Category is a monitoring category enabled on a company.
type Category string

// Monitoring categories selectable per company.
const (
	CategorySecurity Category = "security"
	CategoryPrivacy  Category = "privacy"
	CategorySLA      Category = "sla"
	CategoryPricing  Category = "pricing"
)

// ValidCategory reports whether c is a known monitoring category.
func ValidCategory(c Category) bool {
	switch c {
	case CategorySecurity, CategoryPrivacy, CategorySLA, CategoryPricing:
		return true
	}
	return false
}

// SeedPaths returns the watch paths derived from a category.
func SeedPaths(c Category) []string {
	switch c {
	case CategorySecurity:
		return []string{"/security", "/trust", "/compliance"}
	case CategoryPrivacy:
		return []string{"/privacy", "/terms"}
	case CategorySLA:
		return []string{"/sla", "/status"}
	case CategoryPricing:
		return []string{"/pricing"}
	}
	return nil
}

// ClaimStatus is the lifecycle state of a claim summary row.
type ClaimStatus string

// Claim status values.
const (
	ClaimActive   ClaimStatus = "ACTIVE"
	ClaimRemoved  ClaimStatus = "REMOVED"
	ClaimDisputed ClaimStatus = "DISPUTED"
)

// Polarity captures whether a claim's phrasing asserts or negates.
type Polarity string

// Polarity values.
const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
)

// EventType classifies a claim state transition.
type EventType string

// Change event types.
const (
	EventAdded         EventType = "ADDED"
	EventRemoved       EventType = "REMOVED"
	EventWeakened      EventType = "WEAKENED"
	EventReversed      EventType = "REVERSED"
	EventNumberChanged EventType = "NUMBER_CHANGED"
)

// Severity ranks how urgently an event should be surfaced.
type Severity string

// Severity levels, lowest to highest.
const (
	SeverityInfo     Severity = "info"
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// EvidenceStatus is the lifecycle state of a PDF evidence row.
type EvidenceStatus string

// Evidence status values.
const (
	EvidencePending EvidenceStatus = "PENDING"
	EvidenceReady   EvidenceStatus = "READY"
	EvidenceFailed  EvidenceStatus = "FAILED"
)

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

// Crawl run status values.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// TargetKind distinguishes seeded watch URLs from discovered ones.
type TargetKind string

// Target kinds.
const (
	TargetSeed       TargetKind = "seed"
	TargetDiscovered TargetKind = "discovered"
)

// User owns companies and receives critical alerts.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Company is a watched vendor.
type Company struct {
	ID            string     `json:"id"`
	DisplayName   string     `json:"display_name"`
	Domain        string     `json:"domain"`
	Categories    []Category `json:"categories"`
	RiskScore     int        `json:"risk_score"`
	UserID        string     `json:"user_id"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CrawlTarget is a single watched URL belonging to a company.
// (company_id, url) is unique.
type CrawlTarget struct {
	ID            string     `json:"id"`
	CompanyID     string     `json:"company_id"`
	URL           string     `json:"url"`
	Kind          TargetKind `json:"kind"`
	ContentDigest string     `json:"content_digest,omitempty"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Numeric is the extracted numeric metadata carried by claims such as
// uptime percentages. Claims without a number carry a nil *Numeric.
type Numeric struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Claim is the summary row for one normalized trust assertion.
// (company_id, claim_type, key) is unique; history lives in ClaimVersion.
type Claim struct {
	ID          string      `json:"id"`
	CompanyID   string      `json:"company_id"`
	Type        ClaimType   `json:"claim_type"`
	Key         string      `json:"key"`
	Status      ClaimStatus `json:"status"`
	FirstSeenAt time.Time   `json:"first_seen_at"`
	LastSeenAt  time.Time   `json:"last_seen_at"`
	Snippet     string      `json:"snippet"`
	SourceURL   string      `json:"source_url"`
	Confidence  float64     `json:"confidence"`
}

// ClaimVersion is an append-only observation of a claim's text at a point
// in time. Consecutive versions of a claim never share a digest.
type ClaimVersion struct {
	ID        string    `json:"id"`
	ClaimID   string    `json:"claim_id"`
	CompanyID string    `json:"company_id"`
	Snippet   string    `json:"snippet"`
	SourceURL string    `json:"source_url"`
	Digest    string    `json:"digest"`
	SeenAt    time.Time `json:"seen_at"`
	Polarity  Polarity  `json:"polarity"`
	Meta      *Numeric  `json:"meta,omitempty"`
}

// ChangeEvent records a claim transition. Append-only except for the
// acknowledged flag and emailed_at stamp.
type ChangeEvent struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	ClaimType    ClaimType  `json:"claim_type"`
	Key          string     `json:"key"`
	Type         EventType  `json:"event_type"`
	Severity     Severity   `json:"severity"`
	OldSnippet   string     `json:"old_snippet,omitempty"`
	NewSnippet   string     `json:"new_snippet,omitempty"`
	SourceURL    string     `json:"source_url"`
	DetectedAt   time.Time  `json:"detected_at"`
	Acknowledged bool       `json:"acknowledged"`
	EmailedAt    *time.Time `json:"emailed_at,omitempty"`
}

// RunCounters tracks per-run telemetry totals.
type RunCounters struct {
	Pages  int `json:"pages"`
	Claims int `json:"claims"`
	Events int `json:"events"`
}

// CrawlRun is the telemetry record for one crawl execution.
type CrawlRun struct {
	ID         string      `json:"id"`
	CompanyID  string      `json:"company_id,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Counters   RunCounters `json:"counters"`
	Errors     []string    `json:"errors,omitempty"`
	Status     RunStatus   `json:"status"`
}

// EvidenceFields holds the structured fields extracted from a parsed PDF.
type EvidenceFields struct {
	ReportType  string         `json:"report_type,omitempty"`
	Auditor     string         `json:"auditor,omitempty"`
	PeriodStart string         `json:"period_start,omitempty"`
	PeriodEnd   string         `json:"period_end,omitempty"`
	Scope       string         `json:"scope,omitempty"`
	PageNumbers []int          `json:"page_numbers,omitempty"`
	PageContent map[int]string `json:"page_content,omitempty"`
}

// Evidence is a linked PDF artefact discovered on a crawled page.
// (company_id, pdf_url) is unique.
type Evidence struct {
	ID          string          `json:"id"`
	CompanyID   string          `json:"company_id"`
	ClaimType   ClaimType       `json:"claim_type"`
	PDFURL      string          `json:"pdf_url"`
	SourceURL   string          `json:"source_url,omitempty"`
	Context     string          `json:"context,omitempty"`
	Status      EvidenceStatus  `json:"status"`
	Error       string          `json:"error,omitempty"`
	Fields      *EvidenceFields `json:"fields,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
