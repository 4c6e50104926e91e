package trust

import "fmt"

// Queue names. Each carries a JSON payload type defined below.
const (
	QueueCrawlTarget     = "crawl_target"
	QueueProcessEvidence = "process_evidence"
	QueueSendAlertEmail  = "send_alert_email"
)

// Job priorities; lower runs first.
const (
	PriorityEmail    = 0
	PriorityCrawl    = 1
	PriorityEvidence = 2
)

// CrawlPayload is the crawl_target job body.
type CrawlPayload struct {
	CompanyID string `json:"company_id"`
	TargetID  string `json:"target_id"`
	URL       string `json:"url"`
}

// EvidencePayload is the process_evidence job body.
type EvidencePayload struct {
	EvidenceID string `json:"evidence_id"`
	PDFURL     string `json:"pdf_url"`
	CompanyID  string `json:"company_id"`
}

// AlertPayload is the send_alert_email job body.
type AlertPayload struct {
	EventID        string `json:"event_id"`
	UserID         string `json:"user_id"`
	RecipientEmail string `json:"recipient_email"`
}

// CrawlKey builds the idempotency key that serialises crawls per target.
func CrawlKey(companyID, targetID string) string {
	return fmt.Sprintf("crawl-%s-%s", companyID, targetID)
}

// EvidenceKey builds the idempotency key for an evidence parse job.
func EvidenceKey(evidenceID string) string {
	return fmt.Sprintf("evidence-%s", evidenceID)
}

// AlertKey builds the idempotency key for an alert email job.
func AlertKey(eventID, userID string) string {
	return fmt.Sprintf("email-%s-%s", eventID, userID)
}
