package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/metrics"
	"github.com/oversift/trustwatch/internal/queue"
	"github.com/oversift/trustwatch/internal/trust"
)

// EvidenceWorker executes process_evidence jobs: parse the PDF out-of-band
// and persist its structured fields.
type EvidenceWorker struct {
	store   trust.EvidenceStore
	parser  trust.PDFParser
	clock   trust.Clock
	timeout time.Duration
	logger  *zap.Logger
}

// NewEvidenceWorker constructs an EvidenceWorker.
func NewEvidenceWorker(store trust.EvidenceStore, parser trust.PDFParser, clock trust.Clock, timeout time.Duration, logger *zap.Logger) *EvidenceWorker {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &EvidenceWorker{
		store:   store,
		parser:  parser,
		clock:   clock,
		timeout: timeout,
		logger:  logger,
	}
}

// Handle processes one process_evidence job. Failures mark the row FAILED
// and propagate so the queue retries within its attempt budget.
func (w *EvidenceWorker) Handle(ctx context.Context, job queue.Job) error {
	var payload trust.EvidencePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode evidence payload: %w", err)
	}

	evidence, err := w.store.GetEvidence(ctx, payload.EvidenceID)
	if errors.Is(err, trust.ErrNotFound) {
		w.logger.Warn("evidence row missing", zap.String("evidence_id", payload.EvidenceID))
		return nil
	}
	if err != nil {
		return err
	}
	if evidence.Status == trust.EvidenceReady {
		// Replay after a crash between persist and ack; nothing to redo.
		return nil
	}

	parseCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	doc, err := w.parser.Parse(parseCtx, evidence.PDFURL)
	if err != nil {
		return w.fail(ctx, evidence.ID, fmt.Errorf("parse %s: %w", evidence.PDFURL, err))
	}

	fields := ExtractEvidenceFields(doc)
	if err := w.store.MarkEvidenceReady(ctx, evidence.ID, fields, w.clock.Now()); err != nil {
		return err
	}
	metrics.ObserveEvidence(string(trust.EvidenceReady))
	return nil
}

func (w *EvidenceWorker) fail(ctx context.Context, id string, cause error) error {
	if err := w.store.MarkEvidenceFailed(ctx, id, cause.Error(), w.clock.Now()); err != nil {
		w.logger.Error("mark evidence failed", zap.String("evidence_id", id), zap.Error(err))
	}
	metrics.ObserveEvidence(string(trust.EvidenceFailed))
	return cause
}

var (
	reportTypeRe = regexp.MustCompile(`(?i)SOC\s*2\s*Type\s*(II|I|1|2)|ISO[\s/-]*27001|HIPAA`)
	auditorRe    = regexp.MustCompile(`(?i)(?:auditor|audited\s+by|performed\s+by)[:\s]+((?:[A-Z][\w&.,']*\s+){0,5}(?:[A-Z][\w&.,']*)(?:\s+(?:LLP|LLC|Inc\.?))?)`)
	periodRe     = regexp.MustCompile(`(?i)period[^.]{0,80}?([A-Z][a-z]+ \d{1,2},? \d{4}|\d{4}-\d{2}-\d{2})\s*(?:to|through|[-–])\s*([A-Z][a-z]+ \d{1,2},? \d{4}|\d{4}-\d{2}-\d{2})`)
	scopeRe      = regexp.MustCompile(`(?i)(?:scope|covered\s+services)[:\s]+(.{20,200})`)
)

// ExtractEvidenceFields applies the deterministic field extractor to a
// parsed PDF.
func ExtractEvidenceFields(doc trust.PDFDocument) trust.EvidenceFields {
	fields := trust.EvidenceFields{
		PageContent: doc.Pages,
	}
	if m := reportTypeRe.FindString(doc.Text); m != "" {
		fields.ReportType = collapseWhitespace(m)
	}
	if m := auditorRe.FindStringSubmatch(doc.Text); m != nil {
		fields.Auditor = strings.TrimRight(collapseWhitespace(m[1]), ".,")
	}
	if m := periodRe.FindStringSubmatch(doc.Text); m != nil {
		fields.PeriodStart = m[1]
		fields.PeriodEnd = m[2]
	}
	if m := scopeRe.FindStringSubmatch(doc.Text); m != nil {
		scope := m[1]
		if cut := strings.IndexAny(scope, ".!?\n"); cut >= 20 {
			scope = scope[:cut]
		}
		fields.Scope = collapseWhitespace(scope)
	}
	for page := range doc.Pages {
		fields.PageNumbers = append(fields.PageNumbers, page)
	}
	sort.Ints(fields.PageNumbers)
	return fields
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
