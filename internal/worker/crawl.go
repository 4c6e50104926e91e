package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/extract"
	"github.com/oversift/trustwatch/internal/hash/sha256"
	"github.com/oversift/trustwatch/internal/id/uuid"
	"github.com/oversift/trustwatch/internal/metrics"
	"github.com/oversift/trustwatch/internal/queue"
	"github.com/oversift/trustwatch/internal/trust"
)

// CrawlStores groups the persistence dependencies of the crawl pipeline.
type CrawlStores interface {
	trust.CompanyStore
	trust.TargetStore
	trust.ClaimStore
	trust.EventStore
	trust.RunStore
	trust.EvidenceStore
	trust.UserStore
}

// CrawlConfig tunes the crawl worker.
type CrawlConfig struct {
	FetchTimeout   time.Duration
	AlertHourlyCap int
	EvidenceLimit  int
}

// CrawlWorker executes crawl_target jobs: fetch, diff, version, classify,
// sweep removals, update risk, alert, and fan out evidence.
type CrawlWorker struct {
	stores   CrawlStores
	fetcher  trust.Fetcher
	enqueuer trust.Enqueuer
	hasher   *sha256.Hasher
	idGen    *uuid.Generator
	clock    trust.Clock
	cfg      CrawlConfig
	logger   *zap.Logger
}

// NewCrawlWorker constructs a CrawlWorker.
func NewCrawlWorker(
	stores CrawlStores,
	fetcher trust.Fetcher,
	enqueuer trust.Enqueuer,
	clock trust.Clock,
	cfg CrawlConfig,
	logger *zap.Logger,
) *CrawlWorker {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.AlertHourlyCap <= 0 {
		cfg.AlertHourlyCap = 5
	}
	if cfg.EvidenceLimit <= 0 {
		cfg.EvidenceLimit = 3
	}
	return &CrawlWorker{
		stores:   stores,
		fetcher:  fetcher,
		enqueuer: enqueuer,
		hasher:   sha256.New(),
		idGen:    uuid.NewUUIDGenerator(),
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

var pdfLink = regexp.MustCompile(`(?i)https?://[^\s"'<>()\[\]]+\.pdf\b`)

// Handle processes one crawl_target job.
func (w *CrawlWorker) Handle(ctx context.Context, job queue.Job) error {
	var payload trust.CrawlPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode crawl payload: %w", err)
	}

	target, err := w.stores.GetTarget(ctx, payload.TargetID)
	if errors.Is(err, trust.ErrNotFound) {
		// Target deleted since enqueue; nothing to crawl.
		w.logger.Warn("crawl target missing", zap.String("target_id", payload.TargetID))
		return nil
	}
	if err != nil {
		return err
	}
	company, err := w.stores.GetCompany(ctx, target.CompanyID)
	if errors.Is(err, trust.ErrNotFound) {
		w.logger.Warn("company missing for target", zap.String("company_id", target.CompanyID))
		return nil
	}
	if err != nil {
		return err
	}

	run := trust.CrawlRun{
		ID:        w.idGen.MustID(),
		CompanyID: company.ID,
		StartedAt: w.clock.Now(),
		Status:    trust.RunRunning,
	}
	if err := w.stores.StartRun(ctx, run); err != nil {
		return err
	}

	counters, runErrs, err := w.crawl(ctx, company, target)
	status := trust.RunCompleted
	if err != nil {
		status = trust.RunFailed
		runErrs = append(runErrs, err.Error())
	}
	if ferr := w.stores.FinishRun(ctx, run.ID, status, counters, runErrs, w.clock.Now()); ferr != nil {
		w.logger.Error("finish run failed", zap.String("run_id", run.ID), zap.Error(ferr))
	}
	return err
}

func (w *CrawlWorker) crawl(ctx context.Context, company trust.Company, target trust.CrawlTarget) (trust.RunCounters, []string, error) {
	counters := trust.RunCounters{}
	var runErrs []string

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()
	page, err := w.fetcher.Fetch(fetchCtx, target.URL)
	if err != nil {
		metrics.ObserveCrawl("failed")
		return counters, runErrs, fmt.Errorf("fetch %s: %w", target.URL, err)
	}
	counters.Pages = 1

	now := w.clock.Now()
	digest := w.hasher.HashString(page.Text)
	if digest == target.ContentDigest {
		metrics.ObserveCrawl("unchanged")
		w.logger.Debug("content unchanged",
			zap.String("company_id", company.ID),
			zap.String("url", target.URL),
		)
		if err := w.stores.UpdateTargetCrawl(ctx, target.ID, digest, now); err != nil {
			runErrs = append(runErrs, err.Error())
		}
		if err := w.stores.TouchCompanyCrawled(ctx, company.ID, now); err != nil {
			runErrs = append(runErrs, err.Error())
		}
		return counters, runErrs, nil
	}

	extracted := extract.Extract(page.Text, target.URL)
	counters.Claims = len(extracted)
	metrics.ObserveClaims(len(extracted))

	seen := make(map[string]bool, len(extracted))
	var criticalEvents []trust.ChangeEvent
	for _, ec := range extracted {
		seen[ec.Key] = true
		ev, err := w.upsertClaim(ctx, company, target, ec)
		if err != nil {
			runErrs = append(runErrs, err.Error())
			continue
		}
		if ev != nil {
			counters.Events++
			w.applyRisk(ctx, company.ID, *ev)
			if ev.Severity == trust.SeverityCritical {
				criticalEvents = append(criticalEvents, *ev)
			}
		}
	}

	removed, sweepErrs := w.removalSweep(ctx, company, target, seen)
	runErrs = append(runErrs, sweepErrs...)
	counters.Events += len(removed)
	for _, ev := range removed {
		w.applyRisk(ctx, company.ID, ev)
		if ev.Severity == trust.SeverityCritical {
			criticalEvents = append(criticalEvents, ev)
		}
	}

	w.dispatchAlerts(ctx, company, criticalEvents)

	if err := w.stores.UpdateTargetCrawl(ctx, target.ID, digest, now); err != nil {
		runErrs = append(runErrs, err.Error())
	}
	if err := w.stores.TouchCompanyCrawled(ctx, company.ID, now); err != nil {
		runErrs = append(runErrs, err.Error())
	}

	runErrs = append(runErrs, w.fanOutEvidence(ctx, company, target, page.Text)...)

	metrics.ObserveCrawl("changed")
	return counters, runErrs, nil
}

// upsertClaim creates or versions one extracted claim and returns the event
// emitted, if any.
func (w *CrawlWorker) upsertClaim(ctx context.Context, company trust.Company, target trust.CrawlTarget, ec extract.Claim) (*trust.ChangeEvent, error) {
	now := w.clock.Now()
	snippetDigest := w.hasher.HashString(ec.Snippet)

	existing, err := w.stores.FindClaim(ctx, company.ID, ec.Type, ec.Key)
	if errors.Is(err, trust.ErrNotFound) {
		claim := trust.Claim{
			ID:          w.idGen.MustID(),
			CompanyID:   company.ID,
			Type:        ec.Type,
			Key:         ec.Key,
			Status:      trust.ClaimActive,
			FirstSeenAt: now,
			LastSeenAt:  now,
			Snippet:     ec.Snippet,
			SourceURL:   target.URL,
			Confidence:  ec.Confidence,
		}
		version := trust.ClaimVersion{
			ID:        w.idGen.MustID(),
			ClaimID:   claim.ID,
			CompanyID: company.ID,
			Snippet:   ec.Snippet,
			SourceURL: target.URL,
			Digest:    snippetDigest,
			SeenAt:    now,
			Polarity:  ec.Polarity,
			Meta:      ec.Meta,
		}
		event := trust.ChangeEvent{
			ID:         w.idGen.MustID(),
			CompanyID:  company.ID,
			ClaimType:  ec.Type,
			Key:        ec.Key,
			Type:       trust.EventAdded,
			Severity:   SeverityFor(trust.EventAdded, ec.Type, false),
			NewSnippet: ec.Snippet,
			SourceURL:  target.URL,
			DetectedAt: now,
		}
		if err := w.stores.CreateClaim(ctx, claim, version, event); err != nil {
			return nil, err
		}
		metrics.ObserveEvent(string(event.Type), string(event.Severity))
		return &event, nil
	}
	if err != nil {
		return nil, err
	}

	last, err := w.stores.LatestVersion(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	if last.Digest == snippetDigest {
		if existing.Status != trust.ClaimActive {
			// The claim came back with unchanged text after a removal.
			return nil, w.stores.ReactivateClaim(ctx, existing.ID, now)
		}
		// Same text as the last version: refresh last-seen only.
		return nil, w.stores.TouchClaimSeen(ctx, existing.ID, now)
	}

	version := trust.ClaimVersion{
		ID:        w.idGen.MustID(),
		ClaimID:   existing.ID,
		CompanyID: company.ID,
		Snippet:   ec.Snippet,
		SourceURL: target.URL,
		Digest:    snippetDigest,
		SeenAt:    now,
		Polarity:  ec.Polarity,
		Meta:      ec.Meta,
	}
	eventType, severity := Classify(last, version, existing.Type)
	event := trust.ChangeEvent{
		ID:         w.idGen.MustID(),
		CompanyID:  company.ID,
		ClaimType:  existing.Type,
		Key:        existing.Key,
		Type:       eventType,
		Severity:   severity,
		OldSnippet: last.Snippet,
		NewSnippet: ec.Snippet,
		SourceURL:  target.URL,
		DetectedAt: now,
	}
	if event.Type == trust.EventAdded {
		// The legacy default branch carries the new text only.
		event.OldSnippet = ""
	}
	if err := w.stores.RecordChange(ctx, existing.ID, version, event); err != nil {
		return nil, err
	}
	metrics.ObserveEvent(string(event.Type), string(event.Severity))
	return &event, nil
}

// removalSweep marks claims sourced from this target that vanished from the
// current extraction pass.
func (w *CrawlWorker) removalSweep(ctx context.Context, company trust.Company, target trust.CrawlTarget, seen map[string]bool) ([]trust.ChangeEvent, []string) {
	var events []trust.ChangeEvent
	var errs []string

	active, err := w.stores.ActiveClaimsForSource(ctx, company.ID, target.URL)
	if err != nil {
		return nil, []string{err.Error()}
	}
	now := w.clock.Now()
	for _, claim := range active {
		if seen[claim.Key] {
			continue
		}
		event := trust.ChangeEvent{
			ID:         w.idGen.MustID(),
			CompanyID:  company.ID,
			ClaimType:  claim.Type,
			Key:        claim.Key,
			Type:       trust.EventRemoved,
			Severity:   SeverityFor(trust.EventRemoved, claim.Type, false),
			OldSnippet: claim.Snippet,
			SourceURL:  target.URL,
			DetectedAt: now,
		}
		if err := w.stores.RemoveClaim(ctx, claim.ID, event); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		metrics.ObserveEvent(string(event.Type), string(event.Severity))
		events = append(events, event)
	}
	return events, errs
}

func (w *CrawlWorker) applyRisk(ctx context.Context, companyID string, ev trust.ChangeEvent) {
	delta := RiskDelta(ev.Type, ev.Severity)
	if delta == 0 {
		return
	}
	if err := w.stores.AddRiskScore(ctx, companyID, delta); err != nil {
		w.logger.Error("risk score update failed", zap.String("company_id", companyID), zap.Error(err))
	}
}

// dispatchAlerts enqueues alert email jobs for critical events, subject to
// the per-company hourly cap. The alert worker re-checks the cap before
// sending; this check just avoids queueing work that would be dropped.
func (w *CrawlWorker) dispatchAlerts(ctx context.Context, company trust.Company, events []trust.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	user, err := w.stores.GetUser(ctx, company.UserID)
	if err != nil {
		w.logger.Error("alert recipient lookup failed", zap.String("user_id", company.UserID), zap.Error(err))
		return
	}

	for _, ev := range events {
		emailed, err := w.stores.CountEmailedCritical(ctx, company.ID, w.clock.Now().Add(-time.Hour))
		if err != nil {
			w.logger.Error("alert cap check failed", zap.String("company_id", company.ID), zap.Error(err))
			continue
		}
		if emailed >= w.cfg.AlertHourlyCap {
			metrics.ObserveAlertDropped()
			continue
		}
		payload := trust.AlertPayload{
			EventID:        ev.ID,
			UserID:         user.ID,
			RecipientEmail: user.Email,
		}
		if _, err := w.enqueuer.Enqueue(ctx, trust.QueueSendAlertEmail, payload, trust.AlertKey(ev.ID, user.ID), trust.PriorityEmail); err != nil {
			w.logger.Error("enqueue alert failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
}

// fanOutEvidence creates PENDING evidence rows for the first few new PDF
// links on the page and enqueues their parse jobs.
func (w *CrawlWorker) fanOutEvidence(ctx context.Context, company trust.Company, target trust.CrawlTarget, text string) []string {
	var errs []string

	seen := make(map[string]bool)
	created := 0
	for _, pdfURL := range pdfLink.FindAllString(text, -1) {
		if created >= w.cfg.EvidenceLimit {
			break
		}
		if seen[pdfURL] {
			continue
		}
		seen[pdfURL] = true

		evidence := trust.Evidence{
			ID:        w.idGen.MustID(),
			CompanyID: company.ID,
			ClaimType: trust.ClaimCompliance,
			PDFURL:    pdfURL,
			SourceURL: target.URL,
			Status:    trust.EvidencePending,
			CreatedAt: w.clock.Now(),
		}
		inserted, err := w.stores.CreateEvidenceIfAbsent(ctx, evidence)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if !inserted {
			continue
		}
		created++
		metrics.ObserveEvidence(string(trust.EvidencePending))

		payload := trust.EvidencePayload{
			EvidenceID: evidence.ID,
			PDFURL:     pdfURL,
			CompanyID:  company.ID,
		}
		if _, err := w.enqueuer.Enqueue(ctx, trust.QueueProcessEvidence, payload, trust.EvidenceKey(evidence.ID), trust.PriorityEvidence); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
