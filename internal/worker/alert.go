package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/metrics"
	"github.com/oversift/trustwatch/internal/queue"
	"github.com/oversift/trustwatch/internal/trust"
)

// AlertStores groups the persistence dependencies of the alert worker.
type AlertStores interface {
	trust.EventStore
	trust.CompanyStore
}

// AlertWorker executes send_alert_email jobs. It owns the authoritative
// rate-limit check: at most hourlyCap critical alerts per company per
// trailing hour carry an emailed_at stamp.
type AlertWorker struct {
	stores    AlertStores
	mailer    trust.Mailer
	clock     trust.Clock
	hourlyCap int
	logger    *zap.Logger
}

// NewAlertWorker constructs an AlertWorker.
func NewAlertWorker(stores AlertStores, mailer trust.Mailer, clock trust.Clock, hourlyCap int, logger *zap.Logger) *AlertWorker {
	if hourlyCap <= 0 {
		hourlyCap = 5
	}
	return &AlertWorker{
		stores:    stores,
		mailer:    mailer,
		clock:     clock,
		hourlyCap: hourlyCap,
		logger:    logger,
	}
}

// Handle delivers one critical-event alert.
func (w *AlertWorker) Handle(ctx context.Context, job queue.Job) error {
	var payload trust.AlertPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode alert payload: %w", err)
	}

	event, err := w.stores.GetEvent(ctx, payload.EventID)
	if errors.Is(err, trust.ErrNotFound) {
		w.logger.Warn("alert event missing", zap.String("event_id", payload.EventID))
		return nil
	}
	if err != nil {
		return err
	}
	if event.EmailedAt != nil {
		// Replay after a crash between send and complete.
		return nil
	}

	emailed, err := w.stores.CountEmailedCritical(ctx, event.CompanyID, w.clock.Now().Add(-time.Hour))
	if err != nil {
		return err
	}
	if emailed >= w.hourlyCap {
		// Rate limit hit: drop silently, the event stays recorded.
		metrics.ObserveAlertDropped()
		return nil
	}

	company, err := w.stores.GetCompany(ctx, event.CompanyID)
	if errors.Is(err, trust.ErrNotFound) {
		w.logger.Warn("alert company missing", zap.String("company_id", event.CompanyID))
		return nil
	}
	if err != nil {
		return err
	}

	if err := w.mailer.SendAlert(ctx, trust.Alert{
		Recipient: payload.RecipientEmail,
		Company:   company,
		Event:     event,
	}); err != nil {
		return fmt.Errorf("send alert for event %s: %w", event.ID, err)
	}

	return w.stores.MarkEmailed(ctx, event.ID, w.clock.Now())
}
