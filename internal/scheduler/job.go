package scheduler

import (
	"context"
	"fmt"
	"time"

	"certsentry/internal/types"
)

// actorScheduler is the audit actor recorded for scheduler-initiated sends.
const actorScheduler = "alert-scheduler"

// AlertSender is the orchestrator surface the job depends on.
type AlertSender interface {
	SendAlerts(ctx context.Context, cert *types.Certificate, model *types.AlertModel, daysLeft int, actor string) error
}

// RunStats summarizes one job run for logging and the ops trigger response.
type RunStats struct {
	Tick         time.Time `json:"tick"`
	Certificates int       `json:"certificates"`
	Dispatched   int       `json:"dispatched"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"`
}

// AlertJobConfig holds the dependencies needed to create an AlertJob.
type AlertJobConfig struct {
	Certificates types.CertificateRepository
	AlertModels  types.AlertModelRepository
	Sender       AlertSender
	Tracker      *DispatchTracker
	Clock        types.Clock
	Logger       types.Logger
}

// AlertJob is the top-level scheduling loop, invoked once per external
// trigger. It walks every certificate through a linear decision chain and
// hands the due ones to the orchestrator. The job exclusively owns its
// DispatchTracker; certificates are processed sequentially so audit-log
// ordering stays deterministic and dispatch storms cannot happen.
type AlertJob struct {
	certificates types.CertificateRepository
	alertModels  types.AlertModelRepository
	sender       AlertSender
	tracker      *DispatchTracker
	evaluator    *Evaluator
	clock        types.Clock
	logger       types.Logger
}

// NewAlertJob creates an AlertJob with the given dependencies.
func NewAlertJob(cfg AlertJobConfig) *AlertJob {
	return &AlertJob{
		certificates: cfg.Certificates,
		alertModels:  cfg.AlertModels,
		sender:       cfg.Sender,
		tracker:      cfg.Tracker,
		evaluator:    NewEvaluator(cfg.Logger),
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

// Run executes one scheduling pass. It returns an error only when the
// certificate or model listing itself failed; everything downstream is
// isolated per certificate. One certificate's bad date, missing model, or
// total dispatch failure is logged and never aborts the rest of the run.
func (j *AlertJob) Run(ctx context.Context) (*RunStats, error) {
	tick := TruncateTick(j.clock.Now())
	stats := &RunStats{Tick: tick}

	certs, err := j.certificates.ListCertificates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	models, err := j.alertModels.ListAlertModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alert models: %w", err)
	}

	modelsByID := make(map[string]*types.AlertModel, len(models))
	for i := range models {
		modelsByID[models[i].ID] = &models[i]
	}

	stats.Certificates = len(certs)
	for i := range certs {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		switch j.processCertificate(ctx, &certs[i], modelsByID, tick) {
		case outcomeDispatched:
			stats.Dispatched++
		case outcomeFailed:
			stats.Failed++
		default:
			stats.Skipped++
		}
	}

	j.logger.Info("alert scheduler run complete",
		"tick", tick.Format(time.RFC3339),
		"certificates", stats.Certificates,
		"dispatched", stats.Dispatched,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

type certOutcome int

const (
	outcomeSkipped certOutcome = iota
	outcomeDispatched
	outcomeFailed
)

// processCertificate walks one certificate through the decision chain. Any
// "no" answer exits without side effects; the tracker is marked only after
// the orchestrator reported success, so a failed dispatch retries on the
// next matching tick instead of being silently suppressed.
func (j *AlertJob) processCertificate(ctx context.Context, cert *types.Certificate, models map[string]*types.AlertModel, tick time.Time) certOutcome {
	if !cert.AlertsEnabled() {
		return outcomeSkipped
	}

	model, ok := models[cert.AlertModelID]
	if !ok {
		j.logger.Warn("certificate references a missing alert model, skipping",
			"certificate_id", cert.ID, "alert_model_id", cert.AlertModelID)
		return outcomeSkipped
	}
	if !model.Enabled {
		return outcomeSkipped
	}

	if !j.evaluator.IsScheduleDue(model, tick) {
		return outcomeSkipped
	}

	if j.tracker.AlreadyDispatched(cert.ID, model, tick) {
		return outcomeSkipped
	}

	daysLeft, err := DaysLeft(cert.ExpiresAt, tick)
	if err != nil {
		j.logger.Warn("certificate has unparseable expiry date, skipping",
			"certificate_id", cert.ID, "expires_at", cert.ExpiresAt, "error", err.Error())
		return outcomeSkipped
	}

	if !ShouldSendNotification(daysLeft, model) {
		return outcomeSkipped
	}

	if err := j.sender.SendAlerts(ctx, cert, model, daysLeft, actorScheduler); err != nil {
		j.logger.Error("alert dispatch failed",
			"certificate_id", cert.ID, "alert_model_id", model.ID,
			"days_left", daysLeft, "error", err.Error())
		return outcomeFailed
	}

	j.tracker.MarkDispatched(cert.ID, model, tick)
	return outcomeDispatched
}
