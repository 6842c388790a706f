package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"certsentry/internal/types"
)

// auditEntity is the entity name written on every orchestrator audit record.
const auditEntity = "certificate"

// Orchestrator renders an alert for a certificate and fans it out to all
// linked channels. It aggregates per-channel successes and failures, writes
// exactly one audit entry per invocation, and fails only when every
// attempted channel failed.
type Orchestrator struct {
	channels types.ChannelRepository
	registry *Registry
	cipher   types.SecretCipher
	audit    types.AuditService
	clock    types.Clock
	logger   types.Logger
}

// OrchestratorConfig holds the dependencies needed to create an Orchestrator.
type OrchestratorConfig struct {
	Channels types.ChannelRepository
	Registry *Registry
	Cipher   types.SecretCipher
	Audit    types.AuditService
	Clock    types.Clock
	Logger   types.Logger
}

// NewOrchestrator creates an Orchestrator with the given dependencies. A nil
// Clock defaults to the real system clock; audit timestamps only need a
// scheduler-zoned clock when one is injected.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Orchestrator{
		channels: cfg.Channels,
		registry: cfg.Registry,
		cipher:   cfg.Cipher,
		audit:    cfg.Audit,
		clock:    clock,
		logger:   cfg.Logger,
	}
}

// SendAlerts renders the model's templates for the certificate and delivers
// the message to every linked channel. Channels dispatch concurrently and
// independently: one channel's failure never blocks the others.
//
// A certificate with no linked channels is a valid no-op configuration:
// SendAlerts logs, writes one audit entry noting the skip, and returns nil.
// If at least one channel succeeded the call succeeds; if every attempted
// channel failed it returns an aggregate error (audit has already been
// written either way).
func (o *Orchestrator) SendAlerts(ctx context.Context, cert *types.Certificate, model *types.AlertModel, daysLeft int, actor string) error {
	channelIDs := dedupe(cert.ChannelIDs)

	if len(channelIDs) == 0 {
		o.logger.Info("certificate has no linked channels, skipping dispatch",
			"certificate_id", cert.ID, "alert_model", model.Name)
		o.recordAudit(ctx, cert, actor, types.AuditNotificationSkipped,
			fmt.Sprintf("alert_model=%s days_left=%d no channels linked", model.Name, daysLeft))
		return nil
	}

	msg := RenderMessage(cert, model, daysLeft)

	outcomes := make([]types.ChannelOutcome, len(channelIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range channelIDs {
		g.Go(func() error {
			outcomes[i] = o.dispatchOne(gctx, id, msg)
			return nil
		})
	}
	// Goroutines only record outcomes; Wait never returns an error here.
	_ = g.Wait()

	note := buildAuditNote(model.Name, daysLeft, outcomes)
	o.recordAudit(ctx, cert, actor, types.AuditNotificationSent, note)

	sent := 0
	for _, out := range outcomes {
		if out.Sent() {
			sent++
		}
	}
	if sent == 0 {
		return types.NewAppError(types.ErrCodeDispatchAllFailed,
			fmt.Sprintf("all %d channel(s) failed for certificate %s: %s",
				len(outcomes), cert.ID, failureSummary(outcomes)), nil)
	}

	o.logger.Info("alerts dispatched",
		"certificate_id", cert.ID,
		"alert_model", model.Name,
		"days_left", daysLeft,
		"sent", sent,
		"failed", len(outcomes)-sent,
	)
	return nil
}

// dispatchOne resolves one channel instance, decrypts its secrets
// just-in-time, and delivers the message through the matching dispatcher.
func (o *Orchestrator) dispatchOne(ctx context.Context, channelID string, msg *types.Message) types.ChannelOutcome {
	out := types.ChannelOutcome{ChannelID: channelID}

	ch, err := o.channels.GetChannel(ctx, channelID)
	if err != nil {
		out.Err = fmt.Errorf("load channel: %w", err)
		return out
	}
	out.ChannelName = ch.Name
	out.Type = ch.Type

	if !ch.Enabled || ch.DeletedAt != nil {
		out.Err = types.NewAppError(types.ErrCodeValidationChannel, "channel is disabled", nil)
		return out
	}

	dispatcher := o.registry.Get(ch.Type)
	if dispatcher == nil {
		out.Err = types.NewAppError(types.ErrCodeValidationChannel,
			fmt.Sprintf("unsupported channel type %q", ch.Type), nil)
		return out
	}

	params, err := o.channels.GetChannelParams(ctx, channelID)
	if err != nil {
		out.Err = fmt.Errorf("load channel params: %w", err)
		return out
	}

	encrypted, err := o.channels.GetChannelSecrets(ctx, channelID)
	if err != nil {
		out.Err = fmt.Errorf("load channel secrets: %w", err)
		return out
	}
	secrets := make(map[string]types.SecretString, len(encrypted))
	for name, ciphertext := range encrypted {
		plain, err := o.cipher.Decrypt(ciphertext)
		if err != nil {
			// No ciphertext or plaintext in the error path.
			out.Err = types.NewAppError(types.ErrCodeInternalCrypto,
				fmt.Sprintf("decrypt secret %q", name), nil)
			return out
		}
		secrets[name] = plain
	}

	dest, err := dispatcher.Deliver(ctx, ch, params, secrets, msg)
	if err != nil {
		o.logger.Warn("channel delivery failed",
			"channel_id", channelID, "channel_type", string(ch.Type), "error", err.Error())
		out.Err = err
		return out
	}

	out.Destination = dest
	return out
}

// recordAudit writes the single per-invocation audit entry. Audit is
// best-effort: a failed write is logged and never propagated.
func (o *Orchestrator) recordAudit(ctx context.Context, cert *types.Certificate, actor string, action types.AuditAction, note string) {
	entry := &types.AuditEntry{
		ID:        uuid.NewString(),
		Actor:     actor,
		Entity:    auditEntity,
		EntityID:  cert.ID,
		Action:    action,
		Diff:      map[string]any{"name": cert.Name, "expires_at": cert.ExpiresAt},
		Note:      note,
		CreatedAt: o.clock.Now(),
	}
	if err := o.audit.Record(ctx, entry); err != nil {
		o.logger.Error("audit record failed", "certificate_id", cert.ID, "error", err.Error())
	}
}

// dedupe removes duplicate channel IDs preserving first-seen order, so a
// certificate mistakenly linked to the same channel twice gets one send and
// one audit line for it.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// buildAuditNote renders the channel-level outcome summary written to the
// audit log, e.g.:
//
//	alert_model=expiry-14d days_left=14 sent=[email-ops->o***@example.com] failed=[slack-infra: webhook returned 404]
func buildAuditNote(modelName string, daysLeft int, outcomes []types.ChannelOutcome) string {
	var sent, failed []string
	for _, out := range outcomes {
		label := out.ChannelName
		if label == "" {
			label = out.ChannelID
		}
		if out.Sent() {
			sent = append(sent, fmt.Sprintf("%s->%s", label, out.Destination))
		} else {
			failed = append(failed, fmt.Sprintf("%s: %s", label, out.Err.Error()))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "alert_model=%s days_left=%d", modelName, daysLeft)
	fmt.Fprintf(&b, " sent=[%s]", strings.Join(sent, "; "))
	fmt.Fprintf(&b, " failed=[%s]", strings.Join(failed, "; "))
	return b.String()
}

// failureSummary concatenates the failure reasons for the aggregate error.
func failureSummary(outcomes []types.ChannelOutcome) string {
	var parts []string
	for _, out := range outcomes {
		if !out.Sent() {
			label := out.ChannelName
			if label == "" {
				label = out.ChannelID
			}
			parts = append(parts, fmt.Sprintf("%s: %s", label, out.Err.Error()))
		}
	}
	return strings.Join(parts, "; ")
}
