// Package main implements the alert-runner CLI tool for invoking the alert
// scheduling job directly, outside the long-running scheduler process.
//
// This tool is intended for local development, operational debugging, and
// verifying schedule configuration against a chosen reference time.
//
// Usage:
//
//	go run ./cmd/tools/alert-runner
//	go run ./cmd/tools/alert-runner --reference-time=2026-07-01T23:41:00Z
//	go run ./cmd/tools/alert-runner --dry-run
//
// The tool reads DATABASE_URL and the rest of the configuration from the
// environment (or a .env file). In --dry-run mode the decision chain runs
// in full but every due certificate is printed instead of dispatched; no
// channel I/O and no audit writes happen.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"certsentry/internal/config"
	"certsentry/internal/db"
	"certsentry/internal/external"
	"certsentry/internal/notifications/core"
	"certsentry/internal/notifications/email"
	"certsentry/internal/notifications/telegram"
	"certsentry/internal/notifications/webhook"
	"certsentry/internal/scheduler"
	"certsentry/internal/secrets"
	"certsentry/internal/types"
)

type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// fixedClock pins "now" to the --reference-time instant.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// dryRunSender prints what would be dispatched instead of dispatching.
type dryRunSender struct{}

func (dryRunSender) SendAlerts(_ context.Context, cert *types.Certificate, model *types.AlertModel, daysLeft int, actor string) error {
	msg := core.RenderMessage(cert, model, daysLeft)
	out := map[string]any{
		"certificate_id": cert.ID,
		"certificate":    cert.Name,
		"alert_model":    model.Name,
		"days_left":      daysLeft,
		"actor":          actor,
		"channels":       cert.ChannelIDs,
		"subject":        msg.Subject,
		"body":           msg.Body,
	}
	encoded, _ := json.MarshalIndent(out, "", "  ")
	fmt.Printf("would dispatch:\n%s\n", encoded)
	return nil
}

func main() {
	referenceTime := flag.String("reference-time", "", "RFC3339 instant to evaluate schedules against (default: now)")
	dryRun := flag.Bool("dry-run", false, "print due certificates instead of dispatching")
	flag.Parse()

	if err := run(*referenceTime, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "alert-runner failed: %v\n", err)
		os.Exit(1)
	}
}

func run(referenceTime string, dryRun bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := &slogAdapter{logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("resolve scheduler timezone: %w", err)
	}

	var clock types.Clock = types.ZonedClock{Loc: loc}
	if referenceTime != "" {
		ref, err := time.Parse(time.RFC3339, referenceTime)
		if err != nil {
			return fmt.Errorf("parse --reference-time: %w", err)
		}
		clock = fixedClock{now: ref.In(loc)}
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	sender, err := buildSender(cfg, pool, clock, logger, dryRun)
	if err != nil {
		return err
	}

	job := scheduler.NewAlertJob(scheduler.AlertJobConfig{
		Certificates: db.NewCertificateRepository(pool),
		AlertModels:  db.NewAlertModelRepository(pool),
		Sender:       sender,
		Tracker:      scheduler.NewDispatchTracker(),
		Clock:        clock,
		Logger:       logger,
	})

	stats, err := job.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("tick=%s certificates=%d dispatched=%d failed=%d skipped=%d\n",
		stats.Tick.Format(time.RFC3339), stats.Certificates, stats.Dispatched, stats.Failed, stats.Skipped)
	return nil
}

// buildSender assembles the real orchestrator, or the printing stub when
// --dry-run is set.
func buildSender(cfg *config.Config, pool *pgxpool.Pool, clock types.Clock, logger types.Logger, dryRun bool) (scheduler.AlertSender, error) {
	if dryRun {
		return dryRunSender{}, nil
	}

	salt, err := base64.StdEncoding.DecodeString(cfg.Secrets.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode secrets salt: %w", err)
	}
	cipher, err := secrets.NewCipher(cfg.Secrets.Passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("init secret cipher: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Dispatch.HTTPTimeout}
	retryPolicy := external.DefaultRetryPolicy()
	webhookClient := external.NewBaseClient(httpClient, "channel-dispatch", retryPolicy, cfg.Dispatch.UserAgent)

	registry := core.NewRegistry(
		email.NewDispatcher(retryPolicy, logger),
		telegram.NewDispatcher(webhookClient, logger),
		webhook.NewSlackDispatcher(webhookClient, logger),
		webhook.NewGoogleChatDispatcher(webhookClient, logger),
	)

	return core.NewOrchestrator(core.OrchestratorConfig{
		Channels: db.NewChannelRepository(pool),
		Registry: registry,
		Cipher:   cipher,
		Audit:    db.NewAuditRepository(pool),
		Clock:    clock,
		Logger:   logger,
	}), nil
}
