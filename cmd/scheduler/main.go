// Package main implements the certsentry scheduler process: a long-running
// service whose internal minute ticker drives the alert scheduling job, plus
// a small operational HTTP listener for probes and manual triggers.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"certsentry/internal/config"
	"certsentry/internal/db"
	"certsentry/internal/external"
	"certsentry/internal/notifications/core"
	"certsentry/internal/notifications/email"
	"certsentry/internal/notifications/telegram"
	"certsentry/internal/notifications/webhook"
	"certsentry/internal/ops"
	"certsentry/internal/scheduler"
	"certsentry/internal/secrets"
	"certsentry/internal/types"
)

// shutdownTimeout bounds the graceful shutdown of the ops listener.
const shutdownTimeout = 10 * time.Second

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// serializedRunner funnels all job invocations (ticker and manual trigger)
// through one mutex so runs never overlap. Overlapping runs would race on
// the dispatch tracker and could double-send.
type serializedRunner struct {
	mu  sync.Mutex
	job *scheduler.AlertJob
}

func (r *serializedRunner) Run(ctx context.Context) (*scheduler.RunStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.Run(ctx)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slogger := newLogger(cfg.LogLevel)
	logger := &slogAdapter{logger: slogger}
	logger.Info("starting scheduler",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"timezone", cfg.Scheduler.Timezone,
		"tick_interval", cfg.Scheduler.TickInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	salt, err := base64.StdEncoding.DecodeString(cfg.Secrets.Salt)
	if err != nil {
		return fmt.Errorf("decode secrets salt: %w", err)
	}
	cipher, err := secrets.NewCipher(cfg.Secrets.Passphrase, salt)
	if err != nil {
		return fmt.Errorf("init secret cipher: %w", err)
	}

	clock, err := types.NewZonedClock(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("resolve scheduler timezone: %w", err)
	}

	job := buildJob(cfg, pool, cipher, clock, logger)
	runner := &serializedRunner{job: job}

	opsServer := ops.NewServer(ops.ServerConfig{
		Runner: runner,
		DB:     pool,
		Build:  cfg.Build,
		Logger: logger,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Ops.Port,
		Handler:           opsServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops listener started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	tickerErr := make(chan error, 1)
	go func() {
		tickerErr <- runTicker(ctx, runner, cfg.Scheduler.TickInterval, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("ops listener: %w", err)
		}
	case err := <-tickerErr:
		if err != nil {
			return fmt.Errorf("ticker loop: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops listener shutdown error", "error", err.Error())
	}

	logger.Info("scheduler stopped cleanly")
	return nil
}

// runTicker drives the job once per interval until the context is
// cancelled. A failed run is logged and the loop continues; the next tick
// is a natural retry.
func runTicker(ctx context.Context, runner *serializedRunner, interval time.Duration, logger types.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduled run failed", "error", err.Error())
			}
		}
	}
}

// buildJob wires the repositories, channel dispatchers, orchestrator, and
// dispatch tracker into one AlertJob.
func buildJob(cfg *config.Config, pool *pgxpool.Pool, cipher *secrets.Cipher, clock types.Clock, logger types.Logger) *scheduler.AlertJob {
	httpClient := &http.Client{Timeout: cfg.Dispatch.HTTPTimeout}
	retryPolicy := external.DefaultRetryPolicy()
	webhookClient := external.NewBaseClient(httpClient, "channel-dispatch", retryPolicy, cfg.Dispatch.UserAgent)

	registry := core.NewRegistry(
		email.NewDispatcher(retryPolicy, logger.With("channel", "email_smtp")),
		telegram.NewDispatcher(webhookClient, logger.With("channel", "telegram_bot")),
		webhook.NewSlackDispatcher(webhookClient, logger.With("channel", "slack_webhook")),
		webhook.NewGoogleChatDispatcher(webhookClient, logger.With("channel", "googlechat_webhook")),
	)

	orchestrator := core.NewOrchestrator(core.OrchestratorConfig{
		Channels: db.NewChannelRepository(pool),
		Registry: registry,
		Cipher:   cipher,
		Audit:    db.NewAuditRepository(pool),
		Clock:    clock,
		Logger:   logger.With("component", "orchestrator"),
	})

	return scheduler.NewAlertJob(scheduler.AlertJobConfig{
		Certificates: db.NewCertificateRepository(pool),
		AlertModels:  db.NewAlertModelRepository(pool),
		Sender:       orchestrator,
		Tracker:      scheduler.NewDispatchTracker(),
		Clock:        clock,
		Logger:       logger.With("component", "alert-job"),
	})
}

// newPool creates the pgx pool with the configured tuning parameters.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// newLogger creates a structured slog.Logger configured for the given log
// level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
