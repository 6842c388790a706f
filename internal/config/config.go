// Package config defines the global configuration structure for the
// certsentry backend. Configuration is loaded once at process start and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved from the OS environment, with a local .env file as a
// development convenience. Any missing required value or invalid format
// fails the process immediately on startup.
package config

import (
	"time"

	"certsentry/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only
// the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Scheduler SchedulerConfig
	Database  DatabaseConfig
	Secrets   SecretsConfig
	Dispatch  DispatchConfig
	Ops       OpsConfig

	// Build metadata, injected via ldflags rather than the environment.
	Build BuildInfo
}

// SchedulerConfig holds the alert scheduler's timing parameters.
type SchedulerConfig struct {
	// Timezone is the IANA zone every scheduling decision is computed in:
	// daily HH:mm matching, days-left, and the tracker's calendar math.
	Timezone string `envconfig:"SCHEDULER_TIMEZONE" default:"UTC" validate:"required"`

	// TickInterval is how often the internal trigger invokes the job. The
	// evaluator truncates ticks to whole minutes, so anything at or under a
	// minute behaves identically apart from trigger latency.
	TickInterval time.Duration `envconfig:"SCHEDULER_TICK_INTERVAL" default:"1m" validate:"min=1s"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// SecretsConfig holds the channel-secret encryption material.
type SecretsConfig struct {
	// Passphrase is the master passphrase the AES key is derived from.
	Passphrase SecretString `envconfig:"SECRETS_PASSPHRASE" validate:"required"`

	// Salt is the base64-encoded KDF salt, generated once per deployment.
	Salt string `envconfig:"SECRETS_SALT" validate:"required,base64"`
}

// DispatchConfig holds settings for outbound channel delivery.
type DispatchConfig struct {
	UserAgent   string        `envconfig:"DISPATCH_USER_AGENT" default:"Certsentry-Alerts/1.0"`
	HTTPTimeout time.Duration `envconfig:"DISPATCH_HTTP_TIMEOUT" default:"10s"`
}

// OpsConfig holds the operational HTTP listener settings.
type OpsConfig struct {
	Port string `envconfig:"OPS_PORT" default:"8080"`
}

// BuildInfo carries compile-time build metadata for the health endpoint and
// startup logging.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid
// debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was absent.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the populated struct failed validation.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates envconfig could not parse a value.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
