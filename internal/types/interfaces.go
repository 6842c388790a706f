package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability. All scheduling decisions are
// computed against a single Clock so evaluation stays consistent within one
// job run.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// ZonedClock implements Clock in a fixed IANA time zone. The scheduler uses
// it so days-left and schedule matching share one zone.
type ZonedClock struct {
	Loc *time.Location
}

// NewZonedClock resolves the IANA zone name and returns a ZonedClock.
func NewZonedClock(zone string) (ZonedClock, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return ZonedClock{}, err
	}
	return ZonedClock{Loc: loc}, nil
}

// Now returns the current time in the configured zone.
func (c ZonedClock) Now() time.Time { return time.Now().In(c.Loc) }

// Logger defines the structured logging interface used throughout the
// backend. Satisfied by a thin slog adapter at the entrypoints.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// CertificateRepository provides read access to tracked certificates.
type CertificateRepository interface {
	ListCertificates(ctx context.Context) ([]Certificate, error)
	GetCertificate(ctx context.Context, id string) (*Certificate, error)
}

// AlertModelRepository provides read access to alert models.
type AlertModelRepository interface {
	ListAlertModels(ctx context.Context) ([]AlertModel, error)

	// GetAlertModel returns nil (and no error) when the model does not exist.
	GetAlertModel(ctx context.Context, id string) (*AlertModel, error)
}

// ChannelRepository provides read access to channel instances and their
// per-type parameters and secrets. Secret values are returned as stored,
// i.e. still encrypted; callers decrypt just-in-time via a SecretCipher.
type ChannelRepository interface {
	GetChannel(ctx context.Context, id string) (*ChannelInstance, error)
	GetChannelParams(ctx context.Context, id string) (map[string]string, error)
	GetChannelSecrets(ctx context.Context, id string) (map[string]string, error)
}

// AuditService records append-only audit entries. Best-effort from the
// core's perspective: a failed write is logged, never propagated.
type AuditService interface {
	Record(ctx context.Context, entry *AuditEntry) error
}

// ChannelDispatcher delivers a rendered message through one channel variant.
// One implementation exists per ChannelType; the orchestrator picks the
// dispatcher by the channel instance's type.
type ChannelDispatcher interface {
	// Type returns the channel variant this dispatcher handles.
	Type() ChannelType

	// Deliver sends the message and returns a short human-readable
	// destination description (redacted recipients, chat count, webhook
	// host) for the audit note. Secrets arrive already decrypted.
	Deliver(ctx context.Context, ch *ChannelInstance, params map[string]string, secrets map[string]SecretString, msg *Message) (string, error)
}

// SecretCipher decrypts channel secrets stored at rest. The core only calls
// Decrypt; encryption happens in the external CRUD layer.
type SecretCipher interface {
	Decrypt(ciphertext string) (SecretString, error)
}
