package types

import (
	"fmt"
	"strings"
	"time"
)

// Certificate is the core domain entity: a certificate whose expiry the
// scheduler watches. The scheduler only reads certificates; create/update/
// delete happens in the external CRUD layer.
type Certificate struct {
	ID          string            `json:"id" db:"id"`
	Name        string            `json:"name" db:"name"`
	OwnerEmails string            `json:"owner_emails" db:"owner_emails"`
	IssuedAt    string            `json:"issued_at" db:"issued_at"`
	ExpiresAt   string            `json:"expires_at" db:"expires_at"`
	Status      CertificateStatus `json:"status" db:"status"`

	// AlertModelID links the certificate to its alert model. Empty or the
	// AlertModelDisabled sentinel means the scheduler skips it.
	AlertModelID string `json:"alert_model_id" db:"alert_model_id"`

	// ChannelIDs lists linked channel instances. May contain duplicates;
	// the orchestrator deduplicates at dispatch time.
	ChannelIDs []string `json:"channel_ids" db:"channel_ids"`

	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// OwnerEmailList splits OwnerEmails on commas and semicolons, trims
// whitespace, and drops empty entries. This is the SMTP recipient set.
func (c *Certificate) OwnerEmailList() []string {
	fields := strings.FieldsFunc(c.OwnerEmails, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// AlertsEnabled reports whether the certificate opted into alerting at all.
func (c *Certificate) AlertsEnabled() bool {
	return c.AlertModelID != "" && c.AlertModelID != AlertModelDisabled
}

// AlertModel is a reusable alerting policy: when to fire relative to expiry
// and on what schedule, plus the message templates.
type AlertModel struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// OffsetDaysBefore fires a one-time reminder when daysLeft equals it.
	OffsetDaysBefore int `json:"offset_days_before" db:"offset_days_before"`

	// OffsetDaysAfter, when set, fires when daysLeft == -OffsetDaysAfter,
	// i.e. N days past expiry.
	OffsetDaysAfter *int `json:"offset_days_after,omitempty" db:"offset_days_after"`

	// RepeatEveryDays > 0 enables repeating reminders both during the
	// countdown (relative to OffsetDaysBefore) and after expiry.
	RepeatEveryDays int `json:"repeat_every_days" db:"repeat_every_days"`

	TemplateSubject string `json:"template_subject" db:"template_subject"`
	TemplateBody    string `json:"template_body" db:"template_body"`

	ScheduleType ScheduleType `json:"schedule_type" db:"schedule_type"`

	// ScheduleTime is the daily firing instant as "HH:mm". Must be empty for
	// hourly models and a valid 00:00-23:59 string for daily models.
	ScheduleTime string `json:"schedule_time,omitempty" db:"schedule_time"`

	Enabled   bool      `json:"enabled" db:"enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate implements the Validator interface for AlertModel.
func (m *AlertModel) Validate() error {
	switch m.ScheduleType {
	case ScheduleHourly:
		if m.ScheduleTime != "" {
			return NewAppError(ErrCodeValidationSchedule,
				"schedule_time must be empty for hourly models", nil)
		}
	case ScheduleDaily:
		if _, err := time.Parse("15:04", m.ScheduleTime); err != nil {
			return NewAppError(ErrCodeValidationSchedule,
				fmt.Sprintf("schedule_time %q is not a valid HH:mm", m.ScheduleTime), err)
		}
	default:
		return NewAppError(ErrCodeValidationSchedule,
			fmt.Sprintf("unknown schedule_type %q", m.ScheduleType), nil)
	}

	if m.OffsetDaysBefore < 0 {
		return NewAppError(ErrCodeValidationOffset, "offset_days_before must be >= 0", nil)
	}
	if m.OffsetDaysAfter != nil && *m.OffsetDaysAfter < 0 {
		return NewAppError(ErrCodeValidationOffset, "offset_days_after must be >= 0", nil)
	}
	if m.RepeatEveryDays < 0 {
		return NewAppError(ErrCodeValidationOffset, "repeat_every_days must be >= 0", nil)
	}
	return nil
}

// ChannelInstance is a configured delivery endpoint of a specific type.
// Non-secret parameters and encrypted secrets live in sibling tables and are
// fetched separately via the ChannelRepository.
type ChannelInstance struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Type      ChannelType `json:"type" db:"type"`
	Enabled   bool        `json:"enabled" db:"enabled"`
	DeletedAt *time.Time  `json:"-" db:"deleted_at"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Message is a rendered notification ready for channel delivery.
type Message struct {
	Subject string
	Body    string

	// Recipients is the owner email set; only the SMTP channel uses it.
	Recipients []string
}

// ChannelOutcome records the result of one channel dispatch attempt.
type ChannelOutcome struct {
	ChannelID   string
	ChannelName string
	Type        ChannelType

	// Destination describes where the message went (redacted recipient list,
	// chat count, webhook host). Set on success.
	Destination string

	// Err is the normalized delivery error. Nil on success.
	Err error
}

// Sent reports whether this outcome was a successful delivery.
func (o ChannelOutcome) Sent() bool { return o.Err == nil }

// AuditEntry is one append-only audit log record. Written once per
// orchestrator invocation, never mutated.
type AuditEntry struct {
	ID        string         `json:"id" db:"id"`
	Actor     string         `json:"actor" db:"actor"`
	Entity    string         `json:"entity" db:"entity"`
	EntityID  string         `json:"entity_id" db:"entity_id"`
	Action    AuditAction    `json:"action" db:"action"`
	Diff      map[string]any `json:"diff,omitempty" db:"diff"`
	Note      string         `json:"note,omitempty" db:"note"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
