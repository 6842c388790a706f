package types

// CertificateStatus represents the lifecycle state of a tracked certificate.
type CertificateStatus string

const (
	CertStatusActive  CertificateStatus = "active"
	CertStatusExpired CertificateStatus = "expired"
	CertStatusRevoked CertificateStatus = "revoked"
)

// ScheduleType determines the firing cadence of an alert model.
type ScheduleType string

const (
	// ScheduleHourly fires at the top of every hour.
	ScheduleHourly ScheduleType = "hourly"

	// ScheduleDaily fires once a day at the model's configured HH:mm.
	ScheduleDaily ScheduleType = "daily"
)

// ChannelType identifies a notification delivery channel variant.
type ChannelType string

const (
	ChannelEmailSMTP         ChannelType = "email_smtp"
	ChannelTelegramBot       ChannelType = "telegram_bot"
	ChannelSlackWebhook      ChannelType = "slack_webhook"
	ChannelGoogleChatWebhook ChannelType = "googlechat_webhook"
)

// AllChannelTypes lists every supported channel variant. Used by validators
// when channel instances are loaded from storage.
var AllChannelTypes = []ChannelType{
	ChannelEmailSMTP,
	ChannelTelegramBot,
	ChannelSlackWebhook,
	ChannelGoogleChatWebhook,
}

// ValidChannelType reports whether t is a supported channel variant.
func ValidChannelType(t ChannelType) bool {
	for _, known := range AllChannelTypes {
		if t == known {
			return true
		}
	}
	return false
}

// AuditAction identifies the kind of event recorded in the audit log.
type AuditAction string

const (
	AuditNotificationSent    AuditAction = "notification_sent"
	AuditNotificationSkipped AuditAction = "notification_skipped"
)

// AlertModelDisabled is the sentinel alertModelId meaning "no alerts" for a
// certificate. Distinct from an empty ID, which some imports produce.
const AlertModelDisabled = "disabled"
