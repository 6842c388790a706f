// Package webhook implements the incoming-webhook notification channels
// (Slack, Google Chat). Each platform has a formatter producing its JSON
// schema; delivery is a single HTTP POST of that payload to the channel's
// configured webhook URL, with platform-specific response validation to
// catch soft failures (e.g. Slack returning HTTP 200 with a non-"ok" body).
package webhook

import (
	"certsentry/internal/types"
)

// SecretWebhookURL is the secret name holding the destination URL. Webhook
// URLs embed capability tokens, so they are stored encrypted like
// credentials.
const SecretWebhookURL = "webhook_url"

// Formatter transforms a rendered message into the platform-specific JSON
// payload and interprets the platform's HTTP response.
type Formatter interface {
	// Format builds the JSON body to POST.
	Format(msg *types.Message) ([]byte, error)

	// ValidateResponse interprets the HTTP response to catch soft failures.
	ValidateResponse(statusCode int, body []byte) error
}

// --- Slack payload types (Block Kit) ---

// SlackPayload is the top-level structure for Slack Block Kit messages.
type SlackPayload struct {
	Text   string       `json:"text"`   // Fallback text for push notifications
	Blocks []SlackBlock `json:"blocks"` // Rich layout
}

// SlackBlock represents a single block in a Slack Block Kit message.
type SlackBlock struct {
	Type     string       `json:"type"`               // "section", "header", "context"
	Text     *SlackText   `json:"text,omitempty"`     // Primary text element
	Elements []*SlackText `json:"elements,omitempty"` // Context elements
}

// SlackText is a text composition object for Slack Block Kit.
type SlackText struct {
	Type string `json:"type"` // "plain_text", "mrkdwn"
	Text string `json:"text"`
}

// --- Google Chat payload types (Cards v2) ---

// GoogleChatPayload is the top-level structure for Google Chat messages.
type GoogleChatPayload struct {
	Text  string       `json:"text,omitempty"`
	Cards []GoogleCard `json:"cards,omitempty"`
}

// GoogleCard is a Google Chat card.
type GoogleCard struct {
	Header   GoogleHeader    `json:"header"`
	Sections []GoogleSection `json:"sections"`
}

// GoogleHeader is the card header.
type GoogleHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

// GoogleSection groups card widgets.
type GoogleSection struct {
	Widgets []GoogleWidget `json:"widgets"`
}

// GoogleWidget is a single card widget.
type GoogleWidget struct {
	TextParagraph *GoogleTextParagraph `json:"textParagraph,omitempty"`
}

// GoogleTextParagraph is a plain text widget.
type GoogleTextParagraph struct {
	Text string `json:"text"`
}
