package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"certsentry/internal/notifications/core"
	"certsentry/internal/types"
)

// SlackFormatter formats messages as Slack Block Kit JSON.
type SlackFormatter struct{}

// Format transforms a rendered message into Slack Block Kit JSON: a header
// block with the subject, a section with the body, and a context footer.
func (f *SlackFormatter) Format(msg *types.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("slack formatter: message is nil")
	}

	payload := SlackPayload{
		Text: msg.Subject,
		Blocks: []SlackBlock{
			{
				Type: "header",
				Text: &SlackText{Type: "plain_text", Text: msg.Subject},
			},
		},
	}

	if msg.Body != "" {
		payload.Blocks = append(payload.Blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: msg.Body},
		})
	}

	payload.Blocks = append(payload.Blocks, SlackBlock{
		Type: "context",
		Elements: []*SlackText{
			{Type: "mrkdwn", Text: "Certsentry Alerts"},
		},
	})

	return json.Marshal(payload)
}

// ValidateResponse checks the Slack webhook response. Slack incoming
// webhooks answer with a bare "ok" string body on success; anything else is
// a failure even under HTTP 200.
func (f *SlackFormatter) ValidateResponse(statusCode int, body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if statusCode >= 200 && statusCode < 300 && trimmed == "ok" {
		return nil
	}

	desc := core.ExtractProviderError(body, fmt.Sprintf("unexpected status %d", statusCode))
	return fmt.Errorf("slack webhook: %s", desc)
}
