package webhook

import (
	"encoding/json"
	"fmt"

	"certsentry/internal/notifications/core"
	"certsentry/internal/types"
)

// GoogleChatFormatter formats messages as Google Chat Cards JSON.
type GoogleChatFormatter struct{}

// Format transforms a rendered message into a Google Chat card with the
// subject as header and the body as a text paragraph widget.
func (f *GoogleChatFormatter) Format(msg *types.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("google chat formatter: message is nil")
	}

	card := GoogleCard{
		Header: GoogleHeader{
			Title:    msg.Subject,
			Subtitle: "Certsentry Alerts",
		},
	}
	if msg.Body != "" {
		card.Sections = []GoogleSection{
			{
				Widgets: []GoogleWidget{
					{TextParagraph: &GoogleTextParagraph{Text: msg.Body}},
				},
			},
		}
	}

	return json.Marshal(GoogleChatPayload{Text: msg.Subject, Cards: []GoogleCard{card}})
}

// ValidateResponse checks the Google Chat webhook response. Any 2xx is a
// success; otherwise the structured error message is extracted.
func (f *GoogleChatFormatter) ValidateResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	desc := core.ExtractProviderError(body, fmt.Sprintf("unexpected status %d", statusCode))
	return fmt.Errorf("google chat webhook: %s", desc)
}
