package core

import (
	"encoding/json"
	"strings"
)

// maxProviderErrorLen bounds how much of a provider response ends up in
// audit notes and logs.
const maxProviderErrorLen = 300

// ExtractProviderError pulls a human-readable error message out of a
// provider response body. Structured fields are preferred in order:
// "description" (Telegram), "error" (Slack, string or object), "message"
// (Google Chat, often nested under "error"). Falls back to the trimmed raw
// body, then to fallback when the body is empty or unusable.
func ExtractProviderError(body []byte, fallback string) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fallback
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		if msg := providerErrorField(parsed); msg != "" {
			return truncate(msg)
		}
	}

	return truncate(trimmed)
}

// providerErrorField walks the known provider error shapes.
func providerErrorField(parsed map[string]any) string {
	if desc, ok := parsed["description"].(string); ok && desc != "" {
		return desc
	}
	switch e := parsed["error"].(type) {
	case string:
		if e != "" {
			return e
		}
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	}
	if msg, ok := parsed["message"].(string); ok && msg != "" {
		return msg
	}
	return ""
}

func truncate(s string) string {
	if len(s) > maxProviderErrorLen {
		return s[:maxProviderErrorLen]
	}
	return s
}
