// Package telegram implements the Telegram bot notification channel. It
// posts one sendMessage call per configured chat ID against the Bot API;
// any non-ok response aborts the dispatch with the API's error description.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"certsentry/internal/notifications/core"
	"certsentry/internal/types"
)

// apiBaseURL is the Telegram Bot API root.
const apiBaseURL = "https://api.telegram.org/bot"

// maxResponseRead bounds how much of a Bot API response body is read for
// error extraction.
const maxResponseRead = 4096

// Channel parameter and secret names.
const (
	ParamChatIDs   = "chat_ids"
	SecretBotToken = "bot_token"
)

// HTTPDoer is the minimal HTTP client contract, satisfied by *http.Client
// and the external.BaseClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Compile-time assertion that Dispatcher implements types.ChannelDispatcher.
var _ types.ChannelDispatcher = (*Dispatcher)(nil)

// Dispatcher delivers rendered messages through the Telegram Bot API.
type Dispatcher struct {
	client  HTTPDoer
	baseURL string
	logger  types.Logger
}

// NewDispatcher creates a Telegram Dispatcher using the given HTTP client
// (typically the shared external.BaseClient so retry and circuit breaking
// apply).
func NewDispatcher(client HTTPDoer, logger types.Logger) *Dispatcher {
	return &Dispatcher{
		client:  client,
		baseURL: apiBaseURL,
		logger:  logger,
	}
}

// SetBaseURL overrides the Bot API root. Intended for tests.
func (d *Dispatcher) SetBaseURL(u string) {
	d.baseURL = u
}

// Type returns the channel variant this dispatcher handles.
func (d *Dispatcher) Type() types.ChannelType {
	return types.ChannelTelegramBot
}

// sendMessageRequest is the Bot API sendMessage payload.
type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Deliver sends the message to every configured chat ID. The first failing
// chat aborts the dispatch: Telegram failures are almost always token- or
// bot-level, so continuing would repeat the same error per chat.
func (d *Dispatcher) Deliver(ctx context.Context, ch *types.ChannelInstance, params map[string]string, secrets map[string]types.SecretString, msg *types.Message) (string, error) {
	token := secrets[SecretBotToken]
	if token.Unmask() == "" {
		return "", types.NewAppError(types.ErrCodeValidationChannel,
			"telegram channel requires a bot_token secret", nil)
	}

	chatIDs := splitChatIDs(params[ParamChatIDs])
	if len(chatIDs) == 0 {
		return "", types.NewAppError(types.ErrCodeValidationChannel,
			"telegram channel has no chat_ids configured", nil)
	}

	text := msg.Subject
	if msg.Body != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}

	for _, chatID := range chatIDs {
		if err := d.sendToChat(ctx, token, chatID, text); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%d telegram chat(s)", len(chatIDs)), nil
}

// sendToChat performs one sendMessage call.
func (d *Dispatcher) sendToChat(ctx context.Context, token types.SecretString, chatID, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "marshal telegram request", err)
	}

	url := d.baseURL + token.Unmask() + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "build telegram request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseRead))

	var parsed apiResponse
	if unmarshalErr := json.Unmarshal(body, &parsed); unmarshalErr == nil && parsed.OK {
		return nil
	}

	desc := core.ExtractProviderError(body, fmt.Sprintf("telegram API returned status %d", resp.StatusCode))
	return types.NewAppError(types.ErrCodeDispatchFailed,
		fmt.Sprintf("telegram chat %s: %s", chatID, desc), nil)
}

// splitChatIDs parses the comma-separated chat_ids parameter.
func splitChatIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
