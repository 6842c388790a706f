package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"certsentry/internal/types"
)

// maxResponseRead limits how much of a webhook response body is read for
// validation and error messages.
const maxResponseRead = 4096

// HTTPDoer is the minimal HTTP client contract, satisfied by *http.Client
// and the external.BaseClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Compile-time assertion that Dispatcher implements types.ChannelDispatcher.
var _ types.ChannelDispatcher = (*Dispatcher)(nil)

// Dispatcher delivers rendered messages by POSTing a platform-formatted
// JSON payload to the channel's configured webhook URL. One Dispatcher
// instance exists per webhook channel variant, differing only in its
// formatter and declared type.
type Dispatcher struct {
	channelType types.ChannelType
	formatter   Formatter
	client      HTTPDoer
	logger      types.Logger
}

// NewSlackDispatcher creates the slack_webhook dispatcher.
func NewSlackDispatcher(client HTTPDoer, logger types.Logger) *Dispatcher {
	return &Dispatcher{
		channelType: types.ChannelSlackWebhook,
		formatter:   &SlackFormatter{},
		client:      client,
		logger:      logger,
	}
}

// NewGoogleChatDispatcher creates the googlechat_webhook dispatcher.
func NewGoogleChatDispatcher(client HTTPDoer, logger types.Logger) *Dispatcher {
	return &Dispatcher{
		channelType: types.ChannelGoogleChatWebhook,
		formatter:   &GoogleChatFormatter{},
		client:      client,
		logger:      logger,
	}
}

// Type returns the channel variant this dispatcher handles.
func (d *Dispatcher) Type() types.ChannelType {
	return d.channelType
}

// Deliver formats the message for the platform and POSTs it to the webhook
// URL. The destination description is the webhook host only: the full URL
// is a capability token and never appears in audit notes or logs.
func (d *Dispatcher) Deliver(ctx context.Context, ch *types.ChannelInstance, params map[string]string, secrets map[string]types.SecretString, msg *types.Message) (string, error) {
	rawURL := secrets[SecretWebhookURL].Unmask()
	if rawURL == "" {
		return "", types.NewAppError(types.ErrCodeValidationChannel,
			"webhook channel requires a webhook_url secret", nil)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
		return "", types.NewAppError(types.ErrCodeValidationChannel,
			"webhook_url must be a valid https URL", nil)
	}

	payload, err := d.formatter.Format(msg)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "format webhook payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "build webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseRead))
	if err := d.formatter.ValidateResponse(resp.StatusCode, body); err != nil {
		return "", types.NewAppError(types.ErrCodeDispatchFailed, err.Error(), err)
	}

	return parsed.Host, nil
}
