package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certsentry/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)      {}
func (nopLogger) Error(string, ...any)     {}
func (nopLogger) Warn(string, ...any)      {}
func (nopLogger) With(...any) types.Logger { return nopLogger{} }

type recordedCall struct {
	path   string
	chatID string
	text   string
}

// newBotAPIServer fakes the Bot API, recording sendMessage calls and
// answering per-chat canned responses.
func newBotAPIServer(t *testing.T, respond func(chatID string) (int, string)) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var mu sync.Mutex
	var calls []recordedCall

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req sendMessageRequest
		require.NoError(t, json.Unmarshal(body, &req))

		mu.Lock()
		calls = append(calls, recordedCall{path: r.URL.Path, chatID: req.ChatID, text: req.Text})
		mu.Unlock()

		status, resp := http.StatusOK, `{"ok":true}`
		if respond != nil {
			status, resp = respond(req.ChatID)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestDispatcher(srv *httptest.Server) *Dispatcher {
	d := NewDispatcher(srv.Client(), nopLogger{})
	d.SetBaseURL(srv.URL + "/bot")
	return d
}

func telegramSecrets() map[string]types.SecretString {
	return map[string]types.SecretString{SecretBotToken: "123:abc"}
}

func TestDeliverSuccess(t *testing.T) {
	srv, calls := newBotAPIServer(t, nil)
	d := newTestDispatcher(srv)

	dest, err := d.Deliver(context.Background(), &types.ChannelInstance{},
		map[string]string{ParamChatIDs: "-100200, 42"},
		telegramSecrets(),
		&types.Message{Subject: "cert expires in 7 days", Body: "renew it"})

	require.NoError(t, err)
	assert.Equal(t, "2 telegram chat(s)", dest)

	require.Len(t, *calls, 2)
	assert.Equal(t, "/bot123:abc/sendMessage", (*calls)[0].path)
	assert.Equal(t, "-100200", (*calls)[0].chatID)
	assert.Equal(t, "42", (*calls)[1].chatID)
	assert.Equal(t, "cert expires in 7 days\n\nrenew it", (*calls)[0].text)
}

func TestDeliverSubjectOnlyWhenBodyEmpty(t *testing.T) {
	srv, calls := newBotAPIServer(t, nil)
	d := newTestDispatcher(srv)

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{},
		map[string]string{ParamChatIDs: "42"}, telegramSecrets(),
		&types.Message{Subject: "heads up"})

	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, "heads up", (*calls)[0].text)
}

func TestDeliverMissingToken(t *testing.T) {
	srv, calls := newBotAPIServer(t, nil)
	d := newTestDispatcher(srv)

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{},
		map[string]string{ParamChatIDs: "42"}, nil, &types.Message{Subject: "s"})

	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationChannel, appErr.Code)
	assert.Empty(t, *calls)
}

func TestDeliverNoChatIDs(t *testing.T) {
	srv, _ := newBotAPIServer(t, nil)
	d := newTestDispatcher(srv)

	for _, raw := range []string{"", " ", ",,"} {
		_, err := d.Deliver(context.Background(), &types.ChannelInstance{},
			map[string]string{ParamChatIDs: raw}, telegramSecrets(), &types.Message{Subject: "s"})

		require.Error(t, err, raw)
		assert.Contains(t, err.Error(), "no chat_ids")
	}
}

func TestDeliverFirstFailureAborts(t *testing.T) {
	srv, calls := newBotAPIServer(t, func(chatID string) (int, string) {
		if chatID == "bad" {
			return http.StatusBadRequest, `{"ok":false,"description":"Bad Request: chat not found"}`
		}
		return http.StatusOK, `{"ok":true}`
	})
	d := newTestDispatcher(srv)

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{},
		map[string]string{ParamChatIDs: "good,bad,never"}, telegramSecrets(),
		&types.Message{Subject: "s"})

	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDispatchFailed, appErr.Code)
	assert.Contains(t, err.Error(), "chat not found")
	// The third chat is never attempted.
	require.Len(t, *calls, 2)
}

func TestDeliverErrorOmitsToken(t *testing.T) {
	srv, _ := newBotAPIServer(t, func(string) (int, string) {
		return http.StatusUnauthorized, `{"ok":false,"description":"Unauthorized"}`
	})
	d := newTestDispatcher(srv)

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{},
		map[string]string{ParamChatIDs: "42"}, telegramSecrets(), &types.Message{Subject: "s"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
	assert.NotContains(t, err.Error(), "123:abc")
}

func TestSplitChatIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, splitChatIDs("1,2"))
	assert.Equal(t, []string{"-100", "7"}, splitChatIDs(" -100 , 7 "))
	assert.Empty(t, splitChatIDs(""))
}
