package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certsentry/internal/external"
	"certsentry/internal/types"
)

type mockClient struct {
	startTLSCalled bool
	startTLSErr    error
	authCalled     bool
	authErr        error
	mailFrom       string
	rcpts          []string
	dataErr        error
	body           bytes.Buffer
	quitCalled     bool
	closeCalled    bool
	hasStartTLS    bool
}

func (m *mockClient) StartTLS(*tls.Config) error {
	m.startTLSCalled = true
	return m.startTLSErr
}

func (m *mockClient) Auth(smtp.Auth) error {
	m.authCalled = true
	return m.authErr
}

func (m *mockClient) Mail(from string) error {
	m.mailFrom = from
	return nil
}

func (m *mockClient) Rcpt(to string) error {
	m.rcpts = append(m.rcpts, to)
	return nil
}

func (m *mockClient) Data() (WriteCloser, error) {
	if m.dataErr != nil {
		return nil, m.dataErr
	}
	return &nopWriteCloser{&m.body}, nil
}

func (m *mockClient) Quit() error  { m.quitCalled = true; return nil }
func (m *mockClient) Close() error { m.closeCalled = true; return nil }

func (m *mockClient) Extension(ext string) (bool, string) {
	if ext == "STARTTLS" {
		return m.hasStartTLS, ""
	}
	return false, ""
}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

type mockDialer struct {
	client   *mockClient
	err      error
	dials    int
	lastHost string
	lastPort int
	lastTLS  bool
}

func (m *mockDialer) DialContext(_ context.Context, host string, port int, useTLS bool) (Client, error) {
	m.dials++
	m.lastHost = host
	m.lastPort = port
	m.lastTLS = useTLS
	if m.err != nil {
		return nil, m.err
	}
	return m.client, nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)      {}
func (nopLogger) Error(string, ...any)     {}
func (nopLogger) Warn(string, ...any)      {}
func (nopLogger) With(...any) types.Logger { return nopLogger{} }

func fastPolicy() external.RetryPolicy {
	return external.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
}

func newTestDispatcher(dialer Dialer) *Dispatcher {
	d := NewDispatcher(fastPolicy(), nopLogger{})
	d.SetDialer(dialer)
	return d
}

func smtpParams() map[string]string {
	return map[string]string{
		ParamHost:      "smtp.example.com",
		ParamPort:      "587",
		ParamFromEmail: "alerts@example.com",
		ParamFromName:  "Cert Alerts",
		ParamUseTLS:    "true",
	}
}

func smtpSecrets() map[string]types.SecretString {
	return map[string]types.SecretString{
		SecretUsername: "alerts@example.com",
		SecretPassword: "hunter2",
	}
}

func testMessage() *types.Message {
	return &types.Message{
		Subject:    "api.example.com expires in 7 days",
		Body:       "Renew before 2026-09-06.",
		Recipients: []string{"ops@example.com", "alice@example.com"},
	}
}

func TestDeliverSuccess(t *testing.T) {
	client := &mockClient{hasStartTLS: true}
	dialer := &mockDialer{client: client}
	d := newTestDispatcher(dialer)

	dest, err := d.Deliver(context.Background(), &types.ChannelInstance{}, smtpParams(), smtpSecrets(), testMessage())

	require.NoError(t, err)
	assert.Equal(t, "o***@example.com, a***@example.com", dest)

	assert.Equal(t, "smtp.example.com", dialer.lastHost)
	assert.Equal(t, 587, dialer.lastPort)
	assert.True(t, client.startTLSCalled)
	assert.True(t, client.authCalled)
	assert.Equal(t, "alerts@example.com", client.mailFrom)
	assert.Equal(t, []string{"ops@example.com", "alice@example.com"}, client.rcpts)
	assert.True(t, client.quitCalled)

	body := client.body.String()
	assert.Contains(t, body, "From: Cert Alerts <alerts@example.com>\r\n")
	assert.Contains(t, body, "Subject: api.example.com expires in 7 days\r\n")
	assert.Contains(t, body, "Renew before 2026-09-06.")
}

func TestDeliverImplicitTLSSkipsStartTLS(t *testing.T) {
	client := &mockClient{hasStartTLS: true}
	dialer := &mockDialer{client: client}
	d := newTestDispatcher(dialer)

	params := smtpParams()
	params[ParamPort] = "465"

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{}, params, smtpSecrets(), testMessage())

	require.NoError(t, err)
	assert.True(t, dialer.lastTLS)
	assert.False(t, client.startTLSCalled)
}

func TestDeliverSkipsAuthWithoutCredentials(t *testing.T) {
	client := &mockClient{}
	d := newTestDispatcher(&mockDialer{client: client})

	params := smtpParams()
	params[ParamUseTLS] = "false"

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{}, params, nil, testMessage())

	require.NoError(t, err)
	assert.False(t, client.authCalled)
	assert.False(t, client.startTLSCalled)
}

func TestDeliverMissingParams(t *testing.T) {
	d := newTestDispatcher(&mockDialer{client: &mockClient{}})

	for _, missing := range []string{ParamHost, ParamPort, ParamFromEmail} {
		params := smtpParams()
		delete(params, missing)

		_, err := d.Deliver(context.Background(), &types.ChannelInstance{}, params, nil, testMessage())

		require.Error(t, err, missing)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationChannel, appErr.Code, missing)
	}
}

func TestDeliverInvalidPort(t *testing.T) {
	d := newTestDispatcher(&mockDialer{client: &mockClient{}})

	for _, port := range []string{"abc", "0", "70000", "-1"} {
		params := smtpParams()
		params[ParamPort] = port

		_, err := d.Deliver(context.Background(), &types.ChannelInstance{}, params, nil, testMessage())

		require.Error(t, err, port)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationChannel, appErr.Code, port)
	}
}

func TestDeliverNoRecipients(t *testing.T) {
	d := newTestDispatcher(&mockDialer{client: &mockClient{}})

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{}, smtpParams(), nil,
		&types.Message{Subject: "s", Body: "b"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no owner emails")
}

func TestDeliverRetriesDialFailures(t *testing.T) {
	dialer := &mockDialer{err: errors.New("connection refused")}
	d := newTestDispatcher(dialer)

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{}, smtpParams(), nil, testMessage())

	require.Error(t, err)
	assert.Equal(t, 3, dialer.dials)
}

func TestDeliverAuthFailureDoesNotEchoCredentials(t *testing.T) {
	client := &mockClient{authErr: errors.New("535 5.7.8 password hunter2 rejected")}
	d := newTestDispatcher(&mockDialer{client: client})

	params := smtpParams()
	params[ParamUseTLS] = "false"

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{}, params, smtpSecrets(), testMessage())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp authentication failed")
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestDeliverTimeoutMapsToTimeoutError(t *testing.T) {
	dialer := &mockDialer{err: &timeoutError{}}
	d := newTestDispatcher(dialer)

	_, err := d.Deliver(context.Background(), &types.ChannelInstance{}, smtpParams(), nil, testMessage())

	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeDispatchTimeout, appErr.Code)
	assert.Contains(t, appErr.Message, "timeout")
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestEncodeHeader(t *testing.T) {
	assert.Equal(t, "plain ascii", encodeHeader("plain ascii"))

	encoded := encodeHeader("Zertifikat läuft ab")
	assert.True(t, strings.HasPrefix(encoded, "=?UTF-8?B?"))
	assert.True(t, strings.HasSuffix(encoded, "?="))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "o***@example.com", RedactEmail("ops@example.com"))
	assert.Equal(t, "***", RedactEmail("not-an-email"))
	assert.Equal(t, "***", RedactEmail("@example.com"))
}
