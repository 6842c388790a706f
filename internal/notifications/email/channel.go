// Package email implements the SMTP notification channel. It speaks plain
// SMTP with optional STARTTLS, or implicit TLS when the configured port is
// 465, and addresses the certificate's owner email set as recipients.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"certsentry/internal/external"
	"certsentry/internal/types"
)

// SMTP ports with protocol-level meaning.
const (
	// smtpPortImplicitTLS is the SMTPS port: the TLS handshake happens
	// before any SMTP traffic instead of via STARTTLS.
	smtpPortImplicitTLS = 465
)

// defaultSMTPTimeout bounds the dial when no timeout is configured.
const defaultSMTPTimeout = 10 * time.Second

// Required channel parameter names.
const (
	ParamHost      = "host"
	ParamPort      = "port"
	ParamFromEmail = "from_email"
	ParamFromName  = "from_name"
	ParamUseTLS    = "use_tls"
)

// Secret names for this channel type.
const (
	SecretUsername = "username"
	SecretPassword = "password"
)

// Dialer abstracts SMTP connection establishment for testing.
type Dialer interface {
	DialContext(ctx context.Context, host string, port int, useTLS bool) (Client, error)
}

// Client is the subset of *smtp.Client the dispatcher needs.
type Client interface {
	StartTLS(config *tls.Config) error
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (WriteCloser, error)
	Quit() error
	Close() error
	Extension(ext string) (bool, string)
}

// WriteCloser is the message body writer returned by Client.Data.
type WriteCloser interface {
	Write(p []byte) (n int, err error)
	Close() error
}

// Compile-time assertion that Dispatcher implements types.ChannelDispatcher.
var _ types.ChannelDispatcher = (*Dispatcher)(nil)

// Dispatcher delivers rendered messages over SMTP.
type Dispatcher struct {
	dialer      Dialer
	retryPolicy external.RetryPolicy
	logger      types.Logger
}

// NewDispatcher creates an SMTP Dispatcher with the default network dialer.
func NewDispatcher(retryPolicy external.RetryPolicy, logger types.Logger) *Dispatcher {
	return &Dispatcher{
		dialer:      &netDialer{timeout: defaultSMTPTimeout},
		retryPolicy: retryPolicy,
		logger:      logger,
	}
}

// SetDialer replaces the SMTP dialer. Intended for tests.
func (d *Dispatcher) SetDialer(dialer Dialer) {
	d.dialer = dialer
}

// Type returns the channel variant this dispatcher handles.
func (d *Dispatcher) Type() types.ChannelType {
	return types.ChannelEmailSMTP
}

// Deliver sends the message to the owner email recipient set through the
// channel's configured SMTP server. The whole dial-and-send sequence is
// wrapped in the shared bounded retry. Returns a redacted recipient list as
// the destination description.
func (d *Dispatcher) Deliver(ctx context.Context, ch *types.ChannelInstance, params map[string]string, secrets map[string]types.SecretString, msg *types.Message) (string, error) {
	host := params[ParamHost]
	fromEmail := params[ParamFromEmail]
	if host == "" || params[ParamPort] == "" || fromEmail == "" {
		return "", types.NewAppError(types.ErrCodeValidationChannel,
			"smtp channel requires host, port, and from_email parameters", nil)
	}
	port, err := strconv.Atoi(params[ParamPort])
	if err != nil || port < 1 || port > 65535 {
		return "", types.NewAppError(types.ErrCodeValidationChannel,
			fmt.Sprintf("smtp channel has invalid port %q", params[ParamPort]), nil)
	}
	if len(msg.Recipients) == 0 {
		return "", types.NewAppError(types.ErrCodeValidationChannel,
			"certificate has no owner emails to address", nil)
	}

	useTLS := strings.EqualFold(params[ParamUseTLS], "true")
	from := formatFrom(params[ParamFromName], fromEmail)

	_, err = external.Retry(ctx, d.retryPolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.send(ctx, host, port, useTLS, from, fromEmail, secrets, msg)
	})
	if err != nil {
		return "", normalizeSMTPError(err)
	}

	return redactRecipients(msg.Recipients), nil
}

// send performs one full SMTP transaction.
func (d *Dispatcher) send(ctx context.Context, host string, port int, useTLS bool, from, fromEmail string, secrets map[string]types.SecretString, msg *types.Message) error {
	client, err := d.dialer.DialContext(ctx, host, port, useTLS)
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}
	defer client.Close()

	// STARTTLS upgrade unless the connection is already implicit TLS.
	if useTLS && port != smtpPortImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{
				ServerName: host,
				MinVersion: tls.VersionTLS12,
			}
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	username := secrets[SecretUsername].Unmask()
	password := secrets[SecretPassword].Unmask()
	if username != "" && password != "" {
		auth := smtp.PlainAuth("", username, password, host)
		if err := client.Auth(auth); err != nil {
			// Never wrap the server response here: it can echo credentials.
			return types.NewAppError(types.ErrCodeDispatchFailed, "smtp authentication failed", nil)
		}
	}

	if err := client.Mail(fromEmail); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, to := range msg.Recipients {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(buildMessage(from, msg)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp finish body: %w", err)
	}

	return client.Quit()
}

// buildMessage assembles the RFC 5322 message with headers.
func buildMessage(from string, msg *types.Message) []byte {
	var buf bytes.Buffer
	buf.WriteString("From: " + from + "\r\n")
	buf.WriteString("To: " + strings.Join(msg.Recipients, ", ") + "\r\n")
	buf.WriteString("Subject: " + encodeHeader(msg.Subject) + "\r\n")
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)
	return buf.Bytes()
}

// encodeHeader applies RFC 2047 base64 encoding when the subject contains
// non-ASCII characters.
func encodeHeader(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return mimeEncodeBase64(s)
		}
	}
	return s
}

func mimeEncodeBase64(s string) string {
	return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
}

// formatFrom builds "Name <addr>" or just the address when no name is set.
func formatFrom(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

// redactRecipients produces the destination description for audit notes
// without leaking full addresses.
func redactRecipients(recipients []string) string {
	redacted := make([]string, len(recipients))
	for i, r := range recipients {
		redacted[i] = RedactEmail(r)
	}
	return strings.Join(redacted, ", ")
}

// RedactEmail masks the local part of an email address for logs and audit
// notes, keeping the first character and the domain.
func RedactEmail(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}

// normalizeSMTPError maps low-level failures to user-facing messages,
// turning connection timeouts into a plain "timeout" description.
func normalizeSMTPError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewAppError(types.ErrCodeDispatchTimeout, "smtp connection timeout", err)
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return types.NewAppError(types.ErrCodeDispatchFailed, err.Error(), err)
}

// netDialer implements Dialer against real SMTP servers.
type netDialer struct {
	timeout time.Duration
}

func (d *netDialer) DialContext(ctx context.Context, host string, port int, useTLS bool) (Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: d.timeout}

	var conn net.Conn
	var err error
	if useTLS && port == smtpPortImplicitTLS {
		// Implicit TLS: wrap the raw connection before SMTP starts, using
		// DialContext + tls.Client so context cancellation still applies.
		rawConn, dialErr := dialer.DialContext(ctx, "tcp", addr)
		if dialErr != nil {
			return nil, dialErr
		}
		conn = tls.Client(rawConn, &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &clientWrapper{client}, nil
}

// clientWrapper adapts *smtp.Client to the Client interface (Data returns a
// concrete io.WriteCloser).
type clientWrapper struct {
	*smtp.Client
}

func (w *clientWrapper) Data() (WriteCloser, error) {
	return w.Client.Data()
}
