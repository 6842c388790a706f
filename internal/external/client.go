package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"certsentry/internal/types"
)

// BaseClient wraps an *http.Client and a circuit breaker to enforce
// consistent resilience on all outbound channel HTTP calls (Telegram bot
// API, Slack and Google Chat webhooks). Channel dispatchers share one
// BaseClient so a flapping provider trips a single breaker.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
}

// NewBaseClient creates a BaseClient with the given http client, breaker
// name, retry policy, and user agent string.
func NewBaseClient(httpClient *http.Client, breakerName string, retryPolicy RetryPolicy, userAgent string) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BaseClient{
		client:      httpClient,
		breaker:     cb,
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
	}
}

// Do executes the HTTP request with:
//  1. User-Agent header injection
//  2. Circuit breaker wrapping
//  3. Bounded retry with exponential backoff on network errors, 429, and 5xx
//  4. Error mapping to types.AppError
//
// On success (any status below 500 other than 429), Do returns the response
// as-is; the caller interprets the status and closes the body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Snapshot the request body so it can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				"failed to read request body for retry support", err)
		}
		req.Body.Close()
	}

	resp, err := Retry(req.Context(), c.retryPolicy, func(_ context.Context) (*http.Response, error) {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		return c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// Retryable statuses count as breaker failures too.
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				r.Body.Close()
				return nil, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
	})
	if err != nil {
		return nil, c.mapError(err)
	}
	return resp, nil
}

// mapError translates transport-level failures into domain-level AppErrors
// with normalized, user-facing messages. Request URLs are stripped down to
// the host: the Telegram URL path carries the bot token and webhook URLs
// are capability tokens, so neither may reach logs or audit notes.
func (c *BaseClient) mapError(err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeDispatchFailed,
			"circuit breaker is open; provider unavailable", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewAppError(types.ErrCodeDispatchTimeout, "connection timeout", nil)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return types.NewAppError(types.ErrCodeDispatchFailed,
			fmt.Sprintf("%s %s: %s", urlErr.Op, hostOf(urlErr.URL), urlErr.Err), urlErr.Err)
	}

	return types.NewAppError(types.ErrCodeDispatchFailed, err.Error(), err)
}

// hostOf extracts the host from a request URL for error messages.
func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return "upstream"
}
