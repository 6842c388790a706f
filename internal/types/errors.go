package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. All packages use these constants instead of
// hardcoded strings so the ops surface can map them to HTTP statuses.
const (
	// Validation / configuration (400)
	ErrCodeValidationSchedule ErrorCode = "validation_invalid_schedule"
	ErrCodeValidationOffset   ErrorCode = "validation_invalid_offset"
	ErrCodeValidationExpiry   ErrorCode = "validation_invalid_expiry_date"
	ErrCodeValidationChannel  ErrorCode = "validation_invalid_channel_config"

	// Not found (404)
	ErrCodeNotFoundCertificate ErrorCode = "not_found_certificate"
	ErrCodeNotFoundAlertModel  ErrorCode = "not_found_alert_model"
	ErrCodeNotFoundChannel     ErrorCode = "not_found_channel"

	// Dispatch (502)
	ErrCodeDispatchFailed    ErrorCode = "dispatch_channel_failed"
	ErrCodeDispatchAllFailed ErrorCode = "dispatch_all_channels_failed"
	ErrCodeDispatchTimeout   ErrorCode = "dispatch_timeout"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalCrypto     ErrorCode = "internal_crypto_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the ops listener to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "dispatch_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. All domain errors are
// expressed as AppError to enable consistent formatting, status mapping,
// and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
