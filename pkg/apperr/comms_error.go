package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Request validation
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeMissingField     = "MISSING_FIELD"

	// External backend
	CodeRetryableBackend     = "RETRYABLE_BACKEND"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeRateLimitWaitTimeout = "RATE_LIMIT_WAIT_TIMEOUT"
	CodeAuthFailed           = "AUTH_FAILED"

	// Model output
	CodeParseFailure    = "PARSE_FAILURE"
	CodeAnomalousOutput = "ANOMALOUS_OUTPUT"

	// Internal
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Validation errors
func ValidationFailed(message string) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Backend errors
func RetryableBackend(service string, err error) *AppError {
	return &AppError{
		Code:    CodeRetryableBackend,
		Message: fmt.Sprintf("transient backend failure: %s", service),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code:    CodeServiceUnavailable,
		Message: fmt.Sprintf("service unavailable: %s (circuit open)", service),
		Status:  http.StatusServiceUnavailable,
		Details: map[string]any{"service": service},
	}
}

func RateLimitWaitTimeout(service string) *AppError {
	return &AppError{
		Code:    CodeRateLimitWaitTimeout,
		Message: fmt.Sprintf("timed out waiting for rate limit window: %s", service),
		Status:  http.StatusTooManyRequests,
		Details: map[string]any{"service": service},
	}
}

func AuthFailed(service string, err error) *AppError {
	return &AppError{
		Code:    CodeAuthFailed,
		Message: fmt.Sprintf("authentication failed: %s", service),
		Status:  http.StatusUnauthorized,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// Model output errors
func ParseFailure(what string, err error) *AppError {
	return &AppError{
		Code:    CodeParseFailure,
		Message: fmt.Sprintf("failed to parse model output: %s", what),
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func AnomalousOutput(field, value string) *AppError {
	return &AppError{
		Code:    CodeAnomalousOutput,
		Message: fmt.Sprintf("model returned out-of-enum value for %s: %q", field, value),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"field": field, "value": value},
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternalError, "internal error", http.StatusInternalServerError)
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether err represents a transient failure worth retrying.
// Validation, auth, and circuit-open errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		// Unclassified errors (raw network failures) are treated as transient.
		return true
	}
	switch appErr.Code {
	case CodeRetryableBackend, CodeTimeout:
		return true
	default:
		return false
	}
}
