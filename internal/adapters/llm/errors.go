package llm

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by clients and providers.
var (
	ErrEmptyAPIKey     = errors.New("api key cannot be empty")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyResponse   = errors.New("empty response from provider")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
)

// ErrorType classifies provider failures.
type ErrorType int

// Error types.
const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeRateLimit
	ErrorTypeBadRequest
	ErrorTypeNotFound
	ErrorTypeServerError
	ErrorTypeContentPolicy
	ErrorTypeNetwork
	ErrorTypeTimeout
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeServerError:
		return "server_error"
	case ErrorTypeContentPolicy:
		return "content_policy"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ProviderError is a normalized provider failure.
type ProviderError struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + " error"
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	msg += " [" + e.Type.String() + "]"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Reason is a short label for metrics and logs.
func (e *ProviderError) Reason() string { return e.Type.String() }

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// classifyHTTP maps an HTTP status code to a ProviderError.
func classifyHTTP(provider string, status int, message string, err error) *ProviderError {
	t := ErrorTypeUnknown
	switch {
	case status == 401 || status == 403:
		t = ErrorTypeAuthentication
	case status == 429:
		t = ErrorTypeRateLimit
	case status == 404:
		t = ErrorTypeNotFound
	case status >= 400 && status < 500:
		t = ErrorTypeBadRequest
	case status >= 500:
		t = ErrorTypeServerError
	}
	return &ProviderError{Type: t, Provider: provider, StatusCode: status, Message: message, Err: err}
}

// classifyContext maps a context error to a ProviderError, or returns nil.
func classifyContext(provider string, err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{Type: ErrorTypeTimeout, Provider: provider, Message: "deadline exceeded", Err: err}
	case errors.Is(err, context.Canceled):
		return &ProviderError{Type: ErrorTypeNetwork, Provider: provider, Message: "request canceled", Err: err}
	default:
		return nil
	}
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return true
}
