// Package resilience adapts the teacher's error-classification and
// retry/circuit-breaker idiom (pkg/agent/llmerrors, retry.go,
// circuit_breaker.go) to the Host interface this runtime's LLM backends
// implement, so a backend's transient failures are retried the same way
// the teacher retries its coder/architect model calls.
package resilience

import (
	"fmt"
	"time"
)

// ErrorType classifies an LLM backend failure for retry purposes.
type ErrorType int8

const (
	ErrorTypeRateLimit ErrorType = iota
	ErrorTypeTransient
	ErrorTypeEmptyResponse
	ErrorTypeAuth
	ErrorTypeBadPrompt
	ErrorTypeUnknown
	ErrorTypeServiceUnavailable
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "unknown"
	}
}

// RetryConfig is the exponential-backoff schedule for one ErrorType.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func defaultRetryConfigFor(t ErrorType) RetryConfig {
	switch t {
	case ErrorTypeRateLimit:
		return RetryConfig{MaxRetries: 6, InitialDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, BackoffFactor: 2}
	case ErrorTypeTransient:
		return RetryConfig{MaxRetries: 4, InitialDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 2}
	case ErrorTypeEmptyResponse:
		return RetryConfig{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	case ErrorTypeUnknown:
		return RetryConfig{MaxRetries: 1, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, BackoffFactor: 2}
	default:
		return RetryConfig{MaxRetries: 0}
	}
}

// Error is a classified LLM-backend error.
type Error struct {
	Type    ErrorType
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llmhost: %s (status %d): %s", e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("llmhost: %s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

func (e *Error) RetryConfig() RetryConfig { return defaultRetryConfigFor(e.Type) }

func NewError(t ErrorType, message string) *Error { return &Error{Type: t, Message: message} }

func NewErrorWithStatus(t ErrorType, status int, message string) *Error {
	return &Error{Type: t, Status: status, Message: message}
}

func NewErrorWithCause(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Cause: cause, Message: message}
}

// TypeOf extracts the ErrorType of err, or ErrorTypeUnknown if err isn't
// a classified *Error.
func TypeOf(err error) ErrorType {
	var classified *Error
	if e, ok := err.(*Error); ok {
		classified = e
	}
	if classified == nil {
		return ErrorTypeUnknown
	}
	return classified.Type
}
