// Package errors defines the typed failure taxonomy for model calls.
// Types determine whether an operation is retried: transient failures
// (timeout, rate limit, 5xx-class, network) are retried with backoff while
// permanent failures (auth, bad request) propagate immediately.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes model call failures for retry classification.
type ErrorType string

const (
	// ErrorTypeTimeout indicates a request timeout or deadline exceeded (transient).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeRateLimit indicates a provider rate limit was hit (transient).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates network connectivity failure (transient).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeProvider indicates the provider is unavailable or returned a
	// 5xx-class failure (transient).
	ErrorTypeProvider ErrorType = "provider_unavailable"

	// ErrorTypeAuth indicates authentication failure (permanent).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypePermission indicates insufficient permissions (permanent).
	ErrorTypePermission ErrorType = "permission_denied"

	// ErrorTypeBadRequest indicates the provider rejected the request as
	// malformed (permanent).
	ErrorTypeBadRequest ErrorType = "bad_request"

	// ErrorTypeValidation indicates local input validation failed before any
	// provider call (fatal to the run, never retried).
	ErrorTypeValidation ErrorType = "validation_failed"

	// ErrorTypeCacheIO indicates a disk cache fault. Non-fatal: the engine
	// logs it and degrades to a cache miss.
	ErrorTypeCacheIO ErrorType = "cache_io"

	// ErrorTypeUnknown indicates an unclassified error (not retried).
	ErrorTypeUnknown ErrorType = "unknown"
)

// IsTransientType reports whether an error type warrants retry.
func IsTransientType(t ErrorType) bool {
	switch t {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// Sentinel errors shared across the llm packages.
var (
	// ErrCacheMiss indicates the requested entry was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnknownProvider indicates a provider id with no registered adapter.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMaxRetriesExceeded indicates retry attempts were exhausted.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// ProviderError captures a structured failure from a model provider.
// StatusCode is the HTTP status when the SDK exposed one, 0 otherwise.
type ProviderError struct {
	Provider   string    `json:"provider"`
	StatusCode int       `json:"status_code,omitempty"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Type       ErrorType `json:"type"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds
}

// Error returns the formatted provider failure.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool { return IsTransientType(e.Type) }

// GetRetryAfter returns provider-recommended backoff, zero when absent.
func (e *ProviderError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// RateLimitError carries rate limit context for backoff calculation.
type RateLimitError struct {
	Provider   string `json:"provider"`
	Limit      int    `json:"limit"`
	RetryAfter int    `json:"retry_after"` // seconds
}

// Error returns the formatted rate limit failure.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded (limit %d, retry after %ds)",
		e.Provider, e.Limit, e.RetryAfter)
}

// GetRetryAfter returns the recommended wait before the next attempt.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	return time.Duration(e.RetryAfter) * time.Second
}

// ValidationError indicates malformed configuration or input. Validation
// failures are fatal: the run does not start.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error returns the formatted validation failure.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// CacheIOError wraps a disk fault during cache access. Callers log it and
// continue as if the lookup missed.
type CacheIOError struct {
	Op  string // "get" or "put"
	Key string
	Err error
}

// Error returns the formatted cache fault.
func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap exposes the underlying I/O error.
func (e *CacheIOError) Unwrap() error { return e.Err }
