package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// transientMarkers are lowercase substrings that identify transient
// failures in untyped SDK error strings. Provider SDKs surface many
// transport failures as plain errors, so string matching is the fallback
// of last resort after typed checks.
var transientMarkers = []string{
	"rate limit",
	"429",
	"500",
	"502",
	"503",
	"504",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"deadline_exceeded",
	"resource_exhausted",
	"resource exhausted",
	"capacity exceeded",
	"overloaded",
	"service unavailable",
	"internal server error",
	"empty response text",
	"eof",
}

// ClassifyStatus maps an HTTP status code to an error type.
// 429 and 5xx-class statuses are transient; 4xx-class statuses are
// permanent, split into auth, permission and bad-request buckets.
func ClassifyStatus(code int) ErrorType {
	switch {
	case code == 429:
		return ErrorTypeRateLimit
	case code == 408 || code == 504:
		return ErrorTypeTimeout
	case code >= 500:
		return ErrorTypeProvider
	case code == 401:
		return ErrorTypeAuth
	case code == 403:
		return ErrorTypePermission
	case code >= 400:
		return ErrorTypeBadRequest
	default:
		return ErrorTypeUnknown
	}
}

// IsTransient reports whether a failure should be retried. Typed errors are
// checked first; untyped errors fall back to network type assertions and
// string markers. Unknown errors are not retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.IsRetryable()
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	lowered := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// TypeOf extracts the classified error type, falling back to marker
// matching for untyped errors. Used to stamp ErrorType on failure records.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Type
	}
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return ErrorTypeRateLimit
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ErrorTypeValidation
	}
	var cacheErr *CacheIOError
	if errors.As(err, &cacheErr) {
		return ErrorTypeCacheIO
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	if IsTransient(err) {
		return ErrorTypeProvider
	}
	return ErrorTypeUnknown
}
