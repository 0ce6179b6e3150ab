// Package configuration holds the tunable settings for the llm middleware
// stack: caching, retries, and rate limiting. The structs are plain data so
// the application config layer can unmarshal them directly from YAML and
// the middleware constructors can validate them.
package configuration

import "time"

// CacheConfig controls the content-addressed disk cache.
type CacheConfig struct {
	// Enabled toggles the cache; when false every lookup misses and
	// nothing is stored.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the root directory of the file-per-key store.
	Dir string `json:"dir" yaml:"dir"`
}

// RetryConfig controls bounded retry with exponential backoff.
type RetryConfig struct {
	// MaxAttempts bounds total provider calls per request, first attempt
	// included. A request is never retried beyond this count.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// InitialInterval is the backoff before the second attempt.
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`

	// MaxInterval caps the exponential backoff growth.
	MaxInterval time.Duration `json:"max_interval" yaml:"max_interval"`

	// Multiplier is the backoff growth factor per attempt.
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`

	// UseJitter randomizes each backoff in [0, computed) to avoid
	// synchronized retry storms across workers.
	UseJitter bool `json:"use_jitter" yaml:"use_jitter"`
}

// RateLimitConfig bounds call starts per rolling minute. Zero values
// disable the corresponding limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the shared budget for all workers in a phase.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`

	// PerProvider optionally partitions additional budgets by provider id;
	// a call start must clear both the shared and its provider budget.
	PerProvider map[string]int `json:"per_provider,omitempty" yaml:"per_provider,omitempty"`
}
