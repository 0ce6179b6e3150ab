package configuration

import "time"

// Default middleware settings, applied by the application config layer when
// the config file leaves a section empty.
const (
	DefaultMaxAttempts     = 5
	DefaultInitialInterval = 1 * time.Second
	DefaultMaxInterval     = 30 * time.Second
	DefaultMultiplier      = 2.0
)

// DefaultRetryConfig returns the standard retry policy: five bounded
// attempts with jittered exponential backoff from 1s capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		UseJitter:       true,
	}
}
