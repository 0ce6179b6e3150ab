// Package ratelimit throttles outbound model calls to a per-minute budget.
// Each provider gets its own limiter; waiting blocks the calling worker, not
// the pool, and honors context cancellation.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-evalrun/internal/llm/configuration"
)

// PerMinuteLimiter spaces requests evenly so that no rolling 60-second window
// ever admits more than the configured count.
type PerMinuteLimiter struct {
	limiter *rate.Limiter
	rpm     int
}

// NewPerMinuteLimiter creates a limiter admitting at most rpm requests per
// minute. rpm <= 0 disables limiting.
func NewPerMinuteLimiter(rpm int) *PerMinuteLimiter {
	if rpm <= 0 {
		return &PerMinuteLimiter{rpm: 0}
	}
	// Burst of 1 enforces even spacing: a burst allowance would let a window
	// straddling two minutes exceed the budget.
	return &PerMinuteLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		rpm:     rpm,
	}
}

// Wait blocks until a slot is available or ctx is cancelled.
func (l *PerMinuteLimiter) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// RPM reports the configured budget, 0 when unlimited.
func (l *PerMinuteLimiter) RPM() int { return l.rpm }

// ProviderLimits holds one limiter per provider plus a global default.
// Lookup is lazy so providers that never appear in a run cost nothing.
type ProviderLimits struct {
	mu       sync.Mutex
	cfg      configuration.RateLimitConfig
	limiters map[string]*PerMinuteLimiter
}

// NewProviderLimits builds the limiter set from config. Providers absent
// from the per-provider map fall back to the global RequestsPerMinute.
func NewProviderLimits(cfg configuration.RateLimitConfig) *ProviderLimits {
	return &ProviderLimits{
		cfg:      cfg,
		limiters: make(map[string]*PerMinuteLimiter),
	}
}

// For returns the limiter governing the named provider.
func (p *ProviderLimits) For(provider string) *PerMinuteLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters[provider]; ok {
		return l
	}
	rpm := p.cfg.RequestsPerMinute
	if override, ok := p.cfg.PerProvider[provider]; ok {
		rpm = override
	}
	l := NewPerMinuteLimiter(rpm)
	p.limiters[provider] = l
	return l
}
