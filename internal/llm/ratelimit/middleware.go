package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// NewMiddleware returns middleware that acquires a rate slot before every
// provider call. It sits inside the retry layer so each retry attempt pays
// for its own slot.
func NewMiddleware(limits *ProviderLimits) transport.Middleware {
	logger := slog.Default().With("component", "ratelimit")
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			limiter := limits.For(req.Provider)
			start := time.Now()
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			if waited := time.Since(start); waited > time.Second {
				logger.Debug("throttled by rate limit",
					"provider", req.Provider,
					"waited", waited,
					"rpm", limiter.RPM())
			}
			return next.Handle(ctx, req)
		})
	}
}
