// Package llm assembles the model-call pipeline: a provider-agnostic client
// whose requests flow through logging, caching, retry, and rate limiting
// before reaching a vendor SDK adapter.
package llm

import (
	"context"
	"fmt"

	"github.com/ahrav/go-evalrun/internal/llm/cache"
	"github.com/ahrav/go-evalrun/internal/llm/configuration"
	"github.com/ahrav/go-evalrun/internal/llm/ratelimit"
	"github.com/ahrav/go-evalrun/internal/llm/retry"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// Config carries the resilience settings for the pipeline.
type Config struct {
	Cache     configuration.CacheConfig
	Retry     configuration.RetryConfig
	RateLimit configuration.RateLimitConfig
}

// Client is the single entry point for model calls. Both phases share one
// client so cache, retry, and rate limit policies apply uniformly.
type Client struct {
	handler    transport.Handler
	cacheStats func() cache.Stats
	store      *cache.DiskCache
}

// NewClient builds the middleware pipeline around the given router.
// Order matters: logging observes everything, the cache short-circuits
// before any retry or rate accounting, and rate limiting sits inside retry
// so every attempt acquires its own slot.
func NewClient(cfg Config, router transport.Router) (*Client, error) {
	store, err := cache.NewDiskCache(cfg.Cache.Dir, cfg.Cache.Enabled)
	if err != nil {
		return nil, fmt.Errorf("initializing disk cache: %w", err)
	}

	cacheMW, cacheStats := cache.NewMiddleware(store)
	retryMW, err := retry.NewMiddleware(cfg.Retry, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing retry: %w", err)
	}
	rateMW := ratelimit.NewMiddleware(ratelimit.NewProviderLimits(cfg.RateLimit))

	handler := transport.Chain(
		transport.NewAdapterHandler(router),
		NewLoggingMiddleware(),
		cacheMW,
		retryMW,
		rateMW,
	)

	return &Client{handler: handler, cacheStats: cacheStats, store: store}, nil
}

// Invoke runs one model call through the full pipeline.
func (c *Client) Invoke(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return c.handler.Handle(ctx, req)
}

// CacheStats snapshots cache hit/miss/fault counters for run reporting.
func (c *Client) CacheStats() cache.Stats { return c.cacheStats() }

// CacheKeyFor exposes the canonical cache key a request resolves to, for
// stamping on result records. Empty when caching is disabled.
func (c *Client) CacheKeyFor(req *transport.Request) string {
	if !c.store.Enabled() {
		return ""
	}
	return cache.KeyFor(req)
}
