package cache

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// cacheMiddleware serves model calls from the disk store and writes back
// successful responses. All operations are safe under concurrent workers;
// the store's atomic rename is the only synchronization required because
// same-key content is deterministic.
type cacheMiddleware struct {
	store  *DiskCache
	logger *slog.Logger

	// Metrics counters accessed atomically.
	hits   atomic.Int64
	misses atomic.Int64
	faults atomic.Int64
}

// Stats is a snapshot of cache middleware counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Faults int64 `json:"faults"`
}

// NewMiddleware creates caching middleware backed by the disk store.
// Requests that cannot produce a cache key pass straight through. Store
// faults degrade to a miss and never fail the request. The returned
// function snapshots the hit/miss/fault counters.
func NewMiddleware(store *DiskCache) (transport.Middleware, func() Stats) {
	cm := &cacheMiddleware{
		store:  store,
		logger: slog.Default().With("component", "cache"),
	}
	snapshot := func() Stats {
		return Stats{
			Hits:   cm.hits.Load(),
			Misses: cm.misses.Load(),
			Faults: cm.faults.Load(),
		}
	}
	return cm.middleware(), snapshot
}

func (c *cacheMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if !c.store.Enabled() {
				return next.Handle(ctx, req)
			}

			key, err := transport.BuildCacheKey(req)
			if err != nil {
				c.logger.Warn("cache key construction failed, bypassing cache", "error", err)
				return next.Handle(ctx, req)
			}

			entry, ok, getErr := c.store.Get(key)
			if getErr != nil {
				// Disk fault degrades to a miss; the run continues.
				c.faults.Add(1)
				c.logger.Warn("cache read fault, treating as miss", "key", key, "error", getErr)
			}
			if ok {
				c.hits.Add(1)
				c.logger.Debug("cache hit",
					"key", key,
					"provider", req.Provider,
					"model", req.Model,
					"operation", req.Operation)
				return &transport.Response{
					Provider:  entry.Provider,
					Model:     entry.Model,
					Content:   entry.Content,
					Usage:     entry.Usage,
					LatencyMs: entry.LatencyMs,
					Raw:       entry.Raw,
					FromCache: true,
				}, nil
			}
			c.misses.Add(1)

			resp, err := next.Handle(ctx, req)
			if err != nil {
				return resp, err
			}

			if putErr := c.store.Put(key, &Entry{
				Provider:  resp.Provider,
				Model:     resp.Model,
				Content:   resp.Content,
				Usage:     resp.Usage,
				LatencyMs: resp.LatencyMs,
				RequestID: req.RequestID,
				Raw:       resp.Raw,
			}); putErr != nil {
				c.faults.Add(1)
				c.logger.Warn("cache write fault", "key", key, "error", putErr)
			}
			return resp, nil
		})
	}
}

// KeyFor exposes the cache key a request would use. The phases stamp it on
// records so artifacts can be traced back to cache entries.
func KeyFor(req *transport.Request) string {
	key, err := transport.BuildCacheKey(req)
	if err != nil {
		return ""
	}
	return string(key)
}
