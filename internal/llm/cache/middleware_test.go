package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

func cacheableRequest() *transport.Request {
	return &transport.Request{
		Operation:   transport.OpGeneration,
		Provider:    "openai",
		Model:       "gpt-4o",
		Temperature: 0.2,
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
	}
}

func countingHandler(resp *transport.Response, err error) (transport.Handler, *int) {
	calls := 0
	h := transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		calls++
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	return h, &calls
}

func TestMiddlewareMissThenHit(t *testing.T) {
	store := newTestCache(t)
	mw, stats := NewMiddleware(store)

	next, calls := countingHandler(&transport.Response{
		Provider: "openai",
		Model:    "gpt-4o",
		Content:  "fresh",
	}, nil)
	h := mw(next)

	// First call misses and populates the store.
	resp, err := h.Handle(t.Context(), cacheableRequest())
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Content)
	assert.False(t, resp.FromCache)
	assert.Equal(t, 1, *calls)

	// Identical request is served from disk with no provider call.
	resp, err = h.Handle(t.Context(), cacheableRequest())
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Content)
	assert.True(t, resp.FromCache)
	assert.Equal(t, 1, *calls)

	s := stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Zero(t, s.Faults)
}

func TestMiddlewareFailureNotCached(t *testing.T) {
	store := newTestCache(t)
	mw, stats := NewMiddleware(store)

	fail, failCalls := countingHandler(nil, assert.AnError)
	h := mw(fail)

	_, err := h.Handle(t.Context(), cacheableRequest())
	require.Error(t, err)
	assert.Equal(t, 1, *failCalls)

	// The failure left no entry behind; the next call reaches the handler.
	ok, okCalls := countingHandler(&transport.Response{Content: "recovered"}, nil)
	resp, err := mw(ok).Handle(t.Context(), cacheableRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 1, *okCalls)
	assert.Equal(t, int64(2), stats().Misses)
}

func TestMiddlewareDisabledStorePassesThrough(t *testing.T) {
	store, err := NewDiskCache(t.TempDir(), false)
	require.NoError(t, err)
	mw, stats := NewMiddleware(store)

	next, calls := countingHandler(&transport.Response{Content: "direct"}, nil)
	h := mw(next)

	for range 3 {
		resp, err := h.Handle(t.Context(), cacheableRequest())
		require.NoError(t, err)
		assert.False(t, resp.FromCache)
	}
	assert.Equal(t, 3, *calls)
	assert.Zero(t, stats().Hits)
	assert.Zero(t, stats().Misses)
}

func TestMiddlewareUncacheableRequestBypasses(t *testing.T) {
	store := newTestCache(t)
	mw, _ := NewMiddleware(store)

	next, calls := countingHandler(&transport.Response{Content: "x"}, nil)
	h := mw(next)

	// Missing model makes the key unconstructible; the request passes through.
	req := cacheableRequest()
	req.Model = ""
	for range 2 {
		_, err := h.Handle(t.Context(), req)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, *calls)
}

func TestKeyFor(t *testing.T) {
	assert.Len(t, KeyFor(cacheableRequest()), 64)
	assert.Empty(t, KeyFor(&transport.Request{}))
}
