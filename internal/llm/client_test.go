package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/providers"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// flakyAdapter fails its first failures calls with a transient error, then
// succeeds.
type flakyAdapter struct {
	mu       sync.Mutex
	calls    int
	failures int
	content  string
}

func (a *flakyAdapter) Invoke(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.calls <= a.failures {
		return nil, &llmerrors.ProviderError{
			Provider: "openai",
			Type:     llmerrors.ErrorTypeProvider,
			Message:  "503 service unavailable",
		}
	}
	return &transport.Response{
		Provider: "openai",
		Model:    req.Model,
		Content:  a.content,
		Usage:    transport.NormalizedUsage{PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12},
	}, nil
}

func (a *flakyAdapter) Name() string { return "openai" }

func (a *flakyAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func clientConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Cache: configuration.CacheConfig{Enabled: true, Dir: t.TempDir()},
		Retry: configuration.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2.0,
		},
	}
}

func sampleRequest() *transport.Request {
	return &transport.Request{
		Operation:   transport.OpGeneration,
		Provider:    "openai",
		Model:       "gpt-4o",
		Temperature: 0.2,
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: "What is consideration?"}},
	}
}

func TestClientWarmCacheServesWithoutProviderCalls(t *testing.T) {
	adapter := &flakyAdapter{content: "a bargained-for exchange"}
	client, err := NewClient(clientConfig(t), providers.NewRouter(adapter))
	require.NoError(t, err)

	resp, err := client.Invoke(t.Context(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "a bargained-for exchange", resp.Content)
	assert.False(t, resp.FromCache)
	assert.Equal(t, 1, adapter.callCount())

	// Identical request again: served from disk, adapter untouched.
	resp, err = client.Invoke(t.Context(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "a bargained-for exchange", resp.Content)
	assert.True(t, resp.FromCache)
	assert.Equal(t, 1, adapter.callCount())

	stats := client.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestClientCachePersistsAcrossClients(t *testing.T) {
	cfg := clientConfig(t)

	adapter := &flakyAdapter{content: "first run"}
	client, err := NewClient(cfg, providers.NewRouter(adapter))
	require.NoError(t, err)
	_, err = client.Invoke(t.Context(), sampleRequest())
	require.NoError(t, err)

	// A fresh client over the same cache dir re-serves the warm entry.
	adapter2 := &flakyAdapter{content: "should not be called"}
	client2, err := NewClient(cfg, providers.NewRouter(adapter2))
	require.NoError(t, err)

	resp, err := client2.Invoke(t.Context(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "first run", resp.Content)
	assert.True(t, resp.FromCache)
	assert.Zero(t, adapter2.callCount())
}

func TestClientRetriesTransientFailures(t *testing.T) {
	adapter := &flakyAdapter{failures: 2, content: "eventually"}
	client, err := NewClient(clientConfig(t), providers.NewRouter(adapter))
	require.NoError(t, err)

	resp, err := client.Invoke(t.Context(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "eventually", resp.Content)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, 3, adapter.callCount())
}

func TestClientExhaustedRetriesNotCached(t *testing.T) {
	adapter := &flakyAdapter{failures: 100}
	client, err := NewClient(clientConfig(t), providers.NewRouter(adapter))
	require.NoError(t, err)

	_, err = client.Invoke(t.Context(), sampleRequest())
	assert.ErrorIs(t, err, llmerrors.ErrMaxRetriesExceeded)
	assert.Equal(t, 3, adapter.callCount())

	// Recovery: the failure was not cached, so the next call retries fresh.
	adapter.mu.Lock()
	adapter.failures = 0
	adapter.content = "recovered"
	adapter.mu.Unlock()

	resp, err := client.Invoke(t.Context(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.False(t, resp.FromCache)
}

func TestClientCacheKeyFor(t *testing.T) {
	client, err := NewClient(clientConfig(t), providers.NewRouter(&flakyAdapter{}))
	require.NoError(t, err)
	assert.Len(t, client.CacheKeyFor(sampleRequest()), 64)

	disabled := clientConfig(t)
	disabled.Cache.Enabled = false
	client, err = NewClient(disabled, providers.NewRouter(&flakyAdapter{}))
	require.NoError(t, err)
	assert.Empty(t, client.CacheKeyFor(sampleRequest()))
}
