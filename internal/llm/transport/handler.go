// Package transport defines the request/response shapes shared by every
// model call and the composable middleware pipeline they flow through.
// Cross-cutting concerns — caching, rate limiting, retries, logging — are
// middleware layered around a core handler that dispatches to a provider
// adapter.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/go-evalrun/internal/domain"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
)

// OperationType distinguishes generation calls from judge calls.
type OperationType string

const (
	// OpGeneration produces a candidate response for an example.
	OpGeneration OperationType = "generation"

	// OpJudging grades a candidate response.
	OpJudging OperationType = "judging"
)

// Request is one fully specified model call. Immutable once built: the
// phases construct a request deterministically from (example, policy) and
// hand it down the pipeline without further mutation.
type Request struct {
	Operation OperationType    `json:"operation"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	Messages  []domain.Message `json:"messages"`

	// Decoding parameters. Pointer fields distinguish "unset" from zero.
	Temperature     float64  `json:"temperature"`
	TopP            *float64 `json:"top_p,omitempty"`
	MaxTokens       int64    `json:"max_tokens,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`

	// SchemaTag names the structured-output contract the caller expects,
	// e.g. "judge_verdict_v1". It participates in the cache key so prompt
	// contract changes invalidate stale cached responses.
	SchemaTag string `json:"schema_tag,omitempty"`

	RequestID string        `json:"request_id,omitempty"`
	Timeout   time.Duration `json:"-"`
}

// NormalizedUsage is provider-agnostic token accounting.
type NormalizedUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is the normalized outcome of a model call.
type Response struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Content  string          `json:"content"`
	Usage    NormalizedUsage `json:"usage"`

	LatencyMs int64 `json:"latency_ms"`

	// Attempts is the number of provider calls made for this response,
	// set by the retry middleware. 0 for cache hits.
	Attempts int `json:"attempts,omitempty"`

	// FromCache marks responses served by the cache middleware without a
	// provider call.
	FromCache bool `json:"from_cache,omitempty"`

	// Raw carries provider metadata retained for post-hoc inspection.
	Raw map[string]any `json:"raw,omitempty"`
}

// Handler processes a model request. It is the unit of middleware
// composition: the core handler dispatches to a provider adapter, and every
// cross-cutting concern wraps it.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler. Middleware
// executes in the order provided, first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// ProviderAdapter issues one model call against a concrete provider SDK.
// Implementations must classify failures into the typed error taxonomy so
// the retry middleware can distinguish transient from permanent errors, and
// must have no side effects beyond the returned response, making retries
// unconditionally safe.
type ProviderAdapter interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// Router selects the provider adapter responsible for a request.
type Router interface {
	Pick(provider string) (ProviderAdapter, error)
}

// ErrEmptyContent marks a structurally successful provider response whose
// text is blank. Blank generations are useless and usually transient, so
// the error is classified retryable and the response is never cached.
var ErrEmptyContent = errors.New("empty response text")

// NewAdapterHandler creates the core handler that dispatches to provider
// adapters via the router, applies the per-request timeout, and stamps
// latency on the response.
func NewAdapterHandler(router Router) Handler {
	return &adapterHandler{router: router}
}

type adapterHandler struct {
	router Router
}

func (h *adapterHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	adapter, err := h.router.Pick(req.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to select provider: %w", err)
	}

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := adapter.Invoke(reqCtx, req)
	if err != nil {
		return nil, err
	}
	resp.LatencyMs = time.Since(start).Milliseconds()

	if req.Operation == OpGeneration && isBlank(resp.Content) {
		return nil, &llmerrors.ProviderError{
			Provider: req.Provider,
			Message:  ErrEmptyContent.Error(),
			Type:     llmerrors.ErrorTypeProvider,
		}
	}
	return resp, nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
