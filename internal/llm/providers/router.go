// Package providers implements the concrete model-vendor adapters behind the
// transport chain. Each adapter translates the normalized request into its
// SDK's call, maps the reply back, and classifies SDK failures into the
// shared error taxonomy so the retry layer treats every vendor uniformly.
package providers

import (
	"fmt"
	"strings"

	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// Canonical provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// CanonicalProvider maps provider aliases to their canonical name.
// Unknown names pass through unchanged so the router can reject them.
func CanonicalProvider(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderOpenAI:
		return ProviderOpenAI
	case ProviderAnthropic, "claude":
		return ProviderAnthropic
	case ProviderGoogle, "google_genai", "google-genai", "gemini", "vertex":
		return ProviderGoogle
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// Router dispatches requests to the adapter registered for each provider.
type Router struct {
	adapters map[string]transport.ProviderAdapter
}

// NewRouter builds a router over the given adapters, keyed by canonical name.
func NewRouter(adapters ...transport.ProviderAdapter) *Router {
	m := make(map[string]transport.ProviderAdapter, len(adapters))
	for _, a := range adapters {
		m[CanonicalProvider(a.Name())] = a
	}
	return &Router{adapters: m}
}

// Pick returns the adapter for the named provider.
func (r *Router) Pick(provider string) (transport.ProviderAdapter, error) {
	a, ok := r.adapters[CanonicalProvider(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", llmerrors.ErrUnknownProvider, provider)
	}
	return a, nil
}

// Providers lists the registered canonical provider names.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
