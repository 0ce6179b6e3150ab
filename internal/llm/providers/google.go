package providers

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ahrav/go-evalrun/internal/domain"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// GoogleAdapter invokes Gemini models via the google.golang.org/genai SDK.
type GoogleAdapter struct {
	client *genai.Client
}

// NewGoogleAdapter creates an adapter backed by the Gemini API. An empty key
// falls back to the SDK's environment-based resolution.
func NewGoogleAdapter(ctx context.Context, apiKey string) (*GoogleAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GoogleAdapter{client: client}, nil
}

// Name implements transport.ProviderAdapter.
func (a *GoogleAdapter) Name() string { return ProviderGoogle }

// Invoke implements transport.ProviderAdapter.
func (a *GoogleAdapter) Invoke(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	config := &genai.GenerateContentConfig{}
	temp := float32(req.Temperature)
	config.Temperature = &temp
	if req.TopP != nil {
		topP := float32(*req.TopP)
		config.TopP = &topP
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Seed != nil {
		seed := int32(*req.Seed)
		config.Seed = &seed
	}

	system, contents := googleContents(req.Messages)
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	resp, err := a.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, a.classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &llmerrors.ProviderError{
			Provider: ProviderGoogle,
			Message:  "response contained no candidates",
			Type:     llmerrors.ErrorTypeProvider,
		}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	out := &transport.Response{
		Provider: ProviderGoogle,
		Model:    req.Model,
		Content:  sb.String(),
		Raw: map[string]any{
			"finish_reason": string(resp.Candidates[0].FinishReason),
		},
	}
	if usage := resp.UsageMetadata; usage != nil {
		out.Usage = transport.NormalizedUsage{
			PromptTokens:     int64(usage.PromptTokenCount),
			CompletionTokens: int64(usage.CandidatesTokenCount),
			TotalTokens:      int64(usage.TotalTokenCount),
		}
	}
	return out, nil
}

// classify falls back to string matching: the genai SDK does not expose a
// stable typed error for quota and availability failures.
func (a *GoogleAdapter) classify(err error) error {
	msg := err.Error()
	typ := llmerrors.ErrorTypeUnknown
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "RESOURCE_EXHAUSTED"),
		strings.Contains(msg, "Resource exhausted"), strings.Contains(msg, "quota"):
		typ = llmerrors.ErrorTypeRateLimit
	case strings.Contains(msg, "503"), strings.Contains(msg, "Overloaded"),
		strings.Contains(msg, "500"), strings.Contains(msg, "Internal error"),
		strings.Contains(msg, "UNAVAILABLE"):
		typ = llmerrors.ErrorTypeProvider
	case strings.Contains(msg, "DEADLINE_EXCEEDED"), strings.Contains(msg, "504"):
		typ = llmerrors.ErrorTypeTimeout
	case strings.Contains(msg, "401"), strings.Contains(msg, "API key"):
		typ = llmerrors.ErrorTypeAuth
	case strings.Contains(msg, "403"), strings.Contains(msg, "PERMISSION_DENIED"):
		typ = llmerrors.ErrorTypePermission
	case strings.Contains(msg, "400"), strings.Contains(msg, "INVALID_ARGUMENT"):
		typ = llmerrors.ErrorTypeBadRequest
	}
	return &llmerrors.ProviderError{
		Provider: ProviderGoogle,
		Message:  msg,
		Type:     typ,
	}
}

func googleContents(msgs []domain.Message) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == domain.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		role := genai.RoleUser
		if msg.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	return strings.Join(system, "\n\n"), contents
}
