package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ahrav/go-evalrun/internal/domain"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// OpenAIAdapter invokes chat completions via the official OpenAI SDK.
type OpenAIAdapter struct {
	client openai.Client
}

// NewOpenAIAdapter creates an adapter using the given API key. An empty key
// falls back to the SDK's environment-based resolution.
func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	// The middleware chain owns retries; disable the SDK's built-in ones so
	// attempt counts stay accurate.
	opts = append(opts, option.WithMaxRetries(0))
	return &OpenAIAdapter{client: openai.NewClient(opts...)}
}

// Name implements transport.ProviderAdapter.
func (a *OpenAIAdapter) Name() string { return ProviderOpenAI }

// Invoke implements transport.ProviderAdapter.
func (a *OpenAIAdapter) Invoke(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: openAIMessages(req.Messages),
	}
	params.Temperature = openai.Float(req.Temperature)
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}
	if req.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(req.ReasoningEffort)
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llmerrors.ProviderError{
			Provider: ProviderOpenAI,
			Message:  "response contained no choices",
			Type:     llmerrors.ErrorTypeProvider,
		}
	}

	return &transport.Response{
		Provider: ProviderOpenAI,
		Model:    resp.Model,
		Content:  resp.Choices[0].Message.Content,
		Usage: transport.NormalizedUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Raw: map[string]any{
			"id":            resp.ID,
			"finish_reason": string(resp.Choices[0].FinishReason),
		},
	}, nil
}

func (a *OpenAIAdapter) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llmerrors.ProviderError{
			Provider:   ProviderOpenAI,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Type:       llmerrors.ClassifyStatus(apiErr.StatusCode),
		}
	}
	return fmt.Errorf("openai chat: %w", err)
}

func openAIMessages(msgs []domain.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case domain.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case domain.RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}
