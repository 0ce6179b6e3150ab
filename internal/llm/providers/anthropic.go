package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-evalrun/internal/domain"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// Anthropic requires max_tokens on every request; used when the caller
// leaves it unset.
const anthropicDefaultMaxTokens = 4096

// AnthropicAdapter invokes the Messages API via the official Anthropic SDK.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter creates an adapter using the given API key. An empty
// key falls back to the SDK's environment-based resolution.
func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, option.WithMaxRetries(0))
	return &AnthropicAdapter{client: anthropic.NewClient(opts...)}
}

// Name implements transport.ProviderAdapter.
func (a *AnthropicAdapter) Name() string { return ProviderAnthropic }

// Invoke implements transport.ProviderAdapter.
func (a *AnthropicAdapter) Invoke(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	system, turns := splitSystem(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  anthropicMessages(turns),
	}
	params.Temperature = anthropic.Float(req.Temperature)
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.classify(err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &transport.Response{
		Provider: ProviderAnthropic,
		Model:    string(message.Model),
		Content:  sb.String(),
		Usage: transport.NormalizedUsage{
			PromptTokens:     message.Usage.InputTokens,
			CompletionTokens: message.Usage.OutputTokens,
			TotalTokens:      message.Usage.InputTokens + message.Usage.OutputTokens,
		},
		Raw: map[string]any{
			"id":          message.ID,
			"stop_reason": string(message.StopReason),
		},
	}, nil
}

func (a *AnthropicAdapter) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		typ := llmerrors.ClassifyStatus(apiErr.StatusCode)
		// 529 is Anthropic's overloaded status, outside the generic 5xx map.
		if apiErr.StatusCode == 529 {
			typ = llmerrors.ErrorTypeProvider
		}
		return &llmerrors.ProviderError{
			Provider:   ProviderAnthropic,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Type:       typ,
		}
	}
	return fmt.Errorf("anthropic messages: %w", err)
}

// splitSystem pulls system messages out of the turn list; Anthropic carries
// system instructions as a top-level parameter, not a message role.
func splitSystem(msgs []domain.Message) (string, []domain.Message) {
	var system []string
	turns := make([]domain.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == domain.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	return strings.Join(system, "\n\n"), turns
}

func anthropicMessages(msgs []domain.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == domain.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}
