package policy

import (
	"strings"

	"github.com/ahrav/go-evalrun/internal/domain"
)

const mcqAnswerInstruction = "Return only valid JSON with no markdown. " +
	`Use this schema exactly: {"answer": "<choice_id>", "reasoning": "<short text>"}. ` +
	"The answer must be exactly one of the provided choice IDs."

// GenerationMessages builds the candidate prompt for an example under its
// policy. The construction is fully deterministic in (example, policy,
// systemPrompt): the same inputs always produce the same messages, which is
// what makes cache keys stable across runs.
func GenerationMessages(example *domain.NormalizedExample, systemPrompt string) []domain.Message {
	p := Resolve(example.PolicyID)
	guidance := p.GenerationPrefix

	var system []domain.Message
	if p.UseDefaultSystemPrompt && systemPrompt != "" {
		system = append(system, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	}

	// Pre-built conversations take precedence over instructions/context.
	if len(example.Messages) > 0 {
		msgs := make([]domain.Message, 0, len(system)+len(example.Messages)+2)
		msgs = append(msgs, system...)
		msgs = append(msgs, example.Messages...)
		if guidance != "" {
			msgs = appendGuidance(msgs, guidance, p.MergeGuidanceIntoUser)
		}
		if example.TaskType == domain.TaskMCQ && p.MCQJSONAnswer {
			msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: mcqAnswerInstruction})
		}
		return msgs
	}

	parts := []string{strings.TrimSpace(example.Instructions)}
	if ctx := strings.TrimSpace(example.Context); ctx != "" {
		parts = append(parts, "Context:\n"+ctx)
	}
	if len(example.Choices) > 0 {
		parts = append(parts, renderChoices(example.Choices))
	}
	if guidance != "" {
		parts = append(parts, guidance)
	}
	if example.TaskType == domain.TaskMCQ && p.MCQJSONAnswer {
		parts = append(parts, mcqAnswerInstruction)
	}

	msgs := make([]domain.Message, 0, len(system)+1)
	msgs = append(msgs, system...)
	msgs = append(msgs, domain.Message{
		Role:    domain.RoleUser,
		Content: strings.Join(compact(parts), "\n\n"),
	})
	return msgs
}

func appendGuidance(msgs []domain.Message, guidance string, mergeIntoUser bool) []domain.Message {
	if mergeIntoUser {
		for i, msg := range msgs {
			if msg.Role == domain.RoleUser {
				msgs[i].Content = strings.TrimRight(msg.Content, " \t\n") + "\n\n" + guidance
				return msgs
			}
		}
	}
	return append(msgs, domain.Message{Role: domain.RoleUser, Content: guidance})
}

func renderChoices(choices []domain.Choice) string {
	var sb strings.Builder
	sb.WriteString("Choices:")
	for _, c := range choices {
		sb.WriteString("\n")
		sb.WriteString(c.ID)
		sb.WriteString(": ")
		sb.WriteString(c.Text)
	}
	return sb.String()
}

func compact(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
