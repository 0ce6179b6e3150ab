package judge

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-evalrun/internal/domain"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
)

// GradeMCQ grades a multiple-choice candidate answer programmatically, with
// no judge model call. The candidate's selected choice id must match one of
// the example's correct choice ids exactly — matching is case-sensitive and
// there is no partial credit. A candidate answer that cannot be parsed
// scores 0 with ParseError set.
func GradeMCQ(example *domain.NormalizedExample, candidateText string, passThreshold float64) (domain.JudgeResult, error) {
	if len(example.CorrectChoiceIDs) == 0 {
		return domain.JudgeResult{}, &llmerrors.ValidationError{
			Field:   "correct_choice_ids",
			Message: fmt.Sprintf("mcq example %q has no correct choice ids; rebuild canonical dataset inputs", example.ID),
		}
	}

	selected, reasoning, parseErr := parseMCQAnswer(candidateText)

	score := 0.0
	if selected != "" {
		for _, want := range example.CorrectChoiceIDs {
			if selected == want {
				score = 1.0
				break
			}
		}
	}

	var rationale []string
	if reasoning != "" {
		rationale = append(rationale, reasoning)
	}
	display := selected
	if display == "" {
		display = "(none)"
	}
	rationale = append(rationale, fmt.Sprintf("Selected=%s; expected=%v", display, example.CorrectChoiceIDs))
	if parseErr {
		rationale = append(rationale, "Parse error: candidate output was not valid JSON.")
	}

	return domain.JudgeResult{
		Score:     score,
		Passed:    score >= passThreshold,
		Rationale: strings.Join(rationale, " | "),
		Criteria:  map[string]float64{"exact_match": score},
		Raw: map[string]any{
			"selected_answer":     selected,
			"expected_choice_ids": example.CorrectChoiceIDs,
			"parse_error":         parseErr,
		},
		ParseError: parseErr,
	}.FailClosed(), nil
}

// parseMCQAnswer extracts the selected choice id from the candidate's JSON
// answer. The answer field may be a string or, from sloppier models, a list
// whose first non-empty string is taken.
func parseMCQAnswer(text string) (selected, reasoning string, parseErr bool) {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return "", "Failed to parse JSON candidate answer.", true
	}

	if s, ok := obj["reasoning"].(string); ok {
		reasoning = strings.TrimSpace(s)
	}

	switch answer := obj["answer"].(type) {
	case string:
		selected = strings.TrimSpace(answer)
	case []any:
		for _, item := range answer {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				selected = strings.TrimSpace(s)
				break
			}
		}
	}
	return selected, reasoning, false
}
