// Package judge turns raw judge model output into scored verdicts and
// implements the programmatic grading paths. Parsing fails closed: output
// that cannot be interpreted scores 0 and never passes.
package judge

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ahrav/go-evalrun/internal/domain"
)

// ErrNoJSONObject indicates the judge output contained no parseable JSON
// object even after the brace-scan fallback.
var ErrNoJSONObject = errors.New("response did not contain a JSON object")

// ExtractJSONObject pulls the first JSON object out of raw model text.
// A direct parse is tried first; when the model wraps its answer in markdown
// fences or prose, the outermost brace pair is parsed instead.
func ExtractJSONObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, ErrNoJSONObject
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, ErrNoJSONObject
	}
	return obj, nil
}

// ParseJudgeOutput interprets raw judge text as a JudgeResult.
//
// The score is read from "score" when present, otherwise from the binary
// verdict keys the criterion prompt families use: "grade" (0|1),
// "criteria_met" (bool), or "result" (1|0). An explicit "pass" boolean is
// honored; otherwise pass is derived from the threshold. Unparseable output
// produces a ParseError result that fails closed.
func ParseJudgeOutput(rawText string, passThreshold float64) domain.JudgeResult {
	obj, err := ExtractJSONObject(rawText)
	if err != nil {
		return domain.JudgeResult{
			Score:      0,
			Passed:     false,
			Rationale:  "Failed to parse judge JSON output.",
			Criteria:   map[string]float64{"overall": 0},
			Raw:        map[string]any{"text": rawText},
			ParseError: true,
		}
	}

	score := domain.ClampScore01(scoreFrom(obj))

	passed := score >= passThreshold
	if p, ok := obj["pass"].(bool); ok {
		passed = p
	}

	criteria := map[string]float64{}
	if rawCriteria, ok := obj["criteria"].(map[string]any); ok {
		for key, value := range rawCriteria {
			if v, ok := toFloat(value); ok {
				criteria[key] = domain.ClampScore01(v)
			}
		}
	}
	if len(criteria) == 0 {
		criteria = map[string]float64{"overall": score}
	}

	return domain.JudgeResult{
		Score:     score,
		Passed:    passed,
		Rationale: rationaleFrom(obj),
		Criteria:  criteria,
		Raw:       obj,
	}
}

func scoreFrom(obj map[string]any) float64 {
	if raw, ok := obj["score"]; ok {
		if v, ok := toFloat(raw); ok {
			return v
		}
		return 0
	}
	for _, key := range []string{"grade", "criteria_met", "result"} {
		if raw, ok := obj[key]; ok {
			return binaryVerdict(raw)
		}
	}
	return 0
}

func binaryVerdict(raw any) float64 {
	switch v := raw.(type) {
	case bool:
		return domain.BinaryScore(v)
	case float64:
		return domain.BinaryScore(v >= 0.5)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "met":
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func rationaleFrom(obj map[string]any) string {
	for _, key := range []string{"rationale", "reasoning", "explanation", "reason"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		return domain.BinaryScore(n), true
	default:
		return 0, false
	}
}
