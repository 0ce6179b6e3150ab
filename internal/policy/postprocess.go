package policy

import (
	"github.com/ahrav/go-evalrun/internal/domain"
)

// PostprocessJudgeResult applies policy-specific adjustments to a parsed
// holistic judge result. Currently only the lexam open-question policy does
// anything: its grading scale is defined in 0.1 increments, so the raw judge
// score is quantized (round-half-up) and pass is recomputed against the
// threshold.
func PostprocessJudgeResult(example *domain.NormalizedExample, result domain.JudgeResult, passThreshold float64) domain.JudgeResult {
	p := Resolve(example.PolicyID)
	if p.ID != LexamOQV1 || example.TaskType != domain.TaskReferenceQA {
		return result
	}

	quantized := domain.QuantizeScore(result.Score)
	result.Score = quantized
	result.Passed = quantized >= passThreshold

	// Keep criteria consistent with the adjusted overall score.
	if len(result.Criteria) == 0 || onlyOverall(result.Criteria) {
		result.Criteria = map[string]float64{"overall": quantized}
	}
	return result
}

func onlyOverall(criteria map[string]float64) bool {
	if len(criteria) != 1 {
		return false
	}
	_, ok := criteria["overall"]
	return ok
}
