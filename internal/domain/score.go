package domain

import (
	"errors"
	"math"
)

// Scoring errors.
var (
	// ErrNoCriteria indicates a weighted aggregation over an empty rubric.
	ErrNoCriteria = errors.New("no rubric criteria to aggregate")

	// ErrScoreCountMismatch indicates the per-criterion score slice does not
	// line up with the rubric.
	ErrScoreCountMismatch = errors.New("criterion score count does not match rubric size")

	// ErrZeroTotalWeight indicates the rubric weights sum to zero, which
	// would make the weighted mean undefined.
	ErrZeroTotalWeight = errors.New("rubric weights sum to zero")
)

// ScoreStep is the granularity of continuous judge scores. Raw judge-reported
// scores are quantized to this step with round-half-up before aggregation.
const ScoreStep = 0.1

// ClampScore01 bounds a score to the [0, 1] range.
func ClampScore01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// QuantizeScore rounds a raw continuous judge score to the nearest ScoreStep
// using round-half-up, then clamps to [0, 1]. 0.73 quantizes to 0.7 and 0.75
// to 0.8; exact .x5 boundaries always round upward.
func QuantizeScore(v float64) float64 {
	// Floor(x*10 + 0.5) is round-half-up at 0.1 granularity. The epsilon-free
	// form is intentional: 0.x5 boundaries representable in binary (0.25,
	// 0.75) round up exactly, and the behavior at the rest is pinned by test.
	return ClampScore01(math.Floor(v/ScoreStep+0.5) * ScoreStep)
}

// BinaryScore maps a binary criterion verdict to its score contribution.
func BinaryScore(met bool) float64 {
	if met {
		return 1.0
	}
	return 0.0
}

// AssignJudge returns the judge pool index responsible for the criterion at
// the given zero-based ordinal. Assignment is deterministic round-robin:
// ordinal i is graded by judge i mod poolSize, so the mapping is stable
// across runs and changes only when rubric or pool ordering changes.
func AssignJudge(ordinal, poolSize int) int {
	if poolSize <= 0 {
		return 0
	}
	return ordinal % poolSize
}

// WeightedScore aggregates per-criterion scores into a single rubric score:
// sum(score_i * weight_i) / sum(weight_i), with absent weights defaulting to
// DefaultCriterionWeight. Scores must be given in rubric order.
func WeightedScore(rubric []RubricCriterion, scores []float64) (float64, error) {
	if len(rubric) == 0 {
		return 0, ErrNoCriteria
	}
	if len(scores) != len(rubric) {
		return 0, ErrScoreCountMismatch
	}

	var weightedSum, totalWeight float64
	for i, criterion := range rubric {
		w := criterion.EffectiveWeight()
		weightedSum += ClampScore01(scores[i]) * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0, ErrZeroTotalWeight
	}
	return ClampScore01(weightedSum / totalWeight), nil
}

// JudgeResult is the parsed outcome of a judge call or programmatic grading.
// A parse failure fails closed: Score 0, Passed false, with the raw text
// retained in Raw for post-hoc inspection.
type JudgeResult struct {
	Score      float64            `json:"score"`
	Passed     bool               `json:"pass"`
	Rationale  string             `json:"rationale"`
	Criteria   map[string]float64 `json:"criteria,omitempty"`
	Raw        map[string]any     `json:"raw,omitempty"`
	ParseError bool               `json:"parse_error,omitempty"`
}

// FailClosed returns the result unchanged when it parsed cleanly, otherwise
// a copy with Score forced to 0 and Passed to false. Judge output that could
// not be parsed must never count in a candidate's favor.
func (r JudgeResult) FailClosed() JudgeResult {
	if !r.ParseError {
		return r
	}
	r.Score = 0
	r.Passed = false
	return r
}
