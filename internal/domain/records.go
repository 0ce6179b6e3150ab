package domain

import "sort"

// TokenUsage captures normalized token counts from a provider response.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ResponseRecord is the terminal outcome of one generation unit
// (candidate x example). Written once by the generation phase, never
// mutated. A record with a non-empty Error is a recorded unit failure;
// it does not abort sibling units.
type ResponseRecord struct {
	ExampleID string   `json:"example_id"`
	Dataset   string   `json:"dataset"`
	TaskType  TaskType `json:"task_type"`

	Candidate string `json:"candidate_name"`
	Provider  string `json:"candidate_provider"`
	Model     string `json:"candidate_model"`

	RequestID string `json:"request_id"`
	CacheKey  string `json:"cache_key,omitempty"`
	CacheHit  bool   `json:"cache_hit"`
	Attempts  int    `json:"attempts"`

	Text      string     `json:"response_text"`
	Usage     TokenUsage `json:"usage"`
	LatencyMs int64      `json:"latency_ms"`

	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// Succeeded reports whether the unit produced a usable response.
func (r *ResponseRecord) Succeeded() bool { return r.Error == "" }

// CriterionJudgment is the outcome of one isolated per-criterion judge call.
// Ordinal is the zero-based rubric position that drove round-robin judge
// assignment.
type CriterionJudgment struct {
	CriterionID string `json:"criterion_id"`
	Ordinal     int    `json:"ordinal"`

	JudgeName     string `json:"judge_name"`
	JudgeProvider string `json:"judge_provider"`
	JudgeModel    string `json:"judge_model"`

	RequestID string `json:"request_id"`
	CacheHit  bool   `json:"cache_hit"`

	Score      float64 `json:"score"`
	RawScore   float64 `json:"raw_score"`
	Rationale  string  `json:"rationale,omitempty"`
	ParseError bool    `json:"parse_error,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// JudgmentRecord is the terminal outcome of judging one generation unit.
// For rubric rows it aggregates the per-criterion calls; for reference rows
// it reflects a single holistic call; for MCQ rows it is computed without
// any model call. Written once, never mutated.
type JudgmentRecord struct {
	ExampleID string   `json:"example_id"`
	Dataset   string   `json:"dataset"`
	TaskType  TaskType `json:"task_type"`
	Candidate string   `json:"candidate_name"`

	JudgeName     string `json:"judge_name"`
	JudgeProvider string `json:"judge_provider"`
	JudgeModel    string `json:"judge_model"`

	RequestID string `json:"request_id,omitempty"`
	CacheHit  bool   `json:"cache_hit"`

	Score     float64 `json:"score"`
	Passed    bool    `json:"pass"`
	Rationale string  `json:"rationale,omitempty"`

	// Criteria carries the per-call detail for rubric rows, in rubric order.
	Criteria []CriterionJudgment `json:"criteria,omitempty"`

	ParseError bool   `json:"parse_error,omitempty"`
	Error      string `json:"error,omitempty"`

	// Unjudged marks a pass-through record for a unit whose generation
	// failed. Such units are never silently dropped from the artifact set.
	Unjudged bool `json:"unjudged,omitempty"`
}

// SummaryGroup aggregates outcomes for one candidate or one dataset.
type SummaryGroup struct {
	Units     int     `json:"units"`
	Judged    int     `json:"judged"`
	Failed    int     `json:"failed"`
	MeanScore float64 `json:"mean_score"`
	PassRate  float64 `json:"pass_rate"`
}

// RunSummary is derived from the record set and recomputable at any time.
// Aggregation is always recomputed fresh; it is never cached between runs.
type RunSummary struct {
	RunID string `json:"run_id"`

	Units              int `json:"units"`
	Generated          int `json:"generated"`
	GenerationFailures int `json:"generation_failures"`
	Judged             int `json:"judged"`

	MeanScore float64 `json:"mean_score"`
	PassRate  float64 `json:"pass_rate"`

	PerCandidate map[string]SummaryGroup `json:"per_candidate"`
	PerDataset   map[string]SummaryGroup `json:"per_dataset"`
}

// ComputeSummary derives the run summary from the full record set.
// Unjudged pass-through records count as failed units, not as judged ones,
// so a run with generation failures reports them rather than hiding them
// inside a deflated mean.
func ComputeSummary(runID string, responses []ResponseRecord, judgments []JudgmentRecord) RunSummary {
	s := RunSummary{
		RunID:        runID,
		Units:        len(responses),
		PerCandidate: make(map[string]SummaryGroup),
		PerDataset:   make(map[string]SummaryGroup),
	}

	for i := range responses {
		if responses[i].Succeeded() {
			s.Generated++
		} else {
			s.GenerationFailures++
		}
	}

	type accum struct {
		units, judged, failed, passed int
		scoreSum                      float64
	}
	byCandidate := make(map[string]*accum)
	byDataset := make(map[string]*accum)
	get := func(m map[string]*accum, key string) *accum {
		a, ok := m[key]
		if !ok {
			a = &accum{}
			m[key] = a
		}
		return a
	}

	var total accum
	for i := range judgments {
		j := &judgments[i]
		cand := get(byCandidate, j.Candidate)
		ds := get(byDataset, j.Dataset)
		total.units++
		cand.units++
		ds.units++

		if j.Unjudged {
			total.failed++
			cand.failed++
			ds.failed++
			continue
		}
		for _, a := range []*accum{&total, cand, ds} {
			a.judged++
			a.scoreSum += j.Score
			if j.Passed {
				a.passed++
			}
		}
	}

	finish := func(a *accum) SummaryGroup {
		g := SummaryGroup{Units: a.units, Judged: a.judged, Failed: a.failed}
		if a.judged > 0 {
			g.MeanScore = a.scoreSum / float64(a.judged)
			g.PassRate = float64(a.passed) / float64(a.judged)
		}
		return g
	}

	for key, a := range byCandidate {
		s.PerCandidate[key] = finish(a)
	}
	for key, a := range byDataset {
		s.PerDataset[key] = finish(a)
	}
	totals := finish(&total)
	s.Judged = totals.Judged
	s.MeanScore = totals.MeanScore
	s.PassRate = totals.PassRate
	return s
}

// SortResponseRecords orders records for artifact writing: example id, then
// candidate. Repeated runs over identical inputs produce byte-comparable
// output modulo timestamps.
func SortResponseRecords(records []ResponseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ExampleID != records[j].ExampleID {
			return records[i].ExampleID < records[j].ExampleID
		}
		return records[i].Candidate < records[j].Candidate
	})
}

// SortJudgmentRecords orders judgment records the same way as responses.
func SortJudgmentRecords(records []JudgmentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ExampleID != records[j].ExampleID {
			return records[i].ExampleID < records[j].ExampleID
		}
		return records[i].Candidate < records[j].Candidate
	})
}
