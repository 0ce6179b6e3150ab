package judging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalrun/internal/config"
	"github.com/ahrav/go-evalrun/internal/domain"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// fakeJudgeCaller returns a fixed verdict per judge model and records which
// models were invoked.
type fakeJudgeCaller struct {
	mu       sync.Mutex
	invoked  []string // judge model per call, in call order
	verdicts map[string]string
	err      error
}

func (f *fakeJudgeCaller) Invoke(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	f.invoked = append(f.invoked, req.Model)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	verdict, ok := f.verdicts[req.Model]
	if !ok {
		verdict = `{"score": 1.0, "rationale": "fine"}`
	}
	return &transport.Response{Provider: req.Provider, Model: req.Model, Content: verdict}, nil
}

func (f *fakeJudgeCaller) CacheKeyFor(req *transport.Request) string { return "key" }

func (f *fakeJudgeCaller) models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invoked...)
}

func judgingConfig(judges ...config.ModelConfig) *config.Config {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{"openai": {}, "anthropic": {}},
		Judges:    judges,
	}
	cfg.Run.JudgeWorkers = 1
	cfg.Run.CriterionWorkers = 1
	cfg.Run.PassThreshold = 0.7
	return cfg
}

func successRecord(example *domain.NormalizedExample, text string) domain.ResponseRecord {
	return domain.ResponseRecord{
		ExampleID: example.ID,
		Dataset:   example.Dataset,
		TaskType:  example.TaskType,
		Candidate: "cand-1",
		Provider:  "openai",
		Model:     "gpt-4o",
		Text:      text,
	}
}

func exampleMap(examples ...*domain.NormalizedExample) map[string]*domain.NormalizedExample {
	m := make(map[string]*domain.NormalizedExample, len(examples))
	for _, ex := range examples {
		m[ex.ID] = ex
	}
	return m
}

func TestRunMCQNoModelCalls(t *testing.T) {
	ex := &domain.NormalizedExample{
		ID:               "mcq-1",
		Dataset:          "lar_echr",
		TaskType:         domain.TaskMCQ,
		CorrectChoiceIDs: []string{"B"},
	}
	caller := &fakeJudgeCaller{}
	phase := NewPhase(caller, judgingConfig(
		config.ModelConfig{Name: "judge", Provider: "openai", Model: "gpt-4o"},
	), "run-1")

	judgments := phase.Run(t.Context(),
		[]domain.ResponseRecord{successRecord(ex, `{"answer": "B"}`)},
		exampleMap(ex))

	require.Len(t, judgments, 1)
	j := judgments[0]
	assert.Empty(t, caller.models(), "MCQ grading must not call a judge model")
	assert.Equal(t, MCQJudgeName, j.JudgeName)
	assert.Equal(t, MCQJudgeProvider, j.JudgeProvider)
	assert.Equal(t, 1.0, j.Score)
	assert.True(t, j.Passed)
	assert.False(t, j.Unjudged)
}

func TestRunMCQMissingCorrectChoicesUnjudged(t *testing.T) {
	ex := &domain.NormalizedExample{ID: "mcq-bad", Dataset: "d", TaskType: domain.TaskMCQ}
	phase := NewPhase(&fakeJudgeCaller{}, judgingConfig(
		config.ModelConfig{Name: "judge", Provider: "openai", Model: "gpt-4o"},
	), "run-1")

	judgments := phase.Run(t.Context(),
		[]domain.ResponseRecord{successRecord(ex, `{"answer": "A"}`)},
		exampleMap(ex))

	require.Len(t, judgments, 1)
	assert.True(t, judgments[0].Unjudged)
	assert.Contains(t, judgments[0].Error, "correct_choice_ids")
}

func TestRunReferenceUsesPrimaryJudge(t *testing.T) {
	ex := &domain.NormalizedExample{
		ID:               "ref-1",
		Dataset:          "lexam",
		TaskType:         domain.TaskReferenceQA,
		Instructions:     "Explain.",
		ReferenceAnswers: []string{"the reference"},
	}
	caller := &fakeJudgeCaller{verdicts: map[string]string{
		"judge-a-model": `{"score": 0.9, "rationale": "close match"}`,
	}}
	phase := NewPhase(caller, judgingConfig(
		config.ModelConfig{Name: "judge-a", Provider: "openai", Model: "judge-a-model"},
		config.ModelConfig{Name: "judge-b", Provider: "anthropic", Model: "judge-b-model"},
	), "run-1")

	judgments := phase.Run(t.Context(),
		[]domain.ResponseRecord{successRecord(ex, "my answer")},
		exampleMap(ex))

	require.Len(t, judgments, 1)
	j := judgments[0]
	assert.Equal(t, []string{"judge-a-model"}, caller.models())
	assert.Equal(t, "judge-a", j.JudgeName)
	assert.InDelta(t, 0.9, j.Score, 1e-9)
	assert.True(t, j.Passed)
	assert.Equal(t, "close match", j.Rationale)
}

func TestRunRubricRoundRobinAssignment(t *testing.T) {
	ex := &domain.NormalizedExample{
		ID:           "rub-1",
		Dataset:      "prbench",
		TaskType:     domain.TaskRubricQA,
		Instructions: "Draft.",
		Rubric: []domain.RubricCriterion{
			{ID: "c1", Title: "first"},
			{ID: "c2", Title: "second"},
			{ID: "c3", Title: "third"},
			{ID: "c4", Title: "fourth"},
			{ID: "c5", Title: "fifth"},
		},
	}
	caller := &fakeJudgeCaller{}
	phase := NewPhase(caller, judgingConfig(
		config.ModelConfig{Name: "judge-a", Provider: "openai", Model: "model-a"},
		config.ModelConfig{Name: "judge-b", Provider: "anthropic", Model: "model-b"},
	), "run-1")

	judgments := phase.Run(t.Context(),
		[]domain.ResponseRecord{successRecord(ex, "output")},
		exampleMap(ex))

	require.Len(t, judgments, 1)
	j := judgments[0]
	require.Len(t, j.Criteria, 5)

	// Criterion ordinal i goes to judge i % poolSize, regardless of worker
	// scheduling.
	wantJudges := []string{"judge-a", "judge-b", "judge-a", "judge-b", "judge-a"}
	for i, cj := range j.Criteria {
		assert.Equal(t, i, cj.Ordinal)
		assert.Equal(t, ex.Rubric[i].ID, cj.CriterionID)
		assert.Equal(t, wantJudges[i], cj.JudgeName)
	}

	assert.Equal(t, "rubric_pool", j.JudgeName)
	assert.Equal(t, "judge-a,judge-b", j.JudgeModel)
	assert.Equal(t, 1.0, j.Score)
	assert.True(t, j.Passed)
}

func TestRunRubricWeightedAggregation(t *testing.T) {
	ex := &domain.NormalizedExample{
		ID:           "rub-2",
		Dataset:      "apex",
		TaskType:     domain.TaskRubricQA,
		Instructions: "Draft.",
		Rubric: []domain.RubricCriterion{
			{ID: "c1", Weight: 3},
			{ID: "c2", Weight: 1},
		},
	}
	// Judge returns per-criterion scores via the criteria map; both calls hit
	// the same single judge whose verdict maps c1 -> 1 and c2 -> 0.
	caller := &fakeJudgeCaller{verdicts: map[string]string{
		"model-a": `{"score": 0.5, "criteria": {"c1": 1.0, "c2": 0.0}}`,
	}}
	phase := NewPhase(caller, judgingConfig(
		config.ModelConfig{Name: "judge-a", Provider: "openai", Model: "model-a"},
	), "run-1")

	judgments := phase.Run(t.Context(),
		[]domain.ResponseRecord{successRecord(ex, "output")},
		exampleMap(ex))

	require.Len(t, judgments, 1)
	j := judgments[0]
	// (1.0*3 + 0.0*1) / 4 = 0.75
	assert.InDelta(t, 0.75, j.Score, 1e-9)
	assert.True(t, j.Passed)
}

func TestRunRubricParseErrorFailsClosed(t *testing.T) {
	ex := &domain.NormalizedExample{
		ID:       "rub-3",
		Dataset:  "d",
		TaskType: domain.TaskRubricQA,
		Rubric:   []domain.RubricCriterion{{ID: "c1"}, {ID: "c2"}},
	}
	caller := &fakeJudgeCaller{verdicts: map[string]string{
		"model-a": "I cannot answer in JSON.",
	}}
	phase := NewPhase(caller, judgingConfig(
		config.ModelConfig{Name: "judge-a", Provider: "openai", Model: "model-a"},
	), "run-1")

	judgments := phase.Run(t.Context(),
		[]domain.ResponseRecord{successRecord(ex, "output")},
		exampleMap(ex))

	require.Len(t, judgments, 1)
	j := judgments[0]
	assert.True(t, j.ParseError)
	assert.Zero(t, j.Score)
	assert.False(t, j.Passed)
	assert.False(t, j.Unjudged)
}

func TestRunFailedGenerationPassesThroughUnjudged(t *testing.T) {
	ex := &domain.NormalizedExample{
		ID:               "ref-1",
		Dataset:          "lexam",
		TaskType:         domain.TaskReferenceQA,
		ReferenceAnswers: []string{"ref"},
	}
	failed := successRecord(ex, "")
	failed.Error = "generation blew up"
	failed.ErrorType = string(llmerrors.ErrorTypeProvider)

	caller := &fakeJudgeCaller{}
	phase := NewPhase(caller, judgingConfig(
		config.ModelConfig{Name: "judge", Provider: "openai", Model: "gpt-4o"},
	), "run-1")

	judgments := phase.Run(t.Context(),
		[]domain.ResponseRecord{failed},
		exampleMap(ex))

	require.Len(t, judgments, 1)
	j := judgments[0]
	assert.True(t, j.Unjudged)
	assert.Contains(t, j.Error, "generation blew up")
	assert.Empty(t, caller.models())
}

func TestRunJudgeCallFailureUnjudged(t *testing.T) {
	ex := &domain.NormalizedExample{
		ID:               "ref-1",
		Dataset:          "lexam",
		TaskType:         domain.TaskReferenceQA,
		ReferenceAnswers: []string{"ref"},
	}
	caller := &fakeJudgeCaller{err: &llmerrors.ProviderError{
		Provider: "openai",
		Type:     llmerrors.ErrorTypeProvider,
		Message:  "503",
	}}
	phase := NewPhase(caller, judgingConfig(
		config.ModelConfig{Name: "judge", Provider: "openai", Model: "gpt-4o"},
	), "run-1")

	judgments := phase.Run(t.Context(),
		[]domain.ResponseRecord{successRecord(ex, "answer")},
		exampleMap(ex))

	require.Len(t, judgments, 1)
	assert.True(t, judgments[0].Unjudged)
	assert.NotEmpty(t, judgments[0].Error)
}

func TestRunMissingExampleUnjudged(t *testing.T) {
	phase := NewPhase(&fakeJudgeCaller{}, judgingConfig(
		config.ModelConfig{Name: "judge", Provider: "openai", Model: "gpt-4o"},
	), "run-1")

	record := domain.ResponseRecord{
		ExampleID: "ghost",
		Dataset:   "d",
		TaskType:  domain.TaskReferenceQA,
		Candidate: "cand-1",
		Text:      "answer",
	}
	judgments := phase.Run(t.Context(), []domain.ResponseRecord{record}, nil)

	require.Len(t, judgments, 1)
	assert.True(t, judgments[0].Unjudged)
	assert.Contains(t, judgments[0].Error, "example not found")
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	ex := &domain.NormalizedExample{
		ID:               "ref-1",
		Dataset:          "lexam",
		TaskType:         domain.TaskReferenceQA,
		ReferenceAnswers: []string{"ref"},
	}
	phase := NewPhase(&fakeJudgeCaller{}, judgingConfig(
		config.ModelConfig{Name: "judge", Provider: "openai", Model: "gpt-4o"},
	), "run-1")

	records := []domain.ResponseRecord{
		successRecord(ex, "a"),
		successRecord(ex, "b"),
	}
	judgments := phase.Run(ctx, records, exampleMap(ex))

	// Every record still gets a terminal judgment.
	require.Len(t, judgments, 2)
}
