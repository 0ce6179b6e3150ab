// Package judging runs the grading phase over completed generation records.
// Each task type has its own protocol: rubric examples get one isolated
// judge call per criterion with deterministic round-robin judge assignment,
// reference examples get a single holistic call, and MCQ examples are graded
// programmatically with no model call at all.
package judging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-evalrun/internal/config"
	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/judge"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
	"github.com/ahrav/go-evalrun/internal/policy"
)

// Synthetic judge identity for programmatic MCQ grading.
const (
	MCQJudgeName     = "deterministic_mcq"
	MCQJudgeProvider = "programmatic"
	MCQJudgeModel    = "exact_match_v1"
)

// ModelCaller issues one judge call through the full resilience pipeline.
type ModelCaller interface {
	Invoke(ctx context.Context, req *transport.Request) (*transport.Response, error)
	CacheKeyFor(req *transport.Request) string
}

// Phase executes judging for one run.
type Phase struct {
	caller           ModelCaller
	providers        map[string]config.ProviderConfig
	judges           []config.ModelConfig
	workers          int
	criterionWorkers int
	passThreshold    float64
	runID            string
	logger           *slog.Logger
}

// NewPhase creates the judging phase over the configured judge pool.
func NewPhase(caller ModelCaller, cfg *config.Config, runID string) *Phase {
	return &Phase{
		caller:           caller,
		providers:        cfg.Providers,
		judges:           cfg.Judges,
		workers:          cfg.Run.JudgeWorkers,
		criterionWorkers: cfg.Run.CriterionWorkers,
		passThreshold:    cfg.Run.PassThreshold,
		runID:            runID,
		logger:           slog.Default().With("component", "judging"),
	}
}

// Run grades every generation record and returns one JudgmentRecord per
// unit, sorted by example id then candidate. Records whose generation
// failed pass through as Unjudged failure records so the judgment set
// always covers the full unit list. examples must contain every example id
// referenced by the records.
func (p *Phase) Run(ctx context.Context, records []domain.ResponseRecord, examples map[string]*domain.NormalizedExample) []domain.JudgmentRecord {
	judgments := make([]domain.JudgmentRecord, len(records))
	feed := make(chan int)

	var g errgroup.Group
	for range p.workers {
		g.Go(func() error {
			for i := range feed {
				judgments[i] = p.judgeOne(ctx, &records[i], examples[records[i].ExampleID])
			}
			return nil
		})
	}

dispatch:
	for i := range records {
		select {
		case feed <- i:
		case <-ctx.Done():
			for j := i; j < len(records); j++ {
				judgments[j] = unjudgedRecord(&records[j], "run cancelled before judging")
			}
			break dispatch
		}
	}
	close(feed)
	g.Wait() //nolint:errcheck // workers never return errors

	domain.SortJudgmentRecords(judgments)
	return judgments
}

func (p *Phase) judgeOne(ctx context.Context, record *domain.ResponseRecord, example *domain.NormalizedExample) domain.JudgmentRecord {
	if !record.Succeeded() {
		return unjudgedRecord(record, "generation failed: "+record.Error)
	}
	if example == nil {
		return unjudgedRecord(record, "example not found for response record")
	}

	switch example.TaskType {
	case domain.TaskMCQ:
		return p.judgeMCQ(record, example)
	case domain.TaskRubricQA:
		return p.judgeRubric(ctx, record, example)
	default:
		return p.judgeReference(ctx, record, example)
	}
}

func (p *Phase) judgeMCQ(record *domain.ResponseRecord, example *domain.NormalizedExample) domain.JudgmentRecord {
	out := baseJudgment(record)
	out.JudgeName = MCQJudgeName
	out.JudgeProvider = MCQJudgeProvider
	out.JudgeModel = MCQJudgeModel
	out.RequestID = domain.RequestID(p.runID, domain.StageJudging, MCQJudgeName, unitKey(record, ""))

	result, err := judge.GradeMCQ(example, record.Text, p.passThreshold)
	if err != nil {
		out.Unjudged = true
		out.Error = err.Error()
		return out
	}
	out.Score = result.Score
	out.Passed = result.Passed
	out.Rationale = result.Rationale
	out.ParseError = result.ParseError
	return out
}

func (p *Phase) judgeReference(ctx context.Context, record *domain.ResponseRecord, example *domain.NormalizedExample) domain.JudgmentRecord {
	// Reference grading always uses the primary judge; the pool rotation
	// only applies to per-criterion rubric calls.
	judgeModel := p.judges[0]

	out := baseJudgment(record)
	out.JudgeName = judgeModel.Name
	out.JudgeProvider = judgeModel.Provider
	out.JudgeModel = judgeModel.Model
	out.RequestID = domain.RequestID(p.runID, domain.StageJudging, judgeModel.Name, unitKey(record, ""))

	messages := policy.JudgeMessages(example, record.Text, p.passThreshold)
	resp, err := p.invokeJudge(ctx, judgeModel, messages, out.RequestID)
	if err != nil {
		p.logger.Warn("holistic judge call failed",
			"example_id", example.ID,
			"candidate", record.Candidate,
			"judge", judgeModel.Name,
			"error", err)
		out.Unjudged = true
		out.Error = err.Error()
		return out
	}

	result := judge.ParseJudgeOutput(resp.Content, p.passThreshold)
	result = policy.PostprocessJudgeResult(example, result, p.passThreshold)
	result = result.FailClosed()

	out.CacheHit = resp.FromCache
	out.Score = result.Score
	out.Passed = result.Passed
	out.Rationale = result.Rationale
	out.ParseError = result.ParseError
	return out
}

func (p *Phase) judgeRubric(ctx context.Context, record *domain.ResponseRecord, example *domain.NormalizedExample) domain.JudgmentRecord {
	criteria := make([]domain.CriterionJudgment, len(example.Rubric))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.criterionWorkers)
	for ordinal := range example.Rubric {
		g.Go(func() error {
			criteria[ordinal] = p.judgeCriterion(gctx, record, example, ordinal)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // criterion failures land in their judgment

	return p.aggregateRubric(record, example, criteria)
}

func (p *Phase) judgeCriterion(ctx context.Context, record *domain.ResponseRecord, example *domain.NormalizedExample, ordinal int) domain.CriterionJudgment {
	criterion := example.Rubric[ordinal]
	judgeModel := p.judges[domain.AssignJudge(ordinal, len(p.judges))]

	cj := domain.CriterionJudgment{
		CriterionID:   criterionID(criterion, ordinal),
		Ordinal:       ordinal,
		JudgeName:     judgeModel.Name,
		JudgeProvider: judgeModel.Provider,
		JudgeModel:    judgeModel.Model,
		RequestID:     domain.RequestID(p.runID, domain.StageJudging, judgeModel.Name, unitKey(record, criterionID(criterion, ordinal))),
	}

	messages := policy.CriterionJudgeMessages(example, record.Text, criterion, ordinal)
	resp, err := p.invokeJudge(ctx, judgeModel, messages, cj.RequestID)
	if err != nil {
		p.logger.Warn("criterion judge call failed",
			"example_id", example.ID,
			"candidate", record.Candidate,
			"criterion_id", cj.CriterionID,
			"judge", judgeModel.Name,
			"error", err)
		cj.Error = err.Error()
		cj.Rationale = "judge call failed: " + err.Error()
		return cj
	}

	result := judge.ParseJudgeOutput(resp.Content, p.passThreshold).FailClosed()
	score, _ := judge.ResolveCriterionScore(result.Criteria, criterion, ordinal, result.Score)

	cj.CacheHit = resp.FromCache
	cj.Score = score
	cj.RawScore = result.Score
	cj.Rationale = result.Rationale
	cj.ParseError = result.ParseError
	return cj
}

func (p *Phase) aggregateRubric(record *domain.ResponseRecord, example *domain.NormalizedExample, criteria []domain.CriterionJudgment) domain.JudgmentRecord {
	out := baseJudgment(record)
	out.Criteria = criteria
	out.JudgeName = "rubric_pool"
	out.JudgeProvider = "round_robin"
	out.JudgeModel = judgePoolLabel(p.judges)

	scores := make([]float64, len(criteria))
	var rationales []string
	for i, cj := range criteria {
		scores[i] = cj.Score
		if cj.Rationale != "" {
			rationales = append(rationales, cj.CriterionID+": "+cj.Rationale)
		}
		out.ParseError = out.ParseError || cj.ParseError
		out.CacheHit = out.CacheHit || cj.CacheHit
		if out.RequestID == "" {
			out.RequestID = cj.RequestID
		}
		if cj.Error != "" && out.Error == "" {
			out.Error = fmt.Sprintf("criterion %s: %s", cj.CriterionID, cj.Error)
		}
	}

	score, err := domain.WeightedScore(example.Rubric, scores)
	if err != nil {
		out.Unjudged = true
		out.Error = "rubric aggregation failed: " + err.Error()
		return out
	}

	out.Score = score
	out.Passed = score >= p.passThreshold
	out.Rationale = strings.Join(rationales, "\n\n")
	if out.ParseError {
		// A verdict built on unparseable judge output fails closed.
		out.Score = 0
		out.Passed = false
	}
	return out
}

func (p *Phase) invokeJudge(ctx context.Context, judgeModel config.ModelConfig, messages []domain.Message, requestID string) (*transport.Response, error) {
	return p.caller.Invoke(ctx, &transport.Request{
		Operation:       transport.OpJudging,
		Provider:        judgeModel.Provider,
		Model:           judgeModel.Model,
		Messages:        messages,
		Temperature:     judgeModel.Temperature,
		TopP:            judgeModel.TopP,
		MaxTokens:       judgeModel.MaxTokens,
		Seed:            judgeModel.Seed,
		ReasoningEffort: judgeModel.ReasoningEffort,
		SchemaTag:       "judge_verdict_v1",
		RequestID:       requestID,
		Timeout:         p.providers[judgeModel.Provider].Timeout(),
	})
}

func baseJudgment(record *domain.ResponseRecord) domain.JudgmentRecord {
	return domain.JudgmentRecord{
		ExampleID: record.ExampleID,
		Dataset:   record.Dataset,
		TaskType:  record.TaskType,
		Candidate: record.Candidate,
	}
}

func unjudgedRecord(record *domain.ResponseRecord, reason string) domain.JudgmentRecord {
	out := baseJudgment(record)
	out.Unjudged = true
	out.Error = reason
	return out
}

func unitKey(record *domain.ResponseRecord, criterionID string) string {
	key := record.ExampleID + ":" + record.Candidate
	if criterionID != "" {
		key += ":" + criterionID
	}
	return key
}

func criterionID(criterion domain.RubricCriterion, ordinal int) string {
	if id := strings.TrimSpace(criterion.ID); id != "" {
		return id
	}
	return fmt.Sprintf("criterion_%d", ordinal+1)
}

func judgePoolLabel(judges []config.ModelConfig) string {
	names := make([]string, len(judges))
	for i, j := range judges {
		names[i] = j.Name
	}
	return strings.Join(names, ",")
}
