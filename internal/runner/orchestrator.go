// Package runner sequences a full benchmark run: load datasets, generate
// candidate responses, judge them, summarize, and persist artifacts.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-evalrun/internal/config"
	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/generation"
	"github.com/ahrav/go-evalrun/internal/judging"
)

// GenerationPhase produces one terminal ResponseRecord per candidate x
// example unit.
type GenerationPhase interface {
	Run(ctx context.Context, examples []domain.NormalizedExample) []domain.ResponseRecord
}

// JudgingPhase grades generation records, passing failed generations
// through as unjudged failure records.
type JudgingPhase interface {
	Run(ctx context.Context, records []domain.ResponseRecord, examples map[string]*domain.NormalizedExample) []domain.JudgmentRecord
}

// Compile-time checks that the concrete phases satisfy the orchestrator's
// contracts.
var (
	_ GenerationPhase = (*generation.Phase)(nil)
	_ JudgingPhase    = (*judging.Phase)(nil)
)

// Orchestrator owns run sequencing. Phases are strictly ordered: judging
// starts only after every generation unit has reached a terminal outcome.
type Orchestrator struct {
	cfg      *config.Config
	runID    string
	loader   ExampleLoader
	generate GenerationPhase
	judge    JudgingPhase
	writer   ArtifactWriter
	logger   *slog.Logger
}

// NewOrchestrator wires a run.
func NewOrchestrator(cfg *config.Config, runID string, loader ExampleLoader, gen GenerationPhase, judge JudgingPhase, writer ArtifactWriter) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		runID:    runID,
		loader:   loader,
		generate: gen,
		judge:    judge,
		writer:   writer,
		logger:   slog.Default().With("component", "runner", "run_id", runID),
	}
}

// NewRunID returns the configured run id, or derives a timestamped one.
func NewRunID(cfg *config.Config) string {
	if cfg.Run.RunID != "" {
		return cfg.Run.RunID
	}
	return "run-" + time.Now().UTC().Format("20060102-150405")
}

// Execute runs the full benchmark and returns the computed summary.
// Artifacts are written even when some units failed; only infrastructure
// failures (dataset load, artifact I/O) abort the run.
func (o *Orchestrator) Execute(ctx context.Context) (*domain.RunSummary, error) {
	start := time.Now()

	examples, err := o.loadExamples(ctx)
	if err != nil {
		return nil, err
	}
	o.logger.Info("run starting",
		"examples", len(examples),
		"candidates", len(o.cfg.Candidates),
		"judges", len(o.cfg.Judges))

	responses := o.generate.Run(ctx, examples)
	generated := 0
	for i := range responses {
		if responses[i].Succeeded() {
			generated++
		}
	}
	o.logger.Info("generation phase complete",
		"units", len(responses),
		"succeeded", generated,
		"failed", len(responses)-generated)

	byID := make(map[string]*domain.NormalizedExample, len(examples))
	for i := range examples {
		byID[examples[i].ID] = &examples[i]
	}
	judgments := o.judge.Run(ctx, responses, byID)
	o.logger.Info("judging phase complete", "judgments", len(judgments))

	summary := domain.ComputeSummary(o.runID, responses, judgments)

	if err := o.writer.WriteResponses(responses); err != nil {
		return nil, fmt.Errorf("writing responses: %w", err)
	}
	if err := o.writer.WriteJudgments(judgments); err != nil {
		return nil, fmt.Errorf("writing judgments: %w", err)
	}
	if err := o.writer.WriteSummary(summary); err != nil {
		return nil, fmt.Errorf("writing summary: %w", err)
	}

	o.logger.Info("run complete",
		"judged", summary.Judged,
		"mean_score", summary.MeanScore,
		"pass_rate", summary.PassRate,
		"elapsed", time.Since(start))
	return &summary, nil
}

// loadExamples reads every enabled dataset, applying the run-level example
// limit on top of any per-dataset limit.
func (o *Orchestrator) loadExamples(ctx context.Context) ([]domain.NormalizedExample, error) {
	var examples []domain.NormalizedExample
	for _, dataset := range o.cfg.Datasets {
		if !dataset.IsEnabled() {
			continue
		}
		if o.cfg.Run.Limit > 0 && (dataset.Limit == 0 || dataset.Limit > o.cfg.Run.Limit) {
			dataset.Limit = o.cfg.Run.Limit
		}
		rows, err := o.loader.Load(ctx, dataset)
		if err != nil {
			return nil, fmt.Errorf("loading dataset %s: %w", dataset.Name, err)
		}
		o.logger.Info("dataset loaded", "dataset", dataset.Name, "examples", len(rows))
		examples = append(examples, rows...)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("no examples loaded from %d configured datasets", len(o.cfg.Datasets))
	}
	return examples, nil
}
