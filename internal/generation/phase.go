// Package generation runs the candidate-response phase: every enabled
// candidate model answers every example, through a fixed-size worker pool
// with full per-unit failure isolation.
package generation

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-evalrun/internal/config"
	"github.com/ahrav/go-evalrun/internal/domain"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
	"github.com/ahrav/go-evalrun/internal/policy"
)

// ModelCaller issues one model call through the full resilience pipeline.
// Implemented by llm.Client; faked in tests.
type ModelCaller interface {
	Invoke(ctx context.Context, req *transport.Request) (*transport.Response, error)
	CacheKeyFor(req *transport.Request) string
}

// Phase executes generation for one run.
type Phase struct {
	caller       ModelCaller
	providers    map[string]config.ProviderConfig
	candidates   []config.ModelConfig
	systemPrompt string
	workers      int
	runID        string
	logger       *slog.Logger

	// fenced records candidates whose provider configuration can never
	// succeed (auth or permission failures). Remaining units for a fenced
	// candidate are recorded as failures without burning provider calls;
	// other candidates are unaffected.
	mu     sync.Mutex
	fenced map[string]string
}

// NewPhase creates the generation phase.
func NewPhase(caller ModelCaller, cfg *config.Config, runID string) *Phase {
	return &Phase{
		caller:       caller,
		providers:    cfg.Providers,
		candidates:   cfg.Candidates,
		systemPrompt: cfg.Run.DefaultSystemPrompt,
		workers:      cfg.Run.GenerationWorkers,
		runID:        runID,
		logger:       slog.Default().With("component", "generation"),
		fenced:       make(map[string]string),
	}
}

type unit struct {
	ordinal   int
	candidate config.ModelConfig
	example   *domain.NormalizedExample
}

// Run executes every candidate x example unit and returns one terminal
// ResponseRecord per unit, sorted by example id then candidate. A unit
// failure is recorded, never propagated: the phase completes only when
// every unit has reached a terminal outcome. Cancellation stops new
// dispatch; in-flight units finish and their records are kept.
func (p *Phase) Run(ctx context.Context, examples []domain.NormalizedExample) []domain.ResponseRecord {
	units := make([]unit, 0, len(p.candidates)*len(examples))
	for _, candidate := range p.candidates {
		for i := range examples {
			units = append(units, unit{
				ordinal:   len(units),
				candidate: candidate,
				example:   &examples[i],
			})
		}
	}

	records := make([]domain.ResponseRecord, len(units))
	feed := make(chan unit)

	var g errgroup.Group
	for range p.workers {
		g.Go(func() error {
			for u := range feed {
				records[u.ordinal] = p.runUnit(ctx, u)
			}
			return nil
		})
	}

dispatch:
	for _, u := range units {
		select {
		case feed <- u:
		case <-ctx.Done():
			// Stop dispatching; units never started are recorded as
			// cancelled so the record set stays complete.
			records[u.ordinal] = p.cancelledRecord(u)
			for _, rest := range units[u.ordinal+1:] {
				records[rest.ordinal] = p.cancelledRecord(rest)
			}
			break dispatch
		}
	}
	close(feed)
	g.Wait() //nolint:errcheck // workers never return errors

	domain.SortResponseRecords(records)
	return records
}

func (p *Phase) runUnit(ctx context.Context, u unit) domain.ResponseRecord {
	record := domain.ResponseRecord{
		ExampleID: u.example.ID,
		Dataset:   u.example.Dataset,
		TaskType:  u.example.TaskType,
		Candidate: u.candidate.Name,
		Provider:  u.candidate.Provider,
		Model:     u.candidate.Model,
		RequestID: domain.RequestID(p.runID, domain.StageGeneration, u.candidate.Name, u.example.ID),
	}

	if reason := p.fenceReason(u.candidate.Name); reason != "" {
		record.Error = "candidate fenced after fatal provider error: " + reason
		record.ErrorType = string(llmerrors.ErrorTypeValidation)
		return record
	}

	req := &transport.Request{
		Operation:       transport.OpGeneration,
		Provider:        u.candidate.Provider,
		Model:           u.candidate.Model,
		Messages:        policy.GenerationMessages(u.example, p.systemPrompt),
		Temperature:     u.candidate.Temperature,
		TopP:            u.candidate.TopP,
		MaxTokens:       u.candidate.MaxTokens,
		Seed:            u.candidate.Seed,
		ReasoningEffort: u.candidate.ReasoningEffort,
		RequestID:       record.RequestID,
		Timeout:         p.providers[u.candidate.Provider].Timeout(),
	}
	record.CacheKey = p.caller.CacheKeyFor(req)

	resp, err := p.caller.Invoke(ctx, req)
	if err != nil {
		record.Error = err.Error()
		record.ErrorType = string(llmerrors.TypeOf(err))
		if isFatalForCandidate(err) {
			p.fence(u.candidate.Name, err.Error())
		}
		p.logger.Warn("generation unit failed",
			"example_id", u.example.ID,
			"candidate", u.candidate.Name,
			"error", err)
		return record
	}

	record.Text = resp.Content
	record.Usage = domain.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	record.LatencyMs = resp.LatencyMs
	record.CacheHit = resp.FromCache
	record.Attempts = resp.Attempts
	return record
}

func (p *Phase) cancelledRecord(u unit) domain.ResponseRecord {
	return domain.ResponseRecord{
		ExampleID: u.example.ID,
		Dataset:   u.example.Dataset,
		TaskType:  u.example.TaskType,
		Candidate: u.candidate.Name,
		Provider:  u.candidate.Provider,
		Model:     u.candidate.Model,
		RequestID: domain.RequestID(p.runID, domain.StageGeneration, u.candidate.Name, u.example.ID),
		Error:     "run cancelled before dispatch",
		ErrorType: string(llmerrors.ErrorTypeTimeout),
	}
}

func (p *Phase) fence(candidate, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fenced[candidate]; !ok {
		p.fenced[candidate] = reason
		p.logger.Error("fencing candidate after fatal provider error",
			"candidate", candidate, "reason", reason)
	}
}

func (p *Phase) fenceReason(candidate string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fenced[candidate]
}

// isFatalForCandidate reports whether a unit failure implies every future
// unit for the same candidate will fail identically.
func isFatalForCandidate(err error) bool {
	switch llmerrors.TypeOf(err) {
	case llmerrors.ErrorTypeAuth, llmerrors.ErrorTypePermission:
		return true
	default:
		return false
	}
}
