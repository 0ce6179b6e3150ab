// Package config loads and validates the run configuration: YAML file first,
// then environment variable overrides. Validation is strict and runs before
// anything else — a malformed config aborts the run before a single
// provider call is made.
package config

import (
	"fmt"
	"time"

	"github.com/ahrav/go-evalrun/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
)

// MaxResponseRPM caps the configurable generation rate limit.
const MaxResponseRPM = 50

const defaultSystemPrompt = "You are a careful legal reasoning assistant. Answer clearly and concisely, " +
	"state uncertainty when needed, and avoid fabrication."

// ProviderConfig holds per-provider connection settings. API keys are never
// stored in the config file, only the name of the environment variable that
// carries them.
type ProviderConfig struct {
	APIKeyEnv      string `yaml:"api_key_env,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_s,omitempty"`
}

// Timeout returns the per-call timeout, defaulting to two minutes.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ModelConfig names one candidate or judge model with its decoding settings.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	Temperature     float64  `yaml:"temperature"`
	TopP            *float64 `yaml:"top_p,omitempty"`
	MaxTokens       int64    `yaml:"max_tokens,omitempty"`
	Seed            *int64   `yaml:"seed,omitempty"`
	ReasoningEffort string   `yaml:"reasoning_effort,omitempty"`
}

// DatasetConfig points at one canonical dataset file.
type DatasetConfig struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Enabled *bool  `yaml:"enabled,omitempty"`
	Limit   int    `yaml:"limit,omitempty"`
}

// IsEnabled reports whether the dataset participates in the run; datasets
// are enabled unless explicitly disabled.
func (d DatasetConfig) IsEnabled() bool { return d.Enabled == nil || *d.Enabled }

// RunConfig carries the run-level knobs.
type RunConfig struct {
	RunID     string `yaml:"run_id,omitempty" env:"EVALRUN_RUN_ID"`
	OutputDir string `yaml:"output_dir,omitempty" env:"EVALRUN_OUTPUT_DIR"`

	// DefaultSystemPrompt seeds generation for policies that use it.
	DefaultSystemPrompt string `yaml:"default_system_prompt,omitempty"`

	// PassThreshold is the score at or above which a judgment passes.
	PassThreshold float64 `yaml:"judge_pass_threshold,omitempty"`

	// Generation pool and rate knobs. Workers bounds concurrent in-flight
	// units; RPM bounds provider call starts per minute. Independent.
	GenerationWorkers int            `yaml:"response_parallel_workers,omitempty" env:"EVALRUN_GENERATION_WORKERS"`
	GenerationRPM     int            `yaml:"response_rate_limit_rpm,omitempty" env:"EVALRUN_GENERATION_RPM"`
	ProviderRPM       map[string]int `yaml:"provider_response_rate_limit_rpm,omitempty"`

	// Judging pool knobs. CriterionWorkers bounds the inner per-criterion
	// fan-out within one rubric item.
	JudgeWorkers     int `yaml:"judge_parallel_workers,omitempty" env:"EVALRUN_JUDGE_WORKERS"`
	CriterionWorkers int `yaml:"criterion_parallel_workers,omitempty"`
	JudgeRPM         int `yaml:"judge_rate_limit_rpm,omitempty" env:"EVALRUN_JUDGE_RPM"`

	// Limit caps examples per dataset, 0 for all. Overridable from the CLI.
	Limit int `yaml:"limit,omitempty"`
}

// Config is the complete run configuration.
type Config struct {
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Candidates []ModelConfig             `yaml:"candidates"`
	Judges     []ModelConfig             `yaml:"judges"`
	Datasets   []DatasetConfig           `yaml:"datasets"`

	Retry configuration.RetryConfig `yaml:"retry,omitempty"`
	Cache configuration.CacheConfig `yaml:"cache,omitempty"`
	Run   RunConfig                 `yaml:"run,omitempty"`

	// Secrets resolved from the environment, never from the file.
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	GoogleAPIKey    string `yaml:"-" env:"GEMINI_API_KEY"`
}

// applyDefaults fills unset knobs after YAML decode.
func (c *Config) applyDefaults() {
	if c.Retry.MaxAttempts == 0 {
		c.Retry = configuration.DefaultRetryConfig()
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "cache"
	}
	if c.Run.OutputDir == "" {
		c.Run.OutputDir = "outputs"
	}
	if c.Run.DefaultSystemPrompt == "" {
		c.Run.DefaultSystemPrompt = defaultSystemPrompt
	}
	if c.Run.PassThreshold == 0 {
		c.Run.PassThreshold = 0.7
	}
	if c.Run.GenerationWorkers == 0 {
		c.Run.GenerationWorkers = 8
	}
	if c.Run.GenerationRPM == 0 {
		c.Run.GenerationRPM = MaxResponseRPM
	}
	if c.Run.JudgeWorkers == 0 {
		c.Run.JudgeWorkers = 4
	}
	if c.Run.CriterionWorkers == 0 {
		c.Run.CriterionWorkers = 4
	}
	if c.Run.JudgeRPM == 0 {
		c.Run.JudgeRPM = 12
	}
}

// Validate checks structural invariants. The returned error is always a
// *llmerrors.ValidationError naming the offending field.
func (c *Config) Validate() error {
	if len(c.Candidates) == 0 {
		return &llmerrors.ValidationError{Field: "candidates", Message: "at least one candidate model is required"}
	}
	if len(c.Judges) == 0 {
		return &llmerrors.ValidationError{Field: "judges", Message: "at least one judge model is required"}
	}

	for _, m := range append(append([]ModelConfig{}, c.Candidates...), c.Judges...) {
		if m.Name == "" || m.Provider == "" || m.Model == "" {
			return &llmerrors.ValidationError{
				Field:   "models",
				Message: fmt.Sprintf("model entry %+v must set name, provider and model", m),
			}
		}
		if _, ok := c.Providers[m.Provider]; !ok {
			return &llmerrors.ValidationError{
				Field:   "providers",
				Message: fmt.Sprintf("model %q references unknown provider %q", m.Name, m.Provider),
			}
		}
	}

	enabled := 0
	for _, ds := range c.Datasets {
		if ds.Name == "" || ds.Path == "" {
			return &llmerrors.ValidationError{Field: "datasets", Message: "every dataset must set name and path"}
		}
		if ds.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		return &llmerrors.ValidationError{Field: "datasets", Message: "at least one dataset must be enabled"}
	}

	if c.Run.GenerationRPM <= 0 || c.Run.GenerationRPM > MaxResponseRPM {
		return &llmerrors.ValidationError{
			Field:   "run.response_rate_limit_rpm",
			Message: fmt.Sprintf("must be in 1..%d, got %d", MaxResponseRPM, c.Run.GenerationRPM),
		}
	}
	for provider, rpm := range c.Run.ProviderRPM {
		if _, ok := c.Providers[provider]; !ok {
			return &llmerrors.ValidationError{
				Field:   "run.provider_response_rate_limit_rpm",
				Message: fmt.Sprintf("references unknown provider %q", provider),
			}
		}
		if rpm <= 0 || rpm > MaxResponseRPM {
			return &llmerrors.ValidationError{
				Field:   "run.provider_response_rate_limit_rpm." + provider,
				Message: fmt.Sprintf("must be in 1..%d, got %d", MaxResponseRPM, rpm),
			}
		}
	}
	if c.Run.GenerationWorkers <= 0 {
		return &llmerrors.ValidationError{Field: "run.response_parallel_workers", Message: "must be positive"}
	}
	if c.Run.JudgeWorkers <= 0 {
		return &llmerrors.ValidationError{Field: "run.judge_parallel_workers", Message: "must be positive"}
	}
	if c.Run.CriterionWorkers <= 0 {
		return &llmerrors.ValidationError{Field: "run.criterion_parallel_workers", Message: "must be positive"}
	}
	if c.Run.JudgeRPM < 0 {
		return &llmerrors.ValidationError{Field: "run.judge_rate_limit_rpm", Message: "must be >= 0"}
	}
	if c.Run.PassThreshold < 0 || c.Run.PassThreshold > 1 {
		return &llmerrors.ValidationError{Field: "run.judge_pass_threshold", Message: "must be in [0, 1]"}
	}
	return nil
}
