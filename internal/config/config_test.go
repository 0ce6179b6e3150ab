package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
)

const minimalYAML = `
providers:
  openai:
    api_key_env: OPENAI_API_KEY
candidates:
  - name: gpt-4o-low
    provider: openai
    model: gpt-4o
    temperature: 0.2
judges:
  - name: gpt-4o-judge
    provider: openai
    model: gpt-4o
datasets:
  - name: lexam
    path: data/lexam.jsonl
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evalrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func validConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{"openai": {APIKeyEnv: "OPENAI_API_KEY"}},
		Candidates: []ModelConfig{
			{Name: "gpt-4o-low", Provider: "openai", Model: "gpt-4o", Temperature: 0.2},
		},
		Judges: []ModelConfig{
			{Name: "gpt-4o-judge", Provider: "openai", Model: "gpt-4o"},
		},
		Datasets: []DatasetConfig{{Name: "lexam", Path: "data/lexam.jsonl"}},
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(t.Context(), writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.True(t, cfg.Retry.UseJitter)
	assert.Equal(t, "cache", cfg.Cache.Dir)
	assert.Equal(t, "outputs", cfg.Run.OutputDir)
	assert.InDelta(t, 0.7, cfg.Run.PassThreshold, 1e-9)
	assert.Equal(t, 8, cfg.Run.GenerationWorkers)
	assert.Equal(t, MaxResponseRPM, cfg.Run.GenerationRPM)
	assert.Equal(t, 4, cfg.Run.JudgeWorkers)
	assert.Equal(t, 4, cfg.Run.CriterionWorkers)
	assert.Equal(t, 12, cfg.Run.JudgeRPM)
	assert.NotEmpty(t, cfg.Run.DefaultSystemPrompt)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EVALRUN_RUN_ID", "run-from-env")
	t.Setenv("EVALRUN_GENERATION_WORKERS", "2")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(t.Context(), writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "run-from-env", cfg.Run.RunID)
	assert.Equal(t, 2, cfg.Run.GenerationWorkers)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.Context(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(t.Context(), writeConfig(t, "providers: [not: a: map"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"no candidates", func(c *Config) { c.Candidates = nil }, "candidates"},
		{"no judges", func(c *Config) { c.Judges = nil }, "judges"},
		{
			"model missing fields",
			func(c *Config) { c.Candidates[0].Model = "" },
			"models",
		},
		{
			"unknown provider",
			func(c *Config) { c.Judges[0].Provider = "mystery" },
			"providers",
		},
		{
			"dataset missing path",
			func(c *Config) { c.Datasets[0].Path = "" },
			"datasets",
		},
		{
			"all datasets disabled",
			func(c *Config) {
				off := false
				c.Datasets[0].Enabled = &off
			},
			"datasets",
		},
		{
			"generation rpm above cap",
			func(c *Config) { c.Run.GenerationRPM = MaxResponseRPM + 1 },
			"run.response_rate_limit_rpm",
		},
		{
			"provider rpm for unknown provider",
			func(c *Config) { c.Run.ProviderRPM = map[string]int{"mystery": 5} },
			"run.provider_response_rate_limit_rpm",
		},
		{
			"provider rpm above cap",
			func(c *Config) { c.Run.ProviderRPM = map[string]int{"openai": 999} },
			"run.provider_response_rate_limit_rpm.openai",
		},
		{
			"negative judge rpm",
			func(c *Config) { c.Run.JudgeRPM = -1 },
			"run.judge_rate_limit_rpm",
		},
		{
			"threshold out of range",
			func(c *Config) { c.Run.PassThreshold = 1.5 },
			"run.judge_pass_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			var valErr *llmerrors.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.wantField, valErr.Field)
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.applyDefaults()
	assert.NoError(t, cfg.Validate())

	// Judge RPM zero means unlimited and is allowed.
	cfg.Run.JudgeRPM = 0
	assert.NoError(t, cfg.Validate())
}

func TestProviderTimeout(t *testing.T) {
	assert.Equal(t, 2*time.Minute, ProviderConfig{}.Timeout())
	assert.Equal(t, 30*time.Second, ProviderConfig{TimeoutSeconds: 30}.Timeout())
}

func TestDatasetIsEnabled(t *testing.T) {
	on, off := true, false
	assert.True(t, DatasetConfig{}.IsEnabled())
	assert.True(t, DatasetConfig{Enabled: &on}.IsEnabled())
	assert.False(t, DatasetConfig{Enabled: &off}.IsEnabled())
}
