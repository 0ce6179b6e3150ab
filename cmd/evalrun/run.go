package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-evalrun/internal/config"
	"github.com/ahrav/go-evalrun/internal/generation"
	"github.com/ahrav/go-evalrun/internal/judging"
	"github.com/ahrav/go-evalrun/internal/llm"
	"github.com/ahrav/go-evalrun/internal/llm/configuration"
	"github.com/ahrav/go-evalrun/internal/llm/providers"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
	"github.com/ahrav/go-evalrun/internal/runner"
)

var (
	flagLimit int
	flagOut   string
	flagRunID string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark run",
		RunE:  runBenchmark,
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "cap examples per dataset (0 for all)")
	cmd.Flags().StringVar(&flagOut, "out", "", "override output directory")
	cmd.Flags().StringVar(&flagRunID, "run-id", "", "override run id")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the run configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(cmd.Context(), cfgFile); err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	// Interrupt stops new unit dispatch; in-flight calls finish and their
	// records are kept.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, cfgFile)
	if err != nil {
		return err
	}
	if flagLimit > 0 {
		cfg.Run.Limit = flagLimit
	}
	if flagOut != "" {
		cfg.Run.OutputDir = flagOut
	}
	if flagRunID != "" {
		cfg.Run.RunID = flagRunID
	}
	runID := runner.NewRunID(cfg)

	router, err := buildRouter(ctx, cfg)
	if err != nil {
		return err
	}

	genClient, err := llm.NewClient(llm.Config{
		Cache: cfg.Cache,
		Retry: cfg.Retry,
		RateLimit: configuration.RateLimitConfig{
			RequestsPerMinute: cfg.Run.GenerationRPM,
			PerProvider:       cfg.Run.ProviderRPM,
		},
	}, router)
	if err != nil {
		return fmt.Errorf("building generation client: %w", err)
	}

	judgeClient, err := llm.NewClient(llm.Config{
		Cache: cfg.Cache,
		Retry: cfg.Retry,
		RateLimit: configuration.RateLimitConfig{
			RequestsPerMinute: cfg.Run.JudgeRPM,
		},
	}, router)
	if err != nil {
		return fmt.Errorf("building judge client: %w", err)
	}

	writer, err := runner.NewJSONLWriter(cfg.Run.OutputDir, runID)
	if err != nil {
		return err
	}

	orch := runner.NewOrchestrator(
		cfg,
		runID,
		runner.JSONLLoader{},
		generation.NewPhase(genClient, cfg, runID),
		judging.NewPhase(judgeClient, cfg, runID),
		writer,
	)

	summary, err := orch.Execute(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d units, %d judged, mean score %.3f, pass rate %.1f%%\n",
		summary.RunID, summary.Units, summary.Judged, summary.MeanScore, summary.PassRate*100)
	fmt.Printf("artifacts: %s\n", writer.Dir())
	return nil
}

// buildRouter registers an adapter for every provider named in the config.
func buildRouter(ctx context.Context, cfg *config.Config) (transport.Router, error) {
	adapters := make([]transport.ProviderAdapter, 0, len(cfg.Providers))
	for name, providerCfg := range cfg.Providers {
		key := resolveAPIKey(cfg, name, providerCfg)
		switch providers.CanonicalProvider(name) {
		case providers.ProviderOpenAI:
			adapters = append(adapters, providers.NewOpenAIAdapter(key))
		case providers.ProviderAnthropic:
			adapters = append(adapters, providers.NewAnthropicAdapter(key))
		case providers.ProviderGoogle:
			google, err := providers.NewGoogleAdapter(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("building google adapter: %w", err)
			}
			adapters = append(adapters, google)
		default:
			return nil, fmt.Errorf("no adapter available for provider %q", name)
		}
	}
	return providers.NewRouter(adapters...), nil
}

// resolveAPIKey prefers the provider's configured env var, then the
// well-known key env vars.
func resolveAPIKey(cfg *config.Config, name string, providerCfg config.ProviderConfig) string {
	if providerCfg.APIKeyEnv != "" {
		if v := os.Getenv(providerCfg.APIKeyEnv); v != "" {
			return v
		}
	}
	switch providers.CanonicalProvider(name) {
	case providers.ProviderOpenAI:
		return cfg.OpenAIAPIKey
	case providers.ProviderAnthropic:
		return cfg.AnthropicAPIKey
	case providers.ProviderGoogle:
		return cfg.GoogleAPIKey
	default:
		return ""
	}
}
