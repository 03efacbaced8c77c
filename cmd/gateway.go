package cmd

import (
	"fmt"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/gemini"
	"github.com/lehigh-university-libraries/figurebench/internal/ollama"
	"github.com/lehigh-university-libraries/figurebench/internal/openai"
	"github.com/lehigh-university-libraries/figurebench/internal/providers"
	"github.com/spf13/cobra"
)

// providerFlags are the backend overrides shared by serve, run and batch.
type providerFlags struct {
	analysisProvider string
	renderProvider   string
	timeout          time.Duration
}

func (f *providerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.analysisProvider, "analysis-provider", "", "Analysis backend: gemini, openai or ollama (default from ANALYSIS_PROVIDER)")
	cmd.Flags().StringVar(&f.renderProvider, "render-provider", "", "Rendering backend: gemini or openai (default from RENDER_PROVIDER)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-request backend timeout, 0 for none (default from FIGUREBENCH_TIMEOUT)")
}

// config reads the environment and applies any flags the user set.
func (f *providerFlags) config(cmd *cobra.Command) (providers.Config, error) {
	cfg, err := providers.ConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	if f.analysisProvider != "" {
		cfg.AnalysisProvider = f.analysisProvider
	}
	if f.renderProvider != "" {
		cfg.RenderProvider = f.renderProvider
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildGateway wires the configured analysis and rendering backends together.
func buildGateway(cfg providers.Config) (providers.Gateway, error) {
	var (
		gem *gemini.Gemini
		oai *openai.OpenAI
	)
	geminiBackend := func() *gemini.Gemini {
		if gem == nil {
			gem = gemini.New(cfg)
		}
		return gem
	}
	openaiBackend := func() (*openai.OpenAI, error) {
		if oai == nil {
			var err error
			if oai, err = openai.New(cfg); err != nil {
				return nil, err
			}
		}
		return oai, nil
	}

	var analyzer providers.Analyzer
	switch cfg.AnalysisProvider {
	case providers.Gemini:
		analyzer = geminiBackend()
	case providers.OpenAI:
		o, err := openaiBackend()
		if err != nil {
			return nil, err
		}
		analyzer = o
	case providers.Ollama:
		analyzer = ollama.New(cfg)
	default:
		return nil, fmt.Errorf("unsupported analysis provider: %s", cfg.AnalysisProvider)
	}

	var renderer providers.Renderer
	switch cfg.RenderProvider {
	case providers.Gemini:
		renderer = geminiBackend()
	case providers.OpenAI:
		o, err := openaiBackend()
		if err != nil {
			return nil, err
		}
		renderer = o
	default:
		return nil, fmt.Errorf("%w: %s cannot render images", providers.ErrUnsupported, cfg.RenderProvider)
	}

	return providers.Compose(analyzer, renderer), nil
}
