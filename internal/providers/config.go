package providers

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	Gemini = "gemini"
	OpenAI = "openai"
	Ollama = "ollama"
)

// Config represents the backend selection and model settings
type Config struct {
	AnalysisProvider string
	RenderProvider   string

	GeminiAPIKey     string
	GeminiTextModel  string
	GeminiImageModel string

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIImageModel string

	OllamaURL   string
	OllamaModel string

	Temperature float64
	Timeout     time.Duration
}

// ConfigFromEnv reads provider settings from the environment, applying
// defaults. Call Validate after applying flag overrides.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		AnalysisProvider: strings.ToLower(getenv("ANALYSIS_PROVIDER", Gemini)),
		RenderProvider:   strings.ToLower(getenv("RENDER_PROVIDER", Gemini)),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiTextModel:  getenv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: getenv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:      getenv("OPENAI_MODEL", "gpt-4o"),
		OpenAIImageModel: getenv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		OllamaURL:        getenv("OLLAMA_URL", getenv("OLLAMA_HOST", "http://localhost:11434")),
		OllamaModel:      getenv("OLLAMA_MODEL", "mistral-small3.2:24b"),
		Temperature:      0.2,
	}

	if raw := os.Getenv("FIGUREBENCH_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid FIGUREBENCH_TIMEOUT %q: %w", raw, err)
		}
		cfg.Timeout = d
	}

	return cfg, nil
}

// Validate checks that the selected providers exist and have credentials.
func (c Config) Validate() error {
	switch c.AnalysisProvider {
	case Gemini, OpenAI, Ollama:
	default:
		return fmt.Errorf("unsupported analysis provider: %s", c.AnalysisProvider)
	}
	switch c.RenderProvider {
	case Gemini, OpenAI:
	case Ollama:
		return fmt.Errorf("%w: ollama cannot render images", ErrUnsupported)
	default:
		return fmt.Errorf("unsupported render provider: %s", c.RenderProvider)
	}

	for _, p := range []string{c.AnalysisProvider, c.RenderProvider} {
		if p == Gemini && c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable not set", ErrNotConfigured)
		}
		if p == OpenAI && c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrNotConfigured)
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
