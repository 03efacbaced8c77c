package providers

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
)

func TestParseAnalysis(t *testing.T) {
	valid := `{"title":"T","summary":"S","layoutStrategy":"Linear Pipeline","architectureBlueprint":"B","keyComponents":["Encoder","Decoder"]}`
	expected := &models.PaperAnalysis{
		Title:                 "T",
		Summary:               "S",
		LayoutStrategy:        "Linear Pipeline",
		ArchitectureBlueprint: "B",
		KeyComponents:         []string{"Encoder", "Decoder"},
	}

	tests := []struct {
		name     string
		response string
		wantErr  bool
	}{
		{name: "plain JSON", response: valid},
		{name: "fenced JSON", response: "```json\n" + valid + "\n```"},
		{name: "empty", response: "   ", wantErr: true},
		{name: "not JSON", response: "Here is your schema", wantErr: true},
		{name: "missing blueprint", response: `{"title":"T","summary":"S","layoutStrategy":"L","keyComponents":[]}`, wantErr: true},
		{name: "null components", response: `{"title":"T","summary":"S","layoutStrategy":"L","architectureBlueprint":"B","keyComponents":null}`, wantErr: true},
		{name: "components not strings", response: `{"title":"T","summary":"S","layoutStrategy":"L","architectureBlueprint":"B","keyComponents":[1,2]}`, wantErr: true},
		{name: "empty title", response: `{"title":"","summary":"S","layoutStrategy":"L","architectureBlueprint":"B","keyComponents":[]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnalysis(tt.response)
			if tt.wantErr {
				if !errors.Is(err, ErrAnalysis) {
					t.Fatalf("Expected ErrAnalysis, got %v", err)
				}
				if got != nil {
					t.Errorf("Expected no partial result, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, expected) {
				t.Errorf("Expected %+v, got %+v", expected, got)
			}
		})
	}
}

func TestParseAnalysisEmptyComponents(t *testing.T) {
	got, err := ParseAnalysis(`{"title":"T","summary":"","layoutStrategy":"","architectureBlueprint":"B","keyComponents":[]}`)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.KeyComponents == nil || len(got.KeyComponents) != 0 {
		t.Errorf("Expected empty non-nil components, got %#v", got.KeyComponents)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "gemini with key", cfg: Config{AnalysisProvider: Gemini, RenderProvider: Gemini, GeminiAPIKey: "k"}},
		{name: "ollama analysis with openai render", cfg: Config{AnalysisProvider: Ollama, RenderProvider: OpenAI, OpenAIAPIKey: "k"}},
		{name: "gemini without key", cfg: Config{AnalysisProvider: Gemini, RenderProvider: Gemini}, wantErr: ErrNotConfigured},
		{name: "openai render without key", cfg: Config{AnalysisProvider: Gemini, RenderProvider: OpenAI, GeminiAPIKey: "k"}, wantErr: ErrNotConfigured},
		{name: "ollama render", cfg: Config{AnalysisProvider: Gemini, RenderProvider: Ollama, GeminiAPIKey: "k"}, wantErr: ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ANALYSIS_PROVIDER", "OLLAMA")
	t.Setenv("RENDER_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OLLAMA_URL", "")
	t.Setenv("OLLAMA_HOST", "http://ollama:11434")
	t.Setenv("FIGUREBENCH_TIMEOUT", "90s")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.AnalysisProvider != Ollama || cfg.RenderProvider != OpenAI {
		t.Errorf("Unexpected providers %s/%s", cfg.AnalysisProvider, cfg.RenderProvider)
	}
	if cfg.OllamaURL != "http://ollama:11434" {
		t.Errorf("Expected OLLAMA_HOST fallback, got %s", cfg.OllamaURL)
	}
	if cfg.Timeout.String() != "1m30s" {
		t.Errorf("Expected 90s timeout, got %s", cfg.Timeout)
	}

	t.Setenv("FIGUREBENCH_TIMEOUT", "soon")
	if _, err := ConfigFromEnv(); err == nil {
		t.Errorf("Expected error for invalid timeout")
	}
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, _ models.Document, _ models.Conference) (*models.PaperAnalysis, error) {
	return &models.PaperAnalysis{Title: "from analyzer"}, nil
}

type stubRenderer struct{}

func (stubRenderer) Generate(_ context.Context, _ string) (models.ImageRef, error) {
	return "generated", nil
}

func (stubRenderer) Refine(_ context.Context, _ models.ImageRef, _, _ string) (models.ImageRef, error) {
	return "refined", nil
}

func TestCompose(t *testing.T) {
	gw := Compose(stubAnalyzer{}, stubRenderer{})
	ctx := context.Background()

	a, err := gw.Analyze(ctx, models.TextDocument("x"), models.ConferenceACL)
	if err != nil || a.Title != "from analyzer" {
		t.Errorf("Analyze not routed to analyzer: %+v %v", a, err)
	}
	if img, _ := gw.Generate(ctx, "b"); img != "generated" {
		t.Errorf("Generate not routed to renderer: %s", img)
	}
	if img, _ := gw.Refine(ctx, "generated", "i", "b"); img != "refined" {
		t.Errorf("Refine not routed to renderer: %s", img)
	}
}
