package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/prompts"
	"github.com/lehigh-university-libraries/figurebench/internal/providers"
)

// Ollama analyzes papers with a local Ollama model. It has no image output,
// so it only serves the analysis stage.
type Ollama struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// New returns a new Ollama analyzer
func New(cfg providers.Config) *Ollama {
	baseURL := cfg.OllamaURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       cfg.OllamaModel,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{},
	}
}

// Analyze sends the analysis prompt and paper to /api/generate in JSON mode
func (o *Ollama) Analyze(ctx context.Context, doc models.Document, conference models.Conference) (*models.PaperAnalysis, error) {
	prompt := prompts.BuildAnalysisPrompt(conference)
	var images []string

	switch {
	case doc.IsText():
		prompt += "\n\nPAPER CONTENT:\n\n" + doc.Text
	case strings.HasPrefix(doc.MIMEType, "text/"):
		prompt += "\n\nPAPER CONTENT:\n\n" + string(doc.Data)
	case strings.HasPrefix(doc.MIMEType, "image/"):
		images = []string{base64.StdEncoding.EncodeToString(doc.Data)}
	default:
		return nil, fmt.Errorf("%w: %w: ollama cannot read %s documents", providers.ErrAnalysis, providers.ErrUnsupported, doc.MIMEType)
	}

	requestBody := map[string]interface{}{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
		"options": map[string]interface{}{
			"temperature": o.temperature,
		},
	}
	if len(images) > 0 {
		requestBody["images"] = images
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request body: %w", providers.ErrAnalysis, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create new request: %w", providers.ErrAnalysis, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call Ollama API: %w", providers.ErrAnalysis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama API returned status %d: %s", providers.ErrAnalysis, resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: failed to decode Ollama response: %w", providers.ErrAnalysis, err)
	}

	analysis, err := providers.ParseAnalysis(response.Response)
	if err != nil {
		return nil, err
	}
	slog.Info("Paper analyzed", "provider", providers.Ollama, "model", o.model, "title", analysis.Title, "layout", analysis.LayoutStrategy)
	return analysis, nil
}
