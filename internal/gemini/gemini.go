package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/prompts"
	"github.com/lehigh-university-libraries/figurebench/internal/providers"
	"google.golang.org/api/option"
)

// Gemini is a gateway backed by Google Gemini
type Gemini struct {
	apiKey      string
	textModel   string
	imageModel  string
	temperature float32
	opts        []option.ClientOption
}

// New returns a new Gemini gateway
func New(cfg providers.Config, opts ...option.ClientOption) *Gemini {
	return &Gemini{
		apiKey:      cfg.GeminiAPIKey,
		textModel:   cfg.GeminiTextModel,
		imageModel:  cfg.GeminiImageModel,
		temperature: float32(cfg.Temperature),
		opts:        opts,
	}
}

func (g *Gemini) newClient(ctx context.Context) (*genai.Client, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY environment variable not set", providers.ErrNotConfigured)
	}
	opts := append([]option.ClientOption{option.WithAPIKey(g.apiKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	return client, nil
}

// Analyze sends the paper with the analysis prompt and decodes the structured schema
func (g *Gemini) Analyze(ctx context.Context, doc models.Document, conference models.Conference) (*models.PaperAnalysis, error) {
	client, err := g.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", providers.ErrAnalysis, err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.textModel)
	model.SetTemperature(g.temperature)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = analysisSchema()

	resp, err := model.GenerateContent(ctx, genai.Text(prompts.BuildAnalysisPrompt(conference)), documentPart(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate content: %w", providers.ErrAnalysis, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrAnalysis, err)
	}

	analysis, err := providers.ParseAnalysis(text)
	if err != nil {
		return nil, err
	}
	slog.Info("Paper analyzed", "provider", providers.Gemini, "model", g.textModel, "title", analysis.Title, "layout", analysis.LayoutStrategy)
	return analysis, nil
}

// Generate renders the first diagram from a blueprint
func (g *Gemini) Generate(ctx context.Context, blueprint string) (models.ImageRef, error) {
	ref, err := g.renderImage(ctx, genai.Text(prompts.BuildGenerationPrompt(blueprint)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", providers.ErrRender, err)
	}
	return ref, nil
}

// Refine edits the current diagram according to a free-text instruction
func (g *Gemini) Refine(ctx context.Context, current models.ImageRef, instruction, blueprint string) (models.ImageRef, error) {
	mimeType, data, err := current.Decode()
	if err != nil {
		return "", fmt.Errorf("%w: %w", providers.ErrRefine, err)
	}
	ref, err := g.renderImage(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(prompts.BuildRefinementPrompt(instruction, blueprint)),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", providers.ErrRefine, err)
	}
	return ref, nil
}

func (g *Gemini) renderImage(ctx context.Context, parts ...genai.Part) (models.ImageRef, error) {
	client, err := g.newClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(g.imageModel)
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	blob, err := firstImage(resp)
	if err != nil {
		return "", err
	}
	slog.Info("Image generated", "provider", providers.Gemini, "model", g.imageModel, "mime_type", blob.MIMEType, "bytes", len(blob.Data))
	return models.NewImageRef(blob.MIMEType, blob.Data), nil
}

func documentPart(doc models.Document) genai.Part {
	if doc.IsText() {
		return genai.Text("PAPER CONTENT:\n\n" + doc.Text)
	}
	return genai.Blob{MIMEType: doc.MIMEType, Data: doc.Data}
}

func analysisSchema() *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":                 str,
			"summary":               str,
			"layoutStrategy":        {Type: genai.TypeString, Enum: prompts.LayoutArchetypes()},
			"architectureBlueprint": str,
			"keyComponents":         {Type: genai.TypeArray, Items: str},
		},
		Required: prompts.AnalysisFields,
	}
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return sb.String(), nil
}

// firstImage returns the first inline image across all candidates and parts.
// Additional image parts are ignored.
func firstImage(resp *genai.GenerateContentResponse) (genai.Blob, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return genai.Blob{}, fmt.Errorf("no candidates returned from Gemini")
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			blob, ok := part.(genai.Blob)
			if ok && len(blob.Data) > 0 && strings.HasPrefix(blob.MIMEType, "image/") {
				return blob, nil
			}
		}
	}
	return genai.Blob{}, fmt.Errorf("no image data found in Gemini response")
}
