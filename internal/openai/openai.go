package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/prompts"
	"github.com/lehigh-university-libraries/figurebench/internal/providers"
)

// OpenAI is a gateway backed by the OpenAI chat and image APIs
type OpenAI struct {
	model       string
	imageModel  string
	temperature float64
	opts        []option.RequestOption
}

// New returns a new OpenAI gateway. Retries are disabled: each operation is a
// single exchange and the caller decides whether to try again.
func New(cfg providers.Config, extra ...option.RequestOption) (*OpenAI, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", providers.ErrNotConfigured)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey), option.WithMaxRetries(0)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	opts = append(opts, extra...)
	return &OpenAI{
		model:       cfg.OpenAIModel,
		imageModel:  cfg.OpenAIImageModel,
		temperature: cfg.Temperature,
		opts:        opts,
	}, nil
}

// Analyze asks a chat model for the structured schema of the paper
func (o *OpenAI) Analyze(ctx context.Context, doc models.Document, conference models.Conference) (*models.PaperAnalysis, error) {
	client := openai.NewClient(o.opts...)

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompts.BuildAnalysisPrompt(conference)),
	}
	docPart, err := documentPart(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", providers.ErrAnalysis, err)
	}
	parts = append(parts, docPart)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call OpenAI API: %w", providers.ErrAnalysis, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response from OpenAI", providers.ErrAnalysis)
	}

	analysis, err := providers.ParseAnalysis(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	slog.Info("Paper analyzed", "provider", providers.OpenAI, "model", o.model, "title", analysis.Title, "layout", analysis.LayoutStrategy)
	return analysis, nil
}

// Generate renders the first diagram with the image generation endpoint
func (o *OpenAI) Generate(ctx context.Context, blueprint string) (models.ImageRef, error) {
	client := openai.NewClient(o.opts...)

	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompts.BuildGenerationPrompt(blueprint),
		Model:  openai.ImageModel(o.imageModel),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to call OpenAI API: %w", providers.ErrRender, err)
	}
	ref, err := firstImage(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", providers.ErrRender, err)
	}
	slog.Info("Image generated", "provider", providers.OpenAI, "model", o.imageModel)
	return ref, nil
}

// Refine uploads the current diagram to the image edit endpoint
func (o *OpenAI) Refine(ctx context.Context, current models.ImageRef, instruction, blueprint string) (models.ImageRef, error) {
	mimeType, data, err := current.Decode()
	if err != nil {
		return "", fmt.Errorf("%w: %w", providers.ErrRefine, err)
	}

	client := openai.NewClient(o.opts...)
	resp, err := client.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(data), "diagram"+models.ImageExtension(mimeType), mimeType),
		},
		Prompt: prompts.BuildRefinementPrompt(instruction, blueprint),
		Model:  openai.ImageModel(o.imageModel),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to call OpenAI API: %w", providers.ErrRefine, err)
	}
	ref, err := firstImage(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %w", providers.ErrRefine, err)
	}
	slog.Info("Image refined", "provider", providers.OpenAI, "model", o.imageModel)
	return ref, nil
}

func documentPart(doc models.Document) (openai.ChatCompletionContentPartUnionParam, error) {
	if doc.IsText() {
		return openai.TextContentPart("PAPER CONTENT:\n\n" + doc.Text), nil
	}

	dataURI := string(models.NewImageRef(doc.MIMEType, doc.Data))
	switch {
	case strings.HasPrefix(doc.MIMEType, "image/"):
		return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI}), nil
	case doc.MIMEType == "application/pdf":
		filename := doc.Filename
		if filename == "" {
			filename = "paper.pdf"
		}
		return openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
			FileData: openai.String(dataURI),
			Filename: openai.String(filename),
		}), nil
	case strings.HasPrefix(doc.MIMEType, "text/"):
		return openai.TextContentPart("PAPER CONTENT:\n\n" + string(doc.Data)), nil
	default:
		return openai.ChatCompletionContentPartUnionParam{}, fmt.Errorf("%w: document type %s", providers.ErrUnsupported, doc.MIMEType)
	}
}

func firstImage(resp *openai.ImagesResponse) (models.ImageRef, error) {
	if resp == nil {
		return "", errors.New("empty response from OpenAI")
	}
	for _, img := range resp.Data {
		if img.B64JSON == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return "", fmt.Errorf("failed to decode image payload: %w", err)
		}
		return models.NewImageRef("image/png", data), nil
	}
	return "", errors.New("no image data found in OpenAI response")
}
