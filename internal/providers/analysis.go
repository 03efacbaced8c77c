package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
)

// rawAnalysis mirrors PaperAnalysis with pointers so missing keys can be told
// apart from empty values.
type rawAnalysis struct {
	Title                 *string   `json:"title"`
	Summary               *string   `json:"summary"`
	LayoutStrategy        *string   `json:"layoutStrategy"`
	ArchitectureBlueprint *string   `json:"architectureBlueprint"`
	KeyComponents         *[]string `json:"keyComponents"`
}

// ParseAnalysis decodes a backend analysis response. Any problem is reported
// as ErrAnalysis and no partial result is returned.
func ParseAnalysis(response string) (*models.PaperAnalysis, error) {
	response = TrimCodeFence(response)
	if response == "" {
		return nil, fmt.Errorf("%w: empty response", ErrAnalysis)
	}

	var raw rawAnalysis
	dec := json.NewDecoder(strings.NewReader(response))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %v", ErrAnalysis, err)
	}

	var missing []string
	if raw.Title == nil || strings.TrimSpace(*raw.Title) == "" {
		missing = append(missing, "title")
	}
	if raw.Summary == nil {
		missing = append(missing, "summary")
	}
	if raw.LayoutStrategy == nil {
		missing = append(missing, "layoutStrategy")
	}
	if raw.ArchitectureBlueprint == nil || strings.TrimSpace(*raw.ArchitectureBlueprint) == "" {
		missing = append(missing, "architectureBlueprint")
	}
	if raw.KeyComponents == nil {
		missing = append(missing, "keyComponents")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: response missing required fields: %s", ErrAnalysis, strings.Join(missing, ", "))
	}

	components := *raw.KeyComponents
	if components == nil {
		components = []string{}
	}

	return &models.PaperAnalysis{
		Title:                 *raw.Title,
		Summary:               *raw.Summary,
		LayoutStrategy:        *raw.LayoutStrategy,
		ArchitectureBlueprint: *raw.ArchitectureBlueprint,
		KeyComponents:         components,
	}, nil
}

// TrimCodeFence strips a surrounding markdown code block some models add
// despite being asked for bare JSON.
func TrimCodeFence(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}
