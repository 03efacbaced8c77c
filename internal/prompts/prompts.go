package prompts

import (
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
)

// Layout archetypes the analysis stage chooses between
const (
	LayoutLinearPipeline    = "Linear Pipeline"
	LayoutCyclicIterative   = "Cyclic/Iterative"
	LayoutHierarchicalStack = "Hierarchical Stack"
	LayoutParallelStream    = "Parallel/Dual-Stream"
	LayoutCentralHub        = "Central Hub"
)

var layoutArchetypes = []struct {
	name string
	hint string
}{
	{LayoutLinearPipeline, "data flows left-to-right (or top-to-bottom) through sequential stages"},
	{LayoutCyclicIterative, "a loop or feedback cycle such as agents, RL, or iterative refinement"},
	{LayoutHierarchicalStack, "layered abstraction levels stacked vertically"},
	{LayoutParallelStream, "two or more branches processed side by side and later fused"},
	{LayoutCentralHub, "one core module surrounded by components that interact with it"},
}

// LayoutArchetypes returns the archetype names in prompt order.
func LayoutArchetypes() []string {
	names := make([]string, 0, len(layoutArchetypes))
	for _, a := range layoutArchetypes {
		names = append(names, a.name)
	}
	return names
}

// AnalysisFields are the keys the analysis response must contain.
var AnalysisFields = []string{"title", "summary", "layoutStrategy", "architectureBlueprint", "keyComponents"}

// BuildAnalysisPrompt returns the instruction sent with the paper to produce a PaperAnalysis
func BuildAnalysisPrompt(conference models.Conference) string {
	if conference == "" {
		conference = models.DefaultConference
	}

	var archetypes strings.Builder
	for i, a := range layoutArchetypes {
		fmt.Fprintf(&archetypes, "   %d. %s: %s\n", i+1, a.name, a.hint)
	}

	return fmt.Sprintf(`You are a senior research scientist and visual designer who has prepared architecture figures for dozens of accepted %[1]s papers. You know exactly what reviewers at %[1]s expect from a method overview figure.

Your task is to read the methodology of the supplied paper and design the "Golden Schema": a precise, structured blueprint of the architecture diagram that will later be drawn by an image model.

INSTRUCTIONS:
1. Identify the core pipeline: inputs, processing modules, intermediate representations, outputs, and losses or objectives.
2. Choose exactly ONE layout strategy from the following archetypes:
%[2]s
3. Write the architecture blueprint as plain structured text:
   - Divide the canvas into spatial ZONES (e.g. "ZONE 1 (left): Inputs") and state their positions.
   - Inside each zone list the components. For every component give an icon or shape description and the label text in double quotes, e.g. [Icon: stacked rectangles] "Transformer Encoder".
   - List every CONNECTION as "source" -> "target" with the arrow style and any label in quotes.
   - Specify a restrained color palette suitable for %[1]s camera-ready figures.
4. Only text inside double quotes will be drawn in the final figure. Keep quoted labels short and faithful to the paper's terminology.

OUTPUT FORMAT:
Respond with ONLY a JSON object in the following format:

{
  "title": "Short name of the method",
  "summary": "Two or three sentences describing what the method does",
  "layoutStrategy": "One of: %[3]s",
  "architectureBlueprint": "The full structured blueprint described above",
  "keyComponents": ["Component A", "Component B"]
}

All five fields are required. Do not wrap the JSON in markdown.`,
		conference,
		strings.TrimRight(archetypes.String(), "\n"),
		strings.Join(LayoutArchetypes(), ", "),
	)
}

// BuildGenerationPrompt embeds the blueprint in the rendering style template
func BuildGenerationPrompt(blueprint string) string {
	return fmt.Sprintf(`Create a high-quality scientific architecture diagram for a top-tier machine learning conference paper.

STYLE REQUIREMENTS:
- Flat vector illustration style, clean lines, white background.
- Professional academic look similar to figures in NeurIPS, CVPR and ACL papers.
- Consistent, restrained color palette; rounded rectangles for modules; clear directional arrows.
- Sans-serif typography, legible at column width.

STRICT CONSTRAINTS:
- Render ONLY the text that appears inside double quotes in the blueprint below.
- NEVER render structural meta-labels such as "ZONE 1", zone positions, "[Icon: ...]" descriptions, color names, or hex codes.
- Do not add titles, captions, watermarks, or any text that is not quoted in the blueprint.
- Follow the spatial layout and connections exactly as specified.

BLUEPRINT:
%s`, blueprint)
}

// BuildRefinementPrompt asks for an edit of the current image while keeping its style.
func BuildRefinementPrompt(instruction, blueprint string) string {
	return fmt.Sprintf(`You are editing an existing scientific architecture diagram (the attached image).

EDIT INSTRUCTION:
%s

REQUIREMENTS:
- Apply ONLY the requested change; keep every other element, position, and connection as it is.
- Preserve the existing visual style exactly: flat vector look, colors, typography, line weights, and white background.
- Do not introduce structural meta-labels, zone names, icon descriptions, or hex codes as visible text.
- Keep all labels consistent with the original blueprint below.

ORIGINAL BLUEPRINT:
%s`, instruction, blueprint)
}
