package providers

import (
	"context"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
)

// Analyzer turns a paper into a PaperAnalysis
type Analyzer interface {
	Analyze(ctx context.Context, doc models.Document, conference models.Conference) (*models.PaperAnalysis, error)
}

// Renderer draws and edits diagrams from a blueprint
type Renderer interface {
	Generate(ctx context.Context, blueprint string) (models.ImageRef, error)
	Refine(ctx context.Context, current models.ImageRef, instruction, blueprint string) (models.ImageRef, error)
}

// Gateway is the full set of backend operations the workflow needs.
// Implementations own no state and never retry.
type Gateway interface {
	Analyzer
	Renderer
}

type composite struct {
	Analyzer
	Renderer
}

// Compose builds a Gateway whose analysis and rendering are served by different backends.
func Compose(a Analyzer, r Renderer) Gateway {
	return composite{Analyzer: a, Renderer: r}
}
