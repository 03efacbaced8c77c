package providers

import "errors"

var (
	// ErrAnalysis means the analysis response was absent, malformed, or incomplete.
	ErrAnalysis = errors.New("analysis failed")
	// ErrRender means the generation response carried no inline image.
	ErrRender = errors.New("render failed")
	// ErrRefine means the refinement response carried no inline image.
	ErrRefine = errors.New("refine failed")

	ErrNotConfigured = errors.New("provider not configured")
	ErrUnsupported   = errors.New("operation not supported by provider")
)
