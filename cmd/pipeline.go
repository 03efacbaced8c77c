package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lehigh-university-libraries/figurebench/internal/export"
	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/workflow"
)

// pipelineOutputs names the artifacts a headless run writes. Empty paths are skipped.
type pipelineOutputs struct {
	image    string
	analysis string
	archive  string
	report   string
}

// runPipeline drives one session through analysis, generation and each
// refinement in order, stopping at the first failure. Artifacts for whatever
// was produced are written either way.
func runPipeline(ctx context.Context, session *workflow.Session, doc models.Document, conference models.Conference, refinements []string, out pipelineOutputs) (models.WorkflowState, error) {
	err := session.SubmitDocument(ctx, doc, conference)
	if err == nil {
		err = session.RequestGeneration(ctx)
	}
	for i, instruction := range refinements {
		if err != nil {
			break
		}
		slog.Info("Applying refinement", "step", fmt.Sprintf("%d/%d", i+1, len(refinements)), "instruction", instruction)
		err = session.RequestRefinement(ctx, instruction)
	}

	st := session.State()
	if writeErr := writeArtifacts(st, out); writeErr != nil {
		return st, errors.Join(err, writeErr)
	}
	return st, err
}

func writeArtifacts(st models.WorkflowState, out pipelineOutputs) error {
	var errs []error
	if out.analysis != "" && st.Analysis != nil {
		errs = append(errs, export.WriteAnalysisYAML(out.analysis, st.Analysis))
	}
	if out.image != "" && !st.CurrentImage.IsZero() {
		errs = append(errs, writeImage(out.image, st.CurrentImage))
	}
	if out.archive != "" && len(st.History) > 0 {
		errs = append(errs, export.SaveArchive(out.archive, st))
	}
	if out.report != "" {
		errs = append(errs, export.SaveHTML(out.report, st))
	}
	return errors.Join(errs...)
}

func writeImage(path string, ref models.ImageRef) error {
	_, data, err := ref.Decode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	slog.Info("Diagram saved", "path", path, "bytes", len(data))
	return nil
}

// loadDocument reads a paper file or a plain-text methodology file.
func loadDocument(paperPath, textPath string) (models.Document, error) {
	switch {
	case paperPath != "" && textPath != "":
		return models.Document{}, errors.New("use either --paper or --text, not both")
	case textPath != "":
		data, err := os.ReadFile(textPath)
		if err != nil {
			return models.Document{}, fmt.Errorf("failed to read text file: %w", err)
		}
		doc := models.TextDocument(string(data))
		doc.Filename = filepath.Base(textPath)
		return doc, nil
	case paperPath != "":
		data, err := os.ReadFile(paperPath)
		if err != nil {
			return models.Document{}, fmt.Errorf("failed to read paper: %w", err)
		}
		return models.Document{
			Filename: filepath.Base(paperPath),
			MIMEType: models.DetectMIME(paperPath, "", data),
			Data:     data,
		}, nil
	}
	return models.Document{}, errors.New("one of --paper or --text is required")
}
