// Package export writes session artifacts to disk: a YAML record of the
// analysis and history, a Parquet archive of every generated image, and an
// HTML report.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"gopkg.in/yaml.v3"
)

// Record is the YAML form of a session. Images are left out; they live in
// the archive.
type Record struct {
	ExportedAt string                `yaml:"exported_at"`
	Conference models.Conference     `yaml:"conference"`
	Stage      models.Stage          `yaml:"stage"`
	Analysis   *models.PaperAnalysis `yaml:"analysis,omitempty"`
	History    []HistoryRecord       `yaml:"history"`
	LastError  string                `yaml:"last_error,omitempty"`
}

type HistoryRecord struct {
	Prompt    string `yaml:"prompt"`
	Timestamp string `yaml:"timestamp"`
	MIMEType  string `yaml:"mime_type,omitempty"`
	Current   bool   `yaml:"current,omitempty"`
}

// NewRecord builds a Record from a state snapshot.
func NewRecord(st models.WorkflowState, now time.Time) Record {
	rec := Record{
		ExportedAt: now.UTC().Format(time.RFC3339),
		Conference: st.Conference,
		Stage:      st.Stage,
		Analysis:   st.Analysis.Clone(),
		History:    make([]HistoryRecord, 0, len(st.History)),
		LastError:  st.LastError,
	}
	for _, item := range st.History {
		mimeType, _, _ := item.ImageURL.Decode()
		rec.History = append(rec.History, HistoryRecord{
			Prompt:    item.Prompt,
			Timestamp: item.Timestamp.UTC().Format(time.RFC3339Nano),
			MIMEType:  mimeType,
			Current:   item.ImageURL == st.CurrentImage,
		})
	}
	return rec
}

// WriteYAML encodes the session record to w.
func WriteYAML(w io.Writer, st models.WorkflowState) error {
	data, err := yaml.Marshal(NewRecord(st, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write YAML: %w", err)
	}
	return nil
}

// WriteAnalysisYAML writes only the paper analysis to path.
func WriteAnalysisYAML(path string, analysis *models.PaperAnalysis) error {
	if analysis == nil {
		return fmt.Errorf("no analysis to write")
	}
	data, err := yaml.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return writeFile(path, data)
}

// ReadAnalysisYAML loads an analysis written by WriteAnalysisYAML.
func ReadAnalysisYAML(path string) (*models.PaperAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis file: %w", err)
	}
	var analysis models.PaperAnalysis
	if err := yaml.Unmarshal(data, &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse analysis YAML: %w", err)
	}
	return &analysis, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
