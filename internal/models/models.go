package models

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// InitialPrompt marks the history entry produced by the first generation
const InitialPrompt = "Initial"

// PaperAnalysis is the structured visual schema produced by the analysis stage.
// The JSON field names are the contract with the AI backend.
type PaperAnalysis struct {
	Title                 string   `json:"title" yaml:"title"`
	Summary               string   `json:"summary" yaml:"summary"`
	LayoutStrategy        string   `json:"layoutStrategy" yaml:"layout_strategy"`
	ArchitectureBlueprint string   `json:"architectureBlueprint" yaml:"architecture_blueprint"`
	KeyComponents         []string `json:"keyComponents" yaml:"key_components"`
}

// Clone returns a copy that shares no memory with a.
func (a *PaperAnalysis) Clone() *PaperAnalysis {
	if a == nil {
		return nil
	}
	c := *a
	c.KeyComponents = slices.Clone(a.KeyComponents)
	return &c
}

// HistoryItem pairs an edit instruction with the image it produced
type HistoryItem struct {
	Prompt    string    `json:"prompt" yaml:"prompt"`
	ImageURL  ImageRef  `json:"image_url" yaml:"-"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Document is the paper handed to the analysis stage: either raw text or
// binary content with a mime type.
type Document struct {
	Filename string `json:"filename,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"-"`
	Text     string `json:"text,omitempty"`
}

// TextDocument wraps pasted methodology text.
func TextDocument(text string) Document {
	return Document{Text: text, MIMEType: "text/plain"}
}

// IsText reports whether the document carries raw text rather than bytes.
func (d Document) IsText() bool {
	return len(d.Data) == 0 && d.Text != ""
}

// Validate checks that exactly one of Text or Data is populated.
func (d Document) Validate() error {
	switch {
	case len(d.Data) == 0 && d.Text == "":
		return errors.New("document is empty")
	case len(d.Data) > 0 && d.Text != "":
		return errors.New("document has both text and binary content")
	case len(d.Data) > 0 && d.MIMEType == "":
		return fmt.Errorf("document %q has no mime type", d.Filename)
	}
	return nil
}

// WorkflowState is a read-only snapshot of a session.
type WorkflowState struct {
	Stage           Stage          `json:"stage" yaml:"stage"`
	Conference      Conference     `json:"conference" yaml:"conference"`
	IsLoading       bool           `json:"is_loading" yaml:"-"`
	LastError       string         `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Analysis        *PaperAnalysis `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	CurrentImage    ImageRef       `json:"current_image,omitempty" yaml:"-"`
	History         []HistoryItem  `json:"history" yaml:"history"`
	RefinementDraft string         `json:"refinement_draft" yaml:"refinement_draft,omitempty"`
}

// DefaultState is the state of a fresh or reset session.
func DefaultState() WorkflowState {
	return WorkflowState{
		Stage:      StageSetup,
		Conference: DefaultConference,
		History:    []HistoryItem{},
	}
}

// CheckInvariants verifies the relationships between stage, analysis, image and history.
func (s WorkflowState) CheckInvariants() error {
	if s.Stage >= StageUnderstanding && s.Analysis == nil {
		return fmt.Errorf("stage %s without analysis", s.Stage)
	}
	if s.Stage >= StageGeneration && s.CurrentImage.IsZero() {
		return fmt.Errorf("stage %s without current image", s.Stage)
	}
	if !s.CurrentImage.IsZero() && s.Analysis == nil {
		return errors.New("current image without analysis")
	}
	if !s.CurrentImage.IsZero() && len(s.History) == 0 {
		return errors.New("current image without history")
	}
	return nil
}

// FindHistory returns the entry created at ts.
func (s WorkflowState) FindHistory(ts time.Time) (HistoryItem, bool) {
	for _, item := range s.History {
		if item.Timestamp.Equal(ts) {
			return item, true
		}
	}
	return HistoryItem{}, false
}

// DetectMIME prefers the declared type, then the file extension, then
// content sniffing. Parameters such as charset are dropped.
func DetectMIME(filename, declared string, data []byte) string {
	for _, candidate := range []string{declared, mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))} {
		mediaType, _, err := mime.ParseMediaType(candidate)
		if err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}
