package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/storage"
)

// handleAnalyze accepts a paper either as a multipart upload, as pasted text,
// or as a URL to fetch, and runs the analysis stage on it.
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request, entry *storage.Entry) {
	var (
		doc        models.Document
		conference models.Conference
		err        error
	)

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		doc, conference, err = h.readJSONDocument(r)
	} else {
		doc, conference, err = h.readUploadedDocument(r)
	}
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	slog.Info("Analyzing document", "session_id", entry.ID, "filename", doc.Filename, "mime_type", doc.MIMEType, "bytes", len(doc.Data)+len(doc.Text))
	h.runCommand(w, entry, entry.Session.SubmitDocument(r.Context(), doc, conference))
}

func (h *Handler) readJSONDocument(r *http.Request) (models.Document, models.Conference, error) {
	var request struct {
		Text       string `json:"text"`
		URL        string `json:"url"`
		Conference string `json:"conference"`
	}
	if err := decodeJSON(r, &request); err != nil {
		return models.Document{}, "", fmt.Errorf("invalid JSON: %w", err)
	}

	conference, err := parseConference(request.Conference)
	if err != nil {
		return models.Document{}, "", err
	}

	switch {
	case request.Text != "" && request.URL != "":
		return models.Document{}, "", fmt.Errorf("provide either text or url, not both")
	case request.URL != "":
		doc, err := h.downloadDocument(r, request.URL)
		return doc, conference, err
	case strings.TrimSpace(request.Text) == "":
		return models.Document{}, "", fmt.Errorf("text or url is required")
	}
	return models.TextDocument(request.Text), conference, nil
}

func (h *Handler) readUploadedDocument(r *http.Request) (models.Document, models.Conference, error) {
	file, header, err := r.FormFile("files")
	if err != nil {
		file, header, err = r.FormFile("file")
		if err != nil {
			return models.Document{}, "", fmt.Errorf("failed to read file: %w", err)
		}
	}
	defer file.Close()

	conference, err := parseConference(r.FormValue("conference"))
	if err != nil {
		return models.Document{}, "", err
	}

	data, err := readLimited(file)
	if err != nil {
		return models.Document{}, "", err
	}

	return models.Document{
		Filename: header.Filename,
		MIMEType: models.DetectMIME(header.Filename, header.Header.Get("Content-Type"), data),
		Data:     data,
	}, conference, nil
}

// readLimited reads at most maxDocumentSize bytes and rejects anything larger.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("file too large (max 10MB)")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	return data, nil
}
