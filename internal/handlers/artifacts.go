package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/export"
	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/storage"
)

// handleImage serves the current image, or the history entry named by the
// timestamp query parameter.
func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request, entry *storage.Entry) {
	st := entry.Session.State()
	ref := st.CurrentImage

	if raw := r.URL.Query().Get("timestamp"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.writeError(w, "Invalid timestamp: "+err.Error(), http.StatusBadRequest)
			return
		}
		item, ok := st.FindHistory(ts)
		if !ok {
			h.writeError(w, "History entry not found", http.StatusNotFound)
			return
		}
		ref = item.ImageURL
	}

	if ref.IsZero() {
		h.writeError(w, "No image available", http.StatusNotFound)
		return
	}
	mimeType, data, err := ref.Decode()
	if err != nil {
		h.writeError(w, "Failed to decode image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if r.URL.Query().Has("download") {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "diagram"+models.ImageExtension(mimeType)))
	}
	_, _ = w.Write(data)
}

func (h *Handler) handleReport(w http.ResponseWriter, entry *storage.Entry) {
	var buf bytes.Buffer
	if err := export.WriteHTML(&buf, entry.Session.State()); err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleExportYAML(w http.ResponseWriter, entry *storage.Entry) {
	var buf bytes.Buffer
	if err := export.WriteYAML(&buf, entry.Session.State()); err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleArchive(w http.ResponseWriter, entry *storage.Entry) {
	st := entry.Session.State()
	if len(st.History) == 0 {
		h.writeError(w, "No history to archive", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteArchive(&buf, st); err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="history.parquet"`)
	_, _ = w.Write(buf.Bytes())
}
