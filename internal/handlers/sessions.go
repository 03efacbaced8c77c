package handlers

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/storage"
)

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		entries := h.sessionStore.GetAll()
		sessionList := make([]sessionResponse, 0, len(entries))
		for _, entry := range entries {
			sessionList = append(sessionList, newSessionResponse(entry))
		}
		h.writeJSON(w, sessionList)
	case "POST":
		var request struct {
			Conference string `json:"conference"`
		}
		if err := decodeJSON(r, &request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		conference, err := parseConference(request.Conference)
		if err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		entry := h.sessionStore.Create(h.newSession)
		if conference != "" {
			if err := entry.Session.SetConference(conference); err != nil {
				h.writeCommandError(w, entry, err)
				return
			}
		}
		slog.Info("Session created", "session_id", entry.ID, "conference", entry.Session.State().Conference, "active_sessions", h.sessionStore.Len())
		h.writeJSONStatus(w, http.StatusCreated, newSessionResponse(entry))
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

var sessionActions = map[string]string{
	"":                "GET DELETE",
	"analyze":         "POST",
	"generate":        "POST",
	"refine":          "POST",
	"select":          "POST",
	"navigate":        "POST",
	"cancel":          "POST",
	"reset":           "POST",
	"conference":      "PUT",
	"draft":           "PUT",
	"image":           "GET",
	"report":          "GET",
	"export.yaml":     "GET",
	"archive.parquet": "GET",
}

// HandleSessionDetail routes /api/sessions/{id}[/{action}].
func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	sessionID, action, _ := strings.Cut(rest, "/")

	methods, known := sessionActions[action]
	if !known {
		h.writeError(w, "Not found", http.StatusNotFound)
		return
	}
	if !slices.Contains(strings.Fields(methods), r.Method) {
		w.Header().Set("Allow", strings.ReplaceAll(methods, " ", ", "))
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entry, ok := h.getSessionOrError(w, sessionID)
	if !ok {
		return
	}

	switch r.Method + " " + action {
	case "GET ":
		h.writeJSON(w, newSessionResponse(entry))
	case "DELETE ":
		h.sessionStore.Delete(entry.ID)
		slog.Info("Session deleted", "session_id", entry.ID, "active_sessions", h.sessionStore.Len())
		w.WriteHeader(http.StatusNoContent)
	case "POST analyze":
		h.handleAnalyze(w, r, entry)
	case "POST generate":
		h.runCommand(w, entry, entry.Session.RequestGeneration(r.Context()))
	case "POST refine":
		h.handleRefine(w, r, entry)
	case "POST select":
		h.handleSelect(w, r, entry)
	case "POST navigate":
		h.handleNavigate(w, r, entry)
	case "POST cancel":
		cancelled := entry.Session.Cancel()
		h.writeJSON(w, struct {
			Cancelled bool            `json:"cancelled"`
			Session   sessionResponse `json:"session"`
		}{cancelled, newSessionResponse(entry)})
	case "POST reset":
		entry.Session.Reset()
		h.writeJSON(w, newSessionResponse(entry))
	case "PUT conference":
		h.handleConference(w, r, entry)
	case "PUT draft":
		var request struct {
			Text string `json:"text"`
		}
		if err := decodeJSON(r, &request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		entry.Session.SetRefinementDraft(request.Text)
		h.writeJSON(w, newSessionResponse(entry))
	case "GET image":
		h.handleImage(w, r, entry)
	case "GET report":
		h.handleReport(w, entry)
	case "GET export.yaml":
		h.handleExportYAML(w, entry)
	case "GET archive.parquet":
		h.handleArchive(w, entry)
	}
}

// runCommand writes the snapshot on success and the classified error otherwise.
func (h *Handler) runCommand(w http.ResponseWriter, entry *storage.Entry, err error) {
	if err != nil {
		h.writeCommandError(w, entry, err)
		return
	}
	h.writeJSON(w, newSessionResponse(entry))
}

func (h *Handler) handleRefine(w http.ResponseWriter, r *http.Request, entry *storage.Entry) {
	var request struct {
		Instruction string `json:"instruction"`
	}
	if err := decodeJSON(r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.runCommand(w, entry, entry.Session.RequestRefinement(r.Context(), request.Instruction))
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request, entry *storage.Entry) {
	var request struct {
		Timestamp string `json:"timestamp"`
	}
	if err := decodeJSON(r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	ts, err := time.Parse(time.RFC3339Nano, request.Timestamp)
	if err != nil {
		h.writeError(w, "Invalid timestamp: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.runCommand(w, entry, entry.Session.SelectHistoryEntry(ts))
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request, entry *storage.Entry) {
	var request struct {
		Stage string `json:"stage"`
	}
	if err := decodeJSON(r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	stage, err := models.ParseStage(request.Stage)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.runCommand(w, entry, entry.Session.NavigateTo(stage))
}

func (h *Handler) handleConference(w http.ResponseWriter, r *http.Request, entry *storage.Entry) {
	var request struct {
		Conference string `json:"conference"`
	}
	if err := decodeJSON(r, &request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	conference, err := models.ParseConference(request.Conference)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.runCommand(w, entry, entry.Session.SetConference(conference))
}
