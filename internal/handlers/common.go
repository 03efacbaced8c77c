package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/providers"
	"github.com/lehigh-university-libraries/figurebench/internal/storage"
	"github.com/lehigh-university-libraries/figurebench/internal/workflow"
)

// Limit uploads and downloaded papers to 10MB
const maxDocumentSize = 10 * 1024 * 1024

type Handler struct {
	sessionStore *storage.SessionStore
	gateway      providers.Gateway
	sessionOpts  []workflow.Option
	httpClient   *http.Client
}

// AllowPrivateURLs lets URL analysis fetch from loopback and private
// networks. It must be called before the handler serves requests.
func (h *Handler) AllowPrivateURLs(allow bool) {
	h.httpClient = newFetchClient(allow)
}

// New returns a Handler whose sessions all talk to gateway.
func New(gateway providers.Gateway, opts ...workflow.Option) *Handler {
	return &Handler{
		sessionStore: storage.New(),
		gateway:      gateway,
		sessionOpts:  opts,
		httpClient:   newFetchClient(false),
	}
}

type sessionResponse struct {
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"created_at"`
	State       models.WorkflowState `json:"state"`
	CanNavigate map[string]bool      `json:"can_navigate"`
}

type errorResponse struct {
	Error     string           `json:"error"`
	Retryable bool             `json:"retryable"`
	Session   *sessionResponse `json:"session,omitempty"`
}

func newSessionResponse(entry *storage.Entry) sessionResponse {
	resp := sessionResponse{
		ID:          entry.ID,
		CreatedAt:   entry.CreatedAt,
		State:       entry.Session.State(),
		CanNavigate: make(map[string]bool, 4),
	}
	for _, stage := range []models.Stage{models.StageSetup, models.StageUnderstanding, models.StageGeneration, models.StageRefinement} {
		resp.CanNavigate[stage.String()] = entry.Session.CanNavigate(stage)
	}
	return resp
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// writeCommandError reports a failed workflow command together with the
// session snapshot, whose last_error carries the same message.
func (h *Handler) writeCommandError(w http.ResponseWriter, entry *storage.Entry, err error) {
	code := statusFor(err)
	slog.Error("Command failed", "session_id", entry.ID, "status", code, "err", err)
	resp := newSessionResponse(entry)
	h.writeJSONStatus(w, code, errorResponse{
		Error:     err.Error(),
		Retryable: workflow.IsRetryable(err),
		Session:   &resp,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrValidation), errors.Is(err, workflow.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, providers.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Session helpers
func (h *Handler) getSessionOrError(w http.ResponseWriter, sessionID string) (*storage.Entry, bool) {
	entry, exists := h.sessionStore.Get(sessionID)
	if !exists {
		h.writeError(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return entry, true
}

func (h *Handler) newSession(id string) *workflow.Session {
	opts := append([]workflow.Option{}, h.sessionOpts...)
	opts = append(opts, workflow.WithLogger(slog.Default().With("session_id", id)))
	return workflow.New(h.gateway, opts...)
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// parseConference treats an empty name as "keep the current venue".
func parseConference(name string) (models.Conference, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	return models.ParseConference(name)
}
