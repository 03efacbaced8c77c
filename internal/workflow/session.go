// Package workflow holds the stage state machine that drives a diagram from
// paper analysis through generation and refinement.
//
// A Session owns all state. Callers read it through State and change it only
// through the command methods. At most one backend operation is in flight per
// session; commands issued while one is running are rejected.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/lehigh-university-libraries/figurebench/internal/providers"
)

type Session struct {
	mu      sync.Mutex
	gateway providers.Gateway
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	state models.WorkflowState

	// opID identifies the in-flight operation. Cancel and Reset bump it so a
	// late result no longer matches and is dropped.
	opID   uint64
	cancel context.CancelFunc
	lastTS time.Time
}

type Option func(*Session)

// WithTimeout bounds every backend call. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a session in the default SETUP state.
func New(gateway providers.Gateway, opts ...Option) *Session {
	s := &Session{
		gateway: gateway,
		logger:  slog.Default(),
		now:     time.Now,
		state:   models.DefaultState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot that shares no memory with the session.
func (s *Session) State() models.WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() models.WorkflowState {
	st := s.state
	st.Analysis = s.state.Analysis.Clone()
	st.History = make([]models.HistoryItem, len(s.state.History))
	copy(st.History, s.state.History)
	return st
}

// SubmitDocument analyzes the paper and moves the session to UNDERSTANDING.
// An empty conference keeps the current selection.
func (s *Session) SubmitDocument(ctx context.Context, doc models.Document, conference models.Conference) error {
	if err := doc.Validate(); err != nil {
		return invalid("%v", err)
	}

	opCtx, id, err := s.begin(ctx, "analyze", func() error {
		if conference == "" {
			conference = s.state.Conference
		}
		if !conference.Valid() {
			return invalid("unsupported conference %q", conference)
		}
		return nil
	})
	if err != nil {
		return err
	}

	analysis, err := s.gateway.Analyze(opCtx, doc, conference)
	if err == nil && analysis == nil {
		err = fmt.Errorf("%w: backend returned no analysis", providers.ErrAnalysis)
	}
	return s.finish(id, "analyze", err, func() {
		s.state.Analysis = analysis.Clone()
		s.state.Conference = conference
		s.state.Stage = models.StageUnderstanding
		s.logger.Info("Analysis stored", "title", analysis.Title, "layout", analysis.LayoutStrategy, "components", len(analysis.KeyComponents))
	})
}

// RequestGeneration renders the first diagram from the stored blueprint and
// seeds the history with it.
func (s *Session) RequestGeneration(ctx context.Context) error {
	var blueprint string
	opCtx, id, err := s.begin(ctx, "generate", func() error {
		if s.state.Analysis == nil {
			return invalid("no analysis available; submit a document first")
		}
		blueprint = s.state.Analysis.ArchitectureBlueprint
		return nil
	})
	if err != nil {
		return err
	}

	img, err := s.gateway.Generate(opCtx, blueprint)
	if err == nil && img.IsZero() {
		err = fmt.Errorf("%w: backend returned no image", providers.ErrRender)
	}
	return s.finish(id, "generate", err, func() {
		s.state.CurrentImage = img
		s.state.History = []models.HistoryItem{{
			Prompt:    models.InitialPrompt,
			ImageURL:  img,
			Timestamp: s.timestamp(),
		}}
		s.state.Stage = models.StageGeneration
		s.logger.Info("Initial diagram stored")
	})
}

// RequestRefinement edits the current image with instruction, or with the
// stored draft when instruction is blank. The draft is cleared only on success.
func (s *Session) RequestRefinement(ctx context.Context, instruction string) error {
	var (
		current   models.ImageRef
		blueprint string
		edit      string
	)
	opCtx, id, err := s.begin(ctx, "refine", func() error {
		edit = instruction
		if strings.TrimSpace(edit) == "" {
			edit = s.state.RefinementDraft
		}
		if strings.TrimSpace(edit) == "" {
			return invalid("refinement instruction is empty")
		}
		if s.state.CurrentImage.IsZero() {
			return invalid("no image to refine; generate one first")
		}
		if s.state.Analysis == nil {
			return invalid("no analysis available")
		}
		current = s.state.CurrentImage
		blueprint = s.state.Analysis.ArchitectureBlueprint
		return nil
	})
	if err != nil {
		return err
	}

	img, err := s.gateway.Refine(opCtx, current, edit, blueprint)
	if err == nil && img.IsZero() {
		err = fmt.Errorf("%w: backend returned no image", providers.ErrRefine)
	}
	return s.finish(id, "refine", err, func() {
		item := models.HistoryItem{Prompt: edit, ImageURL: img, Timestamp: s.timestamp()}
		s.state.History = append([]models.HistoryItem{item}, s.state.History...)
		s.state.CurrentImage = img
		s.state.RefinementDraft = ""
		s.state.Stage = models.StageRefinement
		s.logger.Info("Refinement stored", "instruction", edit, "history", len(s.state.History))
	})
}

// begin validates a command under the lock and marks the session loading.
// check runs with the lock held and may capture inputs from the state.
func (s *Session) begin(ctx context.Context, op string, check func() error) (context.Context, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsLoading {
		return nil, 0, invalid("another operation is in progress")
	}
	if err := check(); err != nil {
		s.logger.Debug("Command rejected", "op", op, "err", err)
		return nil, 0, err
	}

	var opCtx context.Context
	var cancel context.CancelFunc
	if s.timeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		opCtx, cancel = context.WithCancel(ctx)
	}

	s.opID++
	s.cancel = cancel
	s.state.IsLoading = true
	s.state.LastError = ""
	s.logger.Info("Operation started", "op", op, "stage", s.state.Stage)
	return opCtx, s.opID, nil
}

// finish applies the outcome of operation id unless it was invalidated by
// Cancel or Reset in the meantime.
func (s *Session) finish(id uint64, op string, err error, apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.opID || !s.state.IsLoading {
		s.logger.Info("Discarding result of cancelled operation", "op", op)
		return fmt.Errorf("%s: %w", op, ErrCancelled)
	}

	s.cancel()
	s.cancel = nil
	s.state.IsLoading = false

	if err != nil {
		err = s.classify(err)
		s.state.LastError = err.Error()
		s.logger.Error("Operation failed", "op", op, "err", err, "retryable", IsRetryable(err))
		return err
	}

	apply()
	s.checkInvariants(op)
	return nil
}

// Cancel aborts the in-flight operation. The backend may keep working but its
// result is discarded. It reports whether anything was cancelled.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.IsLoading {
		return false
	}
	s.abort()
	s.state.IsLoading = false
	s.state.LastError = CancelledMessage
	s.logger.Info("Operation cancelled")
	return true
}

// abort invalidates and cancels the in-flight operation, if any.
func (s *Session) abort() {
	s.opID++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Reset returns the session to its initial state, cancelling any in-flight operation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abort()
	s.state = models.DefaultState()
	s.logger.Info("Session reset")
}

// CanNavigate reports whether the user may move to target.
func (s *Session) CanNavigate(target models.Stage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canNavigate(target)
}

func (s *Session) canNavigate(target models.Stage) bool {
	if s.state.IsLoading {
		return false
	}
	switch target {
	case models.StageSetup:
		return true
	case models.StageUnderstanding:
		return s.state.Analysis != nil
	case models.StageGeneration:
		return !s.state.CurrentImage.IsZero()
	case models.StageRefinement:
		return len(s.state.History) > 0
	default:
		return false
	}
}

// NavigateTo moves the stage pointer without touching any artifact.
func (s *Session) NavigateTo(target models.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.canNavigate(target) {
		return invalid("cannot navigate to %s", target)
	}
	s.state.Stage = target
	s.checkInvariants("navigate")
	return nil
}

// SelectHistoryEntry makes the image recorded at ts current again.
func (s *Session) SelectHistoryEntry(ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsLoading {
		return invalid("another operation is in progress")
	}
	item, ok := s.state.FindHistory(ts)
	if !ok {
		return invalid("no history entry at %s", ts.Format(time.RFC3339Nano))
	}
	s.state.CurrentImage = item.ImageURL
	if s.state.Stage < models.StageGeneration {
		s.state.Stage = models.StageGeneration
	}
	s.checkInvariants("select")
	return nil
}

// SetConference changes the venue used by the next analysis.
func (s *Session) SetConference(conference models.Conference) error {
	if !conference.Valid() {
		return invalid("unsupported conference %q", conference)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Conference = conference
	return nil
}

// SetRefinementDraft stores the in-progress edit instruction.
func (s *Session) SetRefinementDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.RefinementDraft = text
}

// timestamp returns a strictly increasing creation time for history entries.
func (s *Session) timestamp() time.Time {
	ts := s.now().Round(0)
	if !ts.After(s.lastTS) {
		ts = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = ts
	return ts
}

func (s *Session) checkInvariants(op string) {
	if err := s.state.CheckInvariants(); err != nil {
		s.logger.Error("Workflow invariant violated", "op", op, "err", err)
	}
}
