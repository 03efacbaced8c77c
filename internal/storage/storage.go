package storage

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/figurebench/internal/workflow"
)

// Entry is a registered workflow session.
type Entry struct {
	ID        string
	CreatedAt time.Time
	Session   *workflow.Session
}

type SessionStore struct {
	sessions map[string]*Entry
	mu       sync.RWMutex
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Entry),
	}
}

// Create registers a new session under a fresh id. newSession receives the
// id so it can tag the session's logger.
func (s *SessionStore) Create(newSession func(id string) *workflow.Session) *Entry {
	id := uuid.NewString()
	entry := &Entry{
		ID:        id,
		CreatedAt: time.Now(),
		Session:   newSession(id),
	}
	s.Set(entry.ID, entry)
	return entry
}

func (s *SessionStore) Get(sessionID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, exists := s.sessions[sessionID]
	return entry, exists
}

func (s *SessionStore) Set(sessionID string, entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = entry
}

// GetAll returns every entry, oldest first.
func (s *SessionStore) GetAll() []*Entry {
	s.mu.RLock()
	result := make([]*Entry, 0, len(s.sessions))
	for _, v := range s.sessions {
		result = append(result, v)
	}
	s.mu.RUnlock()

	slices.SortFunc(result, func(a, b *Entry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

// Delete removes the session and cancels whatever it is running.
func (s *SessionStore) Delete(sessionID string) bool {
	s.mu.Lock()
	entry, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if exists {
		entry.Session.Cancel()
	}
	return exists
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
