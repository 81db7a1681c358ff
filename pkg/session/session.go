// Package session tracks conversational sessions: the chat transcript, the
// running turn's cancel handle, and the paused turn state while an
// interactive prompt waits for the user's answer.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/potto-labs/potto/pkg/models"
)

var (
	// ErrNotFound means the session ID is unknown or already swept.
	ErrNotFound = errors.New("session not found")
	// ErrNotPaused means a resume arrived but no turn is waiting.
	ErrNotPaused = errors.New("session has no paused turn")
	// ErrBusy means a turn is already running on the session.
	ErrBusy = errors.New("session has a turn in flight")
)

// Session is one conversation. The paused state is the suspended turn an
// interactive prompt is waiting on; Resume hands it back exactly once.
type Session struct {
	ID         string
	UserID     string
	CreatedAt  time.Time
	LastActive time.Time

	transcript []models.ChatMessage
	paused     *models.TurnState
	cancel     context.CancelFunc
}

// Manager is the in-memory session registry.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds an empty registry.
func NewManager() *Manager {
	return &Manager{sessions: map[string]*Session{}}
}

// Create registers a new session and returns it.
func (m *Manager) Create(userID string) *Session {
	now := time.Now()
	s := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		CreatedAt:  now,
		LastActive: now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get looks a session up.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetOrCreate returns the named session, registering it when the ID is
// unknown. Clients that keep their own session IDs land here.
func (m *Manager) GetOrCreate(id, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	now := time.Now()
	s := &Session{ID: id, UserID: userID, CreatedAt: now, LastActive: now}
	m.sessions[id] = s
	return s
}

// Begin marks a turn in flight and stores its cancel handle. A session
// runs one turn at a time.
func (m *Manager) Begin(id string, cancel context.CancelFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.cancel != nil {
		return ErrBusy
	}
	s.cancel = cancel
	s.LastActive = time.Now()
	return nil
}

// Finish clears the in-flight marker and, when the turn suspended on an
// interactive prompt, parks its state for the next resume.
func (m *Manager) Finish(id string, st *models.TurnState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.cancel = nil
	s.LastActive = time.Now()
	if st.AwaitingUserInput() {
		s.paused = st
	} else {
		s.paused = nil
	}
	s.transcript = append(s.transcript, models.ChatMessage{Role: "user", Content: st.UserInput})
	if st.Presentation != nil {
		s.transcript = append(s.transcript, models.ChatMessage{Role: "assistant", Content: st.Presentation.Summary})
	}
}

// TakePaused pops the suspended turn for a resume. The state is handed
// out exactly once; a second resume without a new pause fails.
func (m *Manager) TakePaused(id string) (*models.TurnState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.paused == nil {
		return nil, ErrNotPaused
	}
	st := s.paused
	s.paused = nil
	s.LastActive = time.Now()
	return st, nil
}

// Cancel aborts the in-flight turn, if any.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	return nil
}

// Transcript returns a copy of the session's chat history.
func (m *Manager) Transcript(id string) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]models.ChatMessage(nil), s.transcript...), nil
}

// Count reports the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SweepIdle drops sessions idle longer than ttl, skipping any with a turn
// in flight. Returns how many were removed.
func (m *Manager) SweepIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.cancel != nil {
			continue
		}
		if s.LastActive.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
