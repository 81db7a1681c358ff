package memory

import (
	"sync"
	"time"

	"github.com/potto-labs/potto/pkg/models"
)

const (
	turnRingSize   = 20
	actionRingSize = 10
)

// shortTermState is the short_term.json file shape.
type shortTermState struct {
	ConversationHistory []models.TurnRecord   `json:"conversation_history"`
	RecentActions       []models.ActionRecord `json:"recent_actions"`
	CurrentContext      map[string]any        `json:"current_context"`
}

// ShortTerm is the per-session ring buffer: the last 20 turns and the last
// 10 executed actions.
type ShortTerm struct {
	mu    sync.Mutex
	state shortTermState
}

// NewShortTerm builds an empty buffer.
func NewShortTerm() *ShortTerm {
	return &ShortTerm{state: shortTermState{CurrentContext: map[string]any{}}}
}

// AddTurn appends a completed turn, evicting the oldest past 20.
func (st *ShortTerm) AddTurn(rec models.TurnRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	st.state.ConversationHistory = append(st.state.ConversationHistory, rec)
	if n := len(st.state.ConversationHistory); n > turnRingSize {
		st.state.ConversationHistory = st.state.ConversationHistory[n-turnRingSize:]
	}
}

// AddAction appends an executed cloud operation, evicting past 10.
func (st *ShortTerm) AddAction(rec models.ActionRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	st.state.RecentActions = append(st.state.RecentActions, rec)
	if n := len(st.state.RecentActions); n > actionRingSize {
		st.state.RecentActions = st.state.RecentActions[n-actionRingSize:]
	}
}

// GetRecentContext returns the last n turns and actions, newest last.
func (st *ShortTerm) GetRecentContext(n int) ([]models.TurnRecord, []models.ActionRecord) {
	if n <= 0 {
		n = 5
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	turns := tail(st.state.ConversationHistory, n)
	actions := tail(st.state.RecentActions, n)
	return turns, actions
}

// ClearSession drops all buffered turns and actions for a fresh session.
func (st *ShortTerm) ClearSession() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = shortTermState{CurrentContext: map[string]any{}}
}

func (st *ShortTerm) snapshot() shortTermState {
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := shortTermState{
		ConversationHistory: append([]models.TurnRecord(nil), st.state.ConversationHistory...),
		RecentActions:       append([]models.ActionRecord(nil), st.state.RecentActions...),
		CurrentContext:      map[string]any{},
	}
	for k, v := range st.state.CurrentContext {
		cp.CurrentContext[k] = v
	}
	return cp
}

func (st *ShortTerm) restore(state shortTermState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if state.CurrentContext == nil {
		state.CurrentContext = map[string]any{}
	}
	st.state = state
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return append([]T(nil), items...)
	}
	return append([]T(nil), items[len(items)-n:]...)
}
