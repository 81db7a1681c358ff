package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/models"
)

// Manager is the façade the engine talks to. It owns the short-term
// buffer, the long-term store, the cache tier, and persistence, and it
// absorbs every storage failure: callers always get a context back.
type Manager struct {
	store     *Store
	shortTerm *ShortTerm
	longTerm  *LongTerm
	cache     *ttlCache
	userID    string

	// mu guards history, errorSamples, and persistence. Turn goroutines
	// and the cleanup service's ticker both land here.
	mu           sync.Mutex
	history      []models.TurnRecord
	errorSamples []errorSample
}

// errorSample is one successful error-handler response kept for few-shot
// reuse, error_learning.json shape.
type errorSample struct {
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	Guidance  string    `json:"guidance"`
	Timestamp time.Time `json:"timestamp"`
}

// NewManager opens the memory directory and loads all persisted tiers.
// Unreadable files are logged and treated as empty.
func NewManager(cfg *config.MemoryConfig) (*Manager, error) {
	store, err := NewStore(cfg.Dir)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		store:     store,
		shortTerm: NewShortTerm(),
		longTerm:  NewLongTerm(),
		cache:     newTTLCache(cfg.CacheTTL),
		userID:    cfg.UserID,
	}
	m.loadAll()
	return m, nil
}

func (m *Manager) loadAll() {
	var st shortTermState
	if err := m.store.load(shortTermFile, &st); err != nil {
		slog.Warn("Memory: short-term load failed, starting empty", "error", err)
	} else {
		m.shortTerm.restore(st)
	}

	var lt longTermState
	if err := m.store.load(longTermFile, &lt); err != nil {
		slog.Warn("Memory: long-term load failed, starting empty", "error", err)
		lt = longTermState{}
	}
	var prefs map[string]map[string]any
	if err := m.store.load(preferencesFile, &prefs); err != nil {
		slog.Warn("Memory: preferences load failed, starting empty", "error", err)
		prefs = nil
	}
	m.longTerm.restore(lt, prefs)

	if err := m.store.load(historyFile, &m.history); err != nil {
		slog.Warn("Memory: conversation history load failed, starting empty", "error", err)
	}
	if err := m.store.load(errorLearnFile, &m.errorSamples); err != nil {
		slog.Warn("Memory: error-learning load failed, starting empty", "error", err)
	}
}

// LoadContext assembles the cross-turn context for a session. Results are
// cached per session with the configured TTL.
func (m *Manager) LoadContext(sessionID string) *models.MemoryContext {
	key := "ctx:" + sessionID
	if v, ok := m.cache.get(key); ok {
		if ctx, ok := v.(*models.MemoryContext); ok {
			return ctx
		}
	}
	turns, actions := m.shortTerm.GetRecentContext(5)
	ctx := &models.MemoryContext{
		RecentTurns:   turns,
		RecentActions: actions,
		Preferences:   m.longTerm.GetPreferences(m.userID),
		Suggestions:   m.longTerm.SmartSuggest("", 5),
	}
	m.cache.put(key, ctx)
	return ctx
}

// SaveTurn records a completed turn across the tiers and persists
// everything. Called at MemorySave; failures are logged, never returned.
func (m *Manager) SaveTurn(st *models.TurnState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := ""
	if st.Presentation != nil {
		summary = st.Presentation.Summary
	}
	rec := models.TurnRecord{
		SessionID: st.SessionID,
		UserInput: st.UserInput,
		Response:  summary,
		Strategy:  st.ExecutionStrategy,
		Success:   st.ExecutionError == "" && st.PlanError == "",
		Timestamp: time.Now(),
	}
	m.shortTerm.AddTurn(rec)
	m.history = append(m.history, rec)
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}

	if plan := st.EffectivePlan(); plan != nil && rec.Success {
		for _, step := range plan.AllSteps() {
			m.shortTerm.AddAction(models.ActionRecord{
				Action:    step.Action,
				Service:   step.Service,
				Success:   true,
				Timestamp: time.Now(),
			})
			m.longTerm.LearnPattern("action", map[string]any{
				"action":  step.Action,
				"service": step.Service,
			})
			m.longTerm.LearnUserPattern(m.userID, "action", map[string]any{
				"action":  step.Action,
				"service": step.Service,
			})
		}
	}

	m.cache.invalidate("ctx:" + st.SessionID)
	m.persistAll()
}

// UpdatePreferences writes through to long-term storage.
func (m *Manager) UpdatePreferences(prefs map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.longTerm.UpdatePreferences(m.userID, prefs)
	m.cache.invalidate("prefs:" + m.userID)
	m.persistAll()
}

// GetPreferences reads the current user's preferences through the cache.
func (m *Manager) GetPreferences() map[string]any {
	key := "prefs:" + m.userID
	if v, ok := m.cache.get(key); ok {
		if prefs, ok := v.(map[string]any); ok {
			return prefs
		}
	}
	prefs := m.longTerm.GetPreferences(m.userID)
	m.cache.put(key, prefs)
	return prefs
}

// SmartSuggest surfaces memory-derived suggestions.
func (m *Manager) SmartSuggest(contextHint string) []models.Suggestion {
	return m.longTerm.SmartSuggest(contextHint, 5)
}

// ClearSession drops the short-term buffer.
func (m *Manager) ClearSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortTerm.ClearSession()
	m.persistAll()
}

// AppendErrorSample stores a successful error-handler response, capped at
// 50 entries.
func (m *Manager) AppendErrorSample(stage, errText, guidance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorSamples = append(m.errorSamples, errorSample{
		Stage:     stage,
		Error:     errText,
		Guidance:  guidance,
		Timestamp: time.Now(),
	})
	if len(m.errorSamples) > errorLearningCap {
		m.errorSamples = m.errorSamples[len(m.errorSamples)-errorLearningCap:]
	}
	if err := m.store.save(errorLearnFile, m.errorSamples); err != nil {
		slog.Warn("Memory: error-learning save failed", "error", err)
	}
}

// ErrorSampleCount reports how many error-handler samples are stored.
func (m *Manager) ErrorSampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errorSamples)
}

// History returns the persisted conversation history, newest last.
func (m *Manager) History() []models.TurnRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TurnRecord(nil), m.history...)
}

// persistAll writes every tier out. Callers hold m.mu, which also
// serializes the file writes.
func (m *Manager) persistAll() {
	if err := m.store.save(shortTermFile, m.shortTerm.snapshot()); err != nil {
		slog.Warn("Memory: short-term save failed", "error", err)
	}
	if err := m.store.save(longTermFile, m.longTerm.snapshot()); err != nil {
		slog.Warn("Memory: long-term save failed", "error", err)
	}
	if err := m.store.save(preferencesFile, m.longTerm.preferencesSnapshot()); err != nil {
		slog.Warn("Memory: preferences save failed", "error", err)
	}
	if err := m.store.save(historyFile, m.history); err != nil {
		slog.Warn("Memory: history save failed", "error", err)
	}
}

// TrimHistories re-applies the record caps; the cleanup service calls this
// to repair files grown past their limits by older versions.
func (m *Manager) TrimHistories() {
	m.mu.Lock()
	defer m.mu.Unlock()
	trimmed := false
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
		trimmed = true
	}
	if len(m.errorSamples) > errorLearningCap {
		m.errorSamples = m.errorSamples[len(m.errorSamples)-errorLearningCap:]
		trimmed = true
	}
	if trimmed {
		m.persistAll()
		if err := m.store.save(errorLearnFile, m.errorSamples); err != nil {
			slog.Warn("Memory: error-learning save failed", "error", err)
		}
	}
}

// SweepCache drops expired cache entries, returning the count removed.
func (m *Manager) SweepCache() int { return m.cache.sweep() }

// PruneOldFiles removes memory files older than maxAge.
func (m *Manager) PruneOldFiles(maxAge time.Duration) (int, error) {
	return m.store.PruneOldFiles(maxAge)
}
