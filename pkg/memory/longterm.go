package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/potto-labs/potto/pkg/models"
)

// learnedPattern is one stored behavior pattern with usage statistics.
type learnedPattern struct {
	Payload   map[string]any `json:"payload"`
	Frequency int            `json:"frequency"`
	LastUsed  time.Time      `json:"last_used"`
}

// longTermState is the long_term.json file shape.
type longTermState struct {
	LearningPatterns map[string][]learnedPattern            `json:"learning_patterns"`
	UserPatterns     map[string]map[string][]learnedPattern `json:"user_patterns"`
	ProjectContext   map[string]map[string]any              `json:"project_context"`
}

// similarityThreshold is the key-overlap ratio above which two pattern
// payloads are considered the same pattern and merged.
const similarityThreshold = 0.7

// LongTerm stores preferences, project context, and learned patterns.
type LongTerm struct {
	mu          sync.Mutex
	state       longTermState
	preferences map[string]map[string]any
}

// NewLongTerm builds an empty long-term store.
func NewLongTerm() *LongTerm {
	return &LongTerm{
		state: longTermState{
			LearningPatterns: map[string][]learnedPattern{},
			UserPatterns:     map[string]map[string][]learnedPattern{},
			ProjectContext:   map[string]map[string]any{},
		},
		preferences: map[string]map[string]any{},
	}
}

// UpdatePreferences merges new preference keys for a user.
func (lt *LongTerm) UpdatePreferences(userID string, prefs map[string]any) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	existing := lt.preferences[userID]
	if existing == nil {
		existing = map[string]any{}
		lt.preferences[userID] = existing
	}
	for k, v := range prefs {
		existing[k] = v
	}
}

// GetPreferences returns a copy of a user's preferences.
func (lt *LongTerm) GetPreferences(userID string) map[string]any {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	out := map[string]any{}
	for k, v := range lt.preferences[userID] {
		out[k] = v
	}
	return out
}

// SetProjectContext replaces the stored context for a project.
func (lt *LongTerm) SetProjectContext(projectID string, ctx map[string]any) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.state.ProjectContext[projectID] = ctx
}

// GetProjectContext returns the stored context for a project.
func (lt *LongTerm) GetProjectContext(projectID string) map[string]any {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.state.ProjectContext[projectID]
}

// LearnPattern records a behavior pattern. A payload whose keys overlap an
// existing pattern of the same type by at least 70% increments that
// pattern's frequency instead of storing a duplicate.
func (lt *LongTerm) LearnPattern(patternType string, payload map[string]any) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.state.LearningPatterns[patternType] = mergePattern(lt.state.LearningPatterns[patternType], payload)
}

// LearnUserPattern is LearnPattern scoped to one user.
func (lt *LongTerm) LearnUserPattern(userID, patternType string, payload map[string]any) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	byType := lt.state.UserPatterns[userID]
	if byType == nil {
		byType = map[string][]learnedPattern{}
		lt.state.UserPatterns[userID] = byType
	}
	byType[patternType] = mergePattern(byType[patternType], payload)
}

func mergePattern(patterns []learnedPattern, payload map[string]any) []learnedPattern {
	for i := range patterns {
		if keyOverlap(patterns[i].Payload, payload) >= similarityThreshold {
			patterns[i].Frequency++
			patterns[i].LastUsed = time.Now()
			return patterns
		}
	}
	return append(patterns, learnedPattern{
		Payload:   payload,
		Frequency: 1,
		LastUsed:  time.Now(),
	})
}

// keyOverlap is |keys(a) ∩ keys(b)| / |keys(a) ∪ keys(b)|.
func keyOverlap(a, b map[string]any) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	union := map[string]bool{}
	for k := range a {
		union[k] = true
	}
	common := 0
	for k := range b {
		if union[k] {
			common++
		}
		union[k] = true
	}
	return float64(common) / float64(len(union))
}

// SmartSuggest returns suggestions derived from learned patterns, sorted
// by frequency then recency. contextHint, when non-empty, restricts the
// result to pattern types containing the hint.
func (lt *LongTerm) SmartSuggest(contextHint string, limit int) []models.Suggestion {
	if limit <= 0 {
		limit = 5
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()

	var out []models.Suggestion
	for pType, patterns := range lt.state.LearningPatterns {
		if contextHint != "" && !containsFold(pType, contextHint) {
			continue
		}
		for _, p := range patterns {
			out = append(out, models.Suggestion{
				PatternType: pType,
				Description: describePattern(pType, p.Payload),
				Frequency:   p.Frequency,
				LastUsed:    p.LastUsed,
				Payload:     p.Payload,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].LastUsed.After(out[j].LastUsed)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func describePattern(pType string, payload map[string]any) string {
	if desc, ok := payload["description"].(string); ok && desc != "" {
		return desc
	}
	if action, ok := payload["action"].(string); ok {
		if service, ok := payload["service"].(string); ok {
			return action + " on " + service
		}
		return action
	}
	return pType
}

// snapshot returns a copy safe to marshal outside the lock: LearnPattern
// mutates pattern entries in place, so the slices must not be shared.
func (lt *LongTerm) snapshot() longTermState {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	out := longTermState{
		LearningPatterns: clonePatterns(lt.state.LearningPatterns),
		UserPatterns:     make(map[string]map[string][]learnedPattern, len(lt.state.UserPatterns)),
		ProjectContext:   make(map[string]map[string]any, len(lt.state.ProjectContext)),
	}
	for user, byType := range lt.state.UserPatterns {
		out.UserPatterns[user] = clonePatterns(byType)
	}
	for id, ctx := range lt.state.ProjectContext {
		cp := make(map[string]any, len(ctx))
		for k, v := range ctx {
			cp[k] = v
		}
		out.ProjectContext[id] = cp
	}
	return out
}

func clonePatterns(src map[string][]learnedPattern) map[string][]learnedPattern {
	out := make(map[string][]learnedPattern, len(src))
	for k, v := range src {
		out[k] = append([]learnedPattern(nil), v...)
	}
	return out
}

func (lt *LongTerm) restore(state longTermState, prefs map[string]map[string]any) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if state.LearningPatterns == nil {
		state.LearningPatterns = map[string][]learnedPattern{}
	}
	if state.UserPatterns == nil {
		state.UserPatterns = map[string]map[string][]learnedPattern{}
	}
	if state.ProjectContext == nil {
		state.ProjectContext = map[string]map[string]any{}
	}
	lt.state = state
	if prefs != nil {
		lt.preferences = prefs
	}
}

func (lt *LongTerm) preferencesSnapshot() map[string]map[string]any {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	out := make(map[string]map[string]any, len(lt.preferences))
	for user, prefs := range lt.preferences {
		cp := make(map[string]any, len(prefs))
		for k, v := range prefs {
			cp[k] = v
		}
		out[user] = cp
	}
	return out
}
