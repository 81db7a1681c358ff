package models

import "time"

// TurnRecord is one completed turn as remembered by short-term memory and
// the conversation history file.
type TurnRecord struct {
	SessionID string            `json:"session_id"`
	UserInput string            `json:"user_input"`
	Response  string            `json:"response"`
	Strategy  ExecutionStrategy `json:"strategy,omitempty"`
	Success   bool              `json:"success"`
	Timestamp time.Time         `json:"timestamp"`
}

// ActionRecord is one executed cloud operation as remembered by
// short-term memory.
type ActionRecord struct {
	Action    string    `json:"action"`
	Service   string    `json:"service"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Suggestion is one memory-derived hint surfaced to the user and to the
// supervisor prompt, ordered by (frequency, recency).
type Suggestion struct {
	PatternType string         `json:"pattern_type"`
	Description string         `json:"description"`
	Frequency   int            `json:"frequency"`
	LastUsed    time.Time      `json:"last_used"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// MemoryContext is the cross-turn context injected into state at
// MemoryLoad. A memory failure yields an empty context, never an error.
type MemoryContext struct {
	RecentTurns   []TurnRecord   `json:"recent_turns,omitempty"`
	RecentActions []ActionRecord `json:"recent_actions,omitempty"`
	Preferences   map[string]any `json:"preferences,omitempty"`
	Suggestions   []Suggestion   `json:"suggestions,omitempty"`
}
