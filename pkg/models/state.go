// Package models defines the domain types shared by every engine stage:
// the per-turn state record, plans, execution results, intents, retrieval
// documents, and the presentation object returned to the caller.
package models

import "time"

// Stage names used by the supervisor routing table and the graph driver.
const (
	StageSupervisor   = "supervisor"
	StageNormalizer   = "normalizer"
	StageRetriever    = "rag_retriever"
	StagePlanner      = "planner"
	StageCodeGen      = "codegen"
	StageVerifier     = "verifier"
	StageExecutor     = "executor"
	StagePresentation = "presentation"
	StageMemoryLoad   = "memory_load"
	StageMemorySave   = "memory_save"
	StageErrorHandler = "error_handler"

	// StageUserInput is a marker, not a runnable stage: the graph driver
	// pauses the turn and hands control back to the caller.
	StageUserInput = "user_input_required"

	// StageEnd terminates the turn.
	StageEnd = "end"
)

// ExecutionStrategy records which path produced the turn's answer.
type ExecutionStrategy string

const (
	StrategyDirectFetch          ExecutionStrategy = "direct_fetch"
	StrategyMultiStep            ExecutionStrategy = "multi_step"
	StrategyRetrievalChain       ExecutionStrategy = "retrieval_chain"
	StrategyRetrievalFallback    ExecutionStrategy = "retrieval_fallback_to_planner"
	StrategyLLMFallback          ExecutionStrategy = "llm_fallback"
)

// PresentationMode tells the presenter which kind of output the supervisor
// routed here: a data answer, an interactive prompt, or a terminal notice.
type PresentationMode string

const (
	PresentGeneralChat       PresentationMode = "general_chat"
	PresentData              PresentationMode = "data"
	PresentConfirmation      PresentationMode = "confirmation"
	PresentParameterGather   PresentationMode = "parameter_gathering"
	PresentCompartmentSelect PresentationMode = "compartment_selection"
	PresentCancelled         PresentationMode = "cancelled"
	PresentError             PresentationMode = "error"
	PresentLimitReached      PresentationMode = "limit_reached"
)

// MaxRecursion is the hard cap on stage entries per turn.
const MaxRecursion = 20

// ChatMessage is one (role, text) pair of the session transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnState is the authoritative per-turn record. It is passed by value
// between stages; each stage returns an Overlay that the graph driver
// merges back in emission order.
type TurnState struct {
	// Identity
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	UserID    string `json:"user_id,omitempty"`

	// Input
	UserInput       string        `json:"user_input"`
	NormalizedQuery string        `json:"normalized_query,omitempty"`
	UseRetrieval    bool          `json:"use_retrieval"`
	ChatHistory     []ChatMessage `json:"chat_history,omitempty"`

	// Analysis and planning
	Intent      *Intent `json:"intent,omitempty"`
	Plan        *Plan   `json:"plan,omitempty"`
	PendingPlan *Plan   `json:"pending_plan,omitempty"`

	// Interactive fields
	MissingParameters            []string     `json:"missing_parameters,omitempty"`
	RequiresConfirmation         bool         `json:"requires_confirmation"`
	ConfirmationResponse         string       `json:"confirmation_response,omitempty"`
	ParameterSelectionResponse   string       `json:"parameter_selection_response,omitempty"`
	CompartmentSelectionRequired bool         `json:"compartment_selection_required"`
	CompartmentData              []ResultItem `json:"compartment_data,omitempty"`

	// Execution
	ExecutionResult []ResultItem `json:"execution_result,omitempty"`
	ExecutionError  string       `json:"execution_error,omitempty"`
	PlanError       string       `json:"plan_error,omitempty"`
	VerifyCritique  string       `json:"verify_critique,omitempty"`

	// Routing
	LastNode          string            `json:"last_node,omitempty"`
	NextStep          string            `json:"next_step,omitempty"`
	Terminal          bool              `json:"terminal"`
	PresentationMode  PresentationMode  `json:"presentation_mode,omitempty"`
	ExecutionStrategy ExecutionStrategy `json:"execution_strategy,omitempty"`

	// Budgets
	RecursionCount   int `json:"recursion_count"`
	VerifyRetries    int `json:"verify_retries"`
	ExecutionRetries int `json:"execution_retries"`
	PlanRetries      int `json:"plan_retries"`

	// Output
	Presentation *Presentation `json:"presentation,omitempty"`

	// Cross-turn context loaded at MemoryLoad
	MemoryContext *MemoryContext `json:"memory_context,omitempty"`

	// Timings maps stage name to elapsed seconds.
	Timings map[string]float64 `json:"timings,omitempty"`

	StartedAt time.Time `json:"started_at"`
}

// NewTurnState builds the initial record for one turn.
func NewTurnState(sessionID, userInput string) TurnState {
	return TurnState{
		SessionID: sessionID,
		UserInput: userInput,
		Timings:   map[string]float64{},
		StartedAt: time.Now(),
	}
}

// AwaitingUserInput reports whether the turn is suspended on an
// interactive prompt.
func (s *TurnState) AwaitingUserInput() bool {
	return s.NextStep == StageUserInput
}

// RecordTiming accumulates elapsed seconds for a stage. Repeated entries
// (retries) add up.
func (s *TurnState) RecordTiming(stage string, seconds float64) {
	if s.Timings == nil {
		s.Timings = map[string]float64{}
	}
	s.Timings[stage] += seconds
}

// EffectivePlan returns the plan a downstream stage should act on: the
// pending plan while an interactive gate is open, otherwise the live plan.
func (s *TurnState) EffectivePlan() *Plan {
	if s.PendingPlan != nil {
		return s.PendingPlan
	}
	return s.Plan
}
