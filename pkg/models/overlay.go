package models

// Overlay is the partial state delta a stage returns. Nil pointer fields
// leave the corresponding state field untouched; the Clear* flags exist for
// the few fields a stage must reset rather than replace. The graph driver
// applies overlays in stage-emission order, so later writes win.
type Overlay struct {
	NormalizedQuery *string
	UseRetrieval    *bool

	Intent      *Intent
	Plan        *Plan
	PendingPlan *Plan

	MissingParameters            []string
	RequiresConfirmation         *bool
	ConfirmationResponse         *string
	ParameterSelectionResponse   *string
	CompartmentSelectionRequired *bool
	CompartmentData              []ResultItem

	ExecutionResult []ResultItem
	ExecutionError  *string
	PlanError       *string
	VerifyCritique  *string

	NextStep          *string
	Terminal          *bool
	PresentationMode  *PresentationMode
	ExecutionStrategy *ExecutionStrategy

	VerifyRetries    *int
	ExecutionRetries *int
	PlanRetries      *int

	Presentation  *Presentation
	MemoryContext *MemoryContext

	ClearPendingPlan       bool
	ClearMissingParameters bool
	ClearExecutionError    bool
	ClearPlanError         bool
	ClearConfirmation      bool
	ClearParameterResponse bool
}

// Apply merges the overlay into the state. Scalar pointers overwrite,
// slices replace wholesale when non-nil, and Clear* flags reset their
// fields after any replacement from the same overlay.
func (s *TurnState) Apply(o *Overlay) {
	if o == nil {
		return
	}
	if o.NormalizedQuery != nil {
		s.NormalizedQuery = *o.NormalizedQuery
	}
	if o.UseRetrieval != nil {
		s.UseRetrieval = *o.UseRetrieval
	}
	if o.Intent != nil {
		s.Intent = o.Intent
	}
	if o.Plan != nil {
		s.Plan = o.Plan
	}
	if o.PendingPlan != nil {
		s.PendingPlan = o.PendingPlan
	}
	if o.MissingParameters != nil {
		s.MissingParameters = o.MissingParameters
	}
	if o.RequiresConfirmation != nil {
		s.RequiresConfirmation = *o.RequiresConfirmation
	}
	if o.ConfirmationResponse != nil {
		s.ConfirmationResponse = *o.ConfirmationResponse
	}
	if o.ParameterSelectionResponse != nil {
		s.ParameterSelectionResponse = *o.ParameterSelectionResponse
	}
	if o.CompartmentSelectionRequired != nil {
		s.CompartmentSelectionRequired = *o.CompartmentSelectionRequired
	}
	if o.CompartmentData != nil {
		s.CompartmentData = o.CompartmentData
	}
	if o.ExecutionResult != nil {
		s.ExecutionResult = o.ExecutionResult
	}
	if o.ExecutionError != nil {
		s.ExecutionError = *o.ExecutionError
	}
	if o.PlanError != nil {
		s.PlanError = *o.PlanError
	}
	if o.VerifyCritique != nil {
		s.VerifyCritique = *o.VerifyCritique
	}
	if o.NextStep != nil {
		s.NextStep = *o.NextStep
	}
	if o.Terminal != nil {
		s.Terminal = *o.Terminal
	}
	if o.PresentationMode != nil {
		s.PresentationMode = *o.PresentationMode
	}
	if o.ExecutionStrategy != nil {
		s.ExecutionStrategy = *o.ExecutionStrategy
	}
	if o.VerifyRetries != nil {
		s.VerifyRetries = *o.VerifyRetries
	}
	if o.ExecutionRetries != nil {
		s.ExecutionRetries = *o.ExecutionRetries
	}
	if o.PlanRetries != nil {
		s.PlanRetries = *o.PlanRetries
	}
	if o.Presentation != nil {
		s.Presentation = o.Presentation
	}
	if o.MemoryContext != nil {
		s.MemoryContext = o.MemoryContext
	}

	if o.ClearPendingPlan {
		s.PendingPlan = nil
	}
	if o.ClearMissingParameters {
		s.MissingParameters = nil
	}
	if o.ClearExecutionError {
		s.ExecutionError = ""
	}
	if o.ClearPlanError {
		s.PlanError = ""
	}
	if o.ClearConfirmation {
		s.RequiresConfirmation = false
		s.ConfirmationResponse = ""
	}
	if o.ClearParameterResponse {
		s.ParameterSelectionResponse = ""
	}
}

// Route builds the minimal overlay that only sets the next stage.
func Route(next string) *Overlay {
	return &Overlay{NextStep: &next}
}

// RouteMode routes to presentation with an explicit mode.
func RouteMode(next string, mode PresentationMode) *Overlay {
	return &Overlay{NextStep: &next, PresentationMode: &mode}
}

// StringPtr, BoolPtr and IntPtr are overlay field helpers.
func StringPtr(v string) *string { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// StrategyPtr returns a pointer to v.
func StrategyPtr(v ExecutionStrategy) *ExecutionStrategy { return &v }

// ModePtr returns a pointer to v.
func ModePtr(v PresentationMode) *PresentationMode { return &v }
