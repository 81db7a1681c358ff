package models

// ExecutionType is the analyzer's verdict on how a query should be served.
type ExecutionType string

const (
	ExecDirectFetch ExecutionType = "DIRECT_FETCH"
	ExecMultiStep   ExecutionType = "MULTI_STEP_REQUIRED"
	ExecUnknown     ExecutionType = "UNKNOWN"
)

// Intent is the intent analyzer's output: what resource the user is
// talking about, what they want done with it, and how to serve it.
type Intent struct {
	PrimaryResource   string        `json:"primary_resource"`
	Action            string        `json:"action"`
	RequiresFiltering bool          `json:"requires_filtering"`
	FilterConditions  []Filter      `json:"filter_conditions,omitempty"`
	Complexity        string        `json:"complexity,omitempty"` // simple|moderate|complex
	EstimatedSteps    int           `json:"estimated_steps,omitempty"`
	Service           string        `json:"oci_service"`
	IsMutating        bool          `json:"is_mutating"`
	ExecutionType     ExecutionType `json:"execution_type"`
	Confidence        float64       `json:"confidence"`
	AnalysisMethod    string        `json:"analysis_method,omitempty"` // pattern|llm|fallback
}

// Executable reports whether the analyzer recognized an actionable cloud
// request, as opposed to general conversation.
func (i *Intent) Executable() bool {
	return i != nil && i.Action != "" && i.ExecutionType != ExecUnknown
}
