package models

// Presentation is the single output object of a turn.
type Presentation struct {
	Summary string           `json:"summary"`
	Format  string           `json:"format"` // chat|table
	Data    []map[string]any `json:"data,omitempty"`
	Columns []string         `json:"columns,omitempty"`

	// Interactive flags. When any is set the turn is suspended and the
	// caller is expected to answer via the resume entry point.
	ConfirmationRequired         bool `json:"confirmation_required,omitempty"`
	ParameterGatheringRequired   bool `json:"parameter_gathering_required,omitempty"`
	CompartmentSelectionRequired bool `json:"compartment_selection_required,omitempty"`
	ActionCancelled              bool `json:"action_cancelled,omitempty"`

	// MissingParameters echoes what the prompt is asking for, so clients
	// can render structured inputs instead of free text.
	MissingParameters []string `json:"missing_parameters,omitempty"`
}

// Interactive reports whether the presentation suspends the turn.
func (p *Presentation) Interactive() bool {
	if p == nil {
		return false
	}
	return p.ConfirmationRequired || p.ParameterGatheringRequired || p.CompartmentSelectionRequired
}

const (
	FormatChat  = "chat"
	FormatTable = "table"
)
