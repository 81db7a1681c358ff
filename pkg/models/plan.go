package models

// SafetyTier classifies an action as read-only or mutating.
type SafetyTier string

const (
	TierSafe        SafetyTier = "safe"
	TierDestructive SafetyTier = "destructive"
)

// Filter is one predicate applied to fetched resources, either by the
// service call itself or inside the generated program when FilterInCode
// is set on the owning step.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator,omitempty"` // equals (default), not_equals, contains
	Value    any    `json:"value"`
}

// PlanStep describes one intended cloud operation. A single-step Plan is
// exactly one of these; a multi-step Plan carries a sequence.
type PlanStep struct {
	Action               string         `json:"action"`
	Service              string         `json:"service"`
	Params               map[string]any `json:"params,omitempty"`
	SafetyTier           SafetyTier     `json:"safety_tier"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	MissingParameters    []string       `json:"missing_parameters,omitempty"`
	FilterInCode         bool           `json:"filter_in_code,omitempty"`
	Filters              []Filter       `json:"filters,omitempty"`

	// Artifact is the serialized ActionProgram for this step, set by the
	// code generator. Empty until codegen has run.
	Artifact string `json:"artifact,omitempty"`
}

// Plan is the structured description of intended cloud operations. The two
// shapes of the model are discriminated by Steps: empty means the embedded
// PlanStep is the whole plan, non-empty means a multi-step plan whose
// top-level confirmation and tier summarize the steps.
type Plan struct {
	PlanStep

	Steps []PlanStep `json:"steps,omitempty"`
}

// IsMultiStep reports whether the plan carries an explicit step sequence.
func (p *Plan) IsMultiStep() bool {
	return p != nil && len(p.Steps) > 0
}

// IsDestructive reports whether any part of the plan mutates resources.
func (p *Plan) IsDestructive() bool {
	if p == nil {
		return false
	}
	if p.SafetyTier == TierDestructive {
		return true
	}
	for _, st := range p.Steps {
		if st.SafetyTier == TierDestructive {
			return true
		}
	}
	return false
}

// AllSteps returns the effective step list: the embedded step for a
// single-step plan, or Steps for a multi-step one.
func (p *Plan) AllSteps() []PlanStep {
	if p == nil {
		return nil
	}
	if p.IsMultiStep() {
		return p.Steps
	}
	return []PlanStep{p.PlanStep}
}

// MergeParams copies gathered parameter values into the plan, clearing the
// names they satisfy from MissingParameters. Multi-step plans receive the
// values on every step that listed the parameter as missing.
func (p *Plan) MergeParams(params map[string]any) {
	if p == nil || len(params) == 0 {
		return
	}
	merge := func(st *PlanStep) {
		if st.Params == nil {
			st.Params = map[string]any{}
		}
		remaining := st.MissingParameters[:0]
		for _, name := range st.MissingParameters {
			if v, ok := params[name]; ok {
				st.Params[name] = v
				continue
			}
			remaining = append(remaining, name)
		}
		st.MissingParameters = remaining
		for name, v := range params {
			if _, exists := st.Params[name]; !exists {
				st.Params[name] = v
			}
		}
	}
	merge(&p.PlanStep)
	for i := range p.Steps {
		merge(&p.Steps[i])
	}
}

// Clone returns a deep copy. Plans cross the interactive pause boundary and
// must not alias state held by a suspended turn.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.PlanStep = p.PlanStep.clone()
	if p.Steps != nil {
		cp.Steps = make([]PlanStep, len(p.Steps))
		for i := range p.Steps {
			cp.Steps[i] = p.Steps[i].clone()
		}
	}
	return &cp
}

func (st PlanStep) clone() PlanStep {
	cp := st
	if st.Params != nil {
		cp.Params = make(map[string]any, len(st.Params))
		for k, v := range st.Params {
			cp.Params[k] = v
		}
	}
	if st.MissingParameters != nil {
		cp.MissingParameters = append([]string(nil), st.MissingParameters...)
	}
	if st.Filters != nil {
		cp.Filters = append([]Filter(nil), st.Filters...)
	}
	return cp
}
