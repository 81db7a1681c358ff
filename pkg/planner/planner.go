// Package planner turns an analyzed intent into a structured Plan. Simple
// read-only queries resolve through a compile-time template table without
// touching the LM; everything else is authored by the LM and then
// normalized, parameter-checked against the destructive-action table, and
// flagged for confirmation.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/potto-labs/potto/pkg/cloud"
	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

const stageName = "planner"

// Planner authors and normalizes plans.
type Planner struct {
	llm     gateway.Caller
	prompts *prompt.Manager
}

// NewPlanner wires the planner.
func NewPlanner(llm gateway.Caller, prompts *prompt.Manager) *Planner {
	return &Planner{llm: llm, prompts: prompts}
}

// Run plans the current turn. The overlay always routes to the supervisor,
// which decides between codegen, parameter gathering, and a retry.
func (p *Planner) Run(ctx context.Context, st *models.TurnState) (*models.Overlay, error) {
	intent := st.Intent

	var plan *models.Plan
	strategy := models.StrategyMultiStep
	if intent != nil && intent.ExecutionType == models.ExecDirectFetch && !intent.IsMutating {
		if tpl, ok := templatePlan(intent); ok {
			plan = tpl
			strategy = models.StrategyDirectFetch
		}
	}
	if plan == nil {
		authored, err := p.llmPlan(ctx, st)
		if err != nil {
			slog.Warn("Planning failed", "session_id", st.SessionID, "error", err)
			return &models.Overlay{
				PlanError: models.StringPtr(err.Error()),
				NextStep:  models.StringPtr(models.StageSupervisor),
			}, nil
		}
		plan = authored
		if st.ExecutionStrategy == models.StrategyRetrievalFallback {
			strategy = models.StrategyRetrievalFallback
		}
	}

	p.normalize(ctx, st, plan)

	missing := collectMissing(plan)
	return &models.Overlay{
		Plan:                   plan,
		MissingParameters:      missing,
		ClearMissingParameters: len(missing) == 0,
		RequiresConfirmation:   models.BoolPtr(plan.RequiresConfirmation),
		ExecutionStrategy:      models.StrategyPtr(strategy),
		NextStep:               models.StringPtr(models.StageSupervisor),
		ClearPlanError:         true,
	}, nil
}

// templatePlan serves the fast path from the compile-time table.
func templatePlan(intent *models.Intent) (*models.Plan, bool) {
	tpl, ok := templates[templateKey{intent.PrimaryResource, intent.Action}]
	if !ok {
		return nil, false
	}
	params := map[string]any{}
	for k, v := range tpl.defaultParams {
		params[k] = v
	}
	// Identity listings are tenancy scoped; everything else fans out
	// across compartments unless the query pinned one.
	if tpl.service != cloud.ServiceIdentity {
		if _, scoped := params["compartment_id"]; !scoped {
			params["all_compartments"] = true
		}
	}
	step := models.PlanStep{
		Action:       tpl.method,
		Service:      tpl.service,
		Params:       params,
		SafetyTier:   models.TierSafe,
		FilterInCode: intent.RequiresFiltering,
		Filters:      intent.FilterConditions,
	}
	return &models.Plan{PlanStep: step}, true
}

// llmPlan asks the LM for a plan and parses it. A prior plan_error rides
// along as a correction preamble on the retry.
func (p *Planner) llmPlan(ctx context.Context, st *models.TurnState) (*models.Plan, error) {
	intentJSON := "{}"
	if st.Intent != nil {
		if raw, err := json.Marshal(st.Intent); err == nil {
			intentJSON = string(raw)
		}
	}
	text, err := p.prompts.Render(prompt.Planner, map[string]any{
		"Query":         st.NormalizedQuery,
		"Intent":        intentJSON,
		"PreviousError": st.PlanError,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering planner prompt: %w", err)
	}

	answer := p.llm.Call(ctx, st, []gateway.Message{gateway.User(text)}, stageName, false)
	if gateway.IsErrorSentinel(answer) {
		return nil, fmt.Errorf("plan generation failed: %s", answer)
	}
	var plan models.Plan
	if err := json.Unmarshal([]byte(gateway.CleanJSON(answer)), &plan); err != nil {
		return nil, fmt.Errorf("parsing plan JSON: %w", err)
	}
	if plan.Action == "" && len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no actionable step")
	}
	return &plan, nil
}

// normalize canonicalizes services and actions, applies the
// all-compartments default, classifies safety, and verifies parameters.
func (p *Planner) normalize(ctx context.Context, st *models.TurnState, plan *models.Plan) {
	steps := []*models.PlanStep{&plan.PlanStep}
	for i := range plan.Steps {
		steps = append(steps, &plan.Steps[i])
	}
	for _, step := range steps {
		if step.Action == "" && step.Service == "" {
			continue
		}
		step.Action = strings.ToLower(strings.TrimSpace(step.Action))
		step.Service = cloud.CanonicalService(step.Service)
		if step.Params == nil {
			step.Params = map[string]any{}
		}
		if strings.HasPrefix(step.Action, "list_") && step.Service != cloud.ServiceIdentity {
			_, scoped := step.Params["compartment_id"]
			if _, set := step.Params["all_compartments"]; !set && !scoped {
				step.Params["all_compartments"] = true
			}
		}
		p.classify(ctx, st, step)
	}

	// Multi-step rollup: the embedded step summarizes the sequence.
	if plan.IsMultiStep() {
		plan.SafetyTier = models.TierSafe
		plan.RequiresConfirmation = false
		plan.MissingParameters = nil
		for _, step := range plan.Steps {
			if step.SafetyTier == models.TierDestructive {
				plan.SafetyTier = models.TierDestructive
			}
			if step.RequiresConfirmation {
				plan.RequiresConfirmation = true
			}
			plan.MissingParameters = append(plan.MissingParameters, step.MissingParameters...)
		}
	}
}

// classify sets the safety tier and computes missing parameters. Actions in
// the required-parameter table are verified against it; unknown destructive
// actions keep whatever the LM declared; safe actions carry nothing.
func (p *Planner) classify(ctx context.Context, st *models.TurnState, step *models.PlanStep) {
	if !isDestructive(step.Action) {
		step.SafetyTier = models.TierSafe
		step.RequiresConfirmation = false
		step.MissingParameters = nil
		return
	}
	step.SafetyTier = models.TierDestructive
	step.RequiresConfirmation = true

	required, known := requiredParams[step.Action]
	if !known {
		return
	}
	missing := missingFrom(step.Params, required)
	if len(missing) > 0 {
		p.extractParams(ctx, st, step, missing)
		missing = missingFrom(step.Params, required)
	}
	step.MissingParameters = missing
}

// extractParams runs the focused parameter-extraction prompt over the raw
// query and merges any values the LM finds. Extraction failures are not
// errors; the parameters just stay missing.
func (p *Planner) extractParams(ctx context.Context, st *models.TurnState, step *models.PlanStep, names []string) {
	if p.llm == nil {
		return
	}
	text, err := p.prompts.Render(prompt.PlannerEnhanced, map[string]any{
		"Query":      st.UserInput,
		"Action":     step.Action,
		"Parameters": strings.Join(names, ", "),
	})
	if err != nil {
		return
	}
	answer := p.llm.Call(ctx, st, []gateway.Message{gateway.User(text)}, stageName, true)
	if gateway.IsErrorSentinel(answer) {
		return
	}
	var found map[string]any
	if err := json.Unmarshal([]byte(gateway.CleanJSON(answer)), &found); err != nil {
		return
	}
	wanted := map[string]bool{}
	for _, n := range names {
		wanted[n] = true
	}
	for k, v := range found {
		if !wanted[k] || !hasValue(v) {
			continue
		}
		step.Params[k] = v
	}
}

// ListCompartmentsPlan builds the sub-task plan the supervisor dispatches
// when compartment_id is the only missing parameter.
func ListCompartmentsPlan() *models.Plan {
	return &models.Plan{PlanStep: models.PlanStep{
		Action:     "list_compartments",
		Service:    cloud.ServiceIdentity,
		Params:     map[string]any{},
		SafetyTier: models.TierSafe,
	}}
}

func isDestructive(action string) bool {
	for _, prefix := range destructivePrefixes {
		if strings.HasPrefix(action, prefix) {
			return true
		}
	}
	return false
}

func missingFrom(params map[string]any, required []string) []string {
	var missing []string
	for _, name := range required {
		if v, ok := params[name]; ok && hasValue(v) {
			continue
		}
		missing = append(missing, name)
	}
	return missing
}

func hasValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

func collectMissing(plan *models.Plan) []string {
	seen := map[string]bool{}
	var out []string
	for _, step := range plan.AllSteps() {
		for _, name := range step.MissingParameters {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
