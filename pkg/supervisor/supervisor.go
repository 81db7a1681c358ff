// Package supervisor is the routing brain of the turn graph. Every stage
// that cannot decide its own successor hands control back here; the
// supervisor reads the state, applies the retry budgets, and emits the
// next hop. It also owns the interactive gates: confirmation answers,
// gathered parameters, and the compartment pick.
package supervisor

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/potto-labs/potto/pkg/executor"
	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

const stageName = "supervisor"

// affirmatives are the confirmation answers that mean "go ahead".
var affirmatives = map[string]bool{
	"yes": true, "y": true, "confirm": true, "proceed": true,
}

var (
	keyValueRe = regexp.MustCompile(`(\w+)\s*[:=]\s*([^\n,;]+)`)
	ocidRe     = regexp.MustCompile(`ocid1\.[a-zA-Z0-9._-]+`)
	digitRe    = regexp.MustCompile(`^\s*(\d+)\s*\.?\s*$`)
)

// CompartmentLister enumerates the pickable compartments, root first.
type CompartmentLister func(ctx context.Context) ([]map[string]any, error)

// Supervisor routes between stages.
type Supervisor struct {
	llm          gateway.Caller
	prompts      *prompt.Manager
	compartments CompartmentLister
}

// NewSupervisor wires the supervisor. The lister backs the compartment
// pick; a nil lister degrades that flow to plain parameter gathering.
func NewSupervisor(llm gateway.Caller, prompts *prompt.Manager, compartments CompartmentLister) *Supervisor {
	return &Supervisor{llm: llm, prompts: prompts, compartments: compartments}
}

// Run applies the routing table to the incoming state.
func (s *Supervisor) Run(ctx context.Context, st *models.TurnState) (*models.Overlay, error) {
	if st.RecursionCount >= models.MaxRecursion {
		return models.RouteMode(models.StagePresentation, models.PresentLimitReached), nil
	}

	switch st.LastNode {
	case "", models.StageMemoryLoad:
		return models.Route(models.StageNormalizer), nil
	case models.StageNormalizer:
		return s.afterNormalizer(st), nil
	case models.StagePlanner:
		return s.afterPlanner(ctx, st), nil
	case models.StagePresentation, models.StageUserInput:
		return s.afterUserInput(ctx, st), nil
	case models.StageVerifier:
		return s.afterVerifier(st), nil
	case models.StageCodeGen, models.StageExecutor:
		return s.afterExecution(st), nil
	}
	slog.Warn("Supervisor has no route", "last_node", st.LastNode)
	return models.RouteMode(models.StagePresentation, models.PresentError), nil
}

func (s *Supervisor) afterNormalizer(st *models.TurnState) *models.Overlay {
	if st.Intent == nil || !st.Intent.Executable() {
		return models.RouteMode(models.StagePresentation, models.PresentGeneralChat)
	}
	if st.UseRetrieval && !st.Intent.IsMutating {
		return models.Route(models.StageRetriever)
	}
	return models.Route(models.StagePlanner)
}

func (s *Supervisor) afterPlanner(ctx context.Context, st *models.TurnState) *models.Overlay {
	if st.PlanError != "" {
		if st.PlanRetries < 1 {
			return &models.Overlay{
				PlanRetries: models.IntPtr(st.PlanRetries + 1),
				NextStep:    models.StringPtr(models.StagePlanner),
			}
		}
		return models.Route(models.StageErrorHandler)
	}
	plan := st.EffectivePlan()
	if plan == nil {
		return models.RouteMode(models.StagePresentation, models.PresentError)
	}

	// Gathers for any plan with computed missing parameters, not only
	// create_*/multi-step: the planner's required-parameter table also
	// covers delete_/update_/terminate_ identifiers.
	if len(st.MissingParameters) > 0 {
		if onlyCompartmentMissing(st.MissingParameters) {
			if overlay := s.compartmentPick(ctx, plan); overlay != nil {
				return overlay
			}
		}
		return &models.Overlay{
			PendingPlan:      plan,
			NextStep:         models.StringPtr(models.StagePresentation),
			PresentationMode: models.ModePtr(models.PresentParameterGather),
		}
	}
	if st.RequiresConfirmation || plan.IsDestructive() {
		return &models.Overlay{
			PendingPlan:      plan,
			NextStep:         models.StringPtr(models.StagePresentation),
			PresentationMode: models.ModePtr(models.PresentConfirmation),
		}
	}
	return models.Route(models.StageCodeGen)
}

// compartmentPick runs the compartment-list sub-task and stages the
// numbered pick. Returns nil when the listing is unavailable so the caller
// falls back to free-text gathering.
func (s *Supervisor) compartmentPick(ctx context.Context, plan *models.Plan) *models.Overlay {
	if s.compartments == nil {
		return nil
	}
	compartments, err := s.compartments(ctx)
	if err != nil || len(compartments) == 0 {
		slog.Warn("Compartment listing unavailable", "error", err)
		return nil
	}
	data := make([]models.ResultItem, 0, len(compartments))
	for _, c := range compartments {
		data = append(data, models.OkItem(c))
	}
	return &models.Overlay{
		PendingPlan:                  plan,
		CompartmentData:              data,
		CompartmentSelectionRequired: models.BoolPtr(true),
		NextStep:                     models.StringPtr(models.StagePresentation),
		PresentationMode:             models.ModePtr(models.PresentCompartmentSelect),
	}
}

// afterUserInput resumes a suspended turn with the user's answer.
func (s *Supervisor) afterUserInput(ctx context.Context, st *models.TurnState) *models.Overlay {
	if st.ConfirmationResponse != "" {
		return s.applyConfirmation(st)
	}
	if st.ParameterSelectionResponse != "" {
		return s.applyParameters(ctx, st)
	}
	// Nothing to resume with; the turn is over.
	return models.Route(models.StageEnd)
}

func (s *Supervisor) applyConfirmation(st *models.TurnState) *models.Overlay {
	answer := strings.ToLower(strings.TrimSpace(st.ConfirmationResponse))
	if !affirmatives[answer] {
		return &models.Overlay{
			ClearPendingPlan:  true,
			ClearConfirmation: true,
			NextStep:          models.StringPtr(models.StagePresentation),
			PresentationMode:  models.ModePtr(models.PresentCancelled),
		}
	}
	plan := st.EffectivePlan()
	return &models.Overlay{
		Plan:              plan,
		ClearPendingPlan:  true,
		ClearConfirmation: true,
		NextStep:          models.StringPtr(models.StageCodeGen),
	}
}

func (s *Supervisor) applyParameters(ctx context.Context, st *models.TurnState) *models.Overlay {
	plan := st.EffectivePlan()
	if plan == nil {
		return models.RouteMode(models.StagePresentation, models.PresentError)
	}
	plan = plan.Clone()

	values := s.parseParameterResponse(ctx, st)
	if len(values) == 0 {
		// Unusable answer: ask again with the same prompt.
		return &models.Overlay{
			ClearParameterResponse: true,
			NextStep:               models.StringPtr(models.StagePresentation),
			PresentationMode:       models.ModePtr(models.PresentParameterGather),
		}
	}
	plan.MergeParams(values)

	missing := remainingMissing(st.MissingParameters, values)
	if len(missing) > 0 {
		return &models.Overlay{
			PendingPlan:            plan,
			MissingParameters:      missing,
			ClearParameterResponse: true,
			NextStep:               models.StringPtr(models.StagePresentation),
			PresentationMode:       models.ModePtr(models.PresentParameterGather),
		}
	}
	if plan.IsDestructive() {
		return &models.Overlay{
			PendingPlan:            plan,
			ClearMissingParameters: true,
			ClearParameterResponse: true,
			RequiresConfirmation:   models.BoolPtr(true),
			NextStep:               models.StringPtr(models.StagePresentation),
			PresentationMode:       models.ModePtr(models.PresentConfirmation),
		}
	}
	return &models.Overlay{
		Plan:                   plan,
		ClearPendingPlan:       true,
		ClearMissingParameters: true,
		ClearParameterResponse: true,
		NextStep:               models.StringPtr(models.StageCodeGen),
	}
}

// parseParameterResponse turns the user's free-text answer into parameter
// values: a bare number picks a compartment, then LM extraction, then the
// key:value and OCID fallbacks.
func (s *Supervisor) parseParameterResponse(ctx context.Context, st *models.TurnState) map[string]any {
	response := strings.TrimSpace(st.ParameterSelectionResponse)

	if st.CompartmentSelectionRequired && len(st.CompartmentData) > 0 {
		if m := digitRe.FindStringSubmatch(response); m != nil {
			idx, err := strconv.Atoi(m[1])
			if err == nil && idx >= 1 && idx <= len(st.CompartmentData) {
				if id, ok := st.CompartmentData[idx-1].Attrs["id"].(string); ok {
					return map[string]any{"compartment_id": id}
				}
			}
		}
	}

	if values := s.extractWithLM(ctx, st, response); len(values) > 0 {
		return values
	}
	if values := parseKeyValues(response, st.MissingParameters); len(values) > 0 {
		return values
	}
	return parseLoneOCID(response, st.MissingParameters)
}

func (s *Supervisor) extractWithLM(ctx context.Context, st *models.TurnState, response string) map[string]any {
	if s.llm == nil {
		return nil
	}
	text, err := s.prompts.Render(prompt.RequireParameter, map[string]any{
		"Parameters": strings.Join(st.MissingParameters, ", "),
		"Response":   response,
	})
	if err != nil {
		return nil
	}
	answer := s.llm.Call(ctx, st, []gateway.Message{gateway.User(text)}, stageName, true)
	if gateway.IsErrorSentinel(answer) {
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(gateway.CleanJSON(answer)), &values); err != nil {
		return nil
	}
	wanted := map[string]bool{}
	for _, n := range st.MissingParameters {
		wanted[n] = true
	}
	out := map[string]any{}
	for k, v := range values {
		if wanted[k] && v != nil && strings.TrimSpace(asString(v)) != "" {
			out[k] = v
		}
	}
	return out
}

func (s *Supervisor) afterVerifier(st *models.TurnState) *models.Overlay {
	if st.VerifyCritique == "" {
		return models.Route(models.StageExecutor)
	}
	if st.VerifyRetries < 1 {
		return &models.Overlay{
			VerifyRetries: models.IntPtr(st.VerifyRetries + 1),
			NextStep:      models.StringPtr(models.StageCodeGen),
		}
	}
	return models.Route(models.StageErrorHandler)
}

func (s *Supervisor) afterExecution(st *models.TurnState) *models.Overlay {
	if st.ExecutionError == "" {
		return models.RouteMode(models.StagePresentation, models.PresentData)
	}
	if executor.Retryable(st.ExecutionError) && st.ExecutionRetries < 1 {
		return &models.Overlay{
			ExecutionRetries: models.IntPtr(st.ExecutionRetries + 1),
			NextStep:         models.StringPtr(models.StageCodeGen),
		}
	}
	return models.Route(models.StageErrorHandler)
}

func onlyCompartmentMissing(missing []string) bool {
	return len(missing) == 1 && missing[0] == "compartment_id"
}

func remainingMissing(missing []string, values map[string]any) []string {
	var out []string
	for _, name := range missing {
		if _, ok := values[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

func parseKeyValues(response string, missing []string) map[string]any {
	wanted := map[string]bool{}
	for _, n := range missing {
		wanted[n] = true
	}
	out := map[string]any{}
	for _, m := range keyValueRe.FindAllStringSubmatch(response, -1) {
		key := strings.ToLower(m[1])
		if wanted[key] {
			out[key] = strings.TrimSpace(m[2])
		}
	}
	return out
}

// parseLoneOCID assigns a single pasted OCID to the one missing identifier
// parameter, when the mapping is unambiguous.
func parseLoneOCID(response string, missing []string) map[string]any {
	ocids := ocidRe.FindAllString(response, -1)
	if len(ocids) != 1 {
		return nil
	}
	var idParams []string
	for _, name := range missing {
		if strings.HasSuffix(name, "_id") {
			idParams = append(idParams, name)
		}
	}
	if len(idParams) != 1 {
		return nil
	}
	return map[string]any{idParams[0]: ocids[0]}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
