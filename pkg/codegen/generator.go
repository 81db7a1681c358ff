package codegen

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

const stageName = "codegen"

// Generator is the codegen stage.
type Generator struct {
	llm     gateway.Caller
	prompts *prompt.Manager
}

// NewGenerator wires the generator.
func NewGenerator(llm gateway.Caller, prompts *prompt.Manager) *Generator {
	return &Generator{llm: llm, prompts: prompts}
}

// Run generates artifacts for every step of the effective plan. Multi-step
// plans whose steps all share action and service collapse into one batched
// program on the plan head; otherwise each step gets its own artifact. On
// retry the prior critique or execution error rides along as a correction.
func (g *Generator) Run(ctx context.Context, st *models.TurnState) (*models.Overlay, error) {
	source := st.EffectivePlan()
	if source == nil {
		return &models.Overlay{
			ExecutionError: models.StringPtr("no plan to generate a program for"),
			NextStep:       models.StringPtr(models.StageSupervisor),
		}, nil
	}
	plan := source.Clone()
	correction := st.VerifyCritique
	if correction == "" {
		correction = st.ExecutionError
	}

	if plan.IsMultiStep() && homogeneous(plan.Steps) {
		program, err := g.generate(ctx, st, batchStep(plan.Steps), correction)
		if err != nil {
			return failureOverlay(st, err), nil
		}
		artifact, err := program.Marshal()
		if err != nil {
			return failureOverlay(st, err), nil
		}
		plan.Artifact = artifact
	} else {
		targets := []*models.PlanStep{&plan.PlanStep}
		if plan.IsMultiStep() {
			targets = nil
			for i := range plan.Steps {
				targets = append(targets, &plan.Steps[i])
			}
		}
		for _, step := range targets {
			program, err := g.generate(ctx, st, *step, correction)
			if err != nil {
				return failureOverlay(st, err), nil
			}
			artifact, err := program.Marshal()
			if err != nil {
				return failureOverlay(st, err), nil
			}
			step.Artifact = artifact
		}
	}

	return &models.Overlay{
		Plan:             plan,
		ClearPendingPlan: true,
		NextStep:         models.StringPtr(models.StageVerifier),
	}, nil
}

// generate authors and post-processes the program for one plan step.
func (g *Generator) generate(ctx context.Context, st *models.TurnState, step models.PlanStep, correction string) (*Program, error) {
	stepJSON, err := json.Marshal(step)
	if err != nil {
		return nil, fmt.Errorf("serializing plan step: %w", err)
	}
	text, err := g.prompts.Codegen(step.Service, map[string]any{
		"Plan":       string(stepJSON),
		"Query":      st.NormalizedQuery,
		"Correction": correction,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering codegen prompt: %w", err)
	}

	answer := g.llm.Call(ctx, st, []gateway.Message{gateway.User(text)}, stageName, false)
	if gateway.IsErrorSentinel(answer) {
		return nil, fmt.Errorf("program generation failed: %s", answer)
	}
	program, err := Parse(gateway.CleanJSON(answer))
	if err != nil {
		return nil, err
	}
	if len(program.Ops) == 0 {
		return nil, fmt.Errorf("generated program has no ops")
	}
	postProcess(program, step.Params)
	return program, nil
}

// batchStep merges homogeneous steps into one synthetic step whose params
// carry the per-step parameter sets for the LM to translate into ops.
func batchStep(steps []models.PlanStep) models.PlanStep {
	merged := steps[0]
	merged.Params = map[string]any{}
	var sets []map[string]any
	for _, s := range steps {
		sets = append(sets, s.Params)
	}
	merged.Params["batch"] = sets
	return merged
}

func homogeneous(steps []models.PlanStep) bool {
	for _, s := range steps[1:] {
		if s.Action != steps[0].Action || s.Service != steps[0].Service {
			return false
		}
	}
	return true
}

// postProcess normalizes LM output: canonical service names, no
// include_root, parameter placeholders replaced with plan literals, and
// the object-storage namespace resolved before any bucket op needs it.
func postProcess(program *Program, params map[string]any) {
	walk(program.Ops, func(op *Step) {
		op.Service = cloud.CanonicalService(op.Service)
		op.Operation = strings.ToLower(strings.TrimSpace(op.Operation))
		delete(op.Params, "include_root")
		for k, v := range op.Params {
			if s, ok := v.(string); ok {
				if lit, found := resolvePlaceholder(s, params); found {
					op.Params[k] = lit
				}
			}
		}
	})
	ensureNamespacePrelude(program)
}

func walk(ops []Step, fn func(*Step)) {
	for i := range ops {
		fn(&ops[i])
		walk(ops[i].Ops, fn)
	}
}

// resolvePlaceholder maps a whole-value "{{name}}" placeholder to the plan
// parameter it names. Dotted references are runtime interpolations owned by
// the executor and pass through untouched.
func resolvePlaceholder(value string, params map[string]any) (any, bool) {
	s := strings.TrimSpace(value)
	if !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") {
		return nil, false
	}
	name := strings.TrimSpace(s[2 : len(s)-2])
	if name == "" || strings.Contains(name, ".") {
		return nil, false
	}
	lit, ok := params[name]
	return lit, ok
}

// ensureNamespacePrelude prepends a get_namespace call when an object
// storage op needs the namespace and no earlier op resolved it.
func ensureNamespacePrelude(program *Program) {
	needs := false
	resolved := false
	for _, op := range program.Ops {
		if op.Service != cloud.ServiceObjectStorage {
			continue
		}
		if op.Operation == "get_namespace" {
			resolved = true
			break
		}
		needs = true
	}
	if !needs || resolved {
		return
	}
	prelude := Step{
		Op:        OpCall,
		Service:   cloud.ServiceObjectStorage,
		Operation: "get_namespace",
		SaveAs:    "namespace",
	}
	program.Ops = append([]Step{prelude}, program.Ops...)
	walk(program.Ops[1:], func(op *Step) {
		if op.Service != cloud.ServiceObjectStorage || op.Operation == "get_namespace" {
			return
		}
		if op.Params == nil {
			op.Params = map[string]any{}
		}
		if _, set := op.Params["namespace_name"]; !set {
			op.Params["namespace_name"] = "{{namespace.value}}"
		}
	})
}

func failureOverlay(st *models.TurnState, err error) *models.Overlay {
	slog.Warn("Code generation failed", "session_id", st.SessionID, "error", err)
	return &models.Overlay{
		ExecutionError: models.StringPtr(err.Error()),
		NextStep:       models.StringPtr(models.StageSupervisor),
	}
}
