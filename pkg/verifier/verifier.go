// Package verifier statically checks generated ActionPrograms before the
// executor touches the cloud: schema validity, an op that actually produces
// results, approved services only, and none of the patterns codegen is
// supposed to have scrubbed.
package verifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/potto-labs/potto/pkg/cloud"
	"github.com/potto-labs/potto/pkg/codegen"
	"github.com/potto-labs/potto/pkg/models"
)

// Verifier is the artifact gate between codegen and the executor.
type Verifier struct{}

// New builds a Verifier.
func New() *Verifier {
	return &Verifier{}
}

// Run checks every artifact on the effective plan. Pass routes to the
// executor; any failure routes back to the supervisor with a critique the
// next codegen attempt receives as a correction.
func (v *Verifier) Run(_ context.Context, st *models.TurnState) (*models.Overlay, error) {
	plan := st.EffectivePlan()
	if plan == nil {
		return critiqueOverlay("no plan to verify"), nil
	}

	artifacts := planArtifacts(plan)
	if len(artifacts) == 0 {
		return critiqueOverlay("plan carries no generated program"), nil
	}
	for i, artifact := range artifacts {
		if err := Check(artifact); err != nil {
			return critiqueOverlay(fmt.Sprintf("program %d: %v", i+1, err)), nil
		}
	}

	return &models.Overlay{
		VerifyCritique: models.StringPtr(""),
		NextStep:       models.StringPtr(models.StageExecutor),
	}, nil
}

// Check runs all static checks on one serialized program.
func Check(artifact string) error {
	if err := codegen.ValidateArtifact(artifact); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	program, err := codegen.Parse(artifact)
	if err != nil {
		return err
	}

	produces := false
	var walkErr error
	walk(program.Ops, func(op *codegen.Step) {
		if walkErr != nil {
			return
		}
		switch op.Op {
		case codegen.OpListResources, codegen.OpCall, codegen.OpFilter:
			produces = true
		}
		if err := checkOp(op); err != nil {
			walkErr = err
		}
	})
	if walkErr != nil {
		return walkErr
	}
	if !produces {
		return fmt.Errorf("program produces no results")
	}
	return nil
}

func checkOp(op *codegen.Step) error {
	switch op.Op {
	case codegen.OpListResources, codegen.OpCall:
		if !cloud.ApprovedServices()[op.Service] {
			return fmt.Errorf("service %q is not approved", op.Service)
		}
		if op.Operation == "" {
			return fmt.Errorf("%s op is missing an operation", op.Op)
		}
		if looksLikeReturn(op.Operation) {
			return fmt.Errorf("return-like operation %q is not allowed", op.Operation)
		}
		if _, set := op.Params["include_root"]; set {
			return fmt.Errorf("include_root is not allowed")
		}
	case codegen.OpFilter:
		if op.Input == "" {
			return fmt.Errorf("filter op is missing its input")
		}
		if len(op.Conditions) == 0 {
			return fmt.Errorf("filter op has no conditions")
		}
	case codegen.OpForEach:
		if op.Over == "" {
			return fmt.Errorf("for_each op is missing its collection")
		}
		if len(op.Ops) == 0 {
			return fmt.Errorf("for_each op has no body")
		}
	}
	return nil
}

// looksLikeReturn catches operations that try to smuggle control flow
// through the dispatch layer. The executor owns the results; programs only
// list, call, and filter.
func looksLikeReturn(operation string) bool {
	switch strings.ToLower(operation) {
	case "return", "exit", "yield", "eval", "exec":
		return true
	}
	return false
}

func planArtifacts(plan *models.Plan) []string {
	if plan.Artifact != "" {
		return []string{plan.Artifact}
	}
	var out []string
	for _, step := range plan.AllSteps() {
		if step.Artifact != "" {
			out = append(out, step.Artifact)
		}
	}
	return out
}

func critiqueOverlay(critique string) *models.Overlay {
	return &models.Overlay{
		VerifyCritique: models.StringPtr(critique),
		NextStep:       models.StringPtr(models.StageSupervisor),
	}
}

func walk(ops []codegen.Step, fn func(*codegen.Step)) {
	for i := range ops {
		fn(&ops[i])
		walk(ops[i].Ops, fn)
	}
}
