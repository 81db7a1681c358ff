// Package executor interprets generated ActionPrograms against the cloud
// client factory. Programs never hold clients or credentials directly; the
// interpreter owns the evaluation scope and every result is sanitized to
// an attribute map before it leaves this package.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/potto-labs/potto/pkg/cloud"
	"github.com/potto-labs/potto/pkg/codegen"
	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/models"
)

// Executor is the execution stage.
type Executor struct {
	interp *Interpreter
	engine *config.EngineConfig
}

// NewExecutor binds the executor to a tenancy and the engine settings.
func NewExecutor(factory cloud.ClientFactory, cfg cloud.Config, engine *config.EngineConfig) *Executor {
	return &Executor{interp: NewInterpreter(factory, cfg), engine: engine}
}

// Run executes every artifact on the plan. A batched plan runs its single
// program with per-op failure tolerance, one result entry per batch item;
// a per-step plan runs sequentially in declared order, collecting per-step
// errors without aborting the remainder. Read-only plans may run steps in
// parallel when the engine flag allows it. The supervisor decides between
// a codegen retry and surfacing the error.
func (e *Executor) Run(ctx context.Context, st *models.TurnState) (*models.Overlay, error) {
	plan := st.EffectivePlan()
	if plan == nil {
		return e.failed(st, nil, fmt.Errorf("no plan to execute")), nil
	}

	var results []models.ResultItem
	var execErr error
	switch {
	case plan.Artifact != "":
		results, execErr = e.runArtifact(ctx, plan.Artifact, plan.IsMultiStep())
	case e.parallelEligible(plan):
		results, execErr = e.runStepsParallel(ctx, plan.Steps)
	default:
		results, execErr = e.runStepsSequential(ctx, plan.AllSteps())
	}

	if execErr != nil {
		return e.failed(st, results, execErr), nil
	}
	slog.Info("Execution finished",
		"session_id", st.SessionID, "results", len(results))
	return &models.Overlay{
		ExecutionResult:     results,
		ClearExecutionError: true,
		NextStep:            models.StringPtr(models.StageSupervisor),
	}, nil
}

func (e *Executor) runArtifact(ctx context.Context, artifact string, batched bool) ([]models.ResultItem, error) {
	program, err := codegen.Parse(artifact)
	if err != nil {
		return nil, err
	}
	if batched {
		return e.interp.RunBatch(ctx, program)
	}
	return e.interp.Run(ctx, program)
}

// runStepsSequential is the reference path: declared order, results
// concatenated, first error text carried but later steps still run.
func (e *Executor) runStepsSequential(ctx context.Context, steps []models.PlanStep) ([]models.ResultItem, error) {
	var results []models.ResultItem
	var firstErr error
	for i, step := range steps {
		if step.Artifact == "" {
			continue
		}
		produced, err := e.runArtifact(ctx, step.Artifact, false)
		results = append(results, produced...)
		if err != nil {
			results = append(results, models.ErrorItem(err, step.Action))
			if firstErr == nil {
				firstErr = fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
			}
		}
	}
	return results, firstErr
}

// runStepsParallel fans read-only steps out on a bounded group. Result
// order still follows the declared step order.
func (e *Executor) runStepsParallel(ctx context.Context, steps []models.PlanStep) ([]models.ResultItem, error) {
	slots := make([][]models.ResultItem, len(steps))
	errs := make([]error, len(steps))

	g, gctx := errgroup.WithContext(ctx)
	limit := e.engine.MaxParallelSteps
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i := range steps {
		g.Go(func() error {
			if steps[i].Artifact == "" {
				return nil
			}
			produced, err := e.runArtifact(gctx, steps[i].Artifact, false)
			slots[i] = produced
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	var results []models.ResultItem
	var firstErr error
	for i := range steps {
		results = append(results, slots[i]...)
		if errs[i] != nil {
			results = append(results, models.ErrorItem(errs[i], steps[i].Action))
			if firstErr == nil {
				firstErr = fmt.Errorf("step %d (%s): %w", i+1, steps[i].Action, errs[i])
			}
		}
	}
	return results, firstErr
}

func (e *Executor) parallelEligible(plan *models.Plan) bool {
	if e.engine == nil || !e.engine.ParallelSafeSteps || !plan.IsMultiStep() {
		return false
	}
	for _, step := range plan.Steps {
		if step.SafetyTier != models.TierSafe {
			return false
		}
	}
	return true
}

func (e *Executor) failed(st *models.TurnState, results []models.ResultItem, err error) *models.Overlay {
	text := "execution failed"
	if err != nil {
		text = err.Error()
	}
	slog.Warn("Execution failed",
		"session_id", st.SessionID, "error", text, "retryable", Retryable(text))
	overlay := &models.Overlay{
		ExecutionError: models.StringPtr(text),
		NextStep:       models.StringPtr(models.StageSupervisor),
	}
	if results != nil {
		overlay.ExecutionResult = results
	}
	return overlay
}
