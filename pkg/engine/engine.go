// Package engine drives the turn graph: a registry of stages, each
// returning a state overlay, stepped until the turn ends or suspends on an
// interactive prompt. The supervisor owns routing; the driver owns the
// recursion cap, cancellation, and overlay merge order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/potto-labs/potto/pkg/models"
)

// Stage is one node of the turn graph.
type Stage func(ctx context.Context, st *models.TurnState) (*models.Overlay, error)

// StageObserver receives each (stage, overlay) emission as the turn runs.
// Used for streaming progress to clients; may be nil.
type StageObserver func(stage string, overlay *models.Overlay)

// Engine steps a turn through the stage registry.
type Engine struct {
	stages map[string]Stage
}

// NewEngine builds a driver over a stage registry.
func NewEngine(stages map[string]Stage) *Engine {
	return &Engine{stages: stages}
}

// Run drives the turn until it ends or suspends. The state is mutated in
// place; on return the caller checks AwaitingUserInput to distinguish a
// pause from completion. Context cancellation produces a cancelled
// presentation and still saves memory.
func (e *Engine) Run(ctx context.Context, st *models.TurnState, observe StageObserver) error {
	current := st.NextStep
	if current == "" {
		current = models.StageMemoryLoad
	}

	limited := false
	for {
		select {
		case <-ctx.Done():
			return e.cancelled(st, observe)
		default:
		}

		switch current {
		case models.StageEnd:
			st.Terminal = true
			return nil
		case models.StageUserInput:
			st.NextStep = models.StageUserInput
			return nil
		}

		st.RecursionCount++
		if st.RecursionCount > models.MaxRecursion && !limited {
			// One forced detour to the limit notice; the wind-down stages
			// after it (presentation, memory save) run uncapped.
			limited = true
			st.PresentationMode = models.PresentLimitReached
			current = models.StagePresentation
		}

		stage, ok := e.stages[current]
		if !ok {
			return fmt.Errorf("no stage registered for %q", current)
		}

		started := time.Now()
		overlay, err := stage(ctx, st)
		if err != nil {
			// Stage errors are routing failures, not domain errors; domain
			// errors travel inside overlays.
			return fmt.Errorf("stage %s: %w", current, err)
		}
		st.RecordTiming(current+"_total", time.Since(started).Seconds())
		st.LastNode = current
		st.Apply(overlay)
		if observe != nil {
			observe(current, overlay)
		}

		next := st.NextStep
		if next == "" || next == current {
			next = models.StageSupervisor
		}
		slog.Debug("Stage complete", "stage", current, "next", next,
			"recursion", st.RecursionCount)
		current = next
	}
}

// Resume continues a suspended turn with the user's answer. The answer
// lands in the field the open prompt is waiting on.
func (e *Engine) Resume(ctx context.Context, st *models.TurnState, answer string, observe StageObserver) error {
	if !st.AwaitingUserInput() {
		return fmt.Errorf("turn is not awaiting input")
	}
	if st.Presentation != nil && st.Presentation.ConfirmationRequired {
		st.ConfirmationResponse = answer
	} else {
		st.ParameterSelectionResponse = answer
	}
	st.LastNode = models.StagePresentation
	st.NextStep = models.StageSupervisor
	st.PresentationMode = ""
	st.Presentation = nil
	return e.Run(ctx, st, observe)
}

// cancelled finishes an aborted turn: cancelled presentation, then the
// memory save so the partial turn is still remembered.
func (e *Engine) cancelled(st *models.TurnState, observe StageObserver) error {
	st.Presentation = &models.Presentation{
		Summary:         "The request was cancelled before it finished.",
		Format:          models.FormatChat,
		ActionCancelled: true,
	}
	st.PresentationMode = models.PresentCancelled
	if save, ok := e.stages[models.StageMemorySave]; ok {
		// Detached context: the turn's context is already dead.
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if overlay, err := save(saveCtx, st); err == nil {
			st.Apply(overlay)
			if observe != nil {
				observe(models.StageMemorySave, overlay)
			}
		}
	}
	st.Terminal = true
	st.NextStep = models.StageEnd
	return nil
}
