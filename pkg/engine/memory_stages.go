package engine

import (
	"context"

	"github.com/potto-labs/potto/pkg/memory"
	"github.com/potto-labs/potto/pkg/models"
)

// memoryLoadStage injects cross-turn context at turn entry. Memory
// failures yield an empty context, never an aborted turn.
func memoryLoadStage(mem *memory.Manager) Stage {
	return func(_ context.Context, st *models.TurnState) (*models.Overlay, error) {
		overlay := &models.Overlay{
			NextStep: models.StringPtr(models.StageSupervisor),
		}
		if mem != nil {
			overlay.MemoryContext = mem.LoadContext(st.SessionID)
		}
		return overlay, nil
	}
}

// memorySaveStage records the finished turn and terminates.
func memorySaveStage(mem *memory.Manager) Stage {
	return func(_ context.Context, st *models.TurnState) (*models.Overlay, error) {
		if mem != nil {
			mem.SaveTurn(st)
		}
		return &models.Overlay{
			Terminal: models.BoolPtr(true),
			NextStep: models.StringPtr(models.StageEnd),
		}, nil
	}
}
