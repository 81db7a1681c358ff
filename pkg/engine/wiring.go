package engine

import (
	"context"

	"github.com/potto-labs/potto/pkg/cloud"
	"github.com/potto-labs/potto/pkg/codegen"
	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/errhandler"
	"github.com/potto-labs/potto/pkg/executor"
	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/intent"
	"github.com/potto-labs/potto/pkg/memory"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/planner"
	"github.com/potto-labs/potto/pkg/presenter"
	"github.com/potto-labs/potto/pkg/prompt"
	"github.com/potto-labs/potto/pkg/retrieval"
	"github.com/potto-labs/potto/pkg/supervisor"
	"github.com/potto-labs/potto/pkg/verifier"
)

// Deps collects everything the stage registry needs. Retrieval fields may
// be nil; turns then skip the retrieval path entirely.
type Deps struct {
	Config  *config.Config
	LLM     gateway.Caller
	Prompts *prompt.Manager
	Memory  *memory.Manager

	Factory  cloud.ClientFactory
	CloudCfg cloud.Config

	Embedder    retrieval.Embedder
	VectorStore retrieval.VectorStore
}

// Build assembles the full turn graph from its dependencies.
func Build(deps Deps) *Engine {
	analyzer := intent.NewAnalyzer(deps.LLM, deps.Prompts)
	normalizer := NewNormalizer(deps.LLM, deps.Prompts, analyzer)
	plan := planner.NewPlanner(deps.LLM, deps.Prompts)
	gen := codegen.NewGenerator(deps.LLM, deps.Prompts)
	verify := verifier.New()
	exec := executor.NewExecutor(deps.Factory, deps.CloudCfg, deps.Config.Engine)
	present := presenter.NewPresenter(deps.LLM, deps.Prompts)
	errs := errhandler.NewHandler(deps.LLM, deps.Prompts, deps.Memory)

	lister := func(ctx context.Context) ([]map[string]any, error) {
		return cloud.ListCompartments(ctx, deps.Factory, deps.CloudCfg)
	}
	super := supervisor.NewSupervisor(deps.LLM, deps.Prompts, lister)

	stages := map[string]Stage{
		models.StageMemoryLoad:   memoryLoadStage(deps.Memory),
		models.StageMemorySave:   memorySaveStage(deps.Memory),
		models.StageNormalizer:   normalizer.Run,
		models.StageSupervisor:   super.Run,
		models.StagePlanner:      plan.Run,
		models.StageCodeGen:      gen.Run,
		models.StageVerifier:     verify.Run,
		models.StageExecutor:     exec.Run,
		models.StagePresentation: present.Run,
		models.StageErrorHandler: errs.Run,
	}
	if deps.Embedder != nil && deps.VectorStore != nil {
		rcfg := deps.Config.Retrieval
		if rcfg == nil {
			rcfg = config.DefaultRetrievalConfig()
		}
		retriever := retrieval.NewRetriever(rcfg, deps.LLM, deps.Embedder, deps.VectorStore)
		stages[models.StageRetriever] = retriever.Run
	} else {
		// Without a vector store the retrieval stage is a straight
		// pass-through to the planner.
		stages[models.StageRetriever] = func(_ context.Context, _ *models.TurnState) (*models.Overlay, error) {
			return &models.Overlay{
				NextStep:          models.StringPtr(models.StagePlanner),
				ExecutionStrategy: models.StrategyPtr(models.StrategyRetrievalFallback),
			}, nil
		}
	}
	return NewEngine(stages)
}
