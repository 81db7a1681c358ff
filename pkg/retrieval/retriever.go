package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/models"
)

// Retriever is the rag_retriever stage. A hit routes straight to
// presentation with the matched documents; a miss hands the turn to the
// planner with the normalized query preserved.
type Retriever struct {
	llm      gateway.Caller
	embedder Embedder
	store    VectorStore
	topK     int
}

// NewRetriever wires the stage.
func NewRetriever(cfg *config.RetrievalConfig, llm gateway.Caller, embedder Embedder, store VectorStore) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{llm: llm, embedder: embedder, store: store, topK: topK}
}

// RetrieveIntent asks the LM to pick at most one label from the closed
// set. A failed or unusable LM answer returns nil, which degrades the
// search to unfiltered.
func (r *Retriever) RetrieveIntent(ctx context.Context, st *models.TurnState, query string) *MetadataFilter {
	prompt := fmt.Sprintf(
		"Pick the one label that matches this cloud-tenancy question, or answer none.\nLabels: %s\nQuestion: %s\nAnswer with the label only.",
		strings.Join(labelNames(), ", "), query)
	answer := r.llm.Call(ctx, st, []gateway.Message{gateway.User(prompt)}, models.StageRetriever, true)
	if gateway.IsErrorSentinel(answer) {
		slog.Warn("Retrieval intent LM failed, using unfiltered search", "session_id", st.SessionID)
		return nil
	}
	filter, ok := lookupLabel(answer)
	if !ok {
		return nil
	}
	return filter
}

// Search runs the full retrieval pass: intent filter, embedding, vector
// search. Found is true iff at least one non-empty document came back.
func (r *Retriever) Search(ctx context.Context, st *models.TurnState, query string) (models.RetrievalResult, error) {
	filter := r.RetrieveIntent(ctx, st, query)

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("embedding query: %w", err)
	}
	raw, err := r.store.Search(ctx, embedding, r.topK, filter)
	if err != nil {
		return models.RetrievalResult{}, fmt.Errorf("vector search: %w", err)
	}

	out := models.RetrievalResult{Documents: raw.Documents, Metadatas: raw.Metadatas}
	for _, doc := range raw.Documents {
		if strings.TrimSpace(doc) != "" {
			out.Found = true
			break
		}
	}
	return out, nil
}

// Run is the stage entry point.
func (r *Retriever) Run(ctx context.Context, st *models.TurnState) (*models.Overlay, error) {
	query := st.NormalizedQuery
	if query == "" {
		query = st.UserInput
	}

	result, err := r.Search(ctx, st, query)
	if err != nil {
		// Retrieval trouble is never terminal; the planner can still
		// serve the query live.
		slog.Warn("Retrieval failed, falling back to planner",
			"session_id", st.SessionID, "error", err)
		return &models.Overlay{
			NextStep:          models.StringPtr(models.StagePlanner),
			ExecutionStrategy: models.StrategyPtr(models.StrategyRetrievalFallback),
		}, nil
	}

	if !result.Found {
		return &models.Overlay{
			NextStep:          models.StringPtr(models.StagePlanner),
			ExecutionStrategy: models.StrategyPtr(models.StrategyRetrievalFallback),
		}, nil
	}

	items := make([]models.ResultItem, 0, len(result.Documents))
	for i, doc := range result.Documents {
		attrs := map[string]any{"data": doc}
		if i < len(result.Metadatas) {
			for k, v := range result.Metadatas[i] {
				attrs[k] = v
			}
		}
		items = append(items, models.OkItem(attrs))
	}
	return &models.Overlay{
		NextStep:          models.StringPtr(models.StagePresentation),
		PresentationMode:  models.ModePtr(models.PresentData),
		ExecutionStrategy: models.StrategyPtr(models.StrategyRetrievalChain),
		ExecutionResult:   items,
	}, nil
}
