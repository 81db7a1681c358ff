package engine

import (
	"context"
	"strings"

	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/intent"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

// Normalizer cleans up the raw query and classifies it. It is the first
// real stage of every turn: the LM fixes typos and shorthand, then the
// intent analyzer decides what kind of request this is.
type Normalizer struct {
	llm      gateway.Caller
	prompts  *prompt.Manager
	analyzer *intent.Analyzer
}

// NewNormalizer wires the normalizer.
func NewNormalizer(llm gateway.Caller, prompts *prompt.Manager, analyzer *intent.Analyzer) *Normalizer {
	return &Normalizer{llm: llm, prompts: prompts, analyzer: analyzer}
}

// Run normalizes and classifies. An LM failure keeps the raw query; the
// turn degrades rather than aborts.
func (n *Normalizer) Run(ctx context.Context, st *models.TurnState) (*models.Overlay, error) {
	normalized := n.normalize(ctx, st)
	classified := n.analyzer.Analyze(ctx, st, normalized)

	return &models.Overlay{
		NormalizedQuery: models.StringPtr(normalized),
		Intent:          classified,
		NextStep:        models.StringPtr(models.StageSupervisor),
	}, nil
}

func (n *Normalizer) normalize(ctx context.Context, st *models.TurnState) string {
	raw := strings.TrimSpace(st.UserInput)
	text, err := n.prompts.Render(prompt.Normalizer, map[string]any{
		"Query":   raw,
		"Context": recentContext(st),
	})
	if err != nil {
		return raw
	}
	answer := n.llm.Call(ctx, st, []gateway.Message{gateway.User(text)}, models.StageNormalizer, true)
	if gateway.IsErrorSentinel(answer) {
		return raw
	}
	normalized := strings.TrimSpace(answer)
	if normalized == "" || len(normalized) > 4*len(raw)+64 {
		// A runaway answer means the model chatted instead of normalizing.
		return raw
	}
	return normalized
}

// recentContext renders the last few remembered turns for the prompt.
func recentContext(st *models.TurnState) string {
	if st.MemoryContext == nil || len(st.MemoryContext.RecentTurns) == 0 {
		return "(none)"
	}
	turns := st.MemoryContext.RecentTurns
	if len(turns) > 3 {
		turns = turns[len(turns)-3:]
	}
	var lines []string
	for _, t := range turns {
		lines = append(lines, "user: "+t.UserInput)
	}
	return strings.Join(lines, "\n")
}
