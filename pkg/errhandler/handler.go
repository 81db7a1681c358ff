// Package errhandler turns a terminal stage failure into short, friendly
// guidance. Guidance the LM writes well enough is also fed back into the
// error-learning log so future prompts can reference it.
package errhandler

import (
	"context"
	"strings"

	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/memory"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

const stageName = "error_handler"

// maxSentences caps the guidance length; anything longer is truncated at
// a sentence boundary.
const maxSentences = 3

// qualityMarkers are the actionable-advice cues the learning gate looks
// for. Guidance with none of them is shown but not remembered.
var qualityMarkers = []string{
	"try", "check", "retry", "alternative", "instead",
	"suggest", "help", "verify", "again",
}

// Handler is the fast error-handling stage.
type Handler struct {
	llm     gateway.Caller
	prompts *prompt.Manager
	mem     *memory.Manager
}

// NewHandler wires the handler. mem may be nil in tests.
func NewHandler(llm gateway.Caller, prompts *prompt.Manager, mem *memory.Manager) *Handler {
	return &Handler{llm: llm, prompts: prompts, mem: mem}
}

// Run produces the error presentation for the turn. LM failures fall back
// to canned guidance; the turn always terminates normally from here.
func (h *Handler) Run(ctx context.Context, st *models.TurnState) (*models.Overlay, error) {
	errText := st.ExecutionError
	if errText == "" {
		errText = st.PlanError
	}
	if errText == "" {
		errText = st.VerifyCritique
	}

	guidance := h.guidance(ctx, st, errText)
	return &models.Overlay{
		Presentation: &models.Presentation{
			Summary: guidance,
			Format:  models.FormatChat,
		},
		NextStep: models.StringPtr(models.StageMemorySave),
	}, nil
}

func (h *Handler) guidance(ctx context.Context, st *models.TurnState, errText string) string {
	text, err := h.prompts.Render(prompt.ErrorHandler, map[string]any{
		"Stage": st.LastNode,
		"Query": st.UserInput,
		"Error": errText,
	})
	if err != nil {
		return cannedGuidance(errText)
	}
	answer := h.llm.Call(ctx, st, []gateway.Message{gateway.User(text)}, stageName, true)
	if gateway.IsErrorSentinel(answer) {
		return cannedGuidance(errText)
	}
	guidance := clampSentences(strings.TrimSpace(answer))
	if guidance == "" {
		return cannedGuidance(errText)
	}
	if h.mem != nil && actionable(guidance) {
		h.mem.AppendErrorSample(st.LastNode, errText, guidance)
	}
	return guidance
}

// actionable reports whether the guidance contains advice worth learning
// from, not just an apology.
func actionable(guidance string) bool {
	lower := strings.ToLower(guidance)
	for _, marker := range qualityMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// clampSentences keeps at most maxSentences sentences.
func clampSentences(text string) string {
	count := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count == maxSentences {
				return strings.TrimSpace(text[:i+1])
			}
		}
	}
	return text
}

func cannedGuidance(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "permission") || strings.Contains(lower, "not authorized"):
		return "That operation was blocked by your tenancy's permissions. Check that your credentials can access the compartment and try again."
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "quota"):
		return "The cloud provider is throttling requests right now. Wait a moment and try again."
	case strings.Contains(lower, "not found"):
		return "I couldn't find that resource. Verify the name or identifier and try again."
	default:
		return "Something went wrong while handling that request. Try rephrasing it, or break it into smaller steps."
	}
}
