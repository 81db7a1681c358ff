package errhandler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/memory"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

type fakeLLM struct {
	reply string
}

func (f *fakeLLM) Call(_ context.Context, _ *models.TurnState, _ []gateway.Message, _ string, _ bool) string {
	return f.reply
}

func newHandlerForTest(t *testing.T, reply string) (*Handler, *memory.Manager) {
	t.Helper()
	pm, err := prompt.NewManager("")
	require.NoError(t, err)
	mem, err := memory.NewManager(&config.MemoryConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	return NewHandler(&fakeLLM{reply: reply}, pm, mem), mem
}

func failedState(errText string) models.TurnState {
	st := models.NewTurnState("s1", "delete the production database")
	st.ExecutionError = errText
	st.LastNode = models.StageExecutor
	return st
}

func TestActionableGuidanceIsLearned(t *testing.T) {
	h, mem := newHandlerForTest(t, "That compartment is off limits. Check your policy grants and try again.")
	st := failedState("permission denied for compartment prod")

	overlay, err := h.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Contains(t, overlay.Presentation.Summary, "try again")
	assert.Equal(t, models.StageMemorySave, *overlay.NextStep)
	assert.Equal(t, 1, mem.ErrorSampleCount())
}

func TestVagueGuidanceIsNotLearned(t *testing.T) {
	h, mem := newHandlerForTest(t, "Sorry, that did not work out.")
	st := failedState("network error")

	overlay, err := h.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Equal(t, "Sorry, that did not work out.", overlay.Presentation.Summary)
	assert.Zero(t, mem.ErrorSampleCount())
}

func TestSentinelFallsBackToCannedGuidance(t *testing.T) {
	h, mem := newHandlerForTest(t, "[ERROR: all providers failed]")
	st := failedState("permission denied")

	overlay, err := h.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Contains(t, overlay.Presentation.Summary, "permissions")
	assert.Zero(t, mem.ErrorSampleCount())
}

func TestGuidanceIsClampedToThreeSentences(t *testing.T) {
	h, _ := newHandlerForTest(t, "First try this. Then check that. Then verify it. And a fourth sentence. And a fifth.")
	st := failedState("keyerror: 'shape'")

	overlay, err := h.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Equal(t, "First try this. Then check that. Then verify it.", overlay.Presentation.Summary)
}

func TestPlanErrorIsUsedWhenNoExecutionError(t *testing.T) {
	h, _ := newHandlerForTest(t, "[ERROR: all providers failed]")
	st := models.NewTurnState("s1", "do the thing")
	st.PlanError = "plan generation failed: resource 'gadget' not found"

	overlay, err := h.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Contains(t, overlay.Presentation.Summary, "Verify the name")
}

func TestCannedClassification(t *testing.T) {
	tests := []struct {
		errText string
		want    string
	}{
		{"rate limit exceeded", "throttling"},
		{"resource \"x\" not found", "Verify the name"},
		{"totally novel failure", "rephrasing"},
	}
	for _, tt := range tests {
		t.Run(tt.errText, func(t *testing.T) {
			assert.Contains(t, cannedGuidance(tt.errText), tt.want)
		})
	}
}
