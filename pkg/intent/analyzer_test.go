package intent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

type fakeLLM struct {
	reply string
	calls int
}

func (f *fakeLLM) Call(_ context.Context, _ *models.TurnState, _ []gateway.Message, _ string, _ bool) string {
	f.calls++
	return f.reply
}

func newAnalyzerForTest(t *testing.T, reply string) (*Analyzer, *fakeLLM) {
	t.Helper()
	pm, err := prompt.NewManager("")
	require.NoError(t, err)
	llm := &fakeLLM{reply: reply}
	return NewAnalyzer(llm, pm), llm
}

func TestPatternPassHandlesCommonQueries(t *testing.T) {
	tests := []struct {
		query     string
		resource  string
		action    string
		service   string
		mutating  bool
		execType  models.ExecutionType
		filtState string
	}{
		{"list running instances", "instance", "list", "compute", false, models.ExecDirectFetch, "RUNNING"},
		{"show me all buckets", "bucket", "list", "objectstorage", false, models.ExecDirectFetch, ""},
		{"create a bucket", "bucket", "create", "objectstorage", true, models.ExecMultiStep, ""},
		{"delete the stopped instance", "instance", "delete", "compute", true, models.ExecMultiStep, "STOPPED"},
		{"what volumes are available", "volume", "list", "blockstorage", false, models.ExecDirectFetch, "AVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			a, llm := newAnalyzerForTest(t, "should not be called")
			got := a.Analyze(context.Background(), nil, tt.query)

			assert.Zero(t, llm.calls, "pattern pass must not invoke the LM")
			assert.Equal(t, tt.resource, got.PrimaryResource)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.service, got.Service)
			assert.Equal(t, tt.mutating, got.IsMutating)
			assert.Equal(t, tt.execType, got.ExecutionType)
			assert.Equal(t, "pattern", got.AnalysisMethod)
			if tt.filtState != "" {
				require.NotEmpty(t, got.FilterConditions)
				assert.Equal(t, tt.filtState, got.FilterConditions[0].Value)
			}
		})
	}
}

func TestLLMFallbackParsesJSON(t *testing.T) {
	reply := "```json\n" + `{
		"primary_resource": "bucket",
		"action": "create",
		"oci_service": "objectstorage",
		"is_mutating": true,
		"execution_type": "MULTI_STEP_REQUIRED",
		"confidence": 0.8
	}` + "\n```"
	a, llm := newAnalyzerForTest(t, reply)

	st := models.NewTurnState("s1", "make me some object storage please")
	got := a.Analyze(context.Background(), &st, st.UserInput)

	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, "bucket", got.PrimaryResource)
	assert.True(t, got.IsMutating)
	assert.Equal(t, models.ExecMultiStep, got.ExecutionType)
	assert.Equal(t, "llm", got.AnalysisMethod)
}

func TestMutatingDirectFetchIsPromoted(t *testing.T) {
	reply := `{"action": "delete", "is_mutating": true, "execution_type": "DIRECT_FETCH"}`
	a, _ := newAnalyzerForTest(t, reply)

	st := models.NewTurnState("s1", "wipe it")
	got := a.Analyze(context.Background(), &st, "please handle my storage situation")
	assert.Equal(t, models.ExecMultiStep, got.ExecutionType)
}

func TestLLMFailureYieldsUnknown(t *testing.T) {
	a, _ := newAnalyzerForTest(t, "[ERROR: all providers failed]")

	st := models.NewTurnState("s1", "hello there")
	got := a.Analyze(context.Background(), &st, "hello there")

	assert.Equal(t, models.ExecUnknown, got.ExecutionType)
	assert.False(t, got.Executable())
}

func TestUnparseableLLMAnswerYieldsUnknown(t *testing.T) {
	a, _ := newAnalyzerForTest(t, "sorry, I can't help with that")

	st := models.NewTurnState("s1", "hmm")
	got := a.Analyze(context.Background(), &st, "hmm")
	assert.Equal(t, models.ExecUnknown, got.ExecutionType)
}
