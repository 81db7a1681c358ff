package codegen

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

type scriptedLLM struct {
	replies  []string
	prompts  []string
	sentinel bool
}

func (s *scriptedLLM) Call(_ context.Context, _ *models.TurnState, msgs []gateway.Message, _ string, _ bool) string {
	s.prompts = append(s.prompts, msgs[len(msgs)-1].Content)
	if s.sentinel {
		return "[ERROR: all providers failed]"
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply
}

func newGeneratorForTest(t *testing.T, replies ...string) (*Generator, *scriptedLLM) {
	t.Helper()
	pm, err := prompt.NewManager("")
	require.NoError(t, err)
	llm := &scriptedLLM{replies: replies, sentinel: len(replies) == 0}
	return NewGenerator(llm, pm), llm
}

func singleStepState(action, service string, params map[string]any) models.TurnState {
	st := models.NewTurnState("s1", "test query")
	st.NormalizedQuery = st.UserInput
	st.Plan = &models.Plan{PlanStep: models.PlanStep{
		Action: action, Service: service, Params: params, SafetyTier: models.TierSafe,
	}}
	return st
}

func TestGenerateSingleStepArtifact(t *testing.T) {
	reply := `{"ops": [{"op": "list_resources", "service": "compute",
	           "operation": "list_instances", "all_compartments": true}]}`
	g, _ := newGeneratorForTest(t, reply)
	st := singleStepState("list_instances", "compute", nil)

	overlay, err := g.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Equal(t, models.StageVerifier, *overlay.NextStep)
	require.NotEmpty(t, overlay.Plan.Artifact)

	program, err := Parse(overlay.Plan.Artifact)
	require.NoError(t, err)
	require.Len(t, program.Ops, 1)
	assert.Equal(t, OpListResources, program.Ops[0].Op)
	assert.True(t, program.Ops[0].AllCompartments)
}

func TestPostProcessRewritesAliasesAndDropsIncludeRoot(t *testing.T) {
	reply := `{"ops": [{"op": "list_resources", "service": "core",
	           "operation": "LIST_INSTANCES",
	           "params": {"include_root": true, "compartment_id": "{{compartment_id}}"}}]}`
	g, _ := newGeneratorForTest(t, reply)
	st := singleStepState("list_instances", "compute",
		map[string]any{"compartment_id": "ocid1.compartment.oc1..aaa"})

	overlay, err := g.Run(context.Background(), &st)
	require.NoError(t, err)
	program, err := Parse(overlay.Plan.Artifact)
	require.NoError(t, err)

	op := program.Ops[0]
	assert.Equal(t, "compute", op.Service)
	assert.Equal(t, "list_instances", op.Operation)
	assert.NotContains(t, op.Params, "include_root")
	assert.Equal(t, "ocid1.compartment.oc1..aaa", op.Params["compartment_id"])
}

func TestRuntimeInterpolationsSurviveSubstitution(t *testing.T) {
	reply := `{"ops": [
	  {"op": "list_resources", "service": "compute", "operation": "list_instances",
	   "save_as": "instances"},
	  {"op": "for_each", "over": "instances", "ops": [
	    {"op": "call", "service": "compute", "operation": "get_instance",
	     "params": {"instance_id": "{{item.id}}"}}]}]}`
	g, _ := newGeneratorForTest(t, reply)
	st := singleStepState("list_instances", "compute", map[string]any{"item": "wrong"})

	overlay, err := g.Run(context.Background(), &st)
	require.NoError(t, err)
	program, err := Parse(overlay.Plan.Artifact)
	require.NoError(t, err)
	assert.Equal(t, "{{item.id}}", program.Ops[1].Ops[0].Params["instance_id"])
}

func TestNamespacePreludeIsPrepended(t *testing.T) {
	reply := `{"ops": [{"op": "call", "service": "objectstorage",
	           "operation": "create_bucket",
	           "params": {"compartment_id": "c1", "name": "backups"}}]}`
	g, _ := newGeneratorForTest(t, reply)
	st := singleStepState("create_bucket", "objectstorage",
		map[string]any{"compartment_id": "c1", "name": "backups"})

	overlay, err := g.Run(context.Background(), &st)
	require.NoError(t, err)
	program, err := Parse(overlay.Plan.Artifact)
	require.NoError(t, err)

	require.Len(t, program.Ops, 2)
	assert.Equal(t, "get_namespace", program.Ops[0].Operation)
	assert.Equal(t, "namespace", program.Ops[0].SaveAs)
	assert.Equal(t, "{{namespace.value}}", program.Ops[1].Params["namespace_name"])
}

func TestBatchOptimizeHomogeneousSteps(t *testing.T) {
	reply := `{"ops": [
	  {"op": "call", "service": "compute", "operation": "stop_instance",
	   "params": {"instance_id": "i-1"}},
	  {"op": "call", "service": "compute", "operation": "stop_instance",
	   "params": {"instance_id": "i-2"}}]}`
	g, llm := newGeneratorForTest(t, reply)
	st := models.NewTurnState("s1", "stop both web instances")
	st.NormalizedQuery = st.UserInput
	st.Plan = &models.Plan{Steps: []models.PlanStep{
		{Action: "stop_instance", Service: "compute", Params: map[string]any{"instance_id": "i-1"}},
		{Action: "stop_instance", Service: "compute", Params: map[string]any{"instance_id": "i-2"}},
	}}

	overlay, err := g.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Len(t, llm.prompts, 1, "homogeneous steps batch into one generation")
	assert.NotEmpty(t, overlay.Plan.Artifact)
	for _, step := range overlay.Plan.Steps {
		assert.Empty(t, step.Artifact)
	}
}

func TestHeterogeneousStepsGetOneArtifactEach(t *testing.T) {
	replies := []string{
		`{"ops": [{"op": "list_resources", "service": "blockstorage", "operation": "list_volumes"}]}`,
		`{"ops": [{"op": "call", "service": "compute", "operation": "stop_instance",
		  "params": {"instance_id": "i-1"}}]}`,
	}
	g, llm := newGeneratorForTest(t, replies...)
	st := models.NewTurnState("s1", "volumes then stop")
	st.Plan = &models.Plan{Steps: []models.PlanStep{
		{Action: "list_volumes", Service: "blockstorage"},
		{Action: "stop_instance", Service: "compute", Params: map[string]any{"instance_id": "i-1"}},
	}}

	overlay, err := g.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Len(t, llm.prompts, 2)
	assert.Empty(t, overlay.Plan.Artifact)
	for _, step := range overlay.Plan.Steps {
		assert.NotEmpty(t, step.Artifact)
	}
}

func TestCorrectionPreambleOnRetry(t *testing.T) {
	reply := `{"ops": [{"op": "list_resources", "service": "compute", "operation": "list_instances"}]}`
	g, llm := newGeneratorForTest(t, reply)
	st := singleStepState("list_instances", "compute", nil)
	st.VerifyCritique = "program used service name oracle_compute"

	_, err := g.Run(context.Background(), &st)
	require.NoError(t, err)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "oracle_compute")
}

func TestGenerationFailureRoutesToSupervisor(t *testing.T) {
	g, _ := newGeneratorForTest(t)
	st := singleStepState("list_instances", "compute", nil)

	overlay, err := g.Run(context.Background(), &st)
	require.NoError(t, err)
	require.NotNil(t, overlay.ExecutionError)
	assert.Contains(t, *overlay.ExecutionError, "program generation failed")
	assert.Equal(t, models.StageSupervisor, *overlay.NextStep)
}

func TestPendingPlanIsPromoted(t *testing.T) {
	reply := `{"ops": [{"op": "call", "service": "blockstorage", "operation": "delete_volume",
	           "params": {"volume_id": "v-1"}}]}`
	g, _ := newGeneratorForTest(t, reply)
	st := models.NewTurnState("s1", "delete the volume")
	st.NormalizedQuery = st.UserInput
	st.PendingPlan = &models.Plan{PlanStep: models.PlanStep{
		Action: "delete_volume", Service: "blockstorage",
		Params: map[string]any{"volume_id": "v-1"}, SafetyTier: models.TierDestructive,
	}}

	overlay, err := g.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.True(t, overlay.ClearPendingPlan)
	require.NotNil(t, overlay.Plan)
	assert.NotEmpty(t, overlay.Plan.Artifact)
}

func TestValidateArtifact(t *testing.T) {
	good := `{"ops": [{"op": "call", "service": "compute", "operation": "get_instance"}]}`
	assert.NoError(t, ValidateArtifact(good))

	tests := []struct {
		name     string
		artifact string
	}{
		{"not json", "def run(): pass"},
		{"empty ops", `{"ops": []}`},
		{"unknown op", `{"ops": [{"op": "eval"}]}`},
		{"missing ops", `{"steps": [{"op": "call"}]}`},
		{"stray field", `{"ops": [{"op": "call", "return": true}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateArtifact(tt.artifact))
		})
	}
}

func TestProgramRoundTrip(t *testing.T) {
	p := &Program{Ops: []Step{{
		Op: OpFilter, Input: "instances",
		Conditions: []models.Filter{{Field: "lifecycle_state", Operator: "equals", Value: "RUNNING"}},
	}}}
	raw, err := p.Marshal()
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(raw)))

	back, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, p.Ops[0].Conditions[0].Field, back.Ops[0].Conditions[0].Field)
}
