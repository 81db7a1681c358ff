package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potto-labs/potto/pkg/cloud"
	"github.com/potto-labs/potto/pkg/codegen"
	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/models"
)

const tenancy = "ocid1.tenancy.oc1..demo"

func newExecutorForTest(engine *config.EngineConfig) *Executor {
	if engine == nil {
		engine = &config.EngineConfig{}
	}
	return NewExecutor(cloud.NewInMemoryFactory(tenancy), cloud.Config{TenancyOCID: tenancy}, engine)
}

func mustMarshal(t *testing.T, p *codegen.Program) string {
	t.Helper()
	raw, err := p.Marshal()
	require.NoError(t, err)
	return raw
}

func stateWithArtifact(artifact string) models.TurnState {
	st := models.NewTurnState("s1", "run it")
	st.Plan = &models.Plan{PlanStep: models.PlanStep{
		Action: "list_instances", Service: "compute", Artifact: artifact,
	}}
	return st
}

func TestListWithAllCompartmentsFanOut(t *testing.T) {
	artifact := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{{
		Op: codegen.OpListResources, Service: "compute",
		Operation: "list_instances", AllCompartments: true,
	}}})
	st := stateWithArtifact(artifact)

	overlay, err := newExecutorForTest(nil).Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Equal(t, models.StageSupervisor, *overlay.NextStep)
	ok, failed := models.CountResults(overlay.ExecutionResult)
	assert.Equal(t, 3, ok, "web-1, web-2 and db-1 across both compartments")
	assert.Zero(t, failed)
}

func TestFilterKeepsMatchingRecords(t *testing.T) {
	artifact := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{
		{Op: codegen.OpListResources, Service: "compute", Operation: "list_instances",
			AllCompartments: true, SaveAs: "instances"},
		{Op: codegen.OpFilter, Input: "instances", Conditions: []models.Filter{
			{Field: "lifecycle_state", Operator: "equals", Value: "RUNNING"},
		}},
	}})
	st := stateWithArtifact(artifact)

	overlay, err := newExecutorForTest(nil).Run(context.Background(), &st)
	require.NoError(t, err)
	require.Len(t, overlay.ExecutionResult, 2)
	for _, item := range overlay.ExecutionResult {
		assert.Equal(t, "RUNNING", item.Attrs["lifecycle_state"])
	}
}

func TestNamespaceValueInterpolation(t *testing.T) {
	artifact := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{
		{Op: codegen.OpCall, Service: "objectstorage", Operation: "get_namespace",
			SaveAs: "namespace"},
		{Op: codegen.OpCall, Service: "objectstorage", Operation: "create_bucket",
			Params: map[string]any{
				"namespace_name": "{{namespace.value}}",
				"compartment_id": "ocid1.compartment.oc1..dev",
				"name":           "backups",
			}},
	}})
	st := stateWithArtifact(artifact)

	overlay, err := newExecutorForTest(nil).Run(context.Background(), &st)
	require.NoError(t, err)
	require.Len(t, overlay.ExecutionResult, 1)
	created := overlay.ExecutionResult[0].Attrs
	assert.Equal(t, "backups", created["name"])
	assert.Equal(t, "demo-namespace", created["namespace_name"])
}

func TestForEachInterpolatesItemFields(t *testing.T) {
	artifact := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{
		{Op: codegen.OpListResources, Service: "compute", Operation: "list_instances",
			AllCompartments: true, SaveAs: "instances"},
		{Op: codegen.OpFilter, Input: "instances", SaveAs: "stopped",
			Conditions: []models.Filter{{Field: "lifecycle_state", Value: "STOPPED"}}},
		{Op: codegen.OpForEach, Over: "stopped", Ops: []codegen.Step{
			{Op: codegen.OpCall, Service: "compute", Operation: "start_instance",
				Params: map[string]any{"instance_id": "{{item.id}}"}},
		}},
	}})
	st := stateWithArtifact(artifact)

	overlay, err := newExecutorForTest(nil).Run(context.Background(), &st)
	require.NoError(t, err)
	require.Len(t, overlay.ExecutionResult, 1, "only web-2 was stopped")
	assert.Equal(t, "RUNNING", overlay.ExecutionResult[0].Attrs["lifecycle_state"])
}

func TestUndefinedNameIsRetryable(t *testing.T) {
	artifact := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{{
		Op: codegen.OpFilter, Input: "instances",
		Conditions: []models.Filter{{Field: "x", Value: "y"}},
	}}})
	st := stateWithArtifact(artifact)

	overlay, err := newExecutorForTest(nil).Run(context.Background(), &st)
	require.NoError(t, err)
	require.NotNil(t, overlay.ExecutionError)
	assert.Contains(t, *overlay.ExecutionError, "is not defined")
	assert.True(t, Retryable(*overlay.ExecutionError))
}

func TestSequentialStepsCollectErrorsWithoutAborting(t *testing.T) {
	list := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{{
		Op: codegen.OpListResources, Service: "blockstorage",
		Operation: "list_volumes", AllCompartments: true,
	}}})
	broken := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{{
		Op: codegen.OpCall, Service: "compute", Operation: "get_instance",
		Params: map[string]any{"id": "ocid1.instance.oc1..missing"},
	}}})
	st := models.NewTurnState("s1", "volumes then a bad get")
	st.Plan = &models.Plan{Steps: []models.PlanStep{
		{Action: "list_volumes", Service: "blockstorage", Artifact: list},
		{Action: "get_instance", Service: "compute", Artifact: broken},
		{Action: "list_volumes", Service: "blockstorage", Artifact: list},
	}}

	overlay, err := newExecutorForTest(nil).Run(context.Background(), &st)
	require.NoError(t, err)
	require.NotNil(t, overlay.ExecutionError)
	assert.Contains(t, *overlay.ExecutionError, "step 2")
	ok, failed := models.CountResults(overlay.ExecutionResult)
	assert.Equal(t, 2, ok, "both volume listings still ran")
	assert.Equal(t, 1, failed)
}

func TestBatchedProgramCollectsPerItemErrors(t *testing.T) {
	artifact := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{
		{Op: codegen.OpCall, Service: "objectstorage", Operation: "get_namespace",
			SaveAs: "namespace"},
		{Op: codegen.OpCall, Service: "objectstorage", Operation: "create_bucket",
			Params: map[string]any{
				"namespace_name": "{{namespace.value}}",
				"compartment_id": "ocid1.compartment.oc1..dev",
				"name":           "alpha",
			}},
		{Op: codegen.OpCall, Service: "objectstorage", Operation: "replicate_bucket",
			Params: map[string]any{"name": "beta"}},
		{Op: codegen.OpCall, Service: "objectstorage", Operation: "create_bucket",
			Params: map[string]any{
				"namespace_name": "{{namespace.value}}",
				"compartment_id": "ocid1.compartment.oc1..dev",
				"name":           "gamma",
			}},
	}})
	st := models.NewTurnState("s1", "create buckets alpha, beta, gamma")
	st.Plan = &models.Plan{
		PlanStep: models.PlanStep{Action: "create_bucket", Service: "objectstorage",
			Artifact: artifact},
		Steps: []models.PlanStep{
			{Action: "create_bucket", Service: "objectstorage"},
			{Action: "create_bucket", Service: "objectstorage"},
			{Action: "create_bucket", Service: "objectstorage"},
		},
	}

	overlay, err := newExecutorForTest(nil).Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Nil(t, overlay.ExecutionError, "one bad batch entry is not a turn-level failure")
	require.Len(t, overlay.ExecutionResult, 3, "one entry per bucket")
	ok, failed := models.CountResults(overlay.ExecutionResult)
	assert.Equal(t, 2, ok, "alpha and gamma were still created")
	assert.Equal(t, 1, failed)
	assert.Equal(t, "gamma", overlay.ExecutionResult[2].Attrs["name"])
}

func TestParallelSafeStepsProduceOrderedResults(t *testing.T) {
	volumes := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{{
		Op: codegen.OpListResources, Service: "blockstorage",
		Operation: "list_volumes", AllCompartments: true,
	}}})
	buckets := mustMarshal(t, &codegen.Program{Ops: []codegen.Step{{
		Op: codegen.OpListResources, Service: "objectstorage",
		Operation: "list_buckets", AllCompartments: true,
	}}})
	st := models.NewTurnState("s1", "storage overview")
	st.Plan = &models.Plan{Steps: []models.PlanStep{
		{Action: "list_volumes", Service: "blockstorage", SafetyTier: models.TierSafe, Artifact: volumes},
		{Action: "list_buckets", Service: "objectstorage", SafetyTier: models.TierSafe, Artifact: buckets},
	}}
	e := newExecutorForTest(&config.EngineConfig{ParallelSafeSteps: true, MaxParallelSteps: 2})

	overlay, err := e.Run(context.Background(), &st)
	require.NoError(t, err)
	require.Len(t, overlay.ExecutionResult, 2)
	assert.Equal(t, "data-vol", overlay.ExecutionResult[0].Attrs["display_name"])
	assert.Equal(t, "assets", overlay.ExecutionResult[1].Attrs["name"])
}

func TestDestructiveStepsNeverRunInParallel(t *testing.T) {
	e := newExecutorForTest(&config.EngineConfig{ParallelSafeSteps: true})
	plan := &models.Plan{Steps: []models.PlanStep{
		{Action: "list_volumes", SafetyTier: models.TierSafe},
		{Action: "delete_volume", SafetyTier: models.TierDestructive},
	}}
	assert.False(t, e.parallelEligible(plan))
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		errText string
		want    bool
	}{
		{"NameError: name 'instances' is not defined", true},
		{"object has no attribute 'display_name'", true},
		{"unknown operation: compute.reboot_instance", true},
		{"permission denied for compartment", false},
		{"rate limit exceeded, try later", false},
		{"authentication failed: bad fingerprint", false},
		{"something entirely new went wrong", true},
	}
	for _, tt := range tests {
		t.Run(tt.errText, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.errText))
		})
	}
}

func TestSanitizePrimitiveAndError(t *testing.T) {
	items := sanitize("demo-namespace")
	require.Len(t, items, 1)
	assert.Equal(t, "demo-namespace", items[0].Attrs["value"])
	assert.Equal(t, "string", items[0].Attrs["type"])

	items = sanitize([]any{errors.New("boom"), map[string]any{"id": "x"}})
	require.Len(t, items, 2)
	assert.True(t, items[0].IsError())
	assert.Equal(t, "x", items[1].Attrs["id"])
}
