package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnState_Apply_MergeOrder(t *testing.T) {
	state := NewTurnState("sess-1", "list instances")

	first := &Overlay{
		NormalizedQuery: StringPtr("list instances"),
		NextStep:        StringPtr(StagePlanner),
	}
	second := &Overlay{
		NextStep: StringPtr(StageCodeGen),
	}

	state.Apply(first)
	state.Apply(second)

	// Later writes win.
	assert.Equal(t, StageCodeGen, state.NextStep)
	assert.Equal(t, "list instances", state.NormalizedQuery)
}

func TestTurnState_Apply_NilFieldsUntouched(t *testing.T) {
	state := NewTurnState("sess-1", "q")
	state.NormalizedQuery = "kept"
	state.ExecutionRetries = 1

	state.Apply(&Overlay{NextStep: StringPtr(StageExecutor)})

	assert.Equal(t, "kept", state.NormalizedQuery)
	assert.Equal(t, 1, state.ExecutionRetries)
	assert.Equal(t, StageExecutor, state.NextStep)
}

func TestTurnState_Apply_ClearFlags(t *testing.T) {
	state := NewTurnState("sess-1", "q")
	state.PendingPlan = &Plan{PlanStep: PlanStep{Action: "create_bucket"}}
	state.MissingParameters = []string{"name"}
	state.ExecutionError = "boom"
	state.RequiresConfirmation = true
	state.ConfirmationResponse = "yes"

	state.Apply(&Overlay{
		ClearPendingPlan:       true,
		ClearMissingParameters: true,
		ClearExecutionError:    true,
		ClearConfirmation:      true,
	})

	assert.Nil(t, state.PendingPlan)
	assert.Empty(t, state.MissingParameters)
	assert.Empty(t, state.ExecutionError)
	assert.False(t, state.RequiresConfirmation)
	assert.Empty(t, state.ConfirmationResponse)
}

func TestTurnState_RecordTiming_Accumulates(t *testing.T) {
	state := NewTurnState("sess-1", "q")

	state.RecordTiming(StageCodeGen, 0.5)
	state.RecordTiming(StageCodeGen, 0.25)

	assert.InDelta(t, 0.75, state.Timings[StageCodeGen], 1e-9)
}

func TestTurnState_EffectivePlan(t *testing.T) {
	state := NewTurnState("sess-1", "q")
	live := &Plan{PlanStep: PlanStep{Action: "list_instances"}}
	pending := &Plan{PlanStep: PlanStep{Action: "create_bucket"}}

	state.Plan = live
	assert.Same(t, live, state.EffectivePlan())

	state.PendingPlan = pending
	assert.Same(t, pending, state.EffectivePlan())
}

func TestPlan_MergeParams(t *testing.T) {
	tests := []struct {
		name        string
		plan        *Plan
		params      map[string]any
		wantMissing []string
		wantParam   string
	}{
		{
			name: "fills missing and clears it",
			plan: &Plan{PlanStep: PlanStep{
				Action:            "create_bucket",
				MissingParameters: []string{"compartment_id", "name"},
			}},
			params:      map[string]any{"name": "demo"},
			wantMissing: []string{"compartment_id"},
			wantParam:   "demo",
		},
		{
			name: "extra params are added without clearing others",
			plan: &Plan{PlanStep: PlanStep{
				Action:            "create_bucket",
				MissingParameters: []string{"compartment_id"},
			}},
			params:      map[string]any{"name": "demo"},
			wantMissing: []string{"compartment_id"},
			wantParam:   "demo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.plan.MergeParams(tt.params)
			assert.Equal(t, tt.wantMissing, tt.plan.MissingParameters)
			assert.Equal(t, tt.wantParam, tt.plan.Params["name"])
		})
	}
}

func TestPlan_MergeParams_MultiStep(t *testing.T) {
	plan := &Plan{
		Steps: []PlanStep{
			{Action: "create_bucket", MissingParameters: []string{"compartment_id", "name"}},
			{Action: "create_bucket", MissingParameters: []string{"compartment_id", "name"}},
		},
	}

	plan.MergeParams(map[string]any{"compartment_id": "ocid1.compartment.oc1..aaa", "name": "b1"})

	for i, st := range plan.Steps {
		assert.Emptyf(t, st.MissingParameters, "step %d", i)
		assert.Equal(t, "b1", st.Params["name"])
	}
}

func TestPlan_Clone_NoAliasing(t *testing.T) {
	orig := &Plan{PlanStep: PlanStep{
		Action: "create_bucket",
		Params: map[string]any{"name": "a"},
	}}

	cp := orig.Clone()
	cp.Params["name"] = "b"

	assert.Equal(t, "a", orig.Params["name"])
	assert.Equal(t, "b", cp.Params["name"])
}

func TestPlan_IsMultiStep(t *testing.T) {
	single := &Plan{PlanStep: PlanStep{Action: "list_instances"}}
	multi := &Plan{Steps: []PlanStep{{Action: "create_bucket"}, {Action: "create_bucket"}}}

	assert.False(t, single.IsMultiStep())
	assert.True(t, multi.IsMultiStep())
	require.Len(t, multi.AllSteps(), 2)
	require.Len(t, single.AllSteps(), 1)
}

func TestResultItem_AsMap(t *testing.T) {
	ok := OkItem(map[string]any{"display_name": "vm-1"})
	val := ValueItem(42)
	errItem := ErrorItem(assert.AnError, "ServiceError")

	assert.Equal(t, "vm-1", ok.AsMap()["display_name"])
	assert.Equal(t, 42, val.AsMap()["value"])
	assert.Equal(t, "int", val.AsMap()["type"])
	assert.True(t, errItem.IsError())
	assert.Contains(t, errItem.AsMap()["error"], "assert.AnError")

	okN, failedN := CountResults([]ResultItem{ok, val, errItem})
	assert.Equal(t, 2, okN)
	assert.Equal(t, 1, failedN)
}
