package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

// scriptedLLM answers each call from a queue; the last entry repeats.
type scriptedLLM struct {
	replies []string
	calls   int
}

func (s *scriptedLLM) Call(_ context.Context, _ *models.TurnState, _ []gateway.Message, _ string, _ bool) string {
	s.calls++
	if len(s.replies) == 0 {
		return "[ERROR: no reply scripted]"
	}
	reply := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return reply
}

func newPlannerForTest(t *testing.T, replies ...string) (*Planner, *scriptedLLM) {
	t.Helper()
	pm, err := prompt.NewManager("")
	require.NoError(t, err)
	llm := &scriptedLLM{replies: replies}
	return NewPlanner(llm, pm), llm
}

func TestTemplatePlanSkipsTheLM(t *testing.T) {
	p, llm := newPlannerForTest(t)
	st := models.NewTurnState("s1", "list running instances")
	st.NormalizedQuery = st.UserInput
	st.Intent = &models.Intent{
		PrimaryResource:   "instance",
		Action:            "list",
		Service:           "compute",
		ExecutionType:     models.ExecDirectFetch,
		RequiresFiltering: true,
		FilterConditions:  []models.Filter{{Field: "lifecycle_state", Value: "RUNNING"}},
	}

	overlay, err := p.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Zero(t, llm.calls)
	require.NotNil(t, overlay.Plan)
	assert.Equal(t, "list_instances", overlay.Plan.Action)
	assert.Equal(t, "compute", overlay.Plan.Service)
	assert.Equal(t, true, overlay.Plan.Params["all_compartments"])
	assert.True(t, overlay.Plan.FilterInCode)
	assert.Equal(t, models.TierSafe, overlay.Plan.SafetyTier)
	assert.Equal(t, models.StrategyDirectFetch, *overlay.ExecutionStrategy)
	assert.Equal(t, models.StageSupervisor, *overlay.NextStep)
}

func TestCompartmentListingIsTenancyScoped(t *testing.T) {
	p, _ := newPlannerForTest(t)
	st := models.NewTurnState("s1", "list compartments")
	st.Intent = &models.Intent{
		PrimaryResource: "compartment",
		Action:          "list",
		ExecutionType:   models.ExecDirectFetch,
	}

	overlay, err := p.Run(context.Background(), &st)
	require.NoError(t, err)
	_, fansOut := overlay.Plan.Params["all_compartments"]
	assert.False(t, fansOut)
}

func TestLLMPlanIsNormalized(t *testing.T) {
	// The LM emits an alias service name and omits all_compartments.
	plan := `{"action": "list_instances", "service": "core", "params": {}}`
	p, llm := newPlannerForTest(t, plan)
	st := models.NewTurnState("s1", "anything unusual with my fleet?")
	st.NormalizedQuery = st.UserInput
	st.Intent = &models.Intent{Action: "list", ExecutionType: models.ExecMultiStep}

	overlay, err := p.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, "compute", overlay.Plan.Service)
	assert.Equal(t, true, overlay.Plan.Params["all_compartments"])
}

func TestDestructivePlanVerifiesRequiredParams(t *testing.T) {
	// The LM claims nothing is missing; the table says otherwise. The
	// follow-up extraction call finds only the bucket name in the query.
	plan := `{"action": "create_bucket", "service": "object_storage",
	          "params": {}, "missing_parameters": []}`
	extracted := `{"name": "backups", "compartment_id": ""}`
	p, llm := newPlannerForTest(t, plan, extracted)
	st := models.NewTurnState("s1", "create a bucket called backups")
	st.NormalizedQuery = st.UserInput
	st.Intent = &models.Intent{Action: "create", IsMutating: true, ExecutionType: models.ExecMultiStep}

	overlay, err := p.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Equal(t, 2, llm.calls)
	assert.Equal(t, "objectstorage", overlay.Plan.Service)
	assert.Equal(t, "backups", overlay.Plan.Params["name"])
	assert.Equal(t, []string{"compartment_id"}, overlay.MissingParameters)
	assert.True(t, *overlay.RequiresConfirmation)
	assert.Equal(t, models.TierDestructive, overlay.Plan.SafetyTier)
}

func TestUnknownDestructiveActionTrustsTheLM(t *testing.T) {
	plan := `{"action": "update_dns_zone", "service": "virtualnetwork",
	          "params": {}, "missing_parameters": ["zone_id"]}`
	p, llm := newPlannerForTest(t, plan)
	st := models.NewTurnState("s1", "change my dns zone")
	st.Intent = &models.Intent{Action: "update", IsMutating: true, ExecutionType: models.ExecMultiStep}

	overlay, err := p.Run(context.Background(), &st)
	require.NoError(t, err)
	assert.Equal(t, 1, llm.calls, "no table entry, so no extraction pass")
	assert.Equal(t, []string{"zone_id"}, overlay.MissingParameters)
	assert.True(t, *overlay.RequiresConfirmation)
}

func TestMultiStepRollup(t *testing.T) {
	plan := `{"steps": [
	  {"action": "list_volumes", "service": "block_storage", "params": {}},
	  {"action": "delete_volume", "service": "block_storage",
	   "params": {"volume_id": "ocid1.volume.oc1..aaa"}}
	]}`
	p, _ := newPlannerForTest(t, plan)
	st := models.NewTurnState("s1", "clean up detached volumes")
	st.Intent = &models.Intent{Action: "delete", IsMutating: true, ExecutionType: models.ExecMultiStep}

	overlay, err := p.Run(context.Background(), &st)
	require.NoError(t, err)
	require.Len(t, overlay.Plan.Steps, 2)
	assert.Equal(t, "blockstorage", overlay.Plan.Steps[0].Service)
	assert.Equal(t, models.TierSafe, overlay.Plan.Steps[0].SafetyTier)
	assert.Equal(t, models.TierDestructive, overlay.Plan.Steps[1].SafetyTier)
	assert.True(t, overlay.Plan.IsDestructive())
	assert.True(t, *overlay.RequiresConfirmation)
	assert.Empty(t, overlay.MissingParameters, "volume_id was supplied")
}

func TestPlanFailureSetsPlanError(t *testing.T) {
	p, _ := newPlannerForTest(t, "[ERROR: all providers failed]")
	st := models.NewTurnState("s1", "do something complicated")
	st.Intent = &models.Intent{Action: "create", ExecutionType: models.ExecMultiStep}

	overlay, err := p.Run(context.Background(), &st)
	require.NoError(t, err)
	require.NotNil(t, overlay.PlanError)
	assert.Contains(t, *overlay.PlanError, "plan generation failed")
	assert.Equal(t, models.StageSupervisor, *overlay.NextStep)
	assert.Nil(t, overlay.Plan)
}

func TestUnparseablePlanSetsPlanError(t *testing.T) {
	p, _ := newPlannerForTest(t, "I would suggest listing your instances first.")
	st := models.NewTurnState("s1", "hmm")
	st.Intent = &models.Intent{Action: "create", ExecutionType: models.ExecMultiStep}

	overlay, err := p.Run(context.Background(), &st)
	require.NoError(t, err)
	require.NotNil(t, overlay.PlanError)
}

func TestListCompartmentsPlan(t *testing.T) {
	plan := ListCompartmentsPlan()
	assert.Equal(t, "list_compartments", plan.Action)
	assert.Equal(t, "identity", plan.Service)
	assert.False(t, plan.IsDestructive())
}
