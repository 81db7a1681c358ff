package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potto-labs/potto/pkg/models"
)

func TestCreateAndGet(t *testing.T) {
	m := NewManager()
	s := m.Create("alex")

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "alex", got.UserID)

	_, err = m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrCreateKeepsExisting(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("client-chosen-id", "alex")
	again := m.GetOrCreate("client-chosen-id", "other")
	assert.Same(t, s, again)
	assert.Equal(t, "alex", again.UserID)
}

func TestPausedTurnIsHandedOutOnce(t *testing.T) {
	m := NewManager()
	s := m.Create("")

	st := models.NewTurnState(s.ID, "create a bucket")
	st.NextStep = models.StageUserInput
	st.Presentation = &models.Presentation{ConfirmationRequired: true, Summary: "Proceed?"}
	m.Finish(s.ID, &st)

	got, err := m.TakePaused(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "create a bucket", got.UserInput)

	_, err = m.TakePaused(s.ID)
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestCompletedTurnClearsPause(t *testing.T) {
	m := NewManager()
	s := m.Create("")

	st := models.NewTurnState(s.ID, "list instances")
	st.Terminal = true
	st.Presentation = &models.Presentation{Summary: "two instances"}
	m.Finish(s.ID, &st)

	_, err := m.TakePaused(s.ID)
	assert.ErrorIs(t, err, ErrNotPaused)

	transcript, err := m.Transcript(s.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, "list instances", transcript[0].Content)
	assert.Equal(t, "two instances", transcript[1].Content)
}

func TestBeginRejectsConcurrentTurns(t *testing.T) {
	m := NewManager()
	s := m.Create("")

	require.NoError(t, m.Begin(s.ID, func() {}))
	assert.ErrorIs(t, m.Begin(s.ID, func() {}), ErrBusy)

	m.Finish(s.ID, &models.TurnState{})
	assert.NoError(t, m.Begin(s.ID, func() {}))
}

func TestCancelFiresTheTurnContext(t *testing.T) {
	m := NewManager()
	s := m.Create("")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Begin(s.ID, cancel))
	require.NoError(t, m.Cancel(s.ID))

	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel did not propagate")
	}
	// Cancelling an idle session is a no-op.
	assert.NoError(t, m.Cancel(s.ID))
}

func TestSweepIdleSkipsInFlight(t *testing.T) {
	m := NewManager()
	idle := m.Create("")
	busy := m.Create("")
	require.NoError(t, m.Begin(busy.ID, func() {}))

	m.mu.Lock()
	m.sessions[idle.ID].LastActive = time.Now().Add(-2 * time.Hour)
	m.sessions[busy.ID].LastActive = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	removed := m.SweepIdle(time.Hour)
	assert.Equal(t, 1, removed)
	_, err := m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(busy.ID)
	assert.NoError(t, err)
}
