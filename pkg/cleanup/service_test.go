package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/memory"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/session"
)

func newServiceForTest(t *testing.T, cfg *config.RetentionConfig) (*Service, *memory.Manager, *session.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	mem, err := memory.NewManager(&config.MemoryConfig{Dir: dir})
	require.NoError(t, err)
	sessions := session.NewManager()
	return NewService(cfg, mem, sessions), mem, sessions, dir
}

func TestRunAllPrunesOldMemoryFiles(t *testing.T) {
	cfg := &config.RetentionConfig{MemoryMaxAge: time.Hour}
	svc, mem, _, dir := newServiceForTest(t, cfg)

	st := models.NewTurnState("s1", "list instances")
	st.Presentation = &models.Presentation{Summary: "done"}
	mem.SaveTurn(&st)

	old := time.Now().Add(-2 * time.Hour)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.NoError(t, os.Chtimes(filepath.Join(dir, e.Name()), old, old))
	}

	svc.runAll()

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "all memory files were past retention")
}

func TestRunAllSweepsIdleSessions(t *testing.T) {
	cfg := &config.RetentionConfig{SessionTTL: time.Hour}
	svc, _, sessions, _ := newServiceForTest(t, cfg)

	s := sessions.Create("")
	got, err := sessions.Get(s.ID)
	require.NoError(t, err)
	got.LastActive = time.Now().Add(-2 * time.Hour)

	svc.runAll()

	_, err = sessions.Get(s.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestZeroConfigPassesAreNoOps(t *testing.T) {
	svc, _, sessions, _ := newServiceForTest(t, &config.RetentionConfig{})
	s := sessions.Create("")

	svc.runAll()

	_, err := sessions.Get(s.ID)
	assert.NoError(t, err, "no TTL configured means nothing expires")
}

func TestStartAndStop(t *testing.T) {
	cfg := &config.RetentionConfig{SweepInterval: 10 * time.Millisecond}
	svc, _, _, _ := newServiceForTest(t, cfg)

	svc.Start(t.Context())
	time.Sleep(30 * time.Millisecond)
	svc.Stop()
}
