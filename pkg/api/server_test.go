package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/potto-labs/potto/pkg/cloud"
	"github.com/potto-labs/potto/pkg/config"
	"github.com/potto-labs/potto/pkg/engine"
	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/memory"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
	"github.com/potto-labs/potto/pkg/session"
)

const tenancy = "ocid1.tenancy.oc1..demo"

const listProgram = `{"ops": [
  {"op": "list_resources", "service": "compute", "operation": "list_instances",
   "all_compartments": true, "save_as": "instances"},
  {"op": "filter", "input": "instances",
   "conditions": [{"field": "lifecycle_state", "operator": "equals", "value": "RUNNING"}]}
]}`

// scriptedLLM replies per stage name; each call pops the next reply and
// the last one repeats.
type scriptedLLM struct {
	replies map[string][]string
}

func (s *scriptedLLM) Call(_ context.Context, _ *models.TurnState, _ []gateway.Message, stage string, _ bool) string {
	queue := s.replies[stage]
	if len(queue) == 0 {
		return "[ERROR: no scripted reply for " + stage + "]"
	}
	reply := queue[0]
	if len(queue) > 1 {
		s.replies[stage] = queue[1:]
	}
	return reply
}

func newServerForTest(t *testing.T, llm gateway.Caller) (*Server, *session.Manager) {
	t.Helper()
	pm, err := prompt.NewManager("")
	require.NoError(t, err)
	mem, err := memory.NewManager(&config.MemoryConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	eng := engine.Build(engine.Deps{
		Config:   &config.Config{},
		LLM:      llm,
		Prompts:  pm,
		Memory:   mem,
		Factory:  cloud.NewInMemoryFactory(tenancy),
		CloudCfg: cloud.Config{TenancyOCID: tenancy},
	})
	sessions := session.NewManager()
	return NewServer(&config.ServerConfig{Host: "127.0.0.1", Port: 0}, eng, sessions, mem), sessions
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestHealth(t *testing.T) {
	srv, _ := newServerForTest(t, &scriptedLLM{})
	rec, payload := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", payload["status"])
	assert.Equal(t, "potto", payload["service"])
}

func TestChatRunsAFullTurn(t *testing.T) {
	llm := &scriptedLLM{replies: map[string][]string{
		models.StageNormalizer:   {"list running instances"},
		models.StageCodeGen:      {listProgram},
		models.StagePresentation: {"Two instances are running."},
	}}
	srv, sessions := newServerForTest(t, llm)

	rec, payload := doJSON(t, srv, http.MethodPost, "/api/v1/chat",
		`{"message": "list running instances"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, payload["awaiting_input"].(bool))
	pres := payload["presentation"].(map[string]any)
	assert.Equal(t, "Two instances are running.", pres["summary"])
	assert.Len(t, pres["data"].([]any), 2)

	sessionID := payload["session_id"].(string)
	transcript, err := sessions.Transcript(sessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, "list running instances", transcript[0].Content)
}

func TestChatRequiresMessage(t *testing.T) {
	srv, _ := newServerForTest(t, &scriptedLLM{})
	rec, _ := doJSON(t, srv, http.MethodPost, "/api/v1/chat", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInteractiveTurnPausesAndResumes(t *testing.T) {
	llm := &scriptedLLM{replies: map[string][]string{
		models.StageNormalizer: {"delete volume data-vol"},
		models.StagePlanner: {
			`{"action": "delete_volume", "service": "block_storage",
			  "params": {"volume_id": "ocid1.volume.oc1..aaa"}}`,
		},
	}}
	srv, _ := newServerForTest(t, llm)

	rec, payload := doJSON(t, srv, http.MethodPost, "/api/v1/chat",
		`{"session_id": "s-1", "message": "delete volume data-vol"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, payload["awaiting_input"].(bool))
	pres := payload["presentation"].(map[string]any)
	assert.Equal(t, true, pres["confirmation_required"])

	rec, payload = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/s-1/resume",
		`{"answer": "no"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, payload["awaiting_input"].(bool))
	pres = payload["presentation"].(map[string]any)
	assert.Equal(t, true, pres["action_cancelled"])

	// The paused state is handed out exactly once.
	rec, _ = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/s-1/resume",
		`{"answer": "yes"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResumeUnknownSession(t *testing.T) {
	srv, _ := newServerForTest(t, &scriptedLLM{})
	rec, _ := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/nope/resume",
		`{"answer": "yes"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancel(t *testing.T) {
	srv, sessions := newServerForTest(t, &scriptedLLM{})
	s := sessions.Create("")

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/v1/sessions/"+s.ID+"/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodPost, "/api/v1/sessions/nope/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTranscriptUnknownSession(t *testing.T) {
	srv, _ := newServerForTest(t, &scriptedLLM{})
	rec, _ := doJSON(t, srv, http.MethodGet, "/api/v1/sessions/nope/transcript", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSuggestions(t *testing.T) {
	srv, _ := newServerForTest(t, &scriptedLLM{})
	rec, payload := doJSON(t, srv, http.MethodGet, "/api/v1/suggestions?hint=instances", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := payload["suggestions"]
	assert.True(t, ok)
}