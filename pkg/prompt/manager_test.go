package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedTemplatesPresent(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	for _, name := range []string{
		Normalizer, Planner, PlannerEnhanced, IntentAnalyzer,
		Presentation, Supervisor, RequireParameter, ErrorHandler, CodegenBase,
	} {
		t.Run(name, func(t *testing.T) {
			text, err := m.Raw(name)
			require.NoError(t, err)
			assert.NotEmpty(t, text)
		})
	}
}

func TestRenderSubstitutesData(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	out, err := m.Render(Normalizer, map[string]any{
		"Query":   "list running insatnces",
		"Context": "none",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "list running insatnces")
}

func TestCodegenConcatenatesServiceTemplate(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	data := map[string]any{"Plan": "{}", "Query": "q"}

	base, err := m.Codegen("", data)
	require.NoError(t, err)

	withSvc, err := m.Codegen("objectstorage", data)
	require.NoError(t, err)
	assert.Greater(t, len(withSvc), len(base))
	assert.Contains(t, withSvc, "namespace")
}

func TestCodegenUnknownServiceDegradesToBase(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	data := map[string]any{"Plan": "{}", "Query": "q"}
	base, err := m.Codegen("", data)
	require.NoError(t, err)

	got, err := m.Codegen("nosuchservice", data)
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestOverrideDirectoryWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "normalizer.md"), []byte("override {{.Query}}"), 0o644))

	m, err := NewManager(dir)
	require.NoError(t, err)

	out, err := m.Render(Normalizer, map[string]any{"Query": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "override hello", out)

	// Names without overrides still come from the embedded set.
	_, err = m.Raw(Planner)
	assert.NoError(t, err)
}

func TestUnknownTemplate(t *testing.T) {
	m, err := NewManager("")
	require.NoError(t, err)

	_, err = m.Raw("nope")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}
