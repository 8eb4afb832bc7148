package workflowexec

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWorkflowYAML = `
id: wf-from-disk
name: from disk
trigger: manual
steps:
  - id: start
    type: end
    edges: []
`

func TestLoadAllRegistersEveryYAMLFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(sampleWorkflowYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("not yaml"), 0o644))

	ex := New(nil, nil)
	w := NewDefinitionWatcher(dir, ex, nil)
	require.NoError(t, w.LoadAll())

	def, ok := ex.Workflow("wf-from-disk")
	require.True(t, ok)
	assert.Equal(t, "from disk", def.Name)
}

func TestStartPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	ex := New(nil, nil)
	w := NewDefinitionWatcher(dir, ex, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(sampleWorkflowYAML), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := ex.Workflow("wf-from-disk"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("workflow was not registered after file creation")
}

func TestLoadAllPropagatesInvalidDefinitionError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: empty-steps\nname: bad\n"), 0o644))

	ex := New(nil, nil)
	w := NewDefinitionWatcher(dir, ex, nil)
	assert.Error(t, w.LoadAll())
}
