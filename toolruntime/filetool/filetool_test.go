package filetool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestReadReturnsFileContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	out, err := Read{}.Execute(context.Background(), marshal(t, readInput{Path: path}))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestReadMissingFileErrors(t *testing.T) {
	_, err := Read{}.Execute(context.Background(), marshal(t, readInput{Path: "/no/such/file"}))
	assert.Error(t, err)
}

func TestGlobMatchesPattern(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	out, err := Glob{}.Execute(context.Background(), marshal(t, globInput{Pattern: "*.go", Base: dir}))
	require.NoError(t, err)
	matches := out.([]string)
	assert.Len(t, matches, 2)
}

func TestGrepFindsSubstringAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.txt"), []byte("alpha\nneedle here\nbeta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.txt"), []byte("gamma\ndelta"), 0o644))

	out, err := Grep{}.Execute(context.Background(), marshal(t, grepInput{Pattern: "needle", Path: dir}))
	require.NoError(t, err)
	matches := out.([]string)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0], "needle here")
}

func TestWriteCreatesParentDirsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	_, err := Write{}.Execute(context.Background(), marshal(t, writeInput{Path: path, Content: "payload"}))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestEditReplacesFirstOccurrenceByDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo foo foo"), 0o644))

	_, err := Edit{}.Execute(context.Background(), marshal(t, editInput{Path: path, OldString: "foo", NewString: "bar"}))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bar foo foo", string(data))
}

func TestEditReplaceAllReplacesEveryOccurrence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo foo foo"), 0o644))

	_, err := Edit{}.Execute(context.Background(), marshal(t, editInput{
		Path: path, OldString: "foo", NewString: "bar", ReplaceAll: true,
	}))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bar bar bar", string(data))
}

func TestEditMissingOldStringErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	_, err := Edit{}.Execute(context.Background(), marshal(t, editInput{Path: path, OldString: "absent", NewString: "x"}))
	assert.Error(t, err)
}

func TestSchemasMarkRequiredFields(t *testing.T) {
	schema := Read{}.Schema()
	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "path")
}
