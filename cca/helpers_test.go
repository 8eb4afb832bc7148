package cca

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arbiterloop/engine/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open("sqlite", filepath.Join(dir, "cca.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
