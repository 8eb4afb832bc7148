package httpdebug

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arbiterloop/engine/adapter"
	"github.com/arbiterloop/engine/cca"
	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/observability"
	"github.com/arbiterloop/engine/permission"
	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/workflowexec"
)

func newTestAdapter(t *testing.T) *adapter.Adapter {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open("sqlite", filepath.Join(dir, "httpdebug.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ex := workflowexec.New(nil, nil)
	cm := workflowexec.NewContextManager(s, nil, nil)
	ev := permission.New(s, nil)
	f := feed.New(100, nil)
	sessions := func(id string) (*cca.CCAWorkflow, error) { return nil, nil }
	return adapter.New(s, ex, cm, ev, f, sessions)
}

func TestHealthzReturnsOK(t *testing.T) {
	srv := httptest.NewServer(New(newTestAdapter(t), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestMetricsDisabledReturns503(t *testing.T) {
	srv := httptest.NewServer(New(newTestAdapter(t), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEnabledServesExposition(t *testing.T) {
	m := observability.NewMetrics(&observability.MetricsConfig{Enabled: true})
	srv := httptest.NewServer(New(newTestAdapter(t), m))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDebugInfoReportsWorkflowCount(t *testing.T) {
	srv := httptest.NewServer(New(newTestAdapter(t), nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, float64(0), body["workflow_count"])
}
