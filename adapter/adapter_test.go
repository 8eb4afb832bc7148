package adapter

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arbiterloop/engine/cca"
	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/permission"
	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/workflowexec"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open("sqlite", filepath.Join(dir, "adapter.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	s := newTestStore(t)
	ex := workflowexec.New(nil, nil)
	cm := workflowexec.NewContextManager(s, nil, nil)
	ev := permission.New(s, nil)
	f := feed.New(100, nil)
	sessions := func(id string) (*cca.CCAWorkflow, error) {
		return nil, nil
	}
	return New(s, ex, cm, ev, f, sessions)
}

func TestDispatchUnknownMethodReturnsMethodNotFound(t *testing.T) {
	a := newTestAdapter(t)
	_, err := a.Dispatch(context.Background(), "nope/nope", nil)
	require.Error(t, err)
	adapterErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, CodeMethodNotFound, adapterErr.Code)
}

func TestWorkflowCreateGetListRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	params, _ := json.Marshal(map[string]any{
		"id":   "wf-1",
		"name": "test workflow",
		"steps": []map[string]any{
			{"id": "start", "type": "noop", "edges": []string{}},
		},
	})

	created, err := a.Dispatch(context.Background(), "workflow/create", params)
	require.NoError(t, err)
	require.NotNil(t, created)

	got, err := a.Dispatch(context.Background(), "workflow/get", jsonParams(t, map[string]any{"id": "wf-1"}))
	require.NoError(t, err)
	def := got.(*workflowexec.WorkflowDefinition)
	require.Equal(t, "wf-1", def.ID)

	list, err := a.Dispatch(context.Background(), "workflow/list", nil)
	require.NoError(t, err)
	require.Len(t, list.([]*workflowexec.WorkflowDefinition), 1)
}

func TestWorkflowGetMissingReturnsDomainError(t *testing.T) {
	a := newTestAdapter(t)
	_, err := a.Dispatch(context.Background(), "workflow/get", jsonParams(t, map[string]any{"id": "missing"}))
	require.Error(t, err)
	adapterErr, ok := err.(*Error)
	require.True(t, ok)
	require.Equal(t, CodeExecutionNotFound, adapterErr.Code)
}

func TestWorkflowDeleteAndSetDefault(t *testing.T) {
	a := newTestAdapter(t)
	for _, id := range []string{"wf-a", "wf-b"} {
		_, err := a.Dispatch(context.Background(), "workflow/create", jsonParams(t, map[string]any{
			"id": id, "name": id,
			"steps": []map[string]any{{"id": "start", "type": "noop", "edges": []string{}}},
		}))
		require.NoError(t, err)
	}

	_, err := a.Dispatch(context.Background(), "workflow/setDefault", jsonParams(t, map[string]any{"id": "wf-b"}))
	require.NoError(t, err)

	_, err = a.Dispatch(context.Background(), "workflow/delete", jsonParams(t, map[string]any{"id": "wf-a"}))
	require.NoError(t, err)

	_, err = a.Dispatch(context.Background(), "workflow/get", jsonParams(t, map[string]any{"id": "wf-a"}))
	require.Error(t, err)
}

func TestNotifyFlushesBufferedNotificationsInOrder(t *testing.T) {
	a := newTestAdapter(t)
	_, _ = a.Dispatch(context.Background(), "workflow/create", jsonParams(t, map[string]any{
		"id": "wf-1", "name": "n",
		"steps": []map[string]any{{"id": "start", "type": "noop", "edges": []string{}}},
	}))
	_, _ = a.Dispatch(context.Background(), "workflow/create", jsonParams(t, map[string]any{
		"id": "wf-2", "name": "n2",
		"steps": []map[string]any{{"id": "start", "type": "noop", "edges": []string{}}},
	}))

	var received []string
	a.Notify(func(n Notification) {
		received = append(received, n.Method)
	})

	require.Equal(t, []string{"workflow/created", "workflow/created"}, received)
}

func TestNotifyAttachedBeforeEmitReceivesLive(t *testing.T) {
	a := newTestAdapter(t)
	var received []string
	a.Notify(func(n Notification) {
		received = append(received, n.Method)
	})
	_, _ = a.Dispatch(context.Background(), "workflow/create", jsonParams(t, map[string]any{
		"id": "wf-1", "name": "n",
		"steps": []map[string]any{{"id": "start", "type": "noop", "edges": []string{}}},
	}))
	require.Equal(t, []string{"workflow/created"}, received)
}

func jsonParams(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
