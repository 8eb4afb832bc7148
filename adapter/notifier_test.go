package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterloop/engine/toolruntime"
	"github.com/arbiterloop/engine/workflowexec"
)

func oneStepDefinition() *workflowexec.WorkflowDefinition {
	return &workflowexec.WorkflowDefinition{
		ID:      "wf-notify",
		Trigger: workflowexec.TriggerManual,
		Steps: []workflowexec.Step{
			{ID: "start", Type: workflowexec.StepEnd},
		},
	}
}

func TestAttachNotifierFansExecutionEventsThroughAdapter(t *testing.T) {
	a := newTestAdapter(t)
	AttachNotifier(a, a.Executor)

	require.NoError(t, a.Executor.RegisterWorkflow(oneStepDefinition()))

	var methods []string
	a.Notify(func(n Notification) { methods = append(methods, n.Method) })

	_, err := a.Executor.StartExecution("wf-notify")
	require.NoError(t, err)

	assert.Contains(t, methods, "workflow/execution/started")
}

func TestAttachNotifierReplaysPendingExecutionsOnNotifyAttach(t *testing.T) {
	a := newTestAdapter(t)
	AttachNotifier(a, a.Executor)
	require.NoError(t, a.Executor.RegisterWorkflow(&workflowexec.WorkflowDefinition{
		ID:      "wf-pause",
		Trigger: workflowexec.TriggerManual,
		Steps: []workflowexec.Step{
			{ID: "start", Type: workflowexec.StepEnd},
		},
	}))
	exec, err := a.Executor.StartExecution("wf-pause")
	require.NoError(t, err)
	require.NoError(t, a.Executor.PauseExecution(exec.ID))

	// First attach flushes the started/paused backlog; a second attach has
	// nothing buffered, so anything it still delivers must come from
	// RecoverPending's replay rather than the backlog flush.
	a.Notify(func(Notification) {})

	var methods []string
	a.Notify(func(n Notification) { methods = append(methods, n.Method) })

	assert.Contains(t, methods, "workflow/execution/paused")
}

func TestAttachToolNotifierEmitsToolExecutionEvent(t *testing.T) {
	a := newTestAdapter(t)
	rt := toolruntime.New(a.Evaluator, a.Store, nil, a.Store)
	AttachToolNotifier(a, rt)

	var notifications []Notification
	a.Notify(func(n Notification) { notifications = append(notifications, n) })

	rt.Execute(context.Background(), toolruntime.Request{ToolName: "unregistered-tool", ExecutionID: "exec-1"})

	require.Len(t, notifications, 1)
	assert.Equal(t, "workflow/tool/execution", notifications[0].Method)
	params, ok := notifications[0].Params.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unregistered-tool", params["tool"])
	assert.Equal(t, false, params["success"])
}
