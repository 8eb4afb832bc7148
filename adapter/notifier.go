package adapter

import (
	"context"

	"github.com/arbiterloop/engine/toolruntime"
	"github.com/arbiterloop/engine/workflowexec"
)

// executionNotifier implements workflowexec.Notifier by fanning every
// lifecycle event out through the Adapter's own notification buffer, so
// the executor never needs to know an adapter exists.
type executionNotifier struct {
	a *Adapter
}

func (n executionNotifier) ExecutionStarted(exec *workflowexec.Execution) {
	n.a.emit("workflow/execution/started", exec)
}

func (n executionNotifier) ExecutionPaused(exec *workflowexec.Execution) {
	n.a.emit("workflow/execution/paused", exec)
}

func (n executionNotifier) ExecutionResumed(exec *workflowexec.Execution) {
	n.a.emit("workflow/execution/resumed", exec)
}

func (n executionNotifier) ExecutionCancelled(exec *workflowexec.Execution) {
	n.a.emit("workflow/execution/cancelled", exec)
}

func (n executionNotifier) ExecutionCompleted(exec *workflowexec.Execution) {
	n.a.emit("workflow/execution/completed", exec)
}

func (n executionNotifier) ExecutionFailed(exec *workflowexec.Execution, reason string) {
	n.a.emit("workflow/execution/failed", map[string]any{"execution": exec, "reason": reason})
}

func (n executionNotifier) NodeCompleted(exec *workflowexec.Execution, node *workflowexec.NodeExecution) {
	n.a.emit("workflow/node/completed", map[string]any{"execution_id": exec.ID, "node": node})
}

func (n executionNotifier) CheckpointReached(exec *workflowexec.Execution, cp *workflowexec.Checkpoint) {
	n.a.emit("workflow/checkpoint/reached", map[string]any{"execution_id": exec.ID, "checkpoint": cp})
}

func (n executionNotifier) CheckpointResponded(exec *workflowexec.Execution, cp *workflowexec.Checkpoint) {
	n.a.emit("workflow/checkpoint/responded", map[string]any{"execution_id": exec.ID, "checkpoint": cp})
}

// toolExecutionNotifier implements toolruntime.Notifier, fanning the
// per-call outcome out as the `workflow/tool/execution` notification.
type toolExecutionNotifier struct {
	a *Adapter
}

func (n toolExecutionNotifier) Executed(ctx context.Context, req toolruntime.Request, resp toolruntime.Response) {
	n.a.emit("workflow/tool/execution", map[string]any{
		"request_id":   req.RequestID,
		"execution_id": req.ExecutionID,
		"tool":         req.ToolName,
		"success":      resp.Success,
		"duration_ms":  resp.Duration.Milliseconds(),
		"truncated":    resp.Truncated,
		"error":        resp.Error,
	})
}

// AttachNotifier wires ex's Notifier to emit through a. Both ex and a must
// already be constructed: a.New requires ex, so ex's Notifier can only be
// attached to a once a exists, which is why this is a setter call rather
// than a constructor parameter.
func AttachNotifier(a *Adapter, ex *workflowexec.Executor) {
	ex.SetNotifier(executionNotifier{a: a})
}

// AttachToolNotifier wires rt's Notifier to emit through a, the toolruntime
// analogue of AttachNotifier.
func AttachToolNotifier(a *Adapter, rt *toolruntime.Runtime) {
	rt.Notifier = toolExecutionNotifier{a: a}
}
