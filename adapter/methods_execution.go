package adapter

import (
	"context"
	"encoding/json"

	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/store"
)

type executionIDParams struct {
	ExecutionID string `json:"execution_id"`
}

type startExecutionParams struct {
	WorkflowID string `json:"workflow_id"`
}

type respondParams struct {
	ExecutionID string `json:"execution_id"`
	Response    any    `json:"response"`
}

func (a *Adapter) registerExecutionMethods() {
	a.Register("workflow/execute/start", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p startExecutionParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("workflow_id", err)
		}
		exec, err := a.Executor.StartExecution(p.WorkflowID)
		if err != nil {
			return nil, newError(CodeExecutionNotFound, err.Error())
		}
		return exec, nil
	})

	a.Register("workflow/execute/step", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p executionIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		result := a.Executor.ExecuteStep(ctx, p.ExecutionID)
		if result.Err != nil {
			return nil, wrapError(CodeExecutionNotFound, "step execution failed", result.Err)
		}
		return result, nil
	})

	a.Register("workflow/execute/pause", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p executionIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		if err := a.Executor.PauseExecution(p.ExecutionID); err != nil {
			return nil, wrapError(CodeExecutionNotFound, "pause failed", err)
		}
		return map[string]bool{"ok": true}, nil
	})

	a.Register("workflow/execute/resume", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p executionIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		if err := a.Executor.ResumeExecution(p.ExecutionID); err != nil {
			return nil, wrapError(CodeExecutionNotFound, "resume failed", err)
		}
		return map[string]bool{"ok": true}, nil
	})

	a.Register("workflow/execute/cancel", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p executionIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		if err := a.Executor.CancelExecution(p.ExecutionID); err != nil {
			return nil, wrapError(CodeExecutionNotFound, "cancel failed", err)
		}
		return map[string]bool{"ok": true}, nil
	})

	a.Register("workflow/execute/get", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p executionIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		exec, ok := a.Executor.Execution(p.ExecutionID)
		if !ok {
			return nil, newError(CodeExecutionNotFound, "execution not found: "+p.ExecutionID)
		}
		return exec, nil
	})

	a.Register("workflow/checkpoint/respond", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p respondParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		if err := a.Executor.Respond(p.ExecutionID, p.Response); err != nil {
			return nil, wrapError(CodeExecutionNotFound, "checkpoint respond failed", err)
		}
		return map[string]bool{"ok": true}, nil
	})

	a.Register("workflow/checkpoint/get", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p executionIDParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		exec, ok := a.Executor.Execution(p.ExecutionID)
		if !ok {
			return nil, newError(CodeExecutionNotFound, "execution not found: "+p.ExecutionID)
		}
		return exec.PendingCheckpoint, nil
	})

	a.Register("workflow/toolCall/get", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p struct {
			ID string `json:"id"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("id", err)
		}
		tc, err := a.Store.GetToolCall(ctx, p.ID)
		if err != nil {
			return nil, wrapError(CodeExecutionNotFound, "tool call not found", err)
		}
		return tc, nil
	})

	a.Register("workflow/toolCall/create", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var tc store.ToolCall
		if err := decodeParams(raw, &tc); err != nil {
			return nil, InvalidParams("toolCall", err)
		}
		if err := a.Store.CreateToolCall(ctx, &tc); err != nil {
			return nil, Internal(err)
		}
		a.emit("workflow/toolCall/created", tc)
		return &tc, nil
	})

	a.Register("workflow/toolCall/approve", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p struct {
			ID string `json:"id"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("id", err)
		}
		if err := a.Store.UpdateToolCallStatus(ctx, p.ID, store.ToolCallApproved, ""); err != nil {
			return nil, wrapError(CodeExecutionNotFound, "tool call not found", err)
		}
		a.emit("workflow/toolCall/approved", p)
		return map[string]bool{"ok": true}, nil
	})

	a.Register("workflow/toolCall/deny", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p struct {
			ID string `json:"id"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("id", err)
		}
		if err := a.Store.UpdateToolCallStatus(ctx, p.ID, store.ToolCallDenied, ""); err != nil {
			return nil, wrapError(CodeExecutionNotFound, "tool call not found", err)
		}
		a.emit("workflow/toolCall/denied", p)
		return map[string]bool{"ok": true}, nil
	})

	a.Register("workflow/activity/log", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p struct {
			Source string `json:"source"`
			Type   string `json:"type"`
			Limit  int    `json:"limit"`
		}
		_ = decodeParams(raw, &p)
		entries := a.Feed.Get(feed.Filter{
			Source: feed.Source(p.Source),
			Type:   feed.EntryType(p.Type),
			Limit:  p.Limit,
		})
		return entries, nil
	})

	a.Register("workflow/debug/info", func(ctx context.Context, raw json.RawMessage) (any, error) {
		workflows := a.Executor.ListWorkflows()
		return map[string]any{
			"workflow_count": len(workflows),
			"feed_len":       a.Feed.Len(),
		}, nil
	})
}
