package adapter

import (
	"context"
	"encoding/json"

	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/workflowexec"
)

type contextListParams struct {
	ExecutionID string `json:"execution_id"`
}

type contextAddParams struct {
	ExecutionID string `json:"execution_id"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	Tokens      int    `json:"tokens"`
}

type contextCompactParams struct {
	ExecutionID     string `json:"execution_id"`
	Strategy        string `json:"strategy"`
	KeepRecentCount int    `json:"keep_recent_count"`
}

type contextExpandParams struct {
	ExecutionID  string `json:"execution_id"`
	CompactionID string `json:"compaction_id"`
}

type contextBudgetParams struct {
	ExecutionID string `json:"execution_id"`
	CapTokens   int    `json:"cap_tokens"`
}

func (a *Adapter) registerContextMethods() {
	a.Register("workflow/context/list", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p contextListParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		items, err := a.Store.ListActiveContextItems(ctx, p.ExecutionID)
		if err != nil {
			return nil, Internal(err)
		}
		return items, nil
	})

	a.Register("workflow/context/add", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p contextAddParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		item := &store.ContextItem{
			ExecutionID: p.ExecutionID,
			ItemType:    store.ContextItemType(p.Type),
			Content:     p.Content,
			Tokens:      p.Tokens,
		}
		if err := a.Store.CreateContextItem(ctx, item); err != nil {
			return nil, Internal(err)
		}
		a.emit("workflow/context/added", item)
		return item, nil
	})

	a.Register("workflow/context/compact", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p contextCompactParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		compaction, err := a.Context.Compact(ctx, p.ExecutionID, workflowexec.CompactionStrategy(p.Strategy), p.KeepRecentCount)
		if err != nil {
			return nil, wrapError(CodeValidationFailed, "compaction failed", err)
		}
		a.emit("workflow/context/compacted", compaction)
		return compaction, nil
	})

	a.Register("workflow/context/expand", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p contextExpandParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		if err := a.Context.Expand(ctx, p.ExecutionID, p.CompactionID); err != nil {
			return nil, wrapError(CodeValidationFailed, "expand failed", err)
		}
		a.emit("workflow/context/expanded", p)
		return map[string]bool{"ok": true}, nil
	})

	a.Register("workflow/context/budget", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p contextBudgetParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("execution_id", err)
		}
		budget, err := a.Context.ComputeBudget(ctx, p.ExecutionID, p.CapTokens)
		if err != nil {
			return nil, Internal(err)
		}
		return budget, nil
	})
}
