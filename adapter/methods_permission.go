package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arbiterloop/engine/permission"
	"github.com/arbiterloop/engine/store"
)

type permissionCheckParams struct {
	ToolName    string `json:"tool_name"`
	Input       string `json:"input"`
	TargetPath  string `json:"target_path"`
	Workspace   string `json:"workspace"`
	SessionID   string `json:"session_id"`
	ExecutionID string `json:"execution_id"`
}

func (p permissionCheckParams) toRequest() permission.Request {
	return permission.Request{
		ToolName:    p.ToolName,
		Input:       p.Input,
		TargetPath:  p.TargetPath,
		Workspace:   p.Workspace,
		SessionID:   p.SessionID,
		ExecutionID: p.ExecutionID,
	}
}

type permissionConfirmParams struct {
	permissionCheckParams
	Scope        string `json:"scope"`
	Approved     bool   `json:"approved"`
	ExpiresInSec int    `json:"expires_in_sec"`
}

func (a *Adapter) registerPermissionMethods() {
	a.Register("workflow/permission/check", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p permissionCheckParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("tool_name", err)
		}
		decision, err := a.Evaluator.Evaluate(ctx, p.toRequest(), time.Now())
		if err != nil {
			return nil, Internal(err)
		}
		return map[string]any{"decision": decision}, nil
	})

	a.Register("workflow/permission/request", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p permissionCheckParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("tool_name", err)
		}
		decision, err := a.Evaluator.Evaluate(ctx, p.toRequest(), time.Now())
		if err != nil {
			return nil, Internal(err)
		}
		if decision == permission.RequiresConfirmation {
			a.emit("workflow/permission/requested", p)
		}
		return map[string]any{"decision": decision}, nil
	})

	a.Register("workflow/permission/grant", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p permissionConfirmParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("tool_name", err)
		}
		p.Approved = true
		grant, err := a.applyConfirmation(ctx, p)
		if err != nil {
			return nil, wrapError(CodePermissionDenied, "grant failed", err)
		}
		a.emit("workflow/permission/granted", grant)
		return grant, nil
	})

	a.Register("workflow/permission/deny", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p permissionConfirmParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, InvalidParams("tool_name", err)
		}
		p.Approved = false
		grant, err := a.applyConfirmation(ctx, p)
		if err != nil {
			return nil, wrapError(CodePermissionDenied, "deny failed", err)
		}
		a.emit("workflow/permission/denied", p)
		return grant, nil
	})
}

// applyConfirmation maps an RPC grant/deny call onto permission.ApplyConfirmation,
// persisting a standing grant through the store when the scope outlives the
// single call that triggered it.
func (a *Adapter) applyConfirmation(ctx context.Context, p permissionConfirmParams) (*store.Permission, error) {
	var expiresAt *time.Time
	if p.ExpiresInSec > 0 {
		t := time.Now().Add(time.Duration(p.ExpiresInSec) * time.Second)
		expiresAt = &t
	}
	resp := permission.ConfirmationResponse{
		Granted: p.Approved,
		Scope:   store.PermissionScope(p.Scope),
	}
	return permission.ApplyConfirmation(ctx, a.Store, p.toRequest(), resp, expiresAt)
}
