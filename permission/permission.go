// Package permission implements the tool execution permission evaluator:
// given a (tool, input, optional target path) and a set of standing grants,
// decide whether a call is allowed, denied, or requires confirmation.
//
// Follows the confirmation-request shape of v2/tool/approvaltool/approval.go's
// RequiresApproval/ApprovalHandler pattern, generalized from a single
// per-tool bool into a scoped grant model.
package permission

import (
	"context"
	"strings"
	"time"

	"github.com/arbiterloop/engine/store"
)

// Decision is the evaluator's verdict for one tool call.
type Decision string

const (
	Allowed              Decision = "allowed"
	Denied               Decision = "denied"
	RequiresConfirmation Decision = "requires-confirmation"
)

// Request describes the call being evaluated.
type Request struct {
	ToolName    string
	Input       string
	TargetPath  string // optional; empty if the tool has no file target
	Workspace   string
	SessionID   string
	ExecutionID string
}

// scopeRank orders scopes by precedence: global beats folder beats
// session; any other scope ranks lowest. "once" grants are never
// persisted and therefore never appear in a stored-grant scan; they are
// handled entirely by the caller passing a one-off override.
func scopeRank(scope store.PermissionScope) int {
	switch scope {
	case store.ScopeGlobal:
		return 3
	case store.ScopeFolder:
		return 2
	case store.ScopeSession:
		return 1
	default:
		return 0
	}
}

// Grants is the read side the evaluator needs: a lister of persisted,
// non-expired permissions for a tool name. *store.Store satisfies this via
// ListPermissionsForTool.
type Grants interface {
	ListPermissionsForTool(ctx context.Context, toolName string) ([]*store.Permission, error)
}

// Evaluator decides access for tool calls against a set of tools flagged as
// requiring permission and a backing grant store.
type Evaluator struct {
	grants          Grants
	requiresPermission map[string]bool
}

// New constructs an Evaluator. requiresPermission names the built-in tools
// that need a grant at all ("yes" column); tools absent from
// the map, or mapped to false, are always Allowed.
func New(grants Grants, requiresPermission map[string]bool) *Evaluator {
	if requiresPermission == nil {
		requiresPermission = map[string]bool{}
	}
	return &Evaluator{grants: grants, requiresPermission: requiresPermission}
}

// Evaluate resolves a Decision for req, scanning persisted grants in
// deny-over-allow, then highest-scope-wins order.
func (e *Evaluator) Evaluate(ctx context.Context, req Request, now time.Time) (Decision, error) {
	if !e.requiresPermission[req.ToolName] {
		return Allowed, nil
	}

	grants, err := e.grants.ListPermissionsForTool(ctx, req.ToolName)
	if err != nil {
		return Denied, err
	}

	var bestAllow, bestDeny *store.Permission
	for _, g := range grants {
		if g.Expired(now) {
			continue
		}
		if g.Scope == store.ScopeOnce {
			continue // once-scoped grants are never persisted; nothing to match here
		}
		if !scopeMatches(g, req) {
			continue
		}

		if g.Granted {
			if bestAllow == nil || scopeRank(g.Scope) > scopeRank(bestAllow.Scope) {
				bestAllow = g
			}
		} else {
			if bestDeny == nil || scopeRank(g.Scope) > scopeRank(bestDeny.Scope) {
				bestDeny = g
			}
		}
	}

	// Explicit denies outrank explicit allows regardless of scope
	// ("explicit denies > explicit allows").
	if bestDeny != nil {
		return Denied, nil
	}
	if bestAllow != nil {
		return Allowed, nil
	}
	return RequiresConfirmation, nil
}

// scopeMatches reports whether grant g applies to req: session grants must
// match the request's session id; folder grants match when the grant's
// workspace is a path-prefix ancestor of the request's target path; global
// grants always match. Any other scope never matches.
func scopeMatches(g *store.Permission, req Request) bool {
	switch g.Scope {
	case store.ScopeGlobal:
		return true
	case store.ScopeSession:
		return g.SessionID == req.SessionID
	case store.ScopeFolder:
		return isPathPrefix(g.Workspace, req.TargetPath)
	default:
		return false
	}
}

// isPathPrefix reports whether target is folder or a descendant of it.
func isPathPrefix(folder, target string) bool {
	if folder == "" || target == "" {
		return false
	}
	folder = strings.TrimRight(folder, "/")
	if target == folder {
		return true
	}
	return strings.HasPrefix(target, folder+"/")
}

// ConfirmationResponse is the human's answer to a requires-confirmation
// decision. A granted non-once scope is persisted before the call proceeds;
// once grants are never written to the store.
type ConfirmationResponse struct {
	Granted  bool
	Scope    store.PermissionScope
	Feedback string // surfaced to the caller as part of the deny error message
}

// Persister is the write side the confirmation flow needs.
type Persister interface {
	CreatePermission(ctx context.Context, p *store.Permission) error
}

// ApplyConfirmation persists resp as a standing grant, or as a standing
// denial when the response denies the call (nothing is written when the
// scope is Once or empty), returning the permission record when one was
// written.
func ApplyConfirmation(ctx context.Context, persister Persister, req Request, resp ConfirmationResponse, expiresAt *time.Time) (*store.Permission, error) {
	if resp.Scope == store.ScopeOnce || resp.Scope == "" {
		return nil, nil
	}

	perm := &store.Permission{
		Scope:       resp.Scope,
		Workspace:   req.Workspace,
		SessionID:   req.SessionID,
		ExecutionID: req.ExecutionID,
		ToolName:    req.ToolName,
		Granted:     resp.Granted,
		ExpiresAt:   expiresAt,
	}
	if err := persister.CreatePermission(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}
