package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreatePermission persists an authorization decision. Callers are
// responsible for never persisting a "once" scope grant — "once" permissions
// are never recorded and never match a later request — this method does not
// special-case scope, so the permission evaluator must filter ScopeOnce out
// before calling it.
func (s *Store) CreatePermission(ctx context.Context, p *Permission) error {
	if p.ID == "" {
		p.ID = newID("perm")
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO permissions (id, scope, workspace, session_id, execution_id, workflow_id, tool_name, match_pattern, granted, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Scope, p.Workspace, p.SessionID, p.ExecutionID, p.WorkflowID, p.ToolName, p.MatchPattern, p.Granted, p.ExpiresAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// ListPermissionsForTool returns every non-once permission recorded for a
// tool name, across all scopes, most recent first, so the evaluator can walk
// them in deny-first / scope-precedence order itself.
func (s *Store) ListPermissionsForTool(ctx context.Context, toolName string) ([]*Permission, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, scope, workspace, session_id, execution_id, workflow_id, tool_name, match_pattern, granted, expires_at, created_at
		FROM permissions WHERE tool_name = ? ORDER BY created_at DESC`, toolName)
	if err != nil {
		return nil, fmt.Errorf("list permissions for tool: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ListPermissionsByScope returns every permission recorded at a given scope.
func (s *Store) ListPermissionsByScope(ctx context.Context, scope PermissionScope) ([]*Permission, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, scope, workspace, session_id, execution_id, workflow_id, tool_name, match_pattern, granted, expires_at, created_at
		FROM permissions WHERE scope = ? ORDER BY created_at DESC`, scope)
	if err != nil {
		return nil, fmt.Errorf("list permissions by scope: %w", err)
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]*Permission, error) {
	var out []*Permission
	for rows.Next() {
		p, err := scanPermissionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPermissionRow(rows *sql.Rows) (*Permission, error) {
	var p Permission
	var workspace, sessionID, executionID, workflowID, matchPattern sql.NullString
	var expiresAt sql.NullTime
	if err := rows.Scan(&p.ID, &p.Scope, &workspace, &sessionID, &executionID, &workflowID, &p.ToolName, &matchPattern, &p.Granted, &expiresAt, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan permission row: %w", err)
	}
	p.Workspace = workspace.String
	p.SessionID = sessionID.String
	p.ExecutionID = executionID.String
	p.WorkflowID = workflowID.String
	p.MatchPattern = matchPattern.String
	if expiresAt.Valid {
		p.ExpiresAt = &expiresAt.Time
	}
	return &p, nil
}

// DeleteExpiredPermissions removes permissions whose expiry has passed,
// returning the count removed.
func (s *Store) DeleteExpiredPermissions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q(ctx).ExecContext(ctx, `
		DELETE FROM permissions WHERE expires_at IS NOT NULL AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired permissions: %w", err)
	}
	return res.RowsAffected()
}

// RevokePermission deletes a permission by id, e.g. when a user explicitly
// revokes a standing grant.
func (s *Store) RevokePermission(ctx context.Context, id string) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM permissions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
