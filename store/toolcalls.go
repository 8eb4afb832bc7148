package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateToolCall inserts a new ToolCall audit record, defaulting its status
// to pending if unset.
func (s *Store) CreateToolCall(ctx context.Context, tc *ToolCall) error {
	if tc.ID == "" {
		tc.ID = newID("tool")
	}
	if tc.Status == "" {
		tc.Status = ToolCallPending
	}
	if tc.StartedAt.IsZero() {
		tc.StartedAt = time.Now().UTC()
	}

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO tool_calls (id, execution_id, node_execution_id, tool_name, input_json, output_json, status, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tc.ID, tc.ExecutionID, tc.NodeExecutionID, tc.ToolName, tc.Input, tc.Output, tc.Status, tc.StartedAt, tc.CompletedAt)
	if err != nil {
		return fmt.Errorf("create tool call: %w", err)
	}
	return nil
}

// UpdateToolCallStatus transitions a tool call's status, optionally
// recording its output and stamping completed_at on terminal states.
func (s *Store) UpdateToolCallStatus(ctx context.Context, id string, status ToolCallStatus, output string) error {
	var completedAt any
	switch status {
	case ToolCallSuccess, ToolCallError, ToolCallDenied:
		completedAt = time.Now().UTC()
	}

	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE tool_calls
		SET status = ?, output_json = COALESCE(NULLIF(?, ''), output_json), completed_at = COALESCE(completed_at, ?)
		WHERE id = ?`, status, output, completedAt, id)
	if err != nil {
		return fmt.Errorf("update tool call status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetToolCall loads a ToolCall by id.
func (s *Store) GetToolCall(ctx context.Context, id string) (*ToolCall, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, execution_id, node_execution_id, tool_name, input_json, output_json, status, started_at, completed_at
		FROM tool_calls WHERE id = ?`, id)
	return scanToolCall(row)
}

func scanToolCall(row *sql.Row) (*ToolCall, error) {
	var tc ToolCall
	var nodeExecID sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&tc.ID, &tc.ExecutionID, &nodeExecID, &tc.ToolName, &tc.Input, &tc.Output, &tc.Status, &tc.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tool call: %w", err)
	}
	if nodeExecID.Valid {
		tc.NodeExecutionID = &nodeExecID.String
	}
	if completedAt.Valid {
		tc.CompletedAt = &completedAt.Time
	}
	return &tc, nil
}

// ListToolCallsByExecution returns every tool call audited for an execution,
// oldest first.
func (s *Store) ListToolCallsByExecution(ctx context.Context, executionID string) ([]*ToolCall, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, execution_id, node_execution_id, tool_name, input_json, output_json, status, started_at, completed_at
		FROM tool_calls WHERE execution_id = ? ORDER BY started_at ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list tool calls: %w", err)
	}
	defer rows.Close()

	var out []*ToolCall
	for rows.Next() {
		var tc ToolCall
		var nodeExecID sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&tc.ID, &tc.ExecutionID, &nodeExecID, &tc.ToolName, &tc.Input, &tc.Output, &tc.Status, &tc.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan tool call row: %w", err)
		}
		if nodeExecID.Valid {
			tc.NodeExecutionID = &nodeExecID.String
		}
		if completedAt.Valid {
			tc.CompletedAt = &completedAt.Time
		}
		out = append(out, &tc)
	}
	return out, rows.Err()
}
