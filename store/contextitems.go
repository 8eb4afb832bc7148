package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateContextItem appends a new ContextItem to an execution's history.
func (s *Store) CreateContextItem(ctx context.Context, item *ContextItem) error {
	if item.ID == "" {
		item.ID = newID("ctx")
	}
	item.CreatedAt = time.Now().UTC()

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO context_items (id, execution_id, node_execution_id, item_type, role, content, agent_id, agent_name, tokens, compacted_into_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ExecutionID, item.NodeExecutionID, item.ItemType, item.Role, item.Content,
		item.AgentID, item.AgentName, item.Tokens, item.CompactedIntoID, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create context item: %w", err)
	}
	return nil
}

// ListActiveContextItems returns the items of an execution that have not
// been folded into a compaction item, in creation order.
func (s *Store) ListActiveContextItems(ctx context.Context, executionID string) ([]*ContextItem, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, execution_id, node_execution_id, item_type, role, content, agent_id, agent_name, tokens, compacted_into_id, created_at
		FROM context_items WHERE execution_id = ? AND compacted_into_id IS NULL ORDER BY created_at ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list active context items: %w", err)
	}
	defer rows.Close()
	return scanContextItems(rows)
}

// ListAllContextItems returns every item of an execution, including those
// already compacted away, in creation order.
func (s *Store) ListAllContextItems(ctx context.Context, executionID string) ([]*ContextItem, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, execution_id, node_execution_id, item_type, role, content, agent_id, agent_name, tokens, compacted_into_id, created_at
		FROM context_items WHERE execution_id = ? ORDER BY created_at ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list context items: %w", err)
	}
	defer rows.Close()
	return scanContextItems(rows)
}

func scanContextItems(rows *sql.Rows) ([]*ContextItem, error) {
	var out []*ContextItem
	for rows.Next() {
		var it ContextItem
		var nodeExecID, agentID, agentName sql.NullString
		var compactedInto sql.NullString
		if err := rows.Scan(&it.ID, &it.ExecutionID, &nodeExecID, &it.ItemType, &it.Role, &it.Content,
			&agentID, &agentName, &it.Tokens, &compactedInto, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan context item row: %w", err)
		}
		it.NodeExecutionID = nodeExecID.String
		it.AgentID = agentID.String
		it.AgentName = agentName.String
		if compactedInto.Valid {
			it.CompactedIntoID = &compactedInto.String
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

// CompactContextItems folds a set of superseded items into a single new
// compaction item, atomically: the new item is inserted and the superseded
// items are stamped with its id as compacted_into_id, so they drop out of
// ListActiveContextItems while remaining in the audit trail.
func (s *Store) CompactContextItems(ctx context.Context, executionID string, supersededIDs []string, compaction *ContextItem) error {
	return s.MaybeTransaction(ctx, func(ctx context.Context) error {
		compaction.ItemType = ItemCompaction
		if err := s.CreateContextItem(ctx, compaction); err != nil {
			return err
		}
		for _, id := range supersededIDs {
			_, err := s.q(ctx).ExecContext(ctx, `
				UPDATE context_items SET compacted_into_id = ? WHERE id = ? AND execution_id = ?`,
				compaction.ID, id, executionID)
			if err != nil {
				return fmt.Errorf("mark compacted item %s: %w", id, err)
			}
		}
		return nil
	})
}

// ExpandCompaction reverses a prior CompactContextItems call: every item
// pointing at compactionID has its compacted_into_id cleared (restoring it
// to active) and the compaction item itself is deleted. Per ,
// this must be a no-duplication round trip with CompactContextItems.
func (s *Store) ExpandCompaction(ctx context.Context, executionID, compactionID string) error {
	return s.MaybeTransaction(ctx, func(ctx context.Context) error {
		_, err := s.q(ctx).ExecContext(ctx, `
			UPDATE context_items SET compacted_into_id = NULL WHERE execution_id = ? AND compacted_into_id = ?`,
			executionID, compactionID)
		if err != nil {
			return fmt.Errorf("restore compacted items: %w", err)
		}
		_, err = s.q(ctx).ExecContext(ctx, `
			DELETE FROM context_items WHERE id = ? AND execution_id = ?`, compactionID, executionID)
		if err != nil {
			return fmt.Errorf("delete compaction item %s: %w", compactionID, err)
		}
		return nil
	})
}

// GetContextItem fetches a single item by id.
func (s *Store) GetContextItem(ctx context.Context, executionID, id string) (*ContextItem, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, execution_id, node_execution_id, item_type, role, content, agent_id, agent_name, tokens, compacted_into_id, created_at
		FROM context_items WHERE execution_id = ? AND id = ?`, executionID, id)
	if err != nil {
		return nil, fmt.Errorf("get context item: %w", err)
	}
	defer rows.Close()
	items, err := scanContextItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

// SumActiveTokens returns the total token count of an execution's active
// (non-compacted) context items, used for context budget reporting.
func (s *Store) SumActiveTokens(ctx context.Context, executionID string) (int, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(tokens), 0) FROM context_items WHERE execution_id = ? AND compacted_into_id IS NULL`, executionID)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum active tokens: %w", err)
	}
	return total, nil
}
