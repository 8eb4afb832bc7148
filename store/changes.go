package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateChange inserts a ProposedChange, enforcing the operation/original-
// content invariant before writing.
func (s *Store) CreateChange(ctx context.Context, c *ProposedChange) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = newID("chg")
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO proposed_changes (id, iteration_id, file_path, operation, original_content, new_content, unified_diff, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.IterationID, c.FilePath, c.Operation, c.OriginalContent, c.NewContent, c.UnifiedDiff, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create change: %w", err)
	}
	return nil
}

// UpdateChangeStatus transitions a ProposedChange's status.
func (s *Store) UpdateChangeStatus(ctx context.Context, id string, status ChangeStatus) error {
	now := time.Now().UTC()
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE proposed_changes SET status = ?, updated_at = ? WHERE id = ?`, status, now, id)
	if err != nil {
		return fmt.Errorf("update change status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListChangesByIteration returns every ProposedChange recorded for an iteration.
func (s *Store) ListChangesByIteration(ctx context.Context, iterationID string) ([]*ProposedChange, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, iteration_id, file_path, operation, original_content, new_content, unified_diff, status, created_at, updated_at
		FROM proposed_changes WHERE iteration_id = ? ORDER BY created_at ASC`, iterationID)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var out []*ProposedChange
	for rows.Next() {
		c, err := scanChangeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanChangeRows(rows *sql.Rows) (*ProposedChange, error) {
	var c ProposedChange
	var updatedAt sql.NullTime
	if err := rows.Scan(&c.ID, &c.IterationID, &c.FilePath, &c.Operation, &c.OriginalContent,
		&c.NewContent, &c.UnifiedDiff, &c.Status, &c.CreatedAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan change row: %w", err)
	}
	if updatedAt.Valid {
		c.UpdatedAt = &updatedAt.Time
	}
	return &c, nil
}

// GetChange loads a ProposedChange by id.
func (s *Store) GetChange(ctx context.Context, id string) (*ProposedChange, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, iteration_id, file_path, operation, original_content, new_content, unified_diff, status, created_at, updated_at
		FROM proposed_changes WHERE id = ?`, id)
	var c ProposedChange
	var updatedAt sql.NullTime
	err := row.Scan(&c.ID, &c.IterationID, &c.FilePath, &c.Operation, &c.OriginalContent,
		&c.NewContent, &c.UnifiedDiff, &c.Status, &c.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan change: %w", err)
	}
	if updatedAt.Valid {
		c.UpdatedAt = &updatedAt.Time
	}
	return &c, nil
}
