package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateSession inserts a new Session row, assigning it an id if the caller
// left ID empty.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = newID("sess")
	}
	sess.CreatedAt = time.Now().UTC()

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO sessions (id, task, status, coder_agent, coder_model, workspace, config_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Task, sess.Status, sess.CoderAgent, sess.CoderModel, sess.Workspace, sess.ConfigSnapshot, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession loads a Session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, task, status, coder_agent, coder_model, workspace, config_snapshot, created_at, updated_at, completed_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var updatedAt, completedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.Task, &sess.Status, &sess.CoderAgent, &sess.CoderModel,
		&sess.Workspace, &sess.ConfigSnapshot, &sess.CreatedAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if updatedAt.Valid {
		sess.UpdatedAt = &updatedAt.Time
	}
	if completedAt.Valid {
		sess.CompletedAt = &completedAt.Time
	}
	return &sess, nil
}

// UpdateSessionStatus transitions a session's status, stamping updated_at
// (and completed_at when entering a terminal state).
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status SessionStatus) error {
	now := time.Now().UTC()
	var completedAt any
	if status == SessionCompleted || status == SessionError {
		completedAt = now
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE sessions SET status = ?, updated_at = ?, completed_at = COALESCE(completed_at, ?)
		WHERE id = ?`, status, now, completedAt, id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessionsByStatus returns sessions matching a status, oldest first.
func (s *Store) ListSessionsByStatus(ctx context.Context, status SessionStatus) ([]*Session, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, task, status, coder_agent, coder_model, workspace, config_snapshot, created_at, updated_at, completed_at
		FROM sessions WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("list sessions by status: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		var updatedAt, completedAt sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.Task, &sess.Status, &sess.CoderAgent, &sess.CoderModel,
			&sess.Workspace, &sess.ConfigSnapshot, &sess.CreatedAt, &updatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if updatedAt.Valid {
			sess.UpdatedAt = &updatedAt.Time
		}
		if completedAt.Valid {
			sess.CompletedAt = &completedAt.Time
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}
