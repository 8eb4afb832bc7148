package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateIteration inserts the next iteration for a session. Enforces the
// contiguity invariant ("iteration numbers are contiguous
// 1..N") by comparing against the session's current iteration count inside
// a transaction.
func (s *Store) CreateIteration(ctx context.Context, iter *Iteration) error {
	return s.MaybeTransaction(ctx, func(ctx context.Context) error {
		count, err := s.countIterations(ctx, iter.SessionID)
		if err != nil {
			return err
		}
		if iter.Number != count+1 {
			return fmt.Errorf("%w: session %s has %d iterations, got number %d", ErrNonContiguous, iter.SessionID, count, iter.Number)
		}

		if iter.ID == "" {
			iter.ID = newID("iter")
		}
		iter.StartedAt = time.Now().UTC()

		_, err = s.q(ctx).ExecContext(ctx, `
			INSERT INTO iterations (id, session_id, number, status, started_at)
			VALUES (?, ?, ?, ?, ?)`,
			iter.ID, iter.SessionID, iter.Number, iter.Status, iter.StartedAt)
		if err != nil {
			return fmt.Errorf("create iteration: %w", err)
		}
		return nil
	})
}

func (s *Store) countIterations(ctx context.Context, sessionID string) (int, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM iterations WHERE session_id = ?`, sessionID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count iterations: %w", err)
	}
	return n, nil
}

// BulkRestoreIterations inserts many iterations for a session in one
// prepared-statement batch, used when rehydrating a resumed session's full
// history ("prepared statements are reused for bulk inserts
// on hot paths... bulk iteration restore").
func (s *Store) BulkRestoreIterations(ctx context.Context, iters []*Iteration) error {
	if len(iters) == 0 {
		return nil
	}
	return s.WithTransaction(ctx, func(ctx context.Context) error {
		stmt, err := s.q(ctx).PrepareContext(ctx, `
			INSERT INTO iterations (id, session_id, number, status, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare bulk iteration insert: %w", err)
		}
		defer stmt.Close()

		for _, iter := range iters {
			if iter.ID == "" {
				iter.ID = newID("iter")
			}
			if iter.StartedAt.IsZero() {
				iter.StartedAt = time.Now().UTC()
			}
			if _, err := stmt.ExecContext(ctx, iter.ID, iter.SessionID, iter.Number, iter.Status, iter.StartedAt, iter.CompletedAt); err != nil {
				return fmt.Errorf("bulk insert iteration %d: %w", iter.Number, err)
			}
		}
		return nil
	})
}

// GetIteration loads an iteration by id.
func (s *Store) GetIteration(ctx context.Context, id string) (*Iteration, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, session_id, number, status, started_at, completed_at FROM iterations WHERE id = ?`, id)
	return scanIteration(row)
}

func scanIteration(row *sql.Row) (*Iteration, error) {
	var it Iteration
	var completedAt sql.NullTime
	err := row.Scan(&it.ID, &it.SessionID, &it.Number, &it.Status, &it.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan iteration: %w", err)
	}
	if completedAt.Valid {
		it.CompletedAt = &completedAt.Time
	}
	return &it, nil
}

// ListIterations returns every iteration of a session, ordered by number.
func (s *Store) ListIterations(ctx context.Context, sessionID string) ([]*Iteration, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, session_id, number, status, started_at, completed_at
		FROM iterations WHERE session_id = ? ORDER BY number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var out []*Iteration
	for rows.Next() {
		var it Iteration
		var completedAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.SessionID, &it.Number, &it.Status, &it.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan iteration row: %w", err)
		}
		if completedAt.Valid {
			it.CompletedAt = &completedAt.Time
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

// FindDecidingIteration returns the iteration with status "deciding" for a
// session, if any — used by the CCA restart path's "Restore-pending-arbiter"
// branch.
func (s *Store) FindDecidingIteration(ctx context.Context, sessionID string) (*Iteration, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, session_id, number, status, started_at, completed_at
		FROM iterations WHERE session_id = ? AND status = ? ORDER BY number DESC LIMIT 1`,
		sessionID, IterationDeciding)
	it, err := scanIteration(row)
	if err == ErrNotFound {
		return nil, nil
	}
	return it, err
}

// UpdateIterationStatus transitions an iteration's status, stamping
// completed_at when it reaches "completed".
func (s *Store) UpdateIterationStatus(ctx context.Context, id string, status IterationStatus) error {
	var completedAt any
	if status == IterationCompleted {
		completedAt = time.Now().UTC()
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE iterations SET status = ?, completed_at = COALESCE(completed_at, ?) WHERE id = ?`,
		status, completedAt, id)
	if err != nil {
		return fmt.Errorf("update iteration status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
