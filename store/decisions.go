package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateDecision records the ArbiterDecision closing an iteration and marks
// the iteration completed, atomically ("presence of a decision
// forces iteration status = completed"). The UNIQUE constraint on
// iteration_id enforces at-most-one-decision.
func (s *Store) CreateDecision(ctx context.Context, d *ArbiterDecision) error {
	return s.MaybeTransaction(ctx, func(ctx context.Context) error {
		var count int
		row := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM arbiter_decisions WHERE iteration_id = ?`, d.IterationID)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check existing decision: %w", err)
		}
		if count > 0 {
			return ErrDuplicateDecision
		}

		if d.ID == "" {
			d.ID = newID("dec")
		}
		d.DecidedAt = time.Now().UTC()

		addressJSON, err := json.Marshal(d.AddressIssues)
		if err != nil {
			return fmt.Errorf("marshal address_issues: %w", err)
		}
		focusJSON, err := json.Marshal(d.FocusFiles)
		if err != nil {
			return fmt.Errorf("marshal focus_files: %w", err)
		}

		_, err = s.q(ctx).ExecContext(ctx, `
			INSERT INTO arbiter_decisions (id, iteration_id, decision, feedback, address_issues_json, focus_files_json, decided_at, decided_by, forced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.IterationID, d.Decision, d.Feedback, string(addressJSON), string(focusJSON), d.DecidedAt, d.DecidedBy, d.Forced)
		if err != nil {
			return fmt.Errorf("create decision: %w", err)
		}

		return s.UpdateIterationStatus(ctx, d.IterationID, IterationCompleted)
	})
}

// GetDecisionByIteration loads the (at most one) decision for an iteration.
func (s *Store) GetDecisionByIteration(ctx context.Context, iterationID string) (*ArbiterDecision, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, iteration_id, decision, feedback, address_issues_json, focus_files_json, decided_at, decided_by, forced
		FROM arbiter_decisions WHERE iteration_id = ?`, iterationID)

	var d ArbiterDecision
	var addressJSON, focusJSON string
	err := row.Scan(&d.ID, &d.IterationID, &d.Decision, &d.Feedback, &addressJSON, &focusJSON, &d.DecidedAt, &d.DecidedBy, &d.Forced)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan decision: %w", err)
	}
	if addressJSON != "" {
		if err := json.Unmarshal([]byte(addressJSON), &d.AddressIssues); err != nil {
			return nil, fmt.Errorf("unmarshal address_issues: %w", err)
		}
	}
	if focusJSON != "" {
		if err := json.Unmarshal([]byte(focusJSON), &d.FocusFiles); err != nil {
			return nil, fmt.Errorf("unmarshal focus_files: %w", err)
		}
	}
	return &d, nil
}
