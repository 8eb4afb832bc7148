package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CreateReview inserts a CriticReview. The (change_id, critic_id) unique
// index enforces the at-most-one-review-per-critic-per-change invariant at
// the database level; a violation surfaces as a store error.
func (s *Store) CreateReview(ctx context.Context, r *CriticReview) error {
	if r.ID == "" {
		r.ID = newID("rev")
	}
	r.CreatedAt = time.Now().UTC()

	issuesJSON, err := json.Marshal(r.Issues)
	if err != nil {
		return fmt.Errorf("marshal review issues: %w", err)
	}

	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO critic_reviews (id, change_id, critic_id, critic_name, provider, verdict, message, issues_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ChangeID, r.CriticID, r.CriticName, r.Provider, r.Verdict, r.Message, string(issuesJSON), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// ListReviewsByChange returns every review recorded against a change.
func (s *Store) ListReviewsByChange(ctx context.Context, changeID string) ([]*CriticReview, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, change_id, critic_id, critic_name, provider, verdict, message, issues_json, created_at
		FROM critic_reviews WHERE change_id = ? ORDER BY created_at ASC`, changeID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()
	return scanReviews(rows)
}

// ListReviewsByIteration returns every review for every change in an iteration.
func (s *Store) ListReviewsByIteration(ctx context.Context, iterationID string) ([]*CriticReview, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT r.id, r.change_id, r.critic_id, r.critic_name, r.provider, r.verdict, r.message, r.issues_json, r.created_at
		FROM critic_reviews r
		JOIN proposed_changes c ON c.id = r.change_id
		WHERE c.iteration_id = ?
		ORDER BY r.created_at ASC`, iterationID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by iteration: %w", err)
	}
	defer rows.Close()
	return scanReviews(rows)
}

func scanReviews(rows *sql.Rows) ([]*CriticReview, error) {
	var out []*CriticReview
	for rows.Next() {
		var r CriticReview
		var issuesJSON string
		if err := rows.Scan(&r.ID, &r.ChangeID, &r.CriticID, &r.CriticName, &r.Provider, &r.Verdict, &r.Message, &issuesJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		if issuesJSON != "" {
			if err := json.Unmarshal([]byte(issuesJSON), &r.Issues); err != nil {
				return nil, fmt.Errorf("unmarshal review issues: %w", err)
			}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
