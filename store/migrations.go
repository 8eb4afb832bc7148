package store

import (
	"context"
	"fmt"
)

// migration is one ordered, monotonically versioned schema step.
type migration struct {
	version int
	name    string
	sqlite  []string
	postgres []string
	mysql   []string
}

func (m migration) statementsFor(dialect string) []string {
	switch dialect {
	case "postgres":
		if len(m.postgres) > 0 {
			return m.postgres
		}
	case "mysql":
		if len(m.mysql) > 0 {
			return m.mysql
		}
	}
	return m.sqlite
}

// migrations is the ordered list applied by applyMigrations. Versions must
// be monotonically increasing; only versions strictly greater than the
// recorded schema version are applied on open.
var migrations = []migration{
	{
		version: 1,
		name:    "schema_migrations bookkeeping",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				applied_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "sessions",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				id VARCHAR(64) PRIMARY KEY,
				task TEXT NOT NULL,
				status VARCHAR(32) NOT NULL,
				coder_agent VARCHAR(255),
				coder_model VARCHAR(255),
				workspace TEXT,
				config_snapshot TEXT,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP,
				completed_at TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
		},
	},
	{
		version: 3,
		name:    "iterations",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS iterations (
				id VARCHAR(64) PRIMARY KEY,
				session_id VARCHAR(64) NOT NULL REFERENCES sessions(id),
				number INTEGER NOT NULL,
				status VARCHAR(32) NOT NULL,
				started_at TIMESTAMP NOT NULL,
				completed_at TIMESTAMP,
				UNIQUE(session_id, number)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_iterations_session ON iterations(session_id)`,
		},
	},
	{
		version: 4,
		name:    "proposed_changes",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS proposed_changes (
				id VARCHAR(64) PRIMARY KEY,
				iteration_id VARCHAR(64) NOT NULL REFERENCES iterations(id),
				file_path TEXT NOT NULL,
				operation VARCHAR(16) NOT NULL,
				original_content TEXT,
				new_content TEXT,
				unified_diff TEXT,
				status VARCHAR(16) NOT NULL,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_changes_iteration ON proposed_changes(iteration_id)`,
		},
	},
	{
		version: 5,
		name:    "critic_reviews",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS critic_reviews (
				id VARCHAR(64) PRIMARY KEY,
				change_id VARCHAR(64) NOT NULL REFERENCES proposed_changes(id),
				critic_id VARCHAR(255) NOT NULL,
				critic_name VARCHAR(255) NOT NULL,
				provider VARCHAR(16) NOT NULL,
				verdict VARCHAR(16) NOT NULL,
				message TEXT,
				issues_json TEXT,
				created_at TIMESTAMP NOT NULL,
				UNIQUE(change_id, critic_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_reviews_change ON critic_reviews(change_id)`,
		},
	},
	{
		version: 6,
		name:    "arbiter_decisions",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS arbiter_decisions (
				id VARCHAR(64) PRIMARY KEY,
				iteration_id VARCHAR(64) NOT NULL UNIQUE REFERENCES iterations(id),
				decision VARCHAR(16) NOT NULL,
				feedback TEXT,
				address_issues_json TEXT,
				focus_files_json TEXT,
				decided_at TIMESTAMP NOT NULL,
				decided_by VARCHAR(255),
				forced BOOLEAN DEFAULT FALSE
			)`,
		},
	},
	{
		version: 7,
		name:    "tool_calls",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS tool_calls (
				id VARCHAR(64) PRIMARY KEY,
				execution_id VARCHAR(64) NOT NULL,
				node_execution_id VARCHAR(64),
				tool_name VARCHAR(255) NOT NULL,
				input_json TEXT,
				output_json TEXT,
				status VARCHAR(32) NOT NULL,
				started_at TIMESTAMP NOT NULL,
				completed_at TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tool_calls_execution ON tool_calls(execution_id)`,
		},
	},
	{
		version: 8,
		name:    "context_items",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS context_items (
				id VARCHAR(64) PRIMARY KEY,
				execution_id VARCHAR(64) NOT NULL,
				node_execution_id VARCHAR(64),
				item_type VARCHAR(32) NOT NULL,
				role VARCHAR(16),
				content TEXT,
				agent_id VARCHAR(255),
				agent_name VARCHAR(255),
				tokens INTEGER NOT NULL DEFAULT 0,
				compacted_into_id VARCHAR(64),
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_context_items_execution ON context_items(execution_id)`,
		},
	},
	{
		version: 9,
		name:    "permissions",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS permissions (
				id VARCHAR(64) PRIMARY KEY,
				scope VARCHAR(16) NOT NULL,
				workspace TEXT,
				session_id VARCHAR(64),
				execution_id VARCHAR(64),
				workflow_id VARCHAR(64),
				tool_name VARCHAR(255) NOT NULL,
				match_pattern TEXT,
				granted BOOLEAN NOT NULL,
				expires_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_permissions_scope_tool ON permissions(scope, tool_name)`,
		},
	},
	{
		version: 10,
		name:    "workflow_executions",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS workflow_executions (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(64) NOT NULL,
				status VARCHAR(32) NOT NULL,
				current_node_id VARCHAR(255),
				iteration INTEGER NOT NULL DEFAULT 0,
				chat_session_id VARCHAR(64),
				started_at TIMESTAMP NOT NULL,
				completed_at TIMESTAMP
			)`,
		},
	},
	{
		version: 11,
		name:    "checkpoints",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS checkpoints (
				id VARCHAR(64) PRIMARY KEY,
				execution_id VARCHAR(64) NOT NULL REFERENCES workflow_executions(id),
				node_execution_id VARCHAR(64),
				prompt TEXT,
				status VARCHAR(16) NOT NULL,
				decision_json TEXT,
				feedback TEXT,
				responded_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_checkpoints_execution ON checkpoints(execution_id)`,
		},
	},
	{
		version: 12,
		name:    "feedback_queue",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS feedback_queue (
				id VARCHAR(64) PRIMARY KEY,
				execution_id VARCHAR(64) NOT NULL REFERENCES workflow_executions(id),
				tool_call_id VARCHAR(64),
				file_path TEXT,
				feedback TEXT,
				status VARCHAR(16) NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
		},
	},
	{
		version: 13,
		name:    "context_store_results",
		sqlite: []string{
			`CREATE TABLE IF NOT EXISTS context_store_results (
				id VARCHAR(64) PRIMARY KEY,
				tool_name VARCHAR(255) NOT NULL,
				input_json TEXT,
				full_result TEXT NOT NULL,
				size_chars INTEGER NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
		},
	},
}

// applyMigrations applies every migration with a version strictly greater
// than the recorded schema version, inside a single transaction per
// migration.
func (s *Store) applyMigrations() error {
	ctx := context.Background()

	current, err := s.currentSchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.WithTransaction(ctx, func(ctx context.Context) error {
			q := s.q(ctx)
			for _, stmt := range m.statementsFor(s.dialect) {
				if _, err := q.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
				}
			}
			_, err := q.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`,
				m.version)
			if err != nil {
				return fmt.Errorf("record migration %d: %w", m.version, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) currentSchemaVersion(ctx context.Context) (int, error) {
	exists, err := s.tableExists("schema_migrations")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
