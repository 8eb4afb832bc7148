// Package store provides transactional CRUD over the engine's durable
// entities (sessions, iterations, proposed changes, critic reviews, arbiter
// decisions, tool calls, context items, permissions).
//
// Grounded on v2/session/store.go and v2/task/store.go: a single
// database/sql handle, dialect-aware DDL/DML, and drivers registered purely
// for their side-effecting init() (mattn/go-sqlite3, lib/pq,
// go-sql-driver/mysql).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a *sql.DB with the migration runner and transaction helpers
// every entity-family file (sessions.go, iterations.go, ...) builds on.
type Store struct {
	db      *sql.DB
	dialect string
	log     *slog.Logger
}

type ctxKey int

const txCtxKey ctxKey = iota

// querier is satisfied by both *sql.DB and *sql.Tx, letting every CRUD
// method be written once and work inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// q resolves the querier for ctx: the active transaction if one is open, or
// the shared pool otherwise. Because every entry point into this package
// goes through q(ctx), nesting is always reliably known — unlike a
// black-box SQLite wrapper, this store controls every caller itself, which
// resolves open question in favor of exposing MaybeTransaction.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txCtxKey).(*sql.Tx); ok && tx != nil {
		return tx
	}
	return s.db
}

func inTransaction(ctx context.Context) bool {
	tx, ok := ctx.Value(txCtxKey).(*sql.Tx)
	return ok && tx != nil
}

// Dialect returns the configured SQL dialect ("sqlite", "postgres", "mysql").
func (s *Store) Dialect() string { return s.dialect }

// DB exposes the underlying pool for callers (e.g. constructing sibling
// stores that must share the same connection to avoid SQLite lock
// contention).
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (and migrates) the database at path for the given dialect.
// For sqlite, the DSN requests _txlock=immediate so every *sql.Tx begun by
// this package starts a write-immediate transaction (journal mode is set to
// write-ahead logging and writes use BEGIN IMMEDIATE semantics), and
// foreign-key enforcement is turned on.
func Open(dialect, dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	driverName, fullDSN := driverAndDSN(dialect, dsn)

	db, err := sql.Open(driverName, fullDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, dialect: normalizeDialect(dialect), log: log}

	if s.dialect == "sqlite" {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
		if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
		db.SetMaxOpenConns(1) // serialize writers; SQLite does not support concurrent writers
	}

	if err := s.migrateOrBackup(dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func normalizeDialect(dialect string) string {
	if dialect == "sqlite3" {
		return "sqlite"
	}
	return dialect
}

func driverAndDSN(dialect, dsn string) (driver string, fullDSN string) {
	switch normalizeDialect(dialect) {
	case "sqlite":
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return "sqlite3", dsn + sep + "_txlock=immediate&_foreign_keys=on"
	case "postgres":
		return "postgres", dsn
	case "mysql":
		return "mysql", dsn
	default:
		return dialect, dsn
	}
}

// migrateOrBackup detects a legacy schema (a table the current migration
// set expects is missing something it assumes) and, if so, renames the
// database file aside before applying the full migration set fresh. On a
// normal (non-legacy) database it just applies pending migrations.
func (s *Store) migrateOrBackup(dsn string) error {
	legacy, err := s.hasLegacySchema()
	if err != nil {
		return err
	}
	if legacy {
		path := sqliteFilePath(dsn)
		if path != "" {
			if err := backupLegacyDatabase(s.db, path); err != nil {
				return err
			}
			driverName, fullDSN := driverAndDSN(s.dialect, dsn)
			db, err := sql.Open(driverName, fullDSN)
			if err != nil {
				return fmt.Errorf("reopen database after backup: %w", err)
			}
			if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
				_ = db.Close()
				return fmt.Errorf("enable WAL: %w", err)
			}
			db.SetMaxOpenConns(1)
			s.db = db
		}
	}
	return s.applyMigrations()
}

// hasLegacySchema reports whether the schema_migrations bookkeeping table is
// absent while at least one domain table already exists — the signature of
// a pre-migration-runner database layout.
func (s *Store) hasLegacySchema() (bool, error) {
	hasVersionTable, err := s.tableExists("schema_migrations")
	if err != nil {
		return false, err
	}
	if hasVersionTable {
		return false, nil
	}
	hasSessions, err := s.tableExists("sessions")
	if err != nil {
		return false, err
	}
	return hasSessions, nil
}

func (s *Store) tableExists(name string) (bool, error) {
	var query string
	switch s.dialect {
	case "sqlite":
		query = `SELECT name FROM sqlite_master WHERE type='table' AND name=?`
	case "postgres":
		query = `SELECT table_name FROM information_schema.tables WHERE table_name=$1`
	case "mysql":
		query = `SELECT table_name FROM information_schema.tables WHERE table_name=?`
	default:
		return false, fmt.Errorf("unsupported dialect: %s", s.dialect)
	}
	row := s.db.QueryRow(query, name)
	var found string
	err := row.Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return true, nil
}

// backupLegacyDatabase closes db's file handles long enough to rename the
// file (plus its WAL/SHM companions) to a timestamped backup path using
// the ".backup-<ISO-8601-timestamp>" suffix, colons and dots replaced by "-".
func backupLegacyDatabase(db *sql.DB, path string) error {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	backupPath := fmt.Sprintf("%s.backup-%s", path, ts)

	if err := db.Close(); err != nil {
		return fmt.Errorf("close database before backup: %w", err)
	}

	if err := os.Rename(path, backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename legacy database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, backupPath+suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rename legacy database companion %s: %w", suffix, err)
		}
	}
	return nil
}

func sqliteFilePath(dsn string) string {
	// dsn for sqlite is a filesystem path, optionally with query params.
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		return dsn[:i]
	}
	return dsn
}

// WithTransaction runs body within a single write-locked transaction,
// committing on success and rolling back on any error or panic. Mandatory
// for any multi-statement mutation. It is an error to call
// WithTransaction while already inside one — nest with MaybeTransaction
// instead.
func (s *Store) WithTransaction(ctx context.Context, body func(ctx context.Context) error) (err error) {
	if inTransaction(ctx) {
		return fmt.Errorf("store: WithTransaction called while already in a transaction; use MaybeTransaction")
	}
	return s.runInNewTransaction(ctx, body)
}

// MaybeTransaction runs body inside a transaction only if ctx is not
// already within one; otherwise it reuses the existing transaction. Use
// this from code that may be called either standalone or as part of a
// larger WithTransaction body.
func (s *Store) MaybeTransaction(ctx context.Context, body func(ctx context.Context) error) error {
	if inTransaction(ctx) {
		return body(ctx)
	}
	return s.runInNewTransaction(ctx, body)
}

func (s *Store) runInNewTransaction(ctx context.Context, body func(ctx context.Context) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txCtxKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = body(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
