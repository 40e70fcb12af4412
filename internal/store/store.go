// Package store persists execution-order tables in SQLite so that
// priorities stay stable across runs.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mazrean/initargs/internal/order"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Index on priorities.run_id
const currentSchemaVersion = 1

// Store holds the priority table of the latest run.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens a SQLite database at path and applies pragmas and
// migrations. It is safe to call on an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_priorities_run
		ON priorities(run_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// Run describes one saved priority table.
type Run struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Initializers int
	Warnings     int
}

// LoadPriorities returns the priorities of the latest saved table. The map
// is empty when nothing was saved yet.
func (s *Store) LoadPriorities(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, priority FROM priorities`)
	if err != nil {
		return nil, fmt.Errorf("load priorities: %w", err)
	}
	defer rows.Close()

	priorities := make(map[string]int)
	for rows.Next() {
		var (
			name     string
			priority int
		)
		if err := rows.Scan(&name, &priority); err != nil {
			return nil, fmt.Errorf("load priorities: %w", err)
		}
		priorities[name] = priority
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load priorities: %w", err)
	}

	return priorities, nil
}

// SavePriorities replaces the stored table with result and records the
// run.
func (s *Store) SavePriorities(ctx context.Context, result *order.Result) (Run, error) {
	run := Run{
		ID:           uuid.Must(uuid.NewV7()),
		CreatedAt:    s.now().UTC().Truncate(time.Second),
		Initializers: len(result.Entries),
		Warnings:     len(result.Warnings),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("save priorities: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, initializers, warnings)
		VALUES (?, ?, ?, ?)
	`, run.ID.String(), run.CreatedAt.Unix(), run.Initializers, run.Warnings); err != nil {
		return Run{}, fmt.Errorf("save priorities: insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM priorities`); err != nil {
		return Run{}, fmt.Errorf("save priorities: clear table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO priorities (name, priority, assembly, manual, run_id)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return Run{}, fmt.Errorf("save priorities: %w", err)
	}
	defer stmt.Close()

	for _, e := range result.Entries {
		if _, err := stmt.ExecContext(ctx, e.Name, e.Priority, e.Assembly, e.Manual, run.ID.String()); err != nil {
			return Run{}, fmt.Errorf("save priorities: %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("save priorities: commit: %w", err)
	}

	return run, nil
}

// Entries returns the stored table ordered by priority.
func (s *Store) Entries(ctx context.Context) ([]order.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, priority, assembly, manual
		FROM priorities
		ORDER BY priority, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []order.Entry
	for rows.Next() {
		var e order.Entry
		if err := rows.Scan(&e.Name, &e.Priority, &e.Assembly, &e.Manual); err != nil {
			return nil, fmt.Errorf("query entries: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestRun returns the most recent run, if any.
func (s *Store) LatestRun(ctx context.Context) (Run, bool, error) {
	var (
		id        string
		createdAt int64
		run       Run
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, initializers, warnings
		FROM runs
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&id, &createdAt, &run.Initializers, &run.Warnings)
	switch {
	case err == sql.ErrNoRows:
		return Run{}, false, nil
	case err != nil:
		return Run{}, false, fmt.Errorf("query latest run: %w", err)
	}

	run.ID, err = uuid.Parse(id)
	if err != nil {
		return Run{}, false, fmt.Errorf("query latest run: %w", err)
	}
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	return run, true, nil
}
