// Package migrations defines the database schema as ordered, timestamped
// migration files. Each file registers itself in init(); Run applies
// whatever the schema_migrations table says is still missing.
//
// File naming follows the version string: YYYYMMDD-HHmmss-short-name.go.
package migrations

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Migration is one schema change set. Statements run in order inside a
// single transaction together with the bookkeeping row.
type Migration struct {
	Version    string // YYYYMMDD-HHmmss; orders migrations and keys the bookkeeping table
	Name       string // short label for logs
	Statements []string
}

var registry = map[string]Migration{}

// Register is called from init() in each migration file. Registering the
// same version twice is a programmer error and panics immediately.
func Register(m Migration) {
	if _, dup := registry[m.Version]; dup {
		panic("migrations: duplicate version " + m.Version)
	}
	registry[m.Version] = m
}

// Run brings the schema up to date. It creates the bookkeeping table on
// first use and applies pending migrations in version order, each in its
// own transaction.
func Run(db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	pending, err := pendingMigrations(db)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	for _, m := range pending {
		logger.Info("applying migration", "version", m.Version, "name", m.Name)
		if err := apply(db, m); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	logger.Info("schema up to date", "applied", len(pending))

	return nil
}

// pendingMigrations returns registered migrations without a
// schema_migrations row, sorted by version.
func pendingMigrations(db *sql.DB) ([]Migration, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pending []Migration
	for v, m := range registry {
		if !applied[v] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	return pending, nil
}

// apply runs one migration and its bookkeeping row in a transaction.
func apply(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		if _, err := tx.Exec(stmt); err != nil {
			if ignorable(err, stmt) {
				continue
			}
			return fmt.Errorf("exec failed: %w\n%s", err, stmt)
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// ignorable reports whether a statement error can be skipped on re-run:
// columns and indexes that already exist mean an earlier partial apply got
// there first.
func ignorable(err error, stmt string) bool {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate column"):
		return true
	case strings.Contains(msg, "already exists") && strings.Contains(stmt, "CREATE INDEX"):
		return true
	}
	return false
}

// GetLatestVersion returns the most recently applied version, or "" when
// no migration has run yet.
func GetLatestVersion(db *sql.DB) (string, error) {
	var v sql.NullString
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v.String, nil
}

// Count returns how many migrations have been applied.
func Count(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
