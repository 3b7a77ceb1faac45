// Package database opens the libsql store and applies schema migrations.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tursodatabase/go-libsql"

	"github.com/rolewatch/rolewatch-api/internal/database/migrations"
)

// New opens the store at dsn. A plain file DSN runs fully local; when
// TURSO_URL and TURSO_AUTH_TOKEN are set the same path becomes an embedded
// replica synced with Turso cloud. `turso dev` works too via an http DSN.
func New(dsn string) (*sql.DB, error) {
	db, err := open(dsn)
	if err != nil {
		return nil, err
	}

	// Workers, the queue bus and request handlers all write to this one
	// database; give lock waits a grace window instead of failing fast.
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

func open(dsn string) (*sql.DB, error) {
	tursoURL := os.Getenv("TURSO_URL")
	tursoToken := os.Getenv("TURSO_AUTH_TOKEN")
	if tursoURL == "" || tursoToken == "" {
		db, err := sql.Open("libsql", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, nil
	}

	// Embedded replica: local file synced with remote Turso. Read-your-writes
	// matters because workers and the progress stream share one process and
	// the stream must observe worker updates.
	path := strings.TrimPrefix(dsn, "file:")
	path = strings.Split(path, "?")[0]

	connector, err := libsql.NewEmbeddedReplicaConnector(path, tursoURL,
		libsql.WithAuthToken(tursoToken),
		libsql.WithReadYourWrites(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Turso connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// Migrate brings the schema up to date.
func Migrate(db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(db, logger)
}

// GetMigrationCount returns the total number of applied migrations.
func GetMigrationCount(db *sql.DB) (int, error) {
	return migrations.Count(db)
}
