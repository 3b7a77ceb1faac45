package repository

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rolewatch/rolewatch-api/internal/database/migrations"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Create in-memory database
	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	// Run migrations
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Clean up when test completes
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	db := setupTestDB(t)
	return NewRepositories(db)
}

// InsertTestRun is a helper to insert a run directly and return its id.
func InsertTestRun(t *testing.T, db *sql.DB, userID, status string) int64 {
	t.Helper()
	result, err := db.Exec(
		`INSERT INTO runs (user_id, status, created_at) VALUES (?, ?, ?)`,
		userID, status, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		t.Fatalf("failed to insert test run: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get test run id: %v", err)
	}
	return id
}

// InsertTestJob is a helper to insert a job directly and return its id.
func InsertTestJob(t *testing.T, db *sql.DB, userID string, runID int64, company, externalID, status string) int64 {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.Exec(
		`INSERT INTO jobs (user_id, run_id, company, external_id, url, status, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, runID, company, externalID, "https://jobs.example.com/"+externalID, status, "Engineer "+externalID, now, now,
	)
	if err != nil {
		t.Fatalf("failed to insert test job: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get test job id: %v", err)
	}
	return id
}
