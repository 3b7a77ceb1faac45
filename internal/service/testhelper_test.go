package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rolewatch/rolewatch-api/internal/config"
	"github.com/rolewatch/rolewatch-api/internal/database/migrations"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/repository"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		StaleRunThreshold: 15 * time.Minute,
		CleanupInterval:   time.Hour,
		RawRetention:      7 * 24 * time.Hour,
		RunLogRetention:   30 * 24 * time.Hour,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDispatcher records dispatched runs and can be told to refuse.
type fakeDispatcher struct {
	runs   []*models.Run
	refuse bool
}

func (d *fakeDispatcher) Dispatch(run *models.Run) bool {
	if d.refuse {
		return false
	}
	d.runs = append(d.runs, run)
	return true
}

func enableCompany(t *testing.T, repos *repository.Repositories, userID, company string) {
	t.Helper()
	_, err := repos.CompanySettings.Upsert(context.Background(), &models.CompanySetting{
		UserID:         userID,
		Company:        company,
		Enabled:        true,
		IncludeFilters: []string{},
		ExcludeFilters: []string{},
	})
	if err != nil {
		t.Fatalf("failed to enable company: %v", err)
	}
}
