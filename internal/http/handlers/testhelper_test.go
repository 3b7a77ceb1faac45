package handlers

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
	"github.com/rolewatch/rolewatch-api/internal/http/mw"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/repository"
	"github.com/rolewatch/rolewatch-api/internal/service"
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// acceptAllDispatcher satisfies service.RunDispatcher for handler tests
// that never drive the worker side.
type acceptAllDispatcher struct {
	runs []*models.Run
}

func (d *acceptAllDispatcher) Dispatch(run *models.Run) bool {
	d.runs = append(d.runs, run)
	return true
}

// apiFixture wires real repositories and services against an in-memory
// database so handlers are exercised end to end below the HTTP layer.
type apiFixture struct {
	db         *sql.DB
	repos      *repository.Repositories
	dispatcher *acceptAllDispatcher
	ingestion  *service.IngestionService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db := setupTestDB(t)
	repos := repository.NewRepositories(db)
	dispatcher := &acceptAllDispatcher{}
	cfg := &config.Config{StaleRunThreshold: 15 * time.Minute}
	return &apiFixture{
		db:         db,
		repos:      repos,
		dispatcher: dispatcher,
		ingestion:  service.NewIngestionService(cfg, repos, dispatcher, testLogger()),
	}
}

// authedCtx returns a context that looks like it passed the auth
// middleware for the given user.
func authedCtx(userID string) context.Context {
	return context.WithValue(context.Background(), mw.UserClaimsKey, &mw.UserClaims{UserID: userID})
}

func (f *apiFixture) enableCompany(t *testing.T, userID, company string) {
	t.Helper()
	_, err := f.repos.CompanySettings.Upsert(context.Background(), &models.CompanySetting{
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
