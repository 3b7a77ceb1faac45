// Package repository defines repository interfaces for data access.
// Note: user management and authentication are external; user_id columns
// carry the subject claim of the caller's bearer token.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/models"
)

// RunRepository defines methods for ingestion run data access.
type RunRepository interface {
	// CreateIfNoneActive inserts a new pending run unless the user already
	// has a non-terminal run. Returns nil (not an error) on conflict.
	CreateIfNoneActive(ctx context.Context, userID string, metadata models.RunMetadata) (*models.Run, error)
	GetByID(ctx context.Context, id int64, userID string) (*models.Run, error)
	// GetActive returns the user's non-terminal run, or nil if none exists.
	GetActive(ctx context.Context, userID string) (*models.Run, error)
	// GetLatest returns the user's most recently created run regardless of status.
	GetLatest(ctx context.Context, userID string) (*models.Run, error)
	// MarkInitializing advances pending -> initializing and stamps started_at.
	// Returns false if the run was not pending (already advanced or aborted).
	MarkInitializing(ctx context.Context, id int64) (bool, error)
	// MarkIngesting advances initializing -> ingesting.
	MarkIngesting(ctx context.Context, id int64) (bool, error)
	// Finalize promotes ingesting -> finished and snapshots the per-status
	// job counts in the same statement. Safe to call from multiple workers;
	// only the first call wins and later calls return false.
	Finalize(ctx context.Context, id int64) (bool, error)
	// MarkError moves a non-terminal run to error with the given message.
	MarkError(ctx context.Context, id int64, message string) (bool, error)
	// Abort moves a non-terminal run to aborted. Returns false when the run
	// does not exist for the user or is already terminal.
	Abort(ctx context.Context, id int64, userID string) (bool, error)
	// SweepStale fails pending and initializing runs older than the given
	// age. Their initializer died with its process; ingesting runs are
	// left alone because queued messages still drive them to completion.
	SweepStale(ctx context.Context, olderThan time.Duration, message string) (int64, error)
}

// JobRepository defines methods for job posting data access.
type JobRepository interface {
	// Upsert inserts a posting or, when (user_id, company, external_id)
	// already exists, re-points it at the given run and resets it to
	// pending. The stored simhash, description and requirements survive
	// the conflict so skip detection can compare against the prior fetch.
	// Returns the stored row including the prior simhash.
	Upsert(ctx context.Context, job *models.Job) (*models.Job, error)
	GetByID(ctx context.Context, id int64, userID string) (*models.Job, error)
	List(ctx context.Context, userID, company string, status models.JobStatus, limit, offset int) ([]*models.Job, error)
	// MarkExpired expires every tracked posting for (user, company) whose
	// external_id is absent from seen, re-pointing it at the given run so
	// progress snapshots include it. Returns the number of rows expired.
	MarkExpired(ctx context.Context, runID int64, userID, company string, seen []string) (int64, error)
	// SetSimhash stores the fingerprint of the latest successful fetch.
	SetSimhash(ctx context.Context, id int64, simhash int64) error
	MarkSkipped(ctx context.Context, id int64) error
	MarkError(ctx context.Context, id int64, message string) error
	// MarkReady stores the extracted body and moves the job to ready.
	MarkReady(ctx context.Context, id int64, description, requirements string) error
	// CountPending returns the number of jobs still pending for a run.
	CountPending(ctx context.Context, runID int64) (int, error)
	// ListByRun returns every job the run touched, ordered by company then
	// external id. Feeds progress snapshots.
	ListByRun(ctx context.Context, runID int64) ([]*models.Job, error)
	// ChangedSince returns jobs the run touched that were updated at or
	// after the given instant. Feeds progress diffs; boundary rows may be
	// returned twice across consecutive polls.
	ChangedSince(ctx context.Context, runID int64, since time.Time) ([]*models.Job, error)
}

// CompanySettingsRepository defines methods for per-user company configuration.
type CompanySettingsRepository interface {
	// Upsert inserts or replaces the setting keyed by (user_id, company).
	Upsert(ctx context.Context, setting *models.CompanySetting) (*models.CompanySetting, error)
	GetByUserAndCompany(ctx context.Context, userID, company string) (*models.CompanySetting, error)
	ListByUser(ctx context.Context, userID string) ([]*models.CompanySetting, error)
	// ListEnabled returns the user's enabled settings in company order.
	// This is the set a new run fans out over.
	ListEnabled(ctx context.Context, userID string) ([]*models.CompanySetting, error)
	// Delete removes the setting. Returns false when nothing was deleted.
	Delete(ctx context.Context, userID, company string) (bool, error)
}

// RunLogRepository defines methods for captured worker log lines.
type RunLogRepository interface {
	Append(ctx context.Context, log *models.RunLog) error
	// ListByRun pages through a run's logs. startTime (ms since epoch)
	// filters out older lines; afterID resumes after a previous page's
	// last ULID; limit caps the page size.
	ListByRun(ctx context.Context, runID int64, startTime int64, afterID string, limit int) ([]*models.RunLog, error)
	// DeleteOlderThan removes log lines older than the cutoff.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Run             RunRepository
	Job             JobRepository
	CompanySettings CompanySettingsRepository
	RunLog          RunLogRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Run:             NewSQLiteRunRepository(db),
		Job:             NewSQLiteJobRepository(db),
		CompanySettings: NewSQLiteCompanySettingsRepository(db),
		RunLog:          NewSQLiteRunLogRepository(db),
	}
}
