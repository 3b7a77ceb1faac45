package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/models"
)

// runColumns is the SELECT list shared by every run query.
const runColumns = `id, user_id, status, total_jobs, jobs_ready, jobs_skipped,
	jobs_expired, jobs_failed, error_message, metadata_json, created_at, started_at, finished_at`

// activeStatuses matches every non-terminal run status.
const activeStatuses = `('pending', 'initializing', 'ingesting')`

// SQLiteRunRepository implements RunRepository for SQLite.
type SQLiteRunRepository struct {
	db *sql.DB
}

// NewSQLiteRunRepository creates a new SQLite run repository.
func NewSQLiteRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

func (r *SQLiteRunRepository) CreateIfNoneActive(ctx context.Context, userID string, metadata models.RunMetadata) (*models.Run, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	// The NOT EXISTS guard and the insert run in one statement, so two
	// concurrent starts cannot both create a run.
	query := `
		INSERT INTO runs (user_id, status, metadata_json, created_at)
		SELECT ?, 'pending', ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM runs WHERE user_id = ? AND status IN ` + activeStatuses + `
		)
		RETURNING ` + runColumns

	run, err := r.scanRun(r.db.QueryRowContext(ctx, query,
		userID,
		string(metadataJSON),
		time.Now().UTC().Format(time.RFC3339),
		userID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (r *SQLiteRunRepository) GetByID(ctx context.Context, id int64, userID string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ? AND user_id = ?`
	return r.scanRun(r.db.QueryRowContext(ctx, query, id, userID))
}

func (r *SQLiteRunRepository) GetActive(ctx context.Context, userID string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE user_id = ? AND status IN ` + activeStatuses + `
		ORDER BY id DESC LIMIT 1`
	return r.scanRun(r.db.QueryRowContext(ctx, query, userID))
}

func (r *SQLiteRunRepository) GetLatest(ctx context.Context, userID string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE user_id = ? ORDER BY id DESC LIMIT 1`
	return r.scanRun(r.db.QueryRowContext(ctx, query, userID))
}

func (r *SQLiteRunRepository) MarkInitializing(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = 'initializing', started_at = ? WHERE id = ? AND status = 'pending'`,
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark run initializing: %w", err)
	}
	return oneRowAffected(result)
}

func (r *SQLiteRunRepository) MarkIngesting(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = 'ingesting' WHERE id = ? AND status = 'initializing'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark run ingesting: %w", err)
	}
	return oneRowAffected(result)
}

func (r *SQLiteRunRepository) Finalize(ctx context.Context, id int64) (bool, error) {
	// Counter snapshot and promotion happen in one statement. The status
	// guard makes the call idempotent: when several workers drain the last
	// messages at once, each may call Finalize, and only one row changes.
	query := `
		UPDATE runs SET
			status = 'finished',
			finished_at = ?,
			total_jobs = (SELECT COUNT(*) FROM jobs WHERE run_id = runs.id),
			jobs_ready = (SELECT COUNT(*) FROM jobs WHERE run_id = runs.id AND status = 'ready'),
			jobs_skipped = (SELECT COUNT(*) FROM jobs WHERE run_id = runs.id AND status = 'skipped'),
			jobs_expired = (SELECT COUNT(*) FROM jobs WHERE run_id = runs.id AND status = 'expired'),
			jobs_failed = (SELECT COUNT(*) FROM jobs WHERE run_id = runs.id AND status = 'error')
		WHERE id = ? AND status = 'ingesting'
	`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return false, fmt.Errorf("failed to finalize run: %w", err)
	}
	return oneRowAffected(result)
}

func (r *SQLiteRunRepository) MarkError(ctx context.Context, id int64, message string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = 'error', error_message = ?, finished_at = ?
		WHERE id = ? AND status IN `+activeStatuses,
		message, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark run errored: %w", err)
	}
	return oneRowAffected(result)
}

func (r *SQLiteRunRepository) Abort(ctx context.Context, id int64, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = 'aborted', finished_at = ?
		WHERE id = ? AND user_id = ? AND status IN `+activeStatuses,
		time.Now().UTC().Format(time.RFC3339), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to abort run: %w", err)
	}
	return oneRowAffected(result)
}

func (r *SQLiteRunRepository) SweepStale(ctx context.Context, olderThan time.Duration, message string) (int64, error) {
	// Only pending and initializing runs are swept: their initializer
	// died with whatever process owned it. An ingesting run is still
	// driven by queued messages and finishes on its own.
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = 'error', error_message = ?, finished_at = ?
		WHERE status IN ('pending', 'initializing') AND created_at < ?`,
		message,
		now.Format(time.RFC3339),
		now.Add(-olderThan).Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

func (r *SQLiteRunRepository) scanRun(row *sql.Row) (*models.Run, error) {
	var run models.Run
	var errorMessage, metadataJSON sql.NullString
	var createdAt string
	var startedAt, finishedAt sql.NullString

	err := row.Scan(
		&run.ID, &run.UserID, &run.Status,
		&run.TotalJobs, &run.JobsReady, &run.JobsSkipped, &run.JobsExpired, &run.JobsFailed,
		&errorMessage, &metadataJSON, &createdAt, &startedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.ErrorMessage = errorMessage.String
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run metadata: %w", err)
		}
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339, startedAt.String)
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAt.String)
		run.FinishedAt = &t
	}

	return &run, nil
}

// oneRowAffected reports whether an UPDATE touched exactly one row.
func oneRowAffected(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}
