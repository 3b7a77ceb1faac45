package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/models"
)

// jobColumns is the SELECT list shared by every job query.
const jobColumns = `id, user_id, run_id, company, external_id, url, status,
	title, location, description, requirements, simhash, error_message, created_at, updated_at`

// SQLiteJobRepository implements JobRepository for SQLite.
type SQLiteJobRepository struct {
	db *sql.DB
}

// NewSQLiteJobRepository creates a new SQLite job repository.
func NewSQLiteJobRepository(db *sql.DB) *SQLiteJobRepository {
	return &SQLiteJobRepository{db: db}
}

func (r *SQLiteJobRepository) Upsert(ctx context.Context, job *models.Job) (*models.Job, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	// On conflict the row is re-pointed at the current run and reset to
	// pending. simhash, description and requirements are deliberately left
	// alone: the crawler compares the new fetch against the stored
	// fingerprint, and a skipped job keeps its previously extracted text.
	query := `
		INSERT INTO jobs (user_id, run_id, company, external_id, url, status, title, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)
		ON CONFLICT(user_id, company, external_id) DO UPDATE SET
			run_id = excluded.run_id,
			url = excluded.url,
			status = 'pending',
			title = excluded.title,
			location = excluded.location,
			error_message = NULL,
			updated_at = excluded.updated_at
		RETURNING ` + jobColumns

	stored, err := r.scanJob(r.db.QueryRowContext(ctx, query,
		job.UserID,
		job.RunID,
		job.Company,
		job.ExternalID,
		job.URL,
		job.Title,
		nullString(job.Location),
		now,
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert job: %w", err)
	}
	return stored, nil
}

func (r *SQLiteJobRepository) GetByID(ctx context.Context, id int64, userID string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? AND user_id = ?`
	return r.scanJob(r.db.QueryRowContext(ctx, query, id, userID))
}

func (r *SQLiteJobRepository) List(ctx context.Context, userID, company string, status models.JobStatus, limit, offset int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = ?`
	args := []interface{}{userID}

	if company != "" {
		query += ` AND company = ?`
		args = append(args, company)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY company ASC, external_id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

func (r *SQLiteJobRepository) MarkExpired(ctx context.Context, runID int64, userID, company string, seen []string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		UPDATE jobs SET status = 'expired', run_id = ?, updated_at = ?
		WHERE user_id = ? AND company = ? AND status != 'expired'
	`
	args := []interface{}{runID, now, userID, company}

	// An empty seen list means the board listed nothing, which expires
	// every posting still tracked for the company.
	if len(seen) > 0 {
		placeholders := make([]string, len(seen))
		for i, id := range seen {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND external_id NOT IN (` + strings.Join(placeholders, ",") + `)`
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to expire jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

func (r *SQLiteJobRepository) SetSimhash(ctx context.Context, id int64, simhash int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET simhash = ?, updated_at = ? WHERE id = ?`,
		simhash, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set job simhash: %w", err)
	}
	return nil
}

func (r *SQLiteJobRepository) MarkSkipped(ctx context.Context, id int64) error {
	// A skip is a successful crawl; any error left over from an earlier
	// run no longer describes the job.
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'skipped', error_message = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job skipped: %w", err)
	}
	return nil
}

func (r *SQLiteJobRepository) MarkError(ctx context.Context, id int64, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'error', error_message = ?, updated_at = ? WHERE id = ?`,
		message, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job errored: %w", err)
	}
	return nil
}

func (r *SQLiteJobRepository) MarkReady(ctx context.Context, id int64, description, requirements string) error {
	// Title and location stay as the listing reported them; extraction
	// only contributes the posting body.
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'ready', description = ?, requirements = ?,
			error_message = NULL, updated_at = ?
		WHERE id = ?`,
		nullString(description),
		nullString(requirements),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job ready: %w", err)
	}
	return nil
}

func (r *SQLiteJobRepository) CountPending(ctx context.Context, runID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE run_id = ? AND status = 'pending'`,
		runID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return count, nil
}

func (r *SQLiteJobRepository) ListByRun(ctx context.Context, runID int64) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE run_id = ? ORDER BY company ASC, external_id ASC`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run jobs: %w", err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

func (r *SQLiteJobRepository) ChangedSince(ctx context.Context, runID int64, since time.Time) ([]*models.Job, error) {
	// Timestamps are stored at second precision, so the comparison is
	// inclusive. Rows on the boundary second may be returned twice across
	// consecutive polls; resending a job's state is harmless.
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE run_id = ? AND updated_at >= ?
		ORDER BY company ASC, external_id ASC`
	rows, err := r.db.QueryContext(ctx, query, runID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query changed jobs: %w", err)
	}
	defer rows.Close()

	return r.collectJobs(rows)
}

func (r *SQLiteJobRepository) collectJobs(rows *sql.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *SQLiteJobRepository) scanJob(row *sql.Row) (*models.Job, error) {
	var job models.Job
	var runID, simhash sql.NullInt64
	var location, description, requirements, errorMessage sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID, &job.UserID, &runID, &job.Company, &job.ExternalID, &job.URL, &job.Status,
		&job.Title, &location, &description, &requirements, &simhash, &errorMessage,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if runID.Valid {
		job.RunID = &runID.Int64
	}
	if simhash.Valid {
		job.Simhash = &simhash.Int64
	}
	job.Location = location.String
	job.Description = description.String
	job.Requirements = requirements.String
	job.ErrorMessage = errorMessage.String
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &job, nil
}

func (r *SQLiteJobRepository) scanJobFromRows(rows *sql.Rows) (*models.Job, error) {
	var job models.Job
	var runID, simhash sql.NullInt64
	var location, description, requirements, errorMessage sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(
		&job.ID, &job.UserID, &runID, &job.Company, &job.ExternalID, &job.URL, &job.Status,
		&job.Title, &location, &description, &requirements, &simhash, &errorMessage,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if runID.Valid {
		job.RunID = &runID.Int64
	}
	if simhash.Valid {
		job.Simhash = &simhash.Int64
	}
	job.Location = location.String
	job.Description = description.String
	job.Requirements = requirements.String
	job.ErrorMessage = errorMessage.String
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &job, nil
}

// Helper functions
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
