package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rolewatch/rolewatch-api/internal/models"
)

// SQLiteRunLogRepository implements RunLogRepository for SQLite.
type SQLiteRunLogRepository struct {
	db *sql.DB
}

// NewSQLiteRunLogRepository creates a new SQLite run log repository.
func NewSQLiteRunLogRepository(db *sql.DB) *SQLiteRunLogRepository {
	return &SQLiteRunLogRepository{db: db}
}

func (r *SQLiteRunLogRepository) Append(ctx context.Context, log *models.RunLog) error {
	if log.ID == "" {
		log.ID = ulid.Make().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO run_logs (id, run_id, timestamp, level, message) VALUES (?, ?, ?, ?, ?)`,
		log.ID, log.RunID, log.Timestamp, log.Level, log.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}
	return nil
}

func (r *SQLiteRunLogRepository) ListByRun(ctx context.Context, runID int64, startTime int64, afterID string, limit int) ([]*models.RunLog, error) {
	// ULIDs sort lexically in insertion order, so paging resumes with a
	// plain id comparison.
	query := `SELECT id, run_id, timestamp, level, message FROM run_logs WHERE run_id = ?`
	args := []interface{}{runID}

	if startTime > 0 {
		query += ` AND timestamp >= ?`
		args = append(args, startTime)
	}
	if afterID != "" {
		query += ` AND id > ?`
		args = append(args, afterID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.RunLog
	for rows.Next() {
		var log models.RunLog
		if err := rows.Scan(&log.ID, &log.RunID, &log.Timestamp, &log.Level, &log.Message); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

func (r *SQLiteRunLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM run_logs WHERE timestamp < ?`,
		before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old run logs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}
