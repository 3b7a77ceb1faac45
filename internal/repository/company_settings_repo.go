package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/models"
)

const companySettingColumns = `id, user_id, company, enabled, include_filters, exclude_filters, created_at, updated_at`

// SQLiteCompanySettingsRepository implements CompanySettingsRepository for SQLite.
type SQLiteCompanySettingsRepository struct {
	db *sql.DB
}

// NewSQLiteCompanySettingsRepository creates a new SQLite company settings repository.
func NewSQLiteCompanySettingsRepository(db *sql.DB) *SQLiteCompanySettingsRepository {
	return &SQLiteCompanySettingsRepository{db: db}
}

func (r *SQLiteCompanySettingsRepository) Upsert(ctx context.Context, setting *models.CompanySetting) (*models.CompanySetting, error) {
	includeJSON, err := marshalFilters(setting.IncludeFilters)
	if err != nil {
		return nil, err
	}
	excludeJSON, err := marshalFilters(setting.ExcludeFilters)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO company_settings (user_id, company, enabled, include_filters, exclude_filters, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, company) DO UPDATE SET
			enabled = excluded.enabled,
			include_filters = excluded.include_filters,
			exclude_filters = excluded.exclude_filters,
			updated_at = excluded.updated_at
		RETURNING ` + companySettingColumns

	stored, err := r.scanSetting(r.db.QueryRowContext(ctx, query,
		setting.UserID,
		setting.Company,
		setting.Enabled,
		includeJSON,
		excludeJSON,
		now,
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert company setting: %w", err)
	}
	return stored, nil
}

func (r *SQLiteCompanySettingsRepository) GetByUserAndCompany(ctx context.Context, userID, company string) (*models.CompanySetting, error) {
	query := `SELECT ` + companySettingColumns + ` FROM company_settings WHERE user_id = ? AND company = ?`
	return r.scanSetting(r.db.QueryRowContext(ctx, query, userID, company))
}

func (r *SQLiteCompanySettingsRepository) ListByUser(ctx context.Context, userID string) ([]*models.CompanySetting, error) {
	query := `SELECT ` + companySettingColumns + ` FROM company_settings WHERE user_id = ? ORDER BY company ASC`
	return r.querySettings(ctx, query, userID)
}

func (r *SQLiteCompanySettingsRepository) ListEnabled(ctx context.Context, userID string) ([]*models.CompanySetting, error) {
	query := `SELECT ` + companySettingColumns + ` FROM company_settings WHERE user_id = ? AND enabled = 1 ORDER BY company ASC`
	return r.querySettings(ctx, query, userID)
}

func (r *SQLiteCompanySettingsRepository) Delete(ctx context.Context, userID, company string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM company_settings WHERE user_id = ? AND company = ?`,
		userID, company,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete company setting: %w", err)
	}
	return oneRowAffected(result)
}

func (r *SQLiteCompanySettingsRepository) querySettings(ctx context.Context, query string, args ...interface{}) ([]*models.CompanySetting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query company settings: %w", err)
	}
	defer rows.Close()

	var settings []*models.CompanySetting
	for rows.Next() {
		setting, err := r.scanSettingFromRows(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

func (r *SQLiteCompanySettingsRepository) scanSetting(row *sql.Row) (*models.CompanySetting, error) {
	var setting models.CompanySetting
	var includeJSON, excludeJSON string
	var createdAt, updatedAt string

	err := row.Scan(
		&setting.ID, &setting.UserID, &setting.Company, &setting.Enabled,
		&includeJSON, &excludeJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan company setting: %w", err)
	}

	if err := unmarshalFilters(includeJSON, &setting.IncludeFilters); err != nil {
		return nil, err
	}
	if err := unmarshalFilters(excludeJSON, &setting.ExcludeFilters); err != nil {
		return nil, err
	}
	setting.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	setting.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &setting, nil
}

func (r *SQLiteCompanySettingsRepository) scanSettingFromRows(rows *sql.Rows) (*models.CompanySetting, error) {
	var setting models.CompanySetting
	var includeJSON, excludeJSON string
	var createdAt, updatedAt string

	err := rows.Scan(
		&setting.ID, &setting.UserID, &setting.Company, &setting.Enabled,
		&includeJSON, &excludeJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan company setting: %w", err)
	}

	if err := unmarshalFilters(includeJSON, &setting.IncludeFilters); err != nil {
		return nil, err
	}
	if err := unmarshalFilters(excludeJSON, &setting.ExcludeFilters); err != nil {
		return nil, err
	}
	setting.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	setting.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &setting, nil
}

// marshalFilters encodes a filter list, storing nil as an empty array so
// reads always produce a non-nil slice.
func marshalFilters(filters []string) (string, error) {
	if filters == nil {
		filters = []string{}
	}
	data, err := json.Marshal(filters)
	if err != nil {
		return "", fmt.Errorf("failed to marshal filters: %w", err)
	}
	return string(data), nil
}

func unmarshalFilters(data string, dst *[]string) error {
	if data == "" {
		*dst = []string{}
		return nil
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("failed to unmarshal filters: %w", err)
	}
	if *dst == nil {
		*dst = []string{}
	}
	return nil
}
