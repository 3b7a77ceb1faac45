package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rolewatch/rolewatch-api/internal/adapter"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/repository"
)

// ErrUnsupportedCompany means no extraction adapter exists for the
// company, so settings for it cannot be saved.
var ErrUnsupportedCompany = errors.New("company not supported")

// CompanyOverview is one supported company merged with the user's
// setting for it, if any.
type CompanyOverview struct {
	Company        string   `json:"company"`
	Enabled        bool     `json:"enabled"`
	Configured     bool     `json:"configured"`
	IncludeFilters []string `json:"include_filters"`
	ExcludeFilters []string `json:"exclude_filters"`
}

// CompanyService manages per-user company settings against the fixed
// set of supported extraction adapters.
type CompanyService struct {
	repos    *repository.Repositories
	registry *adapter.Registry
	logger   *slog.Logger
}

// NewCompanyService creates a new company service.
func NewCompanyService(repos *repository.Repositories, registry *adapter.Registry, logger *slog.Logger) *CompanyService {
	return &CompanyService{
		repos:    repos,
		registry: registry,
		logger:   logger,
	}
}

// List returns every supported company with the user's setting merged
// in. Companies the user never configured appear disabled with empty
// filters, so the client always sees the full catalogue.
func (s *CompanyService) List(ctx context.Context, userID string) ([]CompanyOverview, error) {
	settings, err := s.repos.CompanySettings.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list company settings: %w", err)
	}

	byCompany := make(map[string]*models.CompanySetting, len(settings))
	for _, setting := range settings {
		byCompany[setting.Company] = setting
	}

	companies := s.registry.Companies()
	out := make([]CompanyOverview, 0, len(companies))
	for _, company := range companies {
		overview := CompanyOverview{
			Company:        company,
			IncludeFilters: []string{},
			ExcludeFilters: []string{},
		}
		if setting, ok := byCompany[company]; ok {
			overview.Enabled = setting.Enabled
			overview.Configured = true
			overview.IncludeFilters = setting.IncludeFilters
			overview.ExcludeFilters = setting.ExcludeFilters
		}
		out = append(out, overview)
	}
	return out, nil
}

// Upsert saves the user's setting for one company. Returns
// ErrUnsupportedCompany when no adapter exists for it.
func (s *CompanyService) Upsert(ctx context.Context, userID, company string, enabled bool, include, exclude []string) (*models.CompanySetting, error) {
	if _, ok := s.registry.Get(company); !ok {
		return nil, ErrUnsupportedCompany
	}
	if include == nil {
		include = []string{}
	}
	if exclude == nil {
		exclude = []string{}
	}

	setting, err := s.repos.CompanySettings.Upsert(ctx, &models.CompanySetting{
		UserID:         userID,
		Company:        company,
		Enabled:        enabled,
		IncludeFilters: include,
		ExcludeFilters: exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save company setting: %w", err)
	}

	s.logger.Info("company setting saved", "user_id", userID, "company", company, "enabled", enabled)
	return setting, nil
}

// Delete removes the user's setting for one company. Returns false when
// no setting existed; deleting a setting never removes ingested jobs.
func (s *CompanyService) Delete(ctx context.Context, userID, company string) (bool, error) {
	deleted, err := s.repos.CompanySettings.Delete(ctx, userID, company)
	if err != nil {
		return false, fmt.Errorf("failed to delete company setting: %w", err)
	}
	return deleted, nil
}
