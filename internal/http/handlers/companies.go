package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rolewatch/rolewatch-api/internal/service"
)

// CompanyHandler handles company settings endpoints.
type CompanyHandler struct {
	companySvc *service.CompanyService
}

// NewCompanyHandler creates a new company handler.
func NewCompanyHandler(companySvc *service.CompanyService) *CompanyHandler {
	return &CompanyHandler{companySvc: companySvc}
}

// ListCompaniesOutput lists every supported company with the caller's
// settings merged in.
type ListCompaniesOutput struct {
	Body struct {
		Companies []service.CompanyOverview `json:"companies"`
	}
}

// ListCompanies returns the full company catalogue. Companies the user
// never configured appear disabled with empty filters.
func (h *CompanyHandler) ListCompanies(ctx context.Context, input *struct{}) (*ListCompaniesOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	companies, err := h.companySvc.List(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list companies: " + err.Error())
	}

	out := &ListCompaniesOutput{}
	out.Body.Companies = companies
	return out, nil
}

// UpsertCompanyInput represents a company setting write.
type UpsertCompanyInput struct {
	Company string `path:"company" doc:"Company tag, e.g. anthropic"`
	Body    struct {
		Enabled        bool     `json:"enabled" doc:"Include this company in ingestion runs"`
		IncludeFilters []string `json:"include_filters,omitempty" doc:"Keep only postings whose title contains one of these; empty keeps all"`
		ExcludeFilters []string `json:"exclude_filters,omitempty" doc:"Drop postings whose title contains one of these"`
	}
}

// UpsertCompanyOutput returns the stored setting.
type UpsertCompanyOutput struct {
	Body struct {
		Company        string   `json:"company"`
		Enabled        bool     `json:"enabled"`
		IncludeFilters []string `json:"include_filters"`
		ExcludeFilters []string `json:"exclude_filters"`
	}
}

// UpsertCompany creates or replaces the caller's setting for a company.
func (h *CompanyHandler) UpsertCompany(ctx context.Context, input *UpsertCompanyInput) (*UpsertCompanyOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	setting, err := h.companySvc.Upsert(ctx, userID, input.Company, input.Body.Enabled, input.Body.IncludeFilters, input.Body.ExcludeFilters)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedCompany) {
			return nil, huma.Error404NotFound("company not supported: " + input.Company)
		}
		return nil, huma.Error500InternalServerError("failed to save company setting: " + err.Error())
	}

	out := &UpsertCompanyOutput{}
	out.Body.Company = setting.Company
	out.Body.Enabled = setting.Enabled
	out.Body.IncludeFilters = setting.IncludeFilters
	out.Body.ExcludeFilters = setting.ExcludeFilters
	return out, nil
}

// DeleteCompanyInput identifies the setting to remove.
type DeleteCompanyInput struct {
	Company string `path:"company" doc:"Company tag"`
}

// DeleteCompanyOutput confirms the removal.
type DeleteCompanyOutput struct {
	Body struct {
		OK bool `json:"ok"`
	}
}

// DeleteCompany removes the caller's setting for a company, returning
// it to the unconfigured (disabled) state.
func (h *CompanyHandler) DeleteCompany(ctx context.Context, input *DeleteCompanyInput) (*DeleteCompanyOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	deleted, err := h.companySvc.Delete(ctx, userID, input.Company)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to delete company setting: " + err.Error())
	}
	if !deleted {
		return nil, huma.Error404NotFound("no setting for company: " + input.Company)
	}

	out := &DeleteCompanyOutput{}
	out.Body.OK = true
	return out, nil
}
