package routes

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rolewatch/rolewatch-api/internal/http/handlers"
)

// StubHandlers returns a Handlers instance with stub implementations.
// All handlers return nil responses - these are only used for OpenAPI generation
// where Huma extracts type information from function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		// Public endpoints
		HealthCheck: stubHealthCheck,

		// Kubernetes probes
		Livez:  stubLivez,
		Readyz: stubReadyz,

		// Protected endpoint handlers
		Ingestion: &stubIngestionHandlers{},
		Progress:  &stubProgressHandlers{},
		Company:   &stubCompanyHandlers{},
		Job:       &stubJobHandlers{},
	}
}

// --- Public endpoint stubs ---

func stubHealthCheck(_ context.Context, _ *struct{}) (*handlers.HealthCheckOutput, error) {
	return nil, nil
}

func stubLivez(_ context.Context, _ *struct{}) (*handlers.LivezOutput, error) {
	return nil, nil
}

func stubReadyz(_ context.Context, _ *struct{}) (*handlers.ReadyzOutput, error) {
	return nil, nil
}

// --- Ingestion handlers stub ---

type stubIngestionHandlers struct{}

func (s *stubIngestionHandlers) StartRun(_ context.Context, _ *handlers.StartRunInput) (*handlers.StartRunOutput, error) {
	return nil, nil
}

func (s *stubIngestionHandlers) CurrentRun(_ context.Context, _ *struct{}) (*handlers.CurrentRunOutput, error) {
	return nil, nil
}

func (s *stubIngestionHandlers) AbortRun(_ context.Context, _ *handlers.AbortRunInput) (*handlers.AbortRunOutput, error) {
	return nil, nil
}

func (s *stubIngestionHandlers) GetLogs(_ context.Context, _ *handlers.GetLogsInput) (*handlers.GetLogsOutput, error) {
	return nil, nil
}

// --- Progress handlers stub ---

type stubProgressHandlers struct{}

// RegisterRawEndpoints calls the real handler's RegisterRawEndpoints method.
// The real method only defines Operations - it doesn't need services - so it
// works for OpenAPI generation without duplicating the definitions.
func (s *stubProgressHandlers) RegisterRawEndpoints(api huma.API) {
	realHandler := &handlers.ProgressHandler{}
	realHandler.RegisterRawEndpoints(api)
}

// --- Company handlers stub ---

type stubCompanyHandlers struct{}

func (s *stubCompanyHandlers) ListCompanies(_ context.Context, _ *struct{}) (*handlers.ListCompaniesOutput, error) {
	return nil, nil
}

func (s *stubCompanyHandlers) UpsertCompany(_ context.Context, _ *handlers.UpsertCompanyInput) (*handlers.UpsertCompanyOutput, error) {
	return nil, nil
}

func (s *stubCompanyHandlers) DeleteCompany(_ context.Context, _ *handlers.DeleteCompanyInput) (*handlers.DeleteCompanyOutput, error) {
	return nil, nil
}

// --- Job handlers stub ---

type stubJobHandlers struct{}

func (s *stubJobHandlers) ListJobs(_ context.Context, _ *handlers.ListJobsInput) (*handlers.ListJobsOutput, error) {
	return nil, nil
}

func (s *stubJobHandlers) GetJob(_ context.Context, _ *handlers.GetJobInput) (*handlers.GetJobOutput, error) {
	return nil, nil
}
