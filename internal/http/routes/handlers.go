package routes

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rolewatch/rolewatch-api/internal/http/handlers"
)

// IngestionHandlers defines the interface for run lifecycle operations.
type IngestionHandlers interface {
	StartRun(ctx context.Context, input *handlers.StartRunInput) (*handlers.StartRunOutput, error)
	CurrentRun(ctx context.Context, input *struct{}) (*handlers.CurrentRunOutput, error)
	AbortRun(ctx context.Context, input *handlers.AbortRunInput) (*handlers.AbortRunOutput, error)
	GetLogs(ctx context.Context, input *handlers.GetLogsInput) (*handlers.GetLogsOutput, error)
}

// ProgressHandlers documents the SSE endpoint in the OpenAPI spec. The
// live stream is mounted on the chi router, not through Huma.
type ProgressHandlers interface {
	RegisterRawEndpoints(api huma.API)
}

// CompanyHandlers defines the interface for company settings operations.
type CompanyHandlers interface {
	ListCompanies(ctx context.Context, input *struct{}) (*handlers.ListCompaniesOutput, error)
	UpsertCompany(ctx context.Context, input *handlers.UpsertCompanyInput) (*handlers.UpsertCompanyOutput, error)
	DeleteCompany(ctx context.Context, input *handlers.DeleteCompanyInput) (*handlers.DeleteCompanyOutput, error)
}

// JobHandlers defines the interface for tracked-job read operations.
type JobHandlers interface {
	ListJobs(ctx context.Context, input *handlers.ListJobsInput) (*handlers.ListJobsOutput, error)
	GetJob(ctx context.Context, input *handlers.GetJobInput) (*handlers.GetJobOutput, error)
}

// Handlers aggregates all handler interfaces for route registration.
// For the main server, pass real handler implementations.
// For OpenAPI generation, pass stub implementations.
type Handlers struct {
	// Public endpoints
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)

	// Kubernetes probes (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	// Protected endpoint handlers
	Ingestion IngestionHandlers
	Progress  ProgressHandlers
	Company   CompanyHandlers
	Job       JobHandlers
}
