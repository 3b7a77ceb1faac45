package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/rolewatch/rolewatch-api/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
// Pass real handler implementations for the main server, or stub implementations
// for OpenAPI generation.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes (no auth required)
	// =========================================================================

	// Health check
	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	// Kubernetes probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// =========================================================================
	// Protected Routes (require bearer auth)
	// =========================================================================

	// --- Ingestion runs ---
	mw.ProtectedPost(api, "/api/v1/ingestion/start", h.Ingestion.StartRun,
		mw.WithTags("Ingestion"),
		mw.WithSummary("Start an ingestion run"),
		mw.WithDescription("Creates a run over every enabled company and returns immediately; ingestion continues in the background."),
		mw.WithOperationID("startRun"))
	mw.ProtectedGet(api, "/api/v1/ingestion/current-run", h.Ingestion.CurrentRun,
		mw.WithTags("Ingestion"),
		mw.WithSummary("Get the active run"),
		mw.WithOperationID("currentRun"))
	mw.ProtectedPost(api, "/api/v1/ingestion/abort/{run_id}", h.Ingestion.AbortRun,
		mw.WithTags("Ingestion"),
		mw.WithSummary("Abort a run"),
		mw.WithDescription("Moves a non-terminal run to aborted. Workers notice on their next message and drop the remaining work."),
		mw.WithOperationID("abortRun"))
	mw.ProtectedGet(api, "/api/v1/ingestion/logs/{run_id}", h.Ingestion.GetLogs,
		mw.WithTags("Ingestion"),
		mw.WithSummary("Get run logs"),
		mw.WithDescription("Returns the worker log lines captured for a run. Poll with the returned next_token to tail a live run."),
		mw.WithOperationID("getRunLogs"))

	// SSE progress stream. The live handler is mounted on the chi router
	// so auth can read the token query parameter; this registration only
	// documents it.
	if h.Progress != nil {
		h.Progress.RegisterRawEndpoints(api)
	}

	// --- Company settings ---
	mw.ProtectedGet(api, "/api/v1/companies", h.Company.ListCompanies,
		mw.WithTags("Companies"),
		mw.WithSummary("List supported companies"),
		mw.WithOperationID("listCompanies"))
	mw.ProtectedPut(api, "/api/v1/companies/{company}", h.Company.UpsertCompany,
		mw.WithTags("Companies"),
		mw.WithSummary("Configure a company"),
		mw.WithOperationID("upsertCompany"))
	mw.ProtectedDelete(api, "/api/v1/companies/{company}", h.Company.DeleteCompany,
		mw.WithTags("Companies"),
		mw.WithSummary("Remove a company setting"),
		mw.WithOperationID("deleteCompany"))

	// --- Tracked jobs ---
	mw.ProtectedGet(api, "/api/v1/jobs", h.Job.ListJobs,
		mw.WithTags("Jobs"),
		mw.WithSummary("List tracked jobs"),
		mw.WithOperationID("listJobs"))
	mw.ProtectedGet(api, "/api/v1/jobs/{id}", h.Job.GetJob,
		mw.WithTags("Jobs"),
		mw.WithSummary("Get job details"),
		mw.WithOperationID("getJob"))
}
