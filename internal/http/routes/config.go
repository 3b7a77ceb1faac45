// Package routes holds the API's route table in one place, shared by the
// server binary and the OpenAPI generator so the emitted document cannot
// drift from what actually serves.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/rolewatch/rolewatch-api/internal/http/mw"
	"github.com/rolewatch/rolewatch-api/internal/version"
)

// NewHumaConfig builds the shared Huma configuration: API metadata, the
// bearer security scheme, and documentation tags.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Rolewatch API", version.Get().Short())
	cfg.Info.Description = "Job ingestion API that watches company career pages and turns their postings into structured, queryable records."

	// The $schema response field confuses SDK code generators that also
	// emit a "schema" field; drop it.
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{{URL: baseURL, Description: "API Server"}}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "JWT bearer authentication. Streaming endpoints also accept the token as a `token` query parameter because EventSource clients cannot set headers.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Ingestion", Description: "Run lifecycle, live progress, and captured logs", Extensions: map[string]any{"x-displayName": "Ingestion"}},
		{Name: "Companies", Description: "Supported companies and per-user listing filters", Extensions: map[string]any{"x-displayName": "Companies"}},
		{Name: "Jobs", Description: "Tracked job postings", Extensions: map[string]any{"x-displayName": "Jobs"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
