// Package service contains the business logic layer between the HTTP
// handlers and the repositories. Services own ownership checks and
// state-machine transitions; workers own the pipeline stages.
package service

import (
	"fmt"
	"log/slog"

	"github.com/rolewatch/rolewatch-api/internal/adapter"
	"github.com/rolewatch/rolewatch-api/internal/config"
	"github.com/rolewatch/rolewatch-api/internal/content"
	"github.com/rolewatch/rolewatch-api/internal/repository"
)

// Services holds all service instances.
type Services struct {
	Ingestion *IngestionService
	Company   *CompanyService
	Job       *JobService
	Cleanup   *CleanupService
	Finalizer *Finalizer

	// Content is the blob store shared with the crawl and extract
	// workers; exposed so main can hand it to the worker pools.
	Content content.Store
}

// NewServices creates all service instances. The dispatcher hands newly
// created runs to the initializer and is wired by main before the HTTP
// server starts accepting requests.
func NewServices(cfg *config.Config, repos *repository.Repositories, registry *adapter.Registry, dispatcher RunDispatcher, logger *slog.Logger) (*Services, error) {
	var store content.Store
	if cfg.StorageEnabled {
		s3Store, err := content.NewS3Store(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create content store: %w", err)
		}
		store = s3Store
	} else {
		store = content.NewMemoryStore()
		logger.Warn("content store: in-memory - raw payloads will not survive a restart")
	}

	ingestionSvc := NewIngestionService(cfg, repos, dispatcher, logger)
	companySvc := NewCompanyService(repos, registry, logger)
	jobSvc := NewJobService(repos, logger)
	cleanupSvc := NewCleanupService(cfg, repos, store, logger)
	finalizer := NewFinalizer(repos, logger)

	return &Services{
		Ingestion: ingestionSvc,
		Company:   companySvc,
		Job:       jobSvc,
		Cleanup:   cleanupSvc,
		Finalizer: finalizer,
		Content:   store,
	}, nil
}
