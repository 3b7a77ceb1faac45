package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/config"
	"github.com/rolewatch/rolewatch-api/internal/content"
	"github.com/rolewatch/rolewatch-api/internal/repository"
)

// CleanupService sweeps data the pipeline no longer needs: raw payloads
// in the content store (the extractor has already consumed them) and
// run log lines past the retention window. Jobs and runs are never
// swept; they are the product.
type CleanupService struct {
	cfg    *config.Config
	repos  *repository.Repositories
	store  content.Store
	logger *slog.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(cfg *config.Config, repos *repository.Repositories, store content.Store, logger *slog.Logger) *CleanupService {
	return &CleanupService{
		cfg:    cfg,
		repos:  repos,
		store:  store,
		logger: logger.With("component", "cleanup"),
	}
}

// CleanupResult contains the results of one cleanup pass.
type CleanupResult struct {
	RawPayloadsDeleted int
	RunLogsDeleted     int64
	Errors             []error
}

// Cleanup removes raw payloads and run logs past their retention
// windows. Each step runs even if the previous one failed; errors are
// collected rather than aborting the pass.
func (s *CleanupService) Cleanup(ctx context.Context) (*CleanupResult, error) {
	result := &CleanupResult{}

	s.logger.Info("starting cleanup",
		"raw_retention", s.cfg.RawRetention.String(),
		"run_log_retention", s.cfg.RunLogRetention.String(),
	)

	deleted, err := s.store.DeleteOlderThan(ctx, s.cfg.RawRetention)
	if err != nil {
		s.logger.Error("failed to delete old raw payloads", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.RawPayloadsDeleted = deleted
	}

	logCutoff := time.Now().Add(-s.cfg.RunLogRetention)
	logsDeleted, err := s.repos.RunLog.DeleteOlderThan(ctx, logCutoff)
	if err != nil {
		s.logger.Error("failed to delete old run logs", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.RunLogsDeleted = logsDeleted
	}

	s.logger.Info("cleanup completed",
		"raw_payloads_deleted", result.RawPayloadsDeleted,
		"run_logs_deleted", result.RunLogsDeleted,
		"errors", len(result.Errors),
	)

	return result, nil
}

// RunScheduledCleanup runs cleanup as a background goroutine. It runs
// immediately on start and then at the configured interval until the
// context is canceled.
func (s *CleanupService) RunScheduledCleanup(ctx context.Context) {
	s.logger.Info("starting scheduled cleanup", "interval", s.cfg.CleanupInterval.String())

	if _, err := s.Cleanup(ctx); err != nil {
		s.logger.Error("initial cleanup failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled cleanup stopped")
			return
		case <-ticker.C:
			if _, err := s.Cleanup(ctx); err != nil {
				s.logger.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}
