package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/config"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/repository"
)

var (
	// ErrRunActive means the user already has a non-terminal run.
	ErrRunActive = errors.New("a run is already active")
	// ErrRunNotFound means no run with that ID belongs to the user.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunNotAbortable means the run exists but is already terminal.
	ErrRunNotAbortable = errors.New("run already finished")
	// ErrNoCompaniesEnabled means the user has nothing to ingest.
	ErrNoCompaniesEnabled = errors.New("no companies enabled")
)

// RunDispatcher hands a newly created run to the initializer. Dispatch
// returns false when the initializer is not accepting work (shutdown).
type RunDispatcher interface {
	Dispatch(run *models.Run) bool
}

// IngestionService owns the run lifecycle as seen from the API: start,
// inspect, abort. The pipeline stages themselves live in the worker
// package; this service only performs the transitions that a request
// is allowed to perform directly.
type IngestionService struct {
	cfg        *config.Config
	repos      *repository.Repositories
	dispatcher RunDispatcher
	logger     *slog.Logger
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(cfg *config.Config, repos *repository.Repositories, dispatcher RunDispatcher, logger *slog.Logger) *IngestionService {
	return &IngestionService{
		cfg:        cfg,
		repos:      repos,
		dispatcher: dispatcher,
		logger:     logger.With("component", "ingestion"),
	}
}

// Start creates a run in status pending and hands it to the initializer.
// Returns ErrRunActive when the user already has a non-terminal run and
// ErrNoCompaniesEnabled when there is nothing to crawl; in both cases no
// run row is left behind.
func (s *IngestionService) Start(ctx context.Context, userID string, metadata models.RunMetadata) (*models.Run, error) {
	enabled, err := s.repos.CompanySettings.ListEnabled(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled companies: %w", err)
	}
	if len(enabled) == 0 {
		return nil, ErrNoCompaniesEnabled
	}

	run, err := s.repos.Run.CreateIfNoneActive(ctx, userID, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	if run == nil {
		return nil, ErrRunActive
	}

	if !s.dispatcher.Dispatch(run) {
		if _, markErr := s.repos.Run.MarkError(ctx, run.ID, "initializer unavailable"); markErr != nil {
			s.logger.Error("failed to mark undispatched run", "run_id", run.ID, "error", markErr)
		}
		return nil, fmt.Errorf("failed to dispatch run %d", run.ID)
	}

	s.logger.Info("run started", "run_id", run.ID, "user_id", userID, "force", metadata.Force)
	return run, nil
}

// CurrentRun returns the user's active (non-terminal) run, or nil.
func (s *IngestionService) CurrentRun(ctx context.Context, userID string) (*models.Run, error) {
	return s.repos.Run.GetActive(ctx, userID)
}

// LatestRun returns the user's most recent run regardless of status,
// or nil when the user has never started one.
func (s *IngestionService) LatestRun(ctx context.Context, userID string) (*models.Run, error) {
	return s.repos.Run.GetLatest(ctx, userID)
}

// GetRun returns one run, enforcing ownership.
func (s *IngestionService) GetRun(ctx context.Context, runID int64, userID string) (*models.Run, error) {
	run, err := s.repos.Run.GetByID(ctx, runID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// Abort moves a non-terminal run to aborted. Workers observe the status
// on their next gate check and drain without finalizing.
func (s *IngestionService) Abort(ctx context.Context, runID int64, userID string) (*models.Run, error) {
	aborted, err := s.repos.Run.Abort(ctx, runID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to abort run: %w", err)
	}
	if !aborted {
		// Distinguish missing from already-terminal for the caller.
		run, getErr := s.repos.Run.GetByID(ctx, runID, userID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to get run: %w", getErr)
		}
		if run == nil {
			return nil, ErrRunNotFound
		}
		return nil, ErrRunNotAbortable
	}

	s.logger.Info("run aborted", "run_id", runID, "user_id", userID)
	return s.GetRun(ctx, runID, userID)
}

// Logs returns captured worker log lines for a run the user owns.
// startTime filters to entries at or after the given epoch-millisecond
// timestamp, afterID resumes past a previously returned ULID, and limit
// caps the page size.
func (s *IngestionService) Logs(ctx context.Context, runID int64, userID string, startTime int64, afterID string, limit int) ([]*models.RunLog, error) {
	if _, err := s.GetRun(ctx, runID, userID); err != nil {
		return nil, err
	}
	logs, err := s.repos.RunLog.ListByRun(ctx, runID, startTime, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	return logs, nil
}

// SnapshotJobs returns every job the run touched, grouped by company.
// The progress stream sends this as the all_jobs event.
func (s *IngestionService) SnapshotJobs(ctx context.Context, runID int64) (map[string][]models.JobSnapshot, error) {
	jobs, err := s.repos.Job.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run jobs: %w", err)
	}
	grouped := make(map[string][]models.JobSnapshot)
	for _, job := range jobs {
		grouped[job.Company] = append(grouped[job.Company], models.JobSnapshot{
			ExternalID: job.ExternalID,
			Title:      job.Title,
			Status:     job.Status,
		})
	}
	return grouped, nil
}

// ChangedJobs returns jobs the run updated at or after since, grouped by
// company. The progress stream polls this to build update events.
func (s *IngestionService) ChangedJobs(ctx context.Context, runID int64, since time.Time) (map[string][]models.JobSnapshot, error) {
	jobs, err := s.repos.Job.ChangedSince(ctx, runID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed jobs: %w", err)
	}
	grouped := make(map[string][]models.JobSnapshot)
	for _, job := range jobs {
		grouped[job.Company] = append(grouped[job.Company], models.JobSnapshot{
			ExternalID: job.ExternalID,
			Title:      job.Title,
			Status:     job.Status,
		})
	}
	return grouped, nil
}

// SweepStale marks pending and initializing runs older than the
// configured threshold as errored. Called once at startup so runs
// orphaned by a crash do not block their users forever.
func (s *IngestionService) SweepStale(ctx context.Context) (int64, error) {
	swept, err := s.repos.Run.SweepStale(ctx, s.cfg.StaleRunThreshold, "run abandoned before ingestion started")
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale runs: %w", err)
	}
	if swept > 0 {
		s.logger.Warn("swept stale runs", "count", swept)
	}
	return swept, nil
}
