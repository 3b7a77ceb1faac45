package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/repository"
)

// ErrJobNotFound means no job with that ID belongs to the user.
var ErrJobNotFound = errors.New("job not found")

// JobService reads ingested jobs for the API. All writes to jobs happen
// in the pipeline workers.
type JobService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewJobService creates a new job service.
func NewJobService(repos *repository.Repositories, logger *slog.Logger) *JobService {
	return &JobService{
		repos:  repos,
		logger: logger,
	}
}

const (
	defaultJobPageSize = 50
	maxJobPageSize     = 200
)

// List returns the user's jobs in company order, optionally filtered by
// company and status. limit is clamped to the page-size bounds.
func (s *JobService) List(ctx context.Context, userID, company string, status models.JobStatus, limit, offset int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = defaultJobPageSize
	}
	if limit > maxJobPageSize {
		limit = maxJobPageSize
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := s.repos.Job.List(ctx, userID, company, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// Get returns one job, enforcing ownership.
func (s *JobService) Get(ctx context.Context, jobID int64, userID string) (*models.Job, error) {
	job, err := s.repos.Job.GetByID(ctx, jobID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}
