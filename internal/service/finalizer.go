package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rolewatch/rolewatch-api/internal/logging"
	"github.com/rolewatch/rolewatch-api/internal/repository"
)

// Finalizer closes out a run once its last pending job reaches a
// terminal status. Every worker calls TryFinalize after terminating a
// job; whichever call observes zero pending jobs first wins the guarded
// update, so concurrent calls are harmless.
type Finalizer struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewFinalizer creates a new finalizer.
func NewFinalizer(repos *repository.Repositories, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		repos:  repos,
		logger: logger.With("component", "finalizer"),
	}
}

// TryFinalize promotes the run to finished when no pending jobs remain.
// Returns true only for the call that performed the promotion.
func (f *Finalizer) TryFinalize(ctx context.Context, runID int64) (bool, error) {
	pending, err := f.repos.Job.CountPending(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	if pending > 0 {
		return false, nil
	}

	finalized, err := f.repos.Run.Finalize(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("failed to finalize run: %w", err)
	}
	if finalized {
		f.logger.Info("run finished", logging.RunIDKey, runID)
	}
	return finalized, nil
}
