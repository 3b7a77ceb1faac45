package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/rolewatch/rolewatch-api/internal/adapter"
	"github.com/rolewatch/rolewatch-api/internal/content"
	"github.com/rolewatch/rolewatch-api/internal/logging"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/queue"
	"github.com/rolewatch/rolewatch-api/internal/repository"
	"github.com/rolewatch/rolewatch-api/internal/service"
)

// ExtractorConfig holds extractor configuration.
type ExtractorConfig struct {
	// ExtractQueue is the queue the extractor consumes.
	ExtractQueue string
}

// Extractor parses stored raw payloads into structured job fields.
// ParseRaw is pure, so the only retryable failure here is reading the
// content store.
type Extractor struct {
	repos     *repository.Repositories
	registry  *adapter.Registry
	store     content.Store
	bus       *queue.Bus
	finalizer *service.Finalizer
	cfg       ExtractorConfig
	logger    *slog.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(
	repos *repository.Repositories,
	registry *adapter.Registry,
	store content.Store,
	bus *queue.Bus,
	finalizer *service.Finalizer,
	cfg ExtractorConfig,
	logger *slog.Logger,
) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		repos:     repos,
		registry:  registry,
		store:     store,
		bus:       bus,
		finalizer: finalizer,
		cfg:       cfg,
		logger:    logger.With("component", "extractor"),
	}
}

// Queue implements Handler.
func (e *Extractor) Queue() string {
	return e.cfg.ExtractQueue
}

// Handle implements Handler.
func (e *Extractor) Handle(ctx context.Context, msg *queue.Message) error {
	var em models.ExtractMessage
	if err := json.Unmarshal(msg.Body, &em); err != nil {
		e.logger.Error("dropping undecodable extract message", "message_id", msg.ID, "error", err)
		return e.bus.Ack(ctx, msg.ID)
	}
	logger := e.logger.With(logging.RunIDKey, em.RunID, "job_id", em.JobID, "company", em.Company)

	run, err := e.repos.Run.GetByID(ctx, em.RunID, em.UserID)
	if err != nil {
		return err
	}
	if run == nil || run.Status != models.RunStatusIngesting {
		logger.Info("run not ingesting, dropping extract message")
		return e.bus.Ack(ctx, msg.ID)
	}

	raw, err := e.store.Get(ctx, em.RawPath)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			// The payload expired or the store lost it; refetching is
			// the next run's job, not this message's.
			return e.failJob(ctx, msg, &em, logger, "raw content missing: "+em.RawPath)
		}
		logger.Error("failed to read raw payload", "error", err)
		return err
	}

	board, ok := e.registry.Get(em.Company)
	if !ok {
		return e.failJob(ctx, msg, &em, logger, "no adapter for company")
	}

	parsed, err := board.ParseRaw(raw)
	if err != nil {
		// ParseRaw is deterministic: the same bytes fail the same way,
		// so any parse error is permanent.
		return e.failJob(ctx, msg, &em, logger, err.Error())
	}

	if err := e.repos.Job.MarkReady(ctx, em.JobID, parsed.Description, parsed.Requirements); err != nil {
		return err
	}
	if _, err := e.finalizer.TryFinalize(ctx, em.RunID); err != nil {
		logger.Error("finalize check failed", "error", err)
	}

	logger.Info("job ready", "description_bytes", len(parsed.Description))
	return e.bus.Ack(ctx, msg.ID)
}

func (e *Extractor) failJob(ctx context.Context, msg *queue.Message, em *models.ExtractMessage, logger *slog.Logger, message string) error {
	if err := e.repos.Job.MarkError(ctx, em.JobID, message); err != nil {
		return err
	}
	if _, err := e.finalizer.TryFinalize(ctx, em.RunID); err != nil {
		logger.Error("finalize check failed", "error", err)
	}
	logger.Warn("job failed", "reason", message)
	return e.bus.Ack(ctx, msg.ID)
}
