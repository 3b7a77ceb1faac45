package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/adapter"
	"github.com/rolewatch/rolewatch-api/internal/content"
	"github.com/rolewatch/rolewatch-api/internal/logging"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/queue"
	"github.com/rolewatch/rolewatch-api/internal/repository"
	"github.com/rolewatch/rolewatch-api/internal/service"
	"github.com/rolewatch/rolewatch-api/internal/simhash"
)

// CrawlerConfig holds crawler configuration.
type CrawlerConfig struct {
	// CrawlQueue is the queue the crawler consumes.
	CrawlQueue string
	// ExtractQueue is where fetched payloads are handed off.
	ExtractQueue string
	// RateLimitBackoff delays redelivery after a 429 without its own
	// Retry-After.
	RateLimitBackoff time.Duration
	// MaxReceive is the delivery ceiling for transient fetch failures;
	// a message seen this many times fails its job instead of retrying.
	MaxReceive int
	// SimhashThreshold is the Hamming distance at or under which a
	// refetched posting counts as unchanged.
	SimhashThreshold int
}

// Crawler fetches one posting per message, fingerprints the payload,
// and either skips the job (content unchanged) or stores the raw bytes
// and hands them to the extract queue.
type Crawler struct {
	repos     *repository.Repositories
	registry  *adapter.Registry
	store     content.Store
	bus       *queue.Bus
	finalizer *service.Finalizer
	cfg       CrawlerConfig
	logger    *slog.Logger
}

// NewCrawler creates a crawler.
func NewCrawler(
	repos *repository.Repositories,
	registry *adapter.Registry,
	store content.Store,
	bus *queue.Bus,
	finalizer *service.Finalizer,
	cfg CrawlerConfig,
	logger *slog.Logger,
) *Crawler {
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = 30 * time.Second
	}
	if cfg.MaxReceive <= 0 {
		cfg.MaxReceive = 3
	}
	if cfg.SimhashThreshold <= 0 {
		cfg.SimhashThreshold = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		repos:     repos,
		registry:  registry,
		store:     store,
		bus:       bus,
		finalizer: finalizer,
		cfg:       cfg,
		logger:    logger.With("component", "crawler"),
	}
}

// Queue implements Handler.
func (c *Crawler) Queue() string {
	return c.cfg.CrawlQueue
}

// Handle implements Handler. Returning an error leaves the message
// unacked so the bus redelivers it; every intended outcome acks or
// releases explicitly.
func (c *Crawler) Handle(ctx context.Context, msg *queue.Message) error {
	var cm models.CrawlMessage
	if err := json.Unmarshal(msg.Body, &cm); err != nil {
		c.logger.Error("dropping undecodable crawl message", "message_id", msg.ID, "error", err)
		return c.bus.Ack(ctx, msg.ID)
	}
	logger := c.logger.With(logging.RunIDKey, cm.RunID, "job_id", cm.JobID, "company", cm.Company)

	// Run gate: messages for a run that is no longer ingesting are
	// drained without side effects. No finalize — an aborted run stays
	// aborted.
	run, err := c.repos.Run.GetByID(ctx, cm.RunID, cm.UserID)
	if err != nil {
		return err
	}
	if run == nil || run.Status != models.RunStatusIngesting {
		logger.Info("run not ingesting, dropping crawl message")
		return c.bus.Ack(ctx, msg.ID)
	}

	board, ok := c.registry.Get(cm.Company)
	if !ok {
		return c.failJob(ctx, msg, &cm, logger, "no adapter for company")
	}

	raw, err := board.FetchRaw(ctx, cm.URL)
	if err != nil {
		return c.handleFetchError(ctx, msg, &cm, logger, err)
	}

	fingerprint := simhash.Fingerprint(string(raw))

	if !cm.Force && cm.PriorSimhash != nil {
		prior := uint64(*cm.PriorSimhash)
		if distance := simhash.Distance(fingerprint, prior); distance <= c.cfg.SimhashThreshold {
			return c.skipJob(ctx, msg, &cm, logger, fingerprint, distance)
		}
	}

	path := content.PathFor(cm.Company, cm.URL)
	if err := c.store.Put(ctx, path, raw); err != nil {
		logger.Error("failed to store raw payload", "error", err)
		return err
	}
	if err := c.repos.Job.SetSimhash(ctx, cm.JobID, int64(fingerprint)); err != nil {
		return err
	}

	body, err := json.Marshal(models.ExtractMessage{
		RunID:   cm.RunID,
		JobID:   cm.JobID,
		UserID:  cm.UserID,
		Company: cm.Company,
		RawPath: path,
	})
	if err != nil {
		return c.failJob(ctx, msg, &cm, logger, "failed to encode extract message")
	}
	if _, err := c.bus.Enqueue(ctx, c.cfg.ExtractQueue, cm.Company, body); err != nil {
		logger.Error("failed to enqueue extract message", "error", err)
		return err
	}

	logger.Info("posting fetched", "bytes", len(raw), "raw_path", path)
	return c.bus.Ack(ctx, msg.ID)
}

// handleFetchError applies the retry taxonomy: rate limits release with
// a backoff, transient failures redeliver up to the ceiling, format
// errors fail immediately.
func (c *Crawler) handleFetchError(ctx context.Context, msg *queue.Message, cm *models.CrawlMessage, logger *slog.Logger, fetchErr error) error {
	var rateErr *adapter.RateLimitedError
	if errors.As(fetchErr, &rateErr) {
		delay := c.cfg.RateLimitBackoff
		if rateErr.RetryAfter > 0 {
			delay = rateErr.RetryAfter
		}
		logger.Warn("rate limited, releasing crawl message", "delay", delay)
		return c.bus.Release(ctx, msg.ID, delay)
	}

	var formatErr *adapter.FormatError
	if errors.As(fetchErr, &formatErr) {
		return c.failJob(ctx, msg, cm, logger, fetchErr.Error())
	}

	// UnavailableError and anything unclassified: retry via redelivery
	// until the attempt ceiling, then give the job up.
	if msg.ReceiveCount >= c.cfg.MaxReceive {
		logger.Warn("fetch attempts exhausted", "attempts", msg.ReceiveCount, "error", fetchErr)
		return c.failJob(ctx, msg, cm, logger, fetchErr.Error())
	}
	logger.Warn("fetch failed, leaving message for redelivery",
		"attempt", msg.ReceiveCount,
		"max", c.cfg.MaxReceive,
		"error", fetchErr,
	)
	return nil
}

// skipJob records an unchanged posting: fingerprint refreshed, status
// skipped, previously extracted text untouched.
func (c *Crawler) skipJob(ctx context.Context, msg *queue.Message, cm *models.CrawlMessage, logger *slog.Logger, fingerprint uint64, distance int) error {
	if err := c.repos.Job.SetSimhash(ctx, cm.JobID, int64(fingerprint)); err != nil {
		return err
	}
	if err := c.repos.Job.MarkSkipped(ctx, cm.JobID); err != nil {
		return err
	}
	if _, err := c.finalizer.TryFinalize(ctx, cm.RunID); err != nil {
		logger.Error("finalize check failed", "error", err)
	}
	logger.Info("content unchanged, job skipped", "distance", distance)
	return c.bus.Ack(ctx, msg.ID)
}

// failJob marks the job permanently failed and acks the message. The
// finalize check runs because a failed job is terminal and may have
// been the run's last pending one.
func (c *Crawler) failJob(ctx context.Context, msg *queue.Message, cm *models.CrawlMessage, logger *slog.Logger, message string) error {
	if err := c.repos.Job.MarkError(ctx, cm.JobID, message); err != nil {
		return err
	}
	if _, err := c.finalizer.TryFinalize(ctx, cm.RunID); err != nil {
		logger.Error("finalize check failed", "error", err)
	}
	logger.Warn("job failed", "reason", message)
	return c.bus.Ack(ctx, msg.ID)
}
