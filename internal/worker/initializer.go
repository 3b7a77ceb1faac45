package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rolewatch/rolewatch-api/internal/adapter"
	"github.com/rolewatch/rolewatch-api/internal/logging"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/queue"
	"github.com/rolewatch/rolewatch-api/internal/repository"
	"github.com/rolewatch/rolewatch-api/internal/service"
)

// InitializerConfig holds initializer configuration.
type InitializerConfig struct {
	// CrawlQueue is the queue crawl messages are enqueued to.
	CrawlQueue string
	// ListConcurrency bounds how many boards are listed at once.
	ListConcurrency int
	// Concurrency is the number of goroutines consuming dispatched runs.
	Concurrency int
}

// Initializer turns a freshly created run into crawl messages: it lists
// every enabled board, reconciles the results into the jobs table, and
// enqueues one message per pending job. Runs arrive over the dispatcher
// channel; the HTTP request that created the run has long returned.
type Initializer struct {
	repos      *repository.Repositories
	registry   *adapter.Registry
	bus        *queue.Bus
	finalizer  *service.Finalizer
	dispatcher *Dispatcher
	cfg        InitializerConfig
	inFlight   atomic.Int64
	stop       chan struct{}
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewInitializer creates an initializer consuming from the dispatcher.
func NewInitializer(
	repos *repository.Repositories,
	registry *adapter.Registry,
	bus *queue.Bus,
	finalizer *service.Finalizer,
	dispatcher *Dispatcher,
	cfg InitializerConfig,
	logger *slog.Logger,
) *Initializer {
	if cfg.ListConcurrency <= 0 {
		cfg.ListConcurrency = 8
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Initializer{
		repos:      repos,
		registry:   registry,
		bus:        bus,
		finalizer:  finalizer,
		dispatcher: dispatcher,
		cfg:        cfg,
		stop:       make(chan struct{}),
		logger:     logger.With("component", "initializer"),
	}
}

// Start begins consuming dispatched runs.
func (i *Initializer) Start(ctx context.Context) {
	i.logger.Info("starting", "concurrency", i.cfg.Concurrency)
	for n := 0; n < i.cfg.Concurrency; n++ {
		i.wg.Add(1)
		go i.run(ctx)
	}
}

// Stop gracefully stops the initializer, waiting for in-flight runs.
func (i *Initializer) Stop() {
	close(i.stop)
	i.wg.Wait()
}

// InFlight returns the number of runs currently being initialized.
func (i *Initializer) InFlight() int64 {
	return i.inFlight.Load()
}

func (i *Initializer) run(ctx context.Context) {
	defer i.wg.Done()
	for {
		select {
		case <-i.stop:
			return
		case <-ctx.Done():
			return
		case run := <-i.dispatcher.Runs():
			i.inFlight.Add(1)
			i.Initialize(ctx, run)
			i.inFlight.Add(-1)
		}
	}
}

// listing is one board's result during the fan-out.
type listing struct {
	company  string
	postings []adapter.Posting
	err      error
}

// Initialize drives one run from pending to ingesting. Failures that
// make the run unusable mark it errored; per-company listing failures
// only log and leave that company's jobs untouched.
func (i *Initializer) Initialize(ctx context.Context, run *models.Run) {
	logger := i.logger.With(logging.RunIDKey, run.ID, "user_id", run.UserID)

	// Redelivery and abort races: only act on a live pending run.
	current, err := i.repos.Run.GetByID(ctx, run.ID, run.UserID)
	if err != nil {
		logger.Error("failed to load run", "error", err)
		return
	}
	if current == nil || current.Status.Terminal() {
		logger.Info("run no longer actionable, skipping initialization")
		return
	}

	ok, err := i.repos.Run.MarkInitializing(ctx, run.ID)
	if err != nil {
		i.fail(ctx, logger, run.ID, "failed to start initialization")
		return
	}
	if !ok {
		logger.Info("run left pending state before initialization, skipping")
		return
	}

	settings, err := i.repos.CompanySettings.ListEnabled(ctx, run.UserID)
	if err != nil {
		i.fail(ctx, logger, run.ID, "failed to load company settings")
		return
	}
	if len(settings) == 0 {
		i.fail(ctx, logger, run.ID, "no companies enabled")
		return
	}

	results := i.listBoards(ctx, settings)

	if i.terminal(ctx, run, logger) {
		return
	}

	jobs, listed, failed := i.reconcile(ctx, run, results, logger)
	if listed == 0 && failed > 0 {
		i.fail(ctx, logger, run.ID, "all company listings failed")
		return
	}

	if i.terminal(ctx, run, logger) {
		return
	}

	ok, err = i.repos.Run.MarkIngesting(ctx, run.ID)
	if err != nil {
		i.fail(ctx, logger, run.ID, "failed to enter ingesting state")
		return
	}
	if !ok {
		logger.Info("run aborted before ingesting, stopping")
		return
	}

	enqueued := i.enqueueCrawls(ctx, run, jobs, logger)

	// A run with nothing to crawl finishes on the spot.
	if enqueued == 0 {
		if _, err := i.finalizer.TryFinalize(ctx, run.ID); err != nil {
			logger.Error("failed to finalize empty run", "error", err)
		}
	}

	logger.Info("run initialized",
		"companies_listed", listed,
		"companies_failed", failed,
		"jobs", len(jobs),
		"enqueued", enqueued,
	)
}

// listBoards fans out over the enabled boards with a concurrency cap.
// Every goroutine returns nil; per-board failures travel in the result.
func (i *Initializer) listBoards(ctx context.Context, settings []*models.CompanySetting) []listing {
	results := make([]listing, len(settings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.ListConcurrency)
	for idx, setting := range settings {
		g.Go(func() error {
			board, ok := i.registry.Get(setting.Company)
			if !ok {
				results[idx] = listing{company: setting.Company, err: adapter.ErrUnknownCompany}
				return nil
			}
			postings, err := board.ListJobs(gctx, adapter.TitleFilters{
				Include: setting.IncludeFilters,
				Exclude: setting.ExcludeFilters,
			})
			results[idx] = listing{company: setting.Company, postings: postings, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// reconcile upserts listed postings and expires delisted ones, company
// by company. Companies whose listing failed are skipped entirely so
// their jobs keep their prior state.
func (i *Initializer) reconcile(ctx context.Context, run *models.Run, results []listing, logger *slog.Logger) (jobs []*models.Job, listed, failed int) {
	for _, res := range results {
		if res.err != nil {
			failed++
			logger.Warn("listing failed, company skipped this run", "company", res.company, "error", res.err)
			continue
		}
		listed++

		seen := make([]string, 0, len(res.postings))
		for _, posting := range res.postings {
			stored, err := i.repos.Job.Upsert(ctx, &models.Job{
				UserID:     run.UserID,
				RunID:      &run.ID,
				Company:    res.company,
				ExternalID: posting.ExternalID,
				URL:        posting.URL,
				Status:     models.JobStatusPending,
				Title:      posting.Title,
				Location:   posting.Location,
			})
			if err != nil {
				logger.Error("job upsert failed", "company", res.company, "external_id", posting.ExternalID, "error", err)
				continue
			}
			seen = append(seen, posting.ExternalID)
			jobs = append(jobs, stored)
		}

		expired, err := i.repos.Job.MarkExpired(ctx, run.ID, run.UserID, res.company, seen)
		if err != nil {
			logger.Error("failed to expire delisted jobs", "company", res.company, "error", err)
		} else if expired > 0 {
			logger.Info("expired delisted jobs", "company", res.company, "count", expired)
		}
	}
	return jobs, listed, failed
}

// enqueueCrawls enqueues one crawl message per pending job. A job whose
// message cannot be enqueued is marked errored so it cannot strand the
// run in ingesting.
func (i *Initializer) enqueueCrawls(ctx context.Context, run *models.Run, jobs []*models.Job, logger *slog.Logger) int {
	enqueued := 0
	for _, job := range jobs {
		body, err := json.Marshal(models.CrawlMessage{
			RunID:        run.ID,
			JobID:        job.ID,
			UserID:       run.UserID,
			Company:      job.Company,
			URL:          job.URL,
			PriorSimhash: job.Simhash,
			Force:        run.Metadata.Force,
		})
		if err != nil {
			logger.Error("failed to encode crawl message", "job_id", job.ID, "error", err)
			i.failJob(ctx, job.ID, "failed to encode crawl message", logger)
			continue
		}
		if _, err := i.bus.Enqueue(ctx, i.cfg.CrawlQueue, job.Company, body); err != nil {
			logger.Error("failed to enqueue crawl message", "job_id", job.ID, "error", err)
			i.failJob(ctx, job.ID, "failed to enqueue crawl", logger)
			continue
		}
		enqueued++
	}
	return enqueued
}

func (i *Initializer) failJob(ctx context.Context, jobID int64, message string, logger *slog.Logger) {
	if err := i.repos.Job.MarkError(ctx, jobID, message); err != nil {
		logger.Error("failed to mark job errored", "job_id", jobID, "error", err)
	}
}

// terminal reloads the run and reports whether it left the active
// lifecycle while we were working (abort races mostly).
func (i *Initializer) terminal(ctx context.Context, run *models.Run, logger *slog.Logger) bool {
	current, err := i.repos.Run.GetByID(ctx, run.ID, run.UserID)
	if err != nil {
		logger.Error("failed to reload run", "error", err)
		return false
	}
	if current == nil {
		return true
	}
	if current.Status.Terminal() {
		logger.Info("run became terminal during initialization, stopping", "status", current.Status)
		return true
	}
	return false
}

func (i *Initializer) fail(ctx context.Context, logger *slog.Logger, runID int64, message string) {
	logger.Error("initialization failed", "reason", message)
	if _, err := i.repos.Run.MarkError(ctx, runID, message); err != nil {
		logger.Error("failed to mark run errored", "error", err)
	}
}
