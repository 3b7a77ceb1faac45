package worker

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rolewatch/rolewatch-api/internal/adapter"
	"github.com/rolewatch/rolewatch-api/internal/content"
	"github.com/rolewatch/rolewatch-api/internal/database/migrations"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/queue"
	"github.com/rolewatch/rolewatch-api/internal/repository"
	"github.com/rolewatch/rolewatch-api/internal/service"
)

const (
	testCrawlQueue   = "crawl"
	testExtractQueue = "extract"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBoard is a scriptable adapter. Unset functions fall back to
// benign defaults: list nothing, echo the URL as the payload, parse the
// payload into the description.
type fakeBoard struct {
	listFn  func(ctx context.Context, filters adapter.TitleFilters) ([]adapter.Posting, error)
	fetchFn func(ctx context.Context, url string) ([]byte, error)
	parseFn func(raw []byte) (*adapter.Parsed, error)
}

func (f *fakeBoard) ListJobs(ctx context.Context, filters adapter.TitleFilters) ([]adapter.Posting, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filters)
	}
	return nil, nil
}

func (f *fakeBoard) FetchRaw(ctx context.Context, url string) ([]byte, error) {
	if f.fetchFn != nil {
		return f.fetchFn(ctx, url)
	}
	return []byte("payload for " + url), nil
}

func (f *fakeBoard) ParseRaw(raw []byte) (*adapter.Parsed, error) {
	if f.parseFn != nil {
		return f.parseFn(raw)
	}
	return &adapter.Parsed{Description: string(raw)}, nil
}

func postingsNamed(ids ...string) []adapter.Posting {
	out := make([]adapter.Posting, 0, len(ids))
	for _, id := range ids {
		out = append(out, adapter.Posting{
			ExternalID: id,
			Title:      "Engineer " + id,
			URL:        "https://example.com/jobs/" + id,
		})
	}
	return out
}

func listingOf(ids ...string) func(context.Context, adapter.TitleFilters) ([]adapter.Posting, error) {
	return func(context.Context, adapter.TitleFilters) ([]adapter.Posting, error) {
		return postingsNamed(ids...), nil
	}
}

// pipeline wires every stage against one in-memory database, the real
// bus, the in-memory content store, and scripted boards.
type pipeline struct {
	db          *sql.DB
	repos       *repository.Repositories
	bus         *queue.Bus
	store       *content.MemoryStore
	registry    *adapter.Registry
	finalizer   *service.Finalizer
	dispatcher  *Dispatcher
	initializer *Initializer
	crawler     *Crawler
	extractor   *Extractor
}

func newPipeline(t *testing.T, boards map[string]adapter.Adapter, busOpts queue.Options) *pipeline {
	t.Helper()

	db := setupTestDB(t)
	repos := repository.NewRepositories(db)
	logger := testLogger()
	bus := queue.NewBus(db, busOpts, logger)
	store := content.NewMemoryStore()
	registry := adapter.NewRegistryWith(boards)
	finalizer := service.NewFinalizer(repos, logger)
	dispatcher := NewDispatcher(4)

	return &pipeline{
		db:         db,
		repos:      repos,
		bus:        bus,
		store:      store,
		registry:   registry,
		finalizer:  finalizer,
		dispatcher: dispatcher,
		initializer: NewInitializer(repos, registry, bus, finalizer, dispatcher, InitializerConfig{
			CrawlQueue:      testCrawlQueue,
			ListConcurrency: 4,
		}, logger),
		crawler: NewCrawler(repos, registry, store, bus, finalizer, CrawlerConfig{
			CrawlQueue:       testCrawlQueue,
			ExtractQueue:     testExtractQueue,
			RateLimitBackoff: time.Minute,
			MaxReceive:       3,
			SimhashThreshold: 3,
		}, logger),
		extractor: NewExtractor(repos, registry, store, bus, finalizer, ExtractorConfig{
			ExtractQueue: testExtractQueue,
		}, logger),
	}
}

func defaultBusOpts() queue.Options {
	return queue.Options{Visibility: time.Minute, MaxReceive: 5}
}

// startRun enables the companies and creates the run row, mirroring
// what the ingestion service does before dispatching.
func (p *pipeline) startRun(t *testing.T, userID string, force bool, companies ...string) *models.Run {
	t.Helper()
	ctx := context.Background()

	for _, company := range companies {
		_, err := p.repos.CompanySettings.Upsert(ctx, &models.CompanySetting{
			UserID:         userID,
			Company:        company,
			Enabled:        true,
			IncludeFilters: []string{},
			ExcludeFilters: []string{},
		})
		if err != nil {
			t.Fatalf("failed to enable %s: %v", company, err)
		}
	}

	run, err := p.repos.Run.CreateIfNoneActive(ctx, userID, models.RunMetadata{Force: force})
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run == nil {
		t.Fatal("run creation conflicted unexpectedly")
	}
	return run
}

// drain synchronously pumps both queues until no message is visible,
// standing in for the crawler and extractor pools.
func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	for {
		msg, err := p.bus.Receive(ctx, testCrawlQueue)
		if err != nil {
			t.Fatalf("crawl receive failed: %v", err)
		}
		if msg != nil {
			_ = p.crawler.Handle(ctx, msg)
			continue
		}

		msg, err = p.bus.Receive(ctx, testExtractQueue)
		if err != nil {
			t.Fatalf("extract receive failed: %v", err)
		}
		if msg != nil {
			_ = p.extractor.Handle(ctx, msg)
			continue
		}
		return
	}
}

func (p *pipeline) runToCompletion(t *testing.T, run *models.Run) {
	t.Helper()
	p.initializer.Initialize(context.Background(), run)
	p.drain(t)
}

func (p *pipeline) getRun(t *testing.T, run *models.Run) *models.Run {
	t.Helper()
	got, err := p.repos.Run.GetByID(context.Background(), run.ID, run.UserID)
	if err != nil {
		t.Fatalf("failed to reload run: %v", err)
	}
	if got == nil {
		t.Fatalf("run %d vanished", run.ID)
	}
	return got
}

func (p *pipeline) jobByExternalID(t *testing.T, userID, company, externalID string) *models.Job {
	t.Helper()
	jobs, err := p.repos.Job.List(context.Background(), userID, company, "", 100, 0)
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	for _, job := range jobs {
		if job.ExternalID == externalID {
			return job
		}
	}
	t.Fatalf("job %s/%s not found for %s", company, externalID, userID)
	return nil
}

func (p *pipeline) queueDepth(t *testing.T, queueName string) int {
	t.Helper()
	depth, err := p.bus.Depth(context.Background(), queueName)
	if err != nil {
		t.Fatalf("failed to read queue depth: %v", err)
	}
	return depth
}
