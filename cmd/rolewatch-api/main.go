// Package main is the entry point for the rolewatch-api server.
// It assembles the full pipeline: state store, message bus, adapter
// registry, worker pools, and the HTTP surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/rolewatch/rolewatch-api/internal/adapter"
	"github.com/rolewatch/rolewatch-api/internal/auth"
	"github.com/rolewatch/rolewatch-api/internal/config"
	"github.com/rolewatch/rolewatch-api/internal/constants"
	"github.com/rolewatch/rolewatch-api/internal/database"
	"github.com/rolewatch/rolewatch-api/internal/database/migrations"
	"github.com/rolewatch/rolewatch-api/internal/http/handlers"
	"github.com/rolewatch/rolewatch-api/internal/http/mw"
	"github.com/rolewatch/rolewatch-api/internal/http/routes"
	"github.com/rolewatch/rolewatch-api/internal/logging"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/queue"
	"github.com/rolewatch/rolewatch-api/internal/repository"
	"github.com/rolewatch/rolewatch-api/internal/service"
	"github.com/rolewatch/rolewatch-api/internal/shutdown"
	"github.com/rolewatch/rolewatch-api/internal/version"
	"github.com/rolewatch/rolewatch-api/internal/worker"
)

// runLogSink feeds captured worker log lines into the run_logs table.
// Errors are dropped: losing a log line must never fail the operation
// that produced it.
type runLogSink struct {
	logs repository.RunLogRepository
}

func (s runLogSink) Append(ctx context.Context, runID int64, at time.Time, level slog.Level, message string) {
	// Lines written while a run aborts matter most, and the caller's ctx
	// is usually the one being canceled. Persist them anyway.
	_ = s.logs.Append(context.WithoutCancel(ctx), &models.RunLog{
		RunID:     runID,
		Timestamp: at.UnixMilli(),
		Level:     level.String(),
		Message:   message,
	})
}

func main() {
	// Initialize logger with TTY detection and format control. The run
	// capture wrapper tees run-tagged records into the state store once a
	// sink is attached below.
	capture := logging.NewRunCapture(logging.New().Handler())
	logger := slog.New(capture)
	slog.SetDefault(logger)

	// Log version info first thing
	v := version.Get()
	logger.Info("starting rolewatch-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Run migrations (with logging for each migration applied)
	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Log current schema version
	schemaVersion, err := migrations.GetLatestVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		migrationCount, _ := database.GetMigrationCount(db)
		logger.Info("database schema ready", "schema_version", schemaVersion, "migrations_applied", migrationCount)
	}

	// Initialize repositories and attach the run log sink
	repos := repository.NewRepositories(db)
	capture.SetSink(runLogSink{logs: repos.RunLog})

	// Company adapters; one rate-limited client per career site
	registry := adapter.NewRegistry(cfg.FetchTimeout, cfg.AdapterRequestInterval)

	// The dispatcher hands freshly created runs from the HTTP layer to
	// the initializer pool
	dispatcher := worker.NewDispatcher(0)

	// Initialize services
	services, err := service.NewServices(cfg, repos, registry, dispatcher, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	// Fail runs stranded in pending/initializing by a previous process
	staleCount, err := services.Ingestion.SweepStale(context.Background())
	if err != nil {
		logger.Warn("failed to sweep stale runs", "error", err)
	} else if staleCount > 0 {
		logger.Info("swept stale runs", "count", staleCount, "threshold", cfg.StaleRunThreshold)
	}

	// Token verifier for the identity service's HS256 tokens
	verifier := auth.NewTokenVerifier(cfg.JWTSecret, "")

	// Message bus and the three pipeline stages
	bus := queue.NewBus(db, queue.Options{
		Visibility: cfg.QueueVisibilityTimeout,
		MaxReceive: cfg.QueueMaxReceive,
	}, logger)

	initializer := worker.NewInitializer(repos, registry, bus, services.Finalizer, dispatcher, worker.InitializerConfig{
		CrawlQueue:      cfg.CrawlQueueName,
		ListConcurrency: cfg.ListConcurrency,
	}, logger)

	crawler := worker.NewCrawler(repos, registry, services.Content, bus, services.Finalizer, worker.CrawlerConfig{
		CrawlQueue:       cfg.CrawlQueueName,
		ExtractQueue:     cfg.ExtractQueueName,
		RateLimitBackoff: cfg.RateLimitBackoff,
		MaxReceive:       cfg.QueueMaxReceive,
		SimhashThreshold: cfg.SimhashThreshold,
	}, logger)
	crawlPool := worker.NewPool(bus, crawler, worker.Config{
		PollInterval: cfg.QueuePollInterval,
		Concurrency:  cfg.CrawlConcurrency,
	}, logger)

	extractor := worker.NewExtractor(repos, registry, services.Content, bus, services.Finalizer, worker.ExtractorConfig{
		ExtractQueue: cfg.ExtractQueueName,
	}, logger)
	extractPool := worker.NewPool(bus, extractor, worker.Config{
		PollInterval: cfg.QueuePollInterval,
		Concurrency:  cfg.ExtractConcurrency,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	initializer.Start(ctx)
	crawlPool.Start(ctx)
	extractPool.Start(ctx)

	// Start cleanup service if enabled
	if cfg.CleanupEnabled {
		go services.Cleanup.RunScheduledCleanup(ctx)
		logger.Info("cleanup service started",
			"interval", cfg.CleanupInterval.String(),
			"raw_retention", cfg.RawRetention.String(),
			"run_log_retention", cfg.RunLogRetention.String(),
		)
	}

	// Idle monitor for scale-to-zero hosts. Queued messages, dispatched
	// runs, and workers mid-message all count as busy; a depth query
	// failure counts as busy too, since stopping on bad information is
	// worse than staying up.
	monitor := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:      cfg.IdleTimeout,
		ExcludePaths: []string{"/healthz", "/readyz"},
		Busy: func() bool {
			if dispatcher.Pending() > 0 || initializer.InFlight() > 0 ||
				crawlPool.InFlight() > 0 || extractPool.InFlight() > 0 {
				return true
			}
			for _, q := range []string{cfg.CrawlQueueName, cfg.ExtractQueueName} {
				depth, err := bus.Depth(context.Background(), q)
				if err != nil || depth > 0 {
					return true
				}
			}
			return false
		},
		Logger: logger,
	})
	monitor.Start()

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())
	router.Use(monitor.Middleware)

	// Request timeout middleware with different timeouts per endpoint type
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:  constants.DefaultRequestTimeout,
		Extended: constants.ExtendedRequestTimeout,
		// Run dispatch and log pagination touch the state store repeatedly
		ExtendedPatterns: []string{"/ingestion/start", "/ingestion/logs"},
		// SSE streaming has no timeout (managed by client disconnect)
		SkipPatterns: []string{"/progress"},
	}))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB) - settings bodies are tiny
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Global rate limit by IP and concurrency throttle
	router.Use(httprate.LimitByIP(100, time.Minute))
	router.Use(middleware.Throttle(100))

	// Main API with OpenAPI docs
	humaConfig := routes.NewHumaConfig(cfg.BaseURL)
	api := humachi.New(router, humaConfig)

	// Config for hidden routes (platform probes - no docs needed)
	hiddenConfig := routes.NewHumaConfig(cfg.BaseURL)
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)

	// Config for protected routes. Routes registered here don't appear in
	// the served spec; the complete document comes from rolewatch-openapi,
	// which registers everything through the routes package.
	protectedConfig := routes.NewHumaConfig(cfg.BaseURL)
	protectedConfig.DocsPath = ""
	protectedConfig.OpenAPIPath = ""
	protectedConfig.SchemasPath = ""

	// Health check (public, shown in docs)
	huma.Get(api, "/api/v1/health", handlers.HealthCheck)

	// Platform probes (hidden from docs - internal use only)
	huma.Get(hiddenAPI, "/healthz", handlers.Livez)
	readyzHandler := handlers.NewReadyzHandler(db)
	huma.Get(hiddenAPI, "/readyz", readyzHandler.Readyz)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(verifier))

		protectedAPI := humachi.New(r, protectedConfig)

		// Run control
		ingestionHandler := handlers.NewIngestionHandler(services.Ingestion)
		huma.Post(protectedAPI, "/api/v1/ingestion/start", ingestionHandler.StartRun)
		huma.Get(protectedAPI, "/api/v1/ingestion/current-run", ingestionHandler.CurrentRun)
		huma.Post(protectedAPI, "/api/v1/ingestion/abort/{run_id}", ingestionHandler.AbortRun)
		huma.Get(protectedAPI, "/api/v1/ingestion/logs/{run_id}", ingestionHandler.GetLogs)

		// Progress stream stays a raw chi handler: SSE cannot go through
		// huma's serializer, and EventSource clients authenticate via the
		// token query parameter the Auth middleware accepts.
		progressHandler := handlers.NewProgressHandler(services.Ingestion, cfg.ProgressPollInterval)
		r.Get("/api/v1/ingestion/progress/{run_id}", progressHandler.StreamProgress)

		// Company settings
		companyHandler := handlers.NewCompanyHandler(services.Company)
		huma.Get(protectedAPI, "/api/v1/companies", companyHandler.ListCompanies)
		huma.Put(protectedAPI, "/api/v1/companies/{company}", companyHandler.UpsertCompany)
		huma.Delete(protectedAPI, "/api/v1/companies/{company}", companyHandler.DeleteCompany)

		// Ingested jobs (read-only)
		jobHandler := handlers.NewJobHandler(services.Job)
		huma.Get(protectedAPI, "/api/v1/jobs", jobHandler.ListJobs)
		huma.Get(protectedAPI, "/api/v1/jobs/{id}", jobHandler.GetJob)
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on signal or idle timeout
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-monitor.ShutdownChan():
			logger.Info("shutting down server", "reason", "idle timeout")
		}
		monitor.Stop()

		// Let in-flight pipeline work drain before canceling the worker
		// context; past the grace period the cancel aborts whatever is
		// left and the visibility timeout redelivers it after restart.
		drained := make(chan struct{})
		go func() {
			initializer.Stop()
			crawlPool.Stop()
			extractPool.Stop()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(cfg.WorkerShutdownGracePeriod):
			logger.Warn("workers did not drain in time, aborting in-flight work",
				"grace_period", cfg.WorkerShutdownGracePeriod.String())
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	// Start server
	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
