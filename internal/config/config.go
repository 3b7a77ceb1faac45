// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/constants"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Authentication. Tokens are issued by the external identity service;
	// we only verify them.
	JWTSecret string

	// CORS
	CORSOrigins []string

	// Object Storage (Tigris/R2/MinIO/S3). Raw crawl bytes live here.
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3 for S3-compatible providers
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string
	StorageRegion    string

	// Message bus
	CrawlQueueName         string
	ExtractQueueName       string
	CrawlConcurrency       int           // concurrent crawl consumers
	ExtractConcurrency     int           // concurrent extract consumers (DB pool ceiling)
	QueueVisibilityTimeout time.Duration // must exceed the longest worker execution
	QueueMaxReceive        int           // dead-letter threshold
	QueuePollInterval      time.Duration
	RateLimitBackoff       time.Duration // redelivery delay after an upstream 429

	// Initializer
	ListConcurrency int // concurrent list_jobs calls across companies

	// Crawler fetch behavior
	FetchTimeout           time.Duration
	AdapterRequestInterval time.Duration // minimum gap between requests to one site

	// SimHash skip threshold (Hamming distance, bits)
	SimhashThreshold int

	// Progress stream poll cadence
	ProgressPollInterval time.Duration

	// Runs stuck in pending/initializing longer than this are failed on startup
	StaleRunThreshold time.Duration

	// Cleanup
	CleanupEnabled  bool
	CleanupInterval time.Duration
	RawRetention    time.Duration // raw blob retention window
	RunLogRetention time.Duration

	// Worker shutdown
	WorkerShutdownGracePeriod time.Duration

	// Idle shutdown settings (for scale-to-zero hosts)
	IdleTimeout time.Duration // 0 = disabled
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:rolewatch.db?_journal=WAL&_timeout=5000"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		// Object Storage - uses the standard AWS env vars so `fly storage
		// create` and friends work unchanged
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		CrawlQueueName:         getEnv("CRAWL_QUEUE_NAME", "crawl"),
		ExtractQueueName:       getEnv("EXTRACT_QUEUE_NAME", "extract"),
		CrawlConcurrency:       getEnvInt("CRAWL_CONCURRENCY", 3),
		ExtractConcurrency:     getEnvInt("EXTRACT_CONCURRENCY", constants.MaxExtractConcurrency),
		QueueVisibilityTimeout: getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 2*time.Minute),
		QueueMaxReceive:        getEnvInt("QUEUE_MAX_RECEIVE", constants.DefaultMaxReceive),
		QueuePollInterval:      getEnvDuration("QUEUE_POLL_INTERVAL", time.Second),
		RateLimitBackoff:       getEnvDuration("RATE_LIMIT_BACKOFF", 30*time.Second),

		ListConcurrency: getEnvInt("LIST_CONCURRENCY", constants.DefaultListConcurrency),

		FetchTimeout:           getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		AdapterRequestInterval: getEnvDuration("ADAPTER_REQUEST_INTERVAL", time.Second),

		SimhashThreshold: getEnvInt("SIMHASH_THRESHOLD", constants.DefaultSimhashThreshold),

		ProgressPollInterval: getEnvDuration("PROGRESS_POLL_INTERVAL", constants.ProgressPollInterval),

		StaleRunThreshold: getEnvDuration("STALE_RUN_THRESHOLD", 15*time.Minute),

		CleanupEnabled:  getEnvBool("CLEANUP_ENABLED", true),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 6*time.Hour),
		RawRetention:    getEnvDuration("RAW_RETENTION", 7*24*time.Hour),
		RunLogRetention: getEnvDuration("RUN_LOG_RETENTION", 30*24*time.Hour),

		WorkerShutdownGracePeriod: getEnvDuration("WORKER_SHUTDOWN_GRACE_PERIOD", 5*time.Minute),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0), // 0 = disabled
	}

	// Enable storage if a bucket is configured; without one the in-memory
	// store is used (local/dev only - blobs do not survive a restart)
	cfg.StorageEnabled = cfg.StorageBucket != ""

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.ExtractConcurrency > constants.MaxExtractConcurrency {
		// each extractor holds one DB connection; the pool is the binding constraint
		cfg.ExtractConcurrency = constants.MaxExtractConcurrency
	}
	if cfg.QueueMaxReceive < 1 {
		cfg.QueueMaxReceive = 1
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
