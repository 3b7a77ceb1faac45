// Package constants defines centralized configuration for the ingestion pipeline.
package constants

import "time"

// SimHash change detection.
const (
	// DefaultSimhashThreshold is the Hamming distance (in bits, out of 64) at
	// or below which a fetched page counts as unchanged and the extract stage
	// is skipped. Tolerates dynamic boilerplate (timestamps, view counts)
	// without tolerating real edits.
	DefaultSimhashThreshold = 3
)

// Message bus behavior.
const (
	// DefaultMaxReceive is the delivery-attempt ceiling per message. The
	// attempt that reaches it is the last one a worker acts on; anything
	// redelivered beyond it moves to the dead-letter table.
	DefaultMaxReceive = 3
)

// Worker concurrency.
const (
	// MaxExtractConcurrency caps concurrent extractors. Each extractor holds
	// one database connection for its whole invocation, so the state store
	// pool is the binding constraint.
	MaxExtractConcurrency = 5

	// DefaultListConcurrency bounds concurrent list_jobs calls during
	// initialization so external sites never see simultaneous list requests
	// from one run.
	DefaultListConcurrency = 8
)

// Progress streaming.
const (
	// ProgressPollInterval is the cadence at which the progress stream polls
	// the state store during a run.
	ProgressPollInterval = 3 * time.Second

	// ProgressHeartbeatInterval keeps proxies from timing out an otherwise
	// quiet stream.
	ProgressHeartbeatInterval = 15 * time.Second
)

// RunLogPageSize is the maximum number of log lines returned per logs request.
const RunLogPageSize = 500

// HTTP request deadlines. Streaming endpoints are exempted by pattern
// instead of getting a longer deadline.
const (
	// DefaultRequestTimeout bounds ordinary API requests.
	DefaultRequestTimeout = 30 * time.Second

	// ExtendedRequestTimeout covers endpoints that touch the state store
	// more than once per request (run dispatch, log pagination).
	ExtendedRequestTimeout = 60 * time.Second
)
