// Package models defines the domain models for the application.
// User management and authentication are external; the UserID fields
// carry the subject claim of the caller's bearer token.
package models

import (
	"time"
)

// RunStatus represents the lifecycle state of an ingestion run.
type RunStatus string

const (
	RunStatusPending      RunStatus = "pending"
	RunStatusInitializing RunStatus = "initializing"
	RunStatusIngesting    RunStatus = "ingesting"
	RunStatusFinished     RunStatus = "finished"
	RunStatusError        RunStatus = "error"
	RunStatusAborted      RunStatus = "aborted"
)

// Terminal reports whether the status is final. Terminal runs never
// change again and their snapshot counters are authoritative.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusFinished, RunStatusError, RunStatusAborted:
		return true
	}
	return false
}

// RunMetadata is the JSON document stored alongside a run row.
type RunMetadata struct {
	Force bool `json:"force"` // re-extract even when content is unchanged
}

// Run represents one user-initiated ingestion pass over all of the
// user's enabled companies. At most one non-terminal run exists per
// user at a time.
type Run struct {
	ID     int64     `json:"id"`
	UserID string    `json:"user_id"`
	Status RunStatus `json:"status"`

	// Snapshot counters, written once at finalization. Zero until then,
	// and zero forever for runs that end in error or aborted.
	TotalJobs   int `json:"total_jobs"`
	JobsReady   int `json:"jobs_ready"`
	JobsSkipped int `json:"jobs_skipped"`
	JobsExpired int `json:"jobs_expired"`
	JobsFailed  int `json:"jobs_failed"`

	ErrorMessage string      `json:"error_message,omitempty"`
	Metadata     RunMetadata `json:"metadata"`
	CreatedAt    time.Time   `json:"created_at"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
}

// JobStatus represents the pipeline state of a single posting.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending" // discovered this run, crawl outcome unknown
	JobStatusReady   JobStatus = "ready"   // extracted content stored
	JobStatusSkipped JobStatus = "skipped" // content unchanged since last run
	JobStatusExpired JobStatus = "expired" // no longer listed by the site
	JobStatusError   JobStatus = "error"   // crawl or extract failed permanently
)

// Terminal reports whether a job has reached its final state for the
// run that owns it. Every status except pending is terminal.
func (s JobStatus) Terminal() bool {
	return s != JobStatusPending && s != ""
}

// Job represents one job posting tracked for a user. Rows are keyed by
// (user_id, company, external_id) and survive across runs; the pipeline
// only ever mutates them, never deletes.
type Job struct {
	ID         int64  `json:"id"`
	UserID     string `json:"user_id"`
	RunID      *int64 `json:"run_id,omitempty"` // most recent run that touched this job
	Company    string `json:"company"`
	ExternalID string `json:"external_id"`

	URL          string    `json:"url"`
	Status       JobStatus `json:"status"`
	Title        string    `json:"title"`
	Location     string    `json:"location,omitempty"`
	Description  string    `json:"description,omitempty"`
	Requirements string    `json:"requirements,omitempty"`

	// Simhash holds the bit pattern of the 64-bit content fingerprint
	// from the most recent successful fetch; nil before the first one.
	Simhash *int64 `json:"-"`

	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SimhashBits returns the stored fingerprint as its unsigned bit
// pattern. The second return is false when no fetch has happened yet.
func (j *Job) SimhashBits() (uint64, bool) {
	if j.Simhash == nil {
		return 0, false
	}
	return uint64(*j.Simhash), true
}

// JobSnapshot is the per-job slice of a progress snapshot, grouped by
// company in the stream payloads.
type JobSnapshot struct {
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	Status     JobStatus `json:"status"`
}

// CompanySetting enables an extraction adapter for one user and carries
// the title filters applied during listing. Filter slices are always
// non-nil; an empty include list accepts every title.
type CompanySetting struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	Company        string    `json:"company"`
	Enabled        bool      `json:"enabled"`
	IncludeFilters []string  `json:"include_filters"`
	ExcludeFilters []string  `json:"exclude_filters"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RunLog is one captured worker log line, queryable while a run is in
// flight and swept by retention afterwards.
type RunLog struct {
	ID        string `json:"id"` // ULID
	RunID     int64  `json:"run_id"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
	Level     string `json:"level"`
	Message   string `json:"message"`
}
