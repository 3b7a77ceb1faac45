package models

// CrawlMessage instructs a crawler worker to fetch one posting. The
// payload is immutable once enqueued; redelivery must be benign, so it
// carries everything the worker needs to act without rereading the job.
type CrawlMessage struct {
	RunID   int64  `json:"run_id"`
	JobID   int64  `json:"job_id"`
	UserID  string `json:"user_id"`
	Company string `json:"company"`
	URL     string `json:"url"`

	// PriorSimhash is the fingerprint from the previous successful
	// fetch, nil for postings never crawled before.
	PriorSimhash *int64 `json:"prior_simhash,omitempty"`

	// Force disables the unchanged-content skip for this run.
	Force bool `json:"force"`
}

// ExtractMessage instructs an extractor worker to parse one stored raw
// payload into structured fields.
type ExtractMessage struct {
	RunID   int64  `json:"run_id"`
	JobID   int64  `json:"job_id"`
	UserID  string `json:"user_id"`
	Company string `json:"company"`
	RawPath string `json:"raw_path"`
}
