package adapter

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownCompany means no adapter is registered for the company.
var ErrUnknownCompany = errors.New("no adapter for company")

// UnavailableError means the board could not serve the request: transport
// failure, 5xx, access denial, or a bot-protection challenge. Retrying later
// may succeed, so the crawler redelivers these up to its attempt ceiling.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("site unavailable: %s: %v", e.Reason, e.Err)
	}
	return "site unavailable: " + e.Reason
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// RateLimitedError means the board asked us to slow down. Callers should not
// retry sooner than RetryAfter.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// FormatError means the payload's shape is not one the adapter recognizes.
// Refetching returns the same bytes, so these are never retried.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unrecognized payload: %s: %v", e.Reason, e.Err)
	}
	return "unrecognized payload: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }
