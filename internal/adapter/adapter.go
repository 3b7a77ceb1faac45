// Package adapter defines the contract between the ingestion pipeline and the
// job boards it reads, plus one implementation per supported board. Adapters
// are stateless: ListJobs and FetchRaw talk to the network, ParseRaw is a pure
// function over fetched bytes, so a crawl can be replayed from stored raw
// content without touching the site again.
package adapter

import (
	"context"
	"strings"
)

// Posting is one job listing as advertised on a board's index. It carries
// everything the listing itself exposes; the description body is fetched
// separately via FetchRaw.
type Posting struct {
	ExternalID string
	Title      string
	Location   string
	URL        string
}

// Parsed is the structured form of one fetched posting. Title and location
// come from the listing, so ParseRaw only produces the body fields.
type Parsed struct {
	Description  string
	Requirements string
}

// Adapter reads one company's job board.
type Adapter interface {
	// ListJobs returns the postings currently advertised, filtered by title
	// and deduplicated by external ID.
	ListJobs(ctx context.Context, filters TitleFilters) ([]Posting, error)

	// FetchRaw retrieves the raw representation of one posting. The bytes are
	// whatever the board serves (JSON, HTML) and are only meaningful to the
	// same adapter's ParseRaw.
	FetchRaw(ctx context.Context, url string) ([]byte, error)

	// ParseRaw converts fetched bytes into structured fields. It must be pure:
	// no network, no clock, same bytes in means same fields out.
	ParseRaw(raw []byte) (*Parsed, error)
}

// TitleFilters restricts which postings a listing pass keeps. Matching is
// case-insensitive substring: a title passes when it contains at least one
// include pattern (or the include list is empty) and contains no exclude
// pattern. Exclude wins over include.
type TitleFilters struct {
	Include []string
	Exclude []string
}

// Matches reports whether a posting title passes the filters. Blank patterns
// are ignored.
func (f TitleFilters) Matches(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))

	for _, pattern := range f.Exclude {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p != "" && strings.Contains(t, p) {
			return false
		}
	}

	hasInclude := false
	for _, pattern := range f.Include {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		hasInclude = true
		if strings.Contains(t, p) {
			return true
		}
	}

	return !hasInclude
}

// mergePostings collapses duplicate external IDs, keeping first-seen order
// and joining distinct locations with "; ". Boards that list one row per
// office produce duplicates that would otherwise thrash the upsert path.
func mergePostings(postings []Posting) []Posting {
	index := make(map[string]int, len(postings))
	out := make([]Posting, 0, len(postings))

	for _, p := range postings {
		i, seen := index[p.ExternalID]
		if !seen {
			index[p.ExternalID] = len(out)
			out = append(out, p)
			continue
		}
		if p.Location == "" || strings.Contains(out[i].Location, p.Location) {
			continue
		}
		if out[i].Location == "" {
			out[i].Location = p.Location
		} else {
			out[i].Location += "; " + p.Location
		}
	}

	return out
}
