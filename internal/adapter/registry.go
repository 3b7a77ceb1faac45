package adapter

import (
	"sort"
	"time"
)

// Registry resolves a company name to the adapter that reads its board. It is
// built once at startup and never mutated, so lookups need no locking.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the registry of supported boards. Each adapter gets its
// own rate limiter, so per-board politeness holds regardless of how many
// workers crawl concurrently.
func NewRegistry(timeout, minInterval time.Duration) *Registry {
	return &Registry{adapters: map[string]Adapter{
		"anthropic":  NewGreenhouseAdapter("anthropic", timeout, minInterval),
		"cloudflare": NewGreenhouseAdapter("cloudflare", timeout, minInterval),
		"plaid":      NewLeverAdapter("plaid", timeout, minInterval),
		"palantir":   NewLeverAdapter("palantir", timeout, minInterval),
		"ramp":       NewAshbyAdapter("ramp", timeout, minInterval),
		"linear":     NewAshbyAdapter("linear", timeout, minInterval),
		"37signals":  NewHTMLBoardAdapter(thirtySevenSignalsBoard(), timeout, minInterval),
	}}
}

// NewRegistryWith builds a registry over an explicit adapter set. Tests use
// it to substitute fakes.
func NewRegistryWith(adapters map[string]Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for company, a := range adapters {
		m[company] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for a company, or false when the company is not a
// supported board.
func (r *Registry) Get(company string) (Adapter, bool) {
	a, ok := r.adapters[company]
	return a, ok
}

// Companies returns the supported company names, sorted.
func (r *Registry) Companies() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// thirtySevenSignalsBoard describes the 37signals careers site: a single
// server-rendered page with one anchor per opening under /jobs/.
func thirtySevenSignalsBoard() HTMLBoardConfig {
	return HTMLBoardConfig{
		BaseURL:         "https://37signals.com/jobs",
		LinkSelector:    "a[href*='/jobs/']",
		ContentSelector: "main, article",
	}
}
