// Package shutdown lets scale-to-zero deployments stop the process once
// it is truly quiet: no HTTP traffic and no pipeline work in flight.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusyFunc reports whether pipeline work is in flight. It is consulted on
// every idle check; while it returns true the idle clock is held at zero,
// so a run in progress can never trigger shutdown no matter how long it
// takes.
type BusyFunc func() bool

// IdleMonitorConfig configures an IdleMonitor.
type IdleMonitorConfig struct {
	// Timeout is how long the process must be quiet before the monitor
	// signals. Zero disables the monitor entirely.
	Timeout time.Duration
	// ExcludePaths lists URL path prefixes that do not count as activity.
	// Platform health probes go here; without this a readiness check
	// every few seconds would keep the machine alive forever.
	ExcludePaths []string
	// Busy, when set, reports in-flight pipeline work (queued messages,
	// dispatched runs, workers mid-message).
	Busy   BusyFunc
	Logger *slog.Logger
}

// IdleMonitor watches request activity and pipeline work and closes
// ShutdownChan once both have been quiet for the configured timeout.
// An open SSE stream counts as an active request, so a client watching
// run progress keeps the process up.
type IdleMonitor struct {
	timeout      time.Duration
	excludePaths []string
	busy         BusyFunc
	logger       *slog.Logger

	active       atomic.Int64
	mu           sync.Mutex
	lastActivity time.Time

	shutdownChan chan struct{}
	stopChan     chan struct{}
}

// NewIdleMonitor creates a monitor. With Timeout zero it is inert: Start
// and Stop are no-ops and ShutdownChan never closes.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleMonitor{
		timeout:      cfg.Timeout,
		excludePaths: cfg.ExcludePaths,
		busy:         cfg.Busy,
		logger:       logger.With("component", "idle-monitor"),
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
		stopChan:     make(chan struct{}),
	}
}

// Start launches the check loop.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		return
	}
	m.logger.Info("idle monitoring enabled", "timeout", m.timeout)
	go m.run()
}

// Stop terminates the check loop without signaling shutdown.
func (m *IdleMonitor) Stop() {
	if m.timeout <= 0 {
		return
	}
	close(m.stopChan)
}

// ShutdownChan is closed when the idle timeout elapses.
func (m *IdleMonitor) ShutdownChan() <-chan struct{} {
	return m.shutdownChan
}

// Middleware counts a request as activity from arrival until its handler
// returns. Excluded paths pass through untracked.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if m.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.excludePaths {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		m.active.Add(1)
		m.touch()
		defer func() {
			m.active.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *IdleMonitor) idleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastActivity)
}

func (m *IdleMonitor) run() {
	// Check often enough that shutdown lands close to the timeout, but
	// never busier than every 5s.
	interval := m.timeout / 6
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			busy := m.active.Load() > 0 || (m.busy != nil && m.busy())
			if busy {
				// Reset the clock so finished work still gets a full
				// quiet period before shutdown.
				m.touch()
				continue
			}
			if idle := m.idleFor(); idle >= m.timeout {
				m.logger.Info("idle timeout reached, signaling shutdown", "idle", idle)
				close(m.shutdownChan)
				return
			}
		}
	}
}
