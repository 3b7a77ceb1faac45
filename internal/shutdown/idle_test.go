package shutdown

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMiddleware_TracksActiveRequests(t *testing.T) {
	m := NewIdleMonitor(IdleMonitorConfig{Timeout: time.Minute, Logger: testLogger()})

	var during int64
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = m.active.Load()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))

	if during != 1 {
		t.Errorf("active during request = %d, want 1", during)
	}
	if after := m.active.Load(); after != 0 {
		t.Errorf("active after request = %d, want 0", after)
	}
}

func TestMiddleware_ExcludedPathsUntracked(t *testing.T) {
	m := NewIdleMonitor(IdleMonitorConfig{
		Timeout:      time.Minute,
		ExcludePaths: []string{"/healthz", "/readyz"},
		Logger:       testLogger(),
	})

	before := time.Now().Add(-time.Hour)
	m.mu.Lock()
	m.lastActivity = before
	m.mu.Unlock()

	var during int64
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = m.active.Load()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if during != 0 {
		t.Errorf("active during excluded request = %d, want 0", during)
	}

	m.mu.Lock()
	moved := !m.lastActivity.Equal(before)
	m.mu.Unlock()
	if moved {
		t.Error("excluded request updated lastActivity")
	}
}

func TestDisabledMonitorIsInert(t *testing.T) {
	m := NewIdleMonitor(IdleMonitorConfig{Timeout: 0, Logger: testLogger()})

	// No goroutine, no panic, channel never closes.
	m.Start()
	m.Stop()

	select {
	case <-m.ShutdownChan():
		t.Fatal("shutdown channel closed with monitoring disabled")
	default:
	}

	// Middleware must be pass-through.
	called := false
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("middleware did not invoke next handler")
	}
	if got := m.active.Load(); got != 0 {
		t.Errorf("disabled monitor tracked a request: active = %d", got)
	}
}
