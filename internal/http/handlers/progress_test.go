package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rolewatch/rolewatch-api/internal/http/mw"
	"github.com/rolewatch/rolewatch-api/internal/models"
)

// sseEvent is one parsed event: frame.
type sseEvent struct {
	Event string
	Data  string
}

// parseSSE splits a complete stream body into its event frames,
// dropping heartbeat comments.
func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" || strings.HasPrefix(frame, ":") {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(frame, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		events = append(events, ev)
	}
	return events
}

// progressRouter mounts the stream handler behind a middleware that
// plants the given user's claims, standing in for mw.Auth.
func progressRouter(h *ProgressHandler, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), mw.UserClaimsKey, &mw.UserClaims{UserID: userID})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/api/v1/ingestion/progress/{run_id}", h.StreamProgress)
	return r
}

// finishedRun seeds a run that already ran to completion with one ready
// and one skipped job.
func finishedRun(t *testing.T, f *apiFixture, userID string) *models.Run {
	t.Helper()
	ctx := context.Background()

	run, err := f.repos.Run.CreateIfNoneActive(ctx, userID, models.RunMetadata{})
	if err != nil || run == nil {
		t.Fatalf("CreateIfNoneActive() = %v, %v", run, err)
	}
	if _, err := f.repos.Run.MarkInitializing(ctx, run.ID); err != nil {
		t.Fatalf("MarkInitializing() error = %v", err)
	}
	if _, err := f.repos.Run.MarkIngesting(ctx, run.ID); err != nil {
		t.Fatalf("MarkIngesting() error = %v", err)
	}

	for i, external := range []string{"101", "102"} {
		job, err := f.repos.Job.Upsert(ctx, &models.Job{
			UserID:     userID,
			RunID:      &run.ID,
			Company:    "anthropic",
			ExternalID: external,
			URL:        "https://example.com/jobs/" + external,
			Title:      "Engineer " + external,
			Status:     models.JobStatusPending,
		})
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if i == 0 {
			err = f.repos.Job.MarkReady(ctx, job.ID, "desc", "reqs")
		} else {
			err = f.repos.Job.MarkSkipped(ctx, job.ID)
		}
		if err != nil {
			t.Fatalf("failed to settle job %s: %v", external, err)
		}
	}

	ok, err := f.repos.Run.Finalize(ctx, run.ID)
	if err != nil || !ok {
		t.Fatalf("Finalize() = %v, %v", ok, err)
	}
	return run
}

func TestStreamProgress_TerminalRunClosesAfterSnapshot(t *testing.T) {
	f := newAPIFixture(t)
	h := NewProgressHandler(f.ingestion, 10*time.Millisecond)
	run := finishedRun(t, f, "user-1")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingestion/progress/"+strconv.FormatInt(run.ID, 10), nil)
	progressRouter(h, "user-1").ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("events = %+v, want status/all_jobs/status", events)
	}
	if events[0].Event != "status" || events[0].Data != "finished" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Event != "all_jobs" {
		t.Fatalf("second event = %+v", events[1])
	}
	var snapshot map[string][]models.JobSnapshot
	if err := json.Unmarshal([]byte(events[1].Data), &snapshot); err != nil {
		t.Fatalf("all_jobs payload: %v", err)
	}
	if len(snapshot["anthropic"]) != 2 {
		t.Errorf("snapshot = %+v, want 2 anthropic jobs", snapshot)
	}
	if events[2].Event != "status" || events[2].Data != "finished" {
		t.Errorf("final event = %+v", events[2])
	}
}

func TestStreamProgress_OwnershipAndBadInput(t *testing.T) {
	f := newAPIFixture(t)
	h := NewProgressHandler(f.ingestion, 10*time.Millisecond)
	run := finishedRun(t, f, "user-1")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingestion/progress/"+strconv.FormatInt(run.ID, 10), nil)
	progressRouter(h, "user-2").ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("other user's stream status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/ingestion/progress/nonsense", nil)
	progressRouter(h, "user-1").ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad run id status = %d, want 400", rec.Code)
	}

	// No claims at all: the auth middleware normally rejects first, but
	// the handler must not trust the route alone.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/ingestion/progress/1", nil)
	r := chi.NewRouter()
	r.Get("/api/v1/ingestion/progress/{run_id}", h.StreamProgress)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated stream status = %d, want 401", rec.Code)
	}
}

// readSSEEvent reads one event: frame from the stream, skipping
// heartbeat comments.
func readSSEEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended early: %v (got %+v)", err, ev)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.Event != "":
			return ev
		}
	}
}

func TestStreamProgress_LiveRunEmitsDiffsThenCloses(t *testing.T) {
	f := newAPIFixture(t)
	h := NewProgressHandler(f.ingestion, 20*time.Millisecond)
	ctx := context.Background()

	run, err := f.repos.Run.CreateIfNoneActive(ctx, "user-1", models.RunMetadata{})
	if err != nil || run == nil {
		t.Fatalf("CreateIfNoneActive() = %v, %v", run, err)
	}
	if _, err := f.repos.Run.MarkInitializing(ctx, run.ID); err != nil {
		t.Fatalf("MarkInitializing() error = %v", err)
	}
	if _, err := f.repos.Run.MarkIngesting(ctx, run.ID); err != nil {
		t.Fatalf("MarkIngesting() error = %v", err)
	}
	job, err := f.repos.Job.Upsert(ctx, &models.Job{
		UserID:     "user-1",
		RunID:      &run.ID,
		Company:    "anthropic",
		ExternalID: "101",
		URL:        "https://example.com/jobs/101",
		Title:      "Engineer 101",
		Status:     models.JobStatusPending,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	srv := httptest.NewServer(progressRouter(h, "user-1"))
	defer srv.Close()

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/api/v1/ingestion/progress/"+strconv.FormatInt(run.ID, 10), nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET stream error = %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)

	ev := readSSEEvent(t, reader)
	if ev.Event != "status" || ev.Data != "ingesting" {
		t.Fatalf("connect event = %+v, want status ingesting", ev)
	}
	ev = readSSEEvent(t, reader)
	if ev.Event != "all_jobs" {
		t.Fatalf("second event = %+v, want all_jobs", ev)
	}

	// A job settles; a following poll surfaces it as a diff. Polls on
	// the same second as seeding may re-report the pending state first.
	if err := f.repos.Job.MarkReady(ctx, job.ID, "desc", "reqs"); err != nil {
		t.Fatalf("MarkReady() error = %v", err)
	}
	for {
		ev = readSSEEvent(t, reader)
		if ev.Event != "update" {
			t.Fatalf("event after MarkReady = %+v, want update", ev)
		}
		var update map[string]map[string]models.JobStatus
		if err := json.Unmarshal([]byte(ev.Data), &update); err != nil {
			t.Fatalf("update payload: %v", err)
		}
		if update["anthropic"]["101"] == models.JobStatusReady {
			break
		}
	}

	// Finishing the run ends the stream with snapshot and status.
	if ok, err := f.repos.Run.Finalize(ctx, run.ID); err != nil || !ok {
		t.Fatalf("Finalize() = %v, %v", ok, err)
	}

	sawFinished := false
	sawSnapshot := false
	for !sawFinished || !sawSnapshot {
		ev = readSSEEvent(t, reader)
		switch ev.Event {
		case "status":
			if ev.Data == "finished" {
				sawFinished = true
			}
		case "all_jobs":
			sawSnapshot = true
		case "update":
			// A diff may slip in before the terminal poll.
		default:
			t.Fatalf("unexpected event %+v", ev)
		}
	}

	// The server closes the stream after the terminal events.
	if _, err := io.ReadAll(reader); err != nil {
		t.Fatalf("stream did not close cleanly: %v", err)
	}
}
