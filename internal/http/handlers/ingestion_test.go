package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rolewatch/rolewatch-api/internal/models"
)

func statusOf(t *testing.T, err error) int {
	t.Helper()
	se, ok := err.(huma.StatusError)
	if !ok {
		t.Fatalf("expected a status error, got %T: %v", err, err)
	}
	return se.GetStatus()
}

func TestStartRun(t *testing.T) {
	f := newAPIFixture(t)
	h := NewIngestionHandler(f.ingestion)
	f.enableCompany(t, "user-1", "anthropic")

	input := &StartRunInput{}
	input.Body.Force = true
	out, err := h.StartRun(authedCtx("user-1"), input)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if out.Body.RunID == 0 {
		t.Error("expected a run id")
	}
	if len(f.dispatcher.runs) != 1 {
		t.Fatalf("dispatched runs = %d, want 1", len(f.dispatcher.runs))
	}
	if !f.dispatcher.runs[0].Metadata.Force {
		t.Error("force flag not carried into the run")
	}
}

func TestStartRun_Conflict(t *testing.T) {
	f := newAPIFixture(t)
	h := NewIngestionHandler(f.ingestion)
	f.enableCompany(t, "user-1", "anthropic")

	if _, err := h.StartRun(authedCtx("user-1"), &StartRunInput{}); err != nil {
		t.Fatalf("first StartRun() error = %v", err)
	}
	_, err := h.StartRun(authedCtx("user-1"), &StartRunInput{})
	if got := statusOf(t, err); got != 409 {
		t.Errorf("status = %d, want 409", got)
	}
}

func TestStartRun_NoCompanies(t *testing.T) {
	f := newAPIFixture(t)
	h := NewIngestionHandler(f.ingestion)

	_, err := h.StartRun(authedCtx("user-1"), &StartRunInput{})
	if got := statusOf(t, err); got != 400 {
		t.Errorf("status = %d, want 400", got)
	}
}

func TestStartRun_Unauthorized(t *testing.T) {
	f := newAPIFixture(t)
	h := NewIngestionHandler(f.ingestion)

	_, err := h.StartRun(context.Background(), &StartRunInput{})
	if got := statusOf(t, err); got != 401 {
		t.Errorf("status = %d, want 401", got)
	}
}

func TestCurrentRun(t *testing.T) {
	f := newAPIFixture(t)
	h := NewIngestionHandler(f.ingestion)
	f.enableCompany(t, "user-1", "anthropic")

	out, err := h.CurrentRun(authedCtx("user-1"), nil)
	if err != nil {
		t.Fatalf("CurrentRun() error = %v", err)
	}
	if out.Body.RunID != nil {
		t.Errorf("RunID = %v, want null", *out.Body.RunID)
	}

	started, err := h.StartRun(authedCtx("user-1"), &StartRunInput{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	out, err = h.CurrentRun(authedCtx("user-1"), nil)
	if err != nil {
		t.Fatalf("CurrentRun() error = %v", err)
	}
	if out.Body.RunID == nil || *out.Body.RunID != started.Body.RunID {
		t.Errorf("RunID = %v, want %d", out.Body.RunID, started.Body.RunID)
	}

	// The active run is invisible to other users.
	out, err = h.CurrentRun(authedCtx("user-2"), nil)
	if err != nil {
		t.Fatalf("CurrentRun() error = %v", err)
	}
	if out.Body.RunID != nil {
		t.Errorf("RunID = %v, want null for another user", *out.Body.RunID)
	}
}

func TestAbortRun(t *testing.T) {
	f := newAPIFixture(t)
	h := NewIngestionHandler(f.ingestion)
	f.enableCompany(t, "user-1", "anthropic")

	started, err := h.StartRun(authedCtx("user-1"), &StartRunInput{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	out, err := h.AbortRun(authedCtx("user-1"), &AbortRunInput{RunID: started.Body.RunID})
	if err != nil {
		t.Fatalf("AbortRun() error = %v", err)
	}
	if !out.Body.OK {
		t.Error("expected ok=true")
	}

	// Second abort hits a terminal run.
	_, err = h.AbortRun(authedCtx("user-1"), &AbortRunInput{RunID: started.Body.RunID})
	if got := statusOf(t, err); got != 409 {
		t.Errorf("status = %d, want 409", got)
	}
}

func TestAbortRun_NotFound(t *testing.T) {
	f := newAPIFixture(t)
	h := NewIngestionHandler(f.ingestion)
	f.enableCompany(t, "user-1", "anthropic")

	started, err := h.StartRun(authedCtx("user-1"), &StartRunInput{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	// Unknown id and someone else's run are indistinguishable.
	_, err = h.AbortRun(authedCtx("user-1"), &AbortRunInput{RunID: 9999})
	if got := statusOf(t, err); got != 404 {
		t.Errorf("status = %d, want 404", got)
	}
	_, err = h.AbortRun(authedCtx("user-2"), &AbortRunInput{RunID: started.Body.RunID})
	if got := statusOf(t, err); got != 404 {
		t.Errorf("status = %d, want 404", got)
	}
}

func TestGetLogs(t *testing.T) {
	f := newAPIFixture(t)
	h := NewIngestionHandler(f.ingestion)
	f.enableCompany(t, "user-1", "anthropic")

	started, err := h.StartRun(authedCtx("user-1"), &StartRunInput{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	runID := started.Body.RunID

	ctx := context.Background()
	now := time.Now().UnixMilli()
	for i, msg := range []string{"listing anthropic", "posting fetched", "job ready"} {
		err := f.repos.RunLog.Append(ctx, &models.RunLog{
			RunID:     runID,
			Timestamp: now + int64(i),
			Level:     "INFO",
			Message:   msg,
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	out, err := h.GetLogs(authedCtx("user-1"), &GetLogsInput{RunID: runID})
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(out.Body.Logs) != 3 {
		t.Fatalf("logs = %d, want 3", len(out.Body.Logs))
	}
	if out.Body.Logs[0].Message != "listing anthropic" {
		t.Errorf("first message = %q", out.Body.Logs[0].Message)
	}
	if out.Body.NextToken == "" {
		t.Fatal("expected a next token")
	}

	// Polling with the cursor returns only lines appended afterwards.
	token := out.Body.NextToken
	out, err = h.GetLogs(authedCtx("user-1"), &GetLogsInput{RunID: runID, NextToken: token})
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(out.Body.Logs) != 0 {
		t.Fatalf("logs = %d, want 0 after cursor", len(out.Body.Logs))
	}
	if out.Body.NextToken != token {
		t.Errorf("empty page changed the token: %q -> %q", token, out.Body.NextToken)
	}

	err = f.repos.RunLog.Append(ctx, &models.RunLog{
		RunID: runID, Timestamp: now + 10, Level: "INFO", Message: "run finished",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	out, err = h.GetLogs(authedCtx("user-1"), &GetLogsInput{RunID: runID, NextToken: token})
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(out.Body.Logs) != 1 || out.Body.Logs[0].Message != "run finished" {
		t.Fatalf("logs after cursor = %+v, want the new line only", out.Body.Logs)
	}
}

func TestGetLogs_OwnershipHidesRun(t *testing.T) {
	f := newAPIFixture(t)
	h := NewIngestionHandler(f.ingestion)
	f.enableCompany(t, "user-1", "anthropic")

	started, err := h.StartRun(authedCtx("user-1"), &StartRunInput{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	_, err = h.GetLogs(authedCtx("user-2"), &GetLogsInput{RunID: started.Body.RunID})
	if got := statusOf(t, err); got != 404 {
		t.Errorf("status = %d, want 404", got)
	}
}
