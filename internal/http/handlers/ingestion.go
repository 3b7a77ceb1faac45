package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rolewatch/rolewatch-api/internal/constants"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/service"
)

// IngestionHandler handles run lifecycle endpoints.
type IngestionHandler struct {
	ingestionSvc *service.IngestionService
}

// NewIngestionHandler creates a new ingestion handler.
func NewIngestionHandler(ingestionSvc *service.IngestionService) *IngestionHandler {
	return &IngestionHandler{ingestionSvc: ingestionSvc}
}

// StartRunInput represents the run start request.
type StartRunInput struct {
	Body struct {
		Force bool `json:"force,omitempty" doc:"Re-extract every posting even when its content is unchanged"`
	}
}

// StartRunOutput carries the id of the newly created run.
type StartRunOutput struct {
	Body struct {
		RunID int64 `json:"run_id" doc:"Identifier of the created run"`
	}
}

// StartRun creates a run and hands it to the initializer. It returns as
// soon as the run row exists; ingestion happens in the background.
func (h *IngestionHandler) StartRun(ctx context.Context, input *StartRunInput) (*StartRunOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	run, err := h.ingestionSvc.Start(ctx, userID, models.RunMetadata{Force: input.Body.Force})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunActive):
			return nil, huma.Error409Conflict("an ingestion run is already active")
		case errors.Is(err, service.ErrNoCompaniesEnabled):
			return nil, huma.Error400BadRequest("no companies enabled for ingestion")
		}
		return nil, huma.Error500InternalServerError("failed to start run: " + err.Error())
	}

	out := &StartRunOutput{}
	out.Body.RunID = run.ID
	return out, nil
}

// CurrentRunOutput reports the user's active run, if any.
type CurrentRunOutput struct {
	Body struct {
		RunID *int64 `json:"run_id" doc:"Identifier of the active run, null when none"`
	}
}

// CurrentRun returns the id of the user's non-terminal run, or null.
func (h *IngestionHandler) CurrentRun(ctx context.Context, input *struct{}) (*CurrentRunOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	run, err := h.ingestionSvc.CurrentRun(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get current run: " + err.Error())
	}

	out := &CurrentRunOutput{}
	if run != nil {
		out.Body.RunID = &run.ID
	}
	return out, nil
}

// AbortRunInput identifies the run to abort.
type AbortRunInput struct {
	RunID int64 `path:"run_id" doc:"Run to abort"`
}

// AbortRunOutput confirms the abort.
type AbortRunOutput struct {
	Body struct {
		OK bool `json:"ok"`
	}
}

// AbortRun moves a non-terminal run to aborted. Workers notice the
// state on their next message and drop the remaining work.
func (h *IngestionHandler) AbortRun(ctx context.Context, input *AbortRunInput) (*AbortRunOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	_, err := h.ingestionSvc.Abort(ctx, input.RunID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunNotFound):
			return nil, huma.Error404NotFound("run not found")
		case errors.Is(err, service.ErrRunNotAbortable):
			return nil, huma.Error409Conflict("run already finished")
		}
		return nil, huma.Error500InternalServerError("failed to abort run: " + err.Error())
	}

	out := &AbortRunOutput{}
	out.Body.OK = true
	return out, nil
}

// GetLogsInput represents a run log page request. The next_token from
// the previous response resumes where that page stopped.
type GetLogsInput struct {
	RunID     int64  `path:"run_id" doc:"Run to read logs from"`
	StartTime int64  `query:"start_time" doc:"Only logs at or after this time, milliseconds since epoch"`
	NextToken string `query:"next_token" doc:"Cursor returned by the previous page"`
}

// RunLogEntry is one captured log line.
type RunLogEntry struct {
	Timestamp int64  `json:"timestamp" doc:"Milliseconds since epoch"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// GetLogsOutput represents one page of run logs.
type GetLogsOutput struct {
	Body struct {
		Logs      []RunLogEntry `json:"logs"`
		NextToken string        `json:"next_token" doc:"Pass back as next_token to poll for newer lines"`
	}
}

// GetLogs returns the worker log lines captured for a run. Clients poll
// it while a run is in flight; the cursor makes each poll cheap.
func (h *IngestionHandler) GetLogs(ctx context.Context, input *GetLogsInput) (*GetLogsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	logs, err := h.ingestionSvc.Logs(ctx, input.RunID, userID, input.StartTime, input.NextToken, constants.RunLogPageSize)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			return nil, huma.Error404NotFound("run not found")
		}
		return nil, huma.Error500InternalServerError("failed to get logs: " + err.Error())
	}

	out := &GetLogsOutput{}
	out.Body.Logs = make([]RunLogEntry, 0, len(logs))
	out.Body.NextToken = input.NextToken
	for _, line := range logs {
		out.Body.Logs = append(out.Body.Logs, RunLogEntry{
			Timestamp: line.Timestamp,
			Level:     line.Level,
			Message:   line.Message,
		})
		out.Body.NextToken = line.ID
	}
	return out, nil
}
