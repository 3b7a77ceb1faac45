package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/service"
)

// JobHandler handles tracked-job read endpoints.
type JobHandler struct {
	jobSvc *service.JobService
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobSvc *service.JobService) *JobHandler {
	return &JobHandler{jobSvc: jobSvc}
}

// JobSummary is the list-view shape of a tracked job. Description and
// requirements are only returned by the detail endpoint.
type JobSummary struct {
	ID           int64  `json:"id"`
	Company      string `json:"company"`
	ExternalID   string `json:"external_id"`
	URL          string `json:"url"`
	Status       string `json:"status"`
	Title        string `json:"title"`
	Location     string `json:"location,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RunID        *int64 `json:"run_id,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// ListJobsInput represents a job listing request.
type ListJobsInput struct {
	Status  string `query:"status" enum:"pending,ready,skipped,expired,error" required:"false" doc:"Filter by job status"`
	Company string `query:"company" doc:"Filter by company tag"`
	Limit   int    `query:"limit" default:"50" minimum:"1" maximum:"200" doc:"Page size"`
	Offset  int    `query:"offset" default:"0" minimum:"0" doc:"Rows to skip"`
}

// ListJobsOutput represents a job listing response.
type ListJobsOutput struct {
	Body struct {
		Jobs []JobSummary `json:"jobs"`
	}
}

// ListJobs returns the caller's tracked jobs in company order, so pages
// stay stable while a run is rewriting statuses.
func (h *JobHandler) ListJobs(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	jobs, err := h.jobSvc.List(ctx, userID, input.Company, models.JobStatus(input.Status), input.Limit, input.Offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs: " + err.Error())
	}

	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, JobSummary{
			ID:           job.ID,
			Company:      job.Company,
			ExternalID:   job.ExternalID,
			URL:          job.URL,
			Status:       string(job.Status),
			Title:        job.Title,
			Location:     job.Location,
			ErrorMessage: job.ErrorMessage,
			RunID:        job.RunID,
			CreatedAt:    job.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
		})
	}

	out := &ListJobsOutput{}
	out.Body.Jobs = summaries
	return out, nil
}

// GetJobInput identifies one tracked job.
type GetJobInput struct {
	ID int64 `path:"id" doc:"Job row id"`
}

// GetJobOutput is the full job record including extracted content.
type GetJobOutput struct {
	Body struct {
		JobSummary
		Description  string `json:"description,omitempty"`
		Requirements string `json:"requirements,omitempty"`
	}
}

// GetJob returns one tracked job with its extracted content.
func (h *JobHandler) GetJob(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	job, err := h.jobSvc.Get(ctx, input.ID, userID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return nil, huma.Error404NotFound("job not found")
		}
		return nil, huma.Error500InternalServerError("failed to get job: " + err.Error())
	}

	out := &GetJobOutput{}
	out.Body.JobSummary = JobSummary{
		ID:           job.ID,
		Company:      job.Company,
		ExternalID:   job.ExternalID,
		URL:          job.URL,
		Status:       string(job.Status),
		Title:        job.Title,
		Location:     job.Location,
		ErrorMessage: job.ErrorMessage,
		RunID:        job.RunID,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
	out.Body.Description = job.Description
	out.Body.Requirements = job.Requirements
	return out, nil
}
