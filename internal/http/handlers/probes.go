package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// LivezOutput represents liveness probe response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports process liveness. It succeeds whenever the process can
// serve a request at all.
func Livez(ctx context.Context, input *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// DBPinger is the readiness dependency. *sql.DB satisfies it.
type DBPinger interface {
	Ping() error
}

// ReadyzHandler answers the readiness probe by checking the database.
type ReadyzHandler struct {
	db DBPinger
}

// NewReadyzHandler creates a readiness handler backed by db. A nil db
// skips the database check, which keeps the probe usable in tests and
// tooling that run without one.
func NewReadyzHandler(db DBPinger) *ReadyzHandler {
	return &ReadyzHandler{db: db}
}

// ReadyzOutput represents readiness probe response.
type ReadyzOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Readyz reports whether the process is ready to take traffic.
func (h *ReadyzHandler) Readyz(ctx context.Context, input *struct{}) (*ReadyzOutput, error) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			return nil, huma.Error503ServiceUnavailable("database not ready")
		}
	}
	out := &ReadyzOutput{}
	out.Body.Status = "ok"
	return out, nil
}
