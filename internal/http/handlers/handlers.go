// Package handlers contains the HTTP handlers for the API.
package handlers

import (
	"context"

	"github.com/rolewatch/rolewatch-api/internal/http/mw"
	"github.com/rolewatch/rolewatch-api/internal/version"
)

// HealthCheckOutput is the public health response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck reports that the API is up and which build is serving. The
// probe endpoints stay bare; this one is public and includes the version.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Short()
	return out, nil
}

// getUserID returns the authenticated subject, or "" outside an
// authenticated request. The empty string never matches a stored row, so
// an unauthenticated query returns nothing rather than everything.
func getUserID(ctx context.Context) string {
	if claims := mw.GetUserClaims(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}
