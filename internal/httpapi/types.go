package httpapi

import (
	"github.com/athenalabs/athena/internal/registry"
	"github.com/athenalabs/athena/internal/sandboxapi"
)

// CreateProjectRequest is the body of POST /api/v1/projects. The
// lowercase overview key is what clients have always sent.
type CreateProjectRequest struct {
	ProjectOverview string `json:"projectoverview"`
	Stack           string `json:"stack,omitempty"`
	Deployment      string `json:"deployment,omitempty"`
}

// CreateProjectResponse acknowledges a provisioned project. The record
// keeps moving in the background; clients poll GET /projects/:id.
type CreateProjectResponse struct {
	ProjectID string `json:"projectId"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Port      int    `json:"port"`
}

// ProjectResponse is the body of GET /api/v1/projects/:id.
type ProjectResponse struct {
	Success bool              `json:"success"`
	Project *registry.Project `json:"project"`
}

// UpdateProjectRequest is the body of POST /api/v1/update-project.
type UpdateProjectRequest struct {
	RepoID         string `json:"repoId"`
	ChangeRequest  string `json:"changeRequest"`
	ProjectContext string `json:"projectContext,omitempty"`
}

// ChangeSummary describes one applied file change.
type ChangeSummary struct {
	Path   string `json:"path"`
	Action string `json:"action"`
}

// UpdateProjectResponse is the body of a successful update-project
// call.
type UpdateProjectResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Changes []ChangeSummary `json:"changes"`
}

// RestartResponse is the body of POST /api/v1/restart-project/:projectId.
type RestartResponse struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message"`
	Data    *sandboxapi.StartResponse `json:"data,omitempty"`
}

// StatusResponse is a generic success acknowledgement.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the error envelope for 4xx/5xx responses.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
