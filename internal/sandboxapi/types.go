// Package sandboxapi defines the JSON wire contract of the sandbox
// daemon and an HTTP client for it. Both the daemon and the control
// plane import it so the two sides cannot drift.
package sandboxapi

// RunningProject is one live dev-server entry in the supervisor's
// running set.
type RunningProject struct {
	ProjectID string `json:"projectId"`
	Port      int    `json:"port"`
	StartTime string `json:"startTime"`
	PID       int    `json:"pid"`
}

// ProjectsResponse is the body of GET /projects.
type ProjectsResponse struct {
	Projects []RunningProject `json:"projects"`
}

// CreateProjectRequest is the body of POST /create-project.
type CreateProjectRequest struct {
	ProjectID       string `json:"projectId"`
	ProjectTitle    string `json:"projectTitle"`
	Port            int    `json:"port"`
	ProjectOverview string `json:"projectOverview"`
}

// RestartRequest is the body of POST /restart-project/:projectId.
type RestartRequest struct {
	Port int `json:"port"`
}

// StartResponse is returned by create-project and restart-project.
type StartResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ProjectID string `json:"projectId"`
	Port      int    `json:"port"`
	StartTime string `json:"startTime"`
	Mode      string `json:"mode"`
}

// StatusResponse is returned by stop-project and pull-changes.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the error envelope for 4xx/5xx responses.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Details []string `json:"details,omitempty"`
}
