package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ControlPlane is the callback into the control plane that overlays
// the scaffold with generated code.
type ControlPlane interface {
	// UpdateProject submits a change request for repoID and returns
	// how many file changes were committed.
	UpdateProject(ctx context.Context, repoID, changeRequest, projectContext string) (int, error)
}

// ControlPlaneClient calls the control plane's update-project endpoint
// over HTTP.
type ControlPlaneClient struct {
	baseURL string
	http    *http.Client
}

// NewControlPlaneClient returns a client for the control plane at
// baseURL. Codegen round trips are slow, so the timeout is generous.
func NewControlPlaneClient(baseURL string) *ControlPlaneClient {
	return &ControlPlaneClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

type updateProjectRequest struct {
	RepoID         string `json:"repoId"`
	ChangeRequest  string `json:"changeRequest"`
	ProjectContext string `json:"projectContext"`
}

type updateProjectResponse struct {
	Success bool              `json:"success"`
	Changes []json.RawMessage `json:"changes"`
	Message string            `json:"message"`
}

func (c *ControlPlaneClient) UpdateProject(ctx context.Context, repoID, changeRequest, projectContext string) (int, error) {
	body, err := json.Marshal(updateProjectRequest{
		RepoID:         repoID,
		ChangeRequest:  changeRequest,
		ProjectContext: projectContext,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/update-project", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("update-project request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("update-project returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out updateProjectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode update-project response: %w", err)
	}
	return len(out.Changes), nil
}
