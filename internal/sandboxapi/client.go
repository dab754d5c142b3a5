package sandboxapi

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

// Client calls the sandbox daemon over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the daemon at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// ListRunning returns the daemon's current running set.
func (c *Client) ListRunning(ctx context.Context) ([]RunningProject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/projects", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query sandbox projects: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox projects query returned status %d", resp.StatusCode)
	}

	var out ProjectsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode sandbox projects: %w", err)
	}
	return out.Projects, nil
}

// CreateProject asks the daemon to provision and start a project.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (*StartResponse, error) {
	var out StartResponse
	if err := c.post(ctx, "/create-project", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Restart asks the daemon to restart a project on port.
func (c *Client) Restart(ctx context.Context, projectID string, port int) (*StartResponse, error) {
	var out StartResponse
	if err := c.post(ctx, "/restart-project/"+projectID, RestartRequest{Port: port}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop asks the daemon to stop a project's dev server.
func (c *Client) Stop(ctx context.Context, projectID string) error {
	return c.post(ctx, "/stop-project/"+projectID, nil, nil)
}

// PullChanges asks the daemon to sync a project's working copy with
// remote main without restarting the process.
func (c *Client) PullChanges(ctx context.Context, projectID string) error {
	return c.post(ctx, "/pull-changes/"+projectID, nil, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox call %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sandbox call %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode sandbox response for %s: %w", path, err)
		}
	}
	return nil
}
