package httpd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/sandbox"
	"github.com/athenalabs/athena/internal/sandboxapi"
)

type fakeSupervisor struct {
	running    []sandboxapi.RunningProject
	createErr  error
	restartErr error
	stopErr    error
	pullErr    error
	lastCreate sandboxapi.CreateProjectRequest
	lastPort   int
	stopped    []string
	pulled     []string
}

func (f *fakeSupervisor) ListRunning() []sandboxapi.RunningProject {
	if f.running == nil {
		return []sandboxapi.RunningProject{}
	}
	return f.running
}

func (f *fakeSupervisor) CreateProject(_ context.Context, req sandboxapi.CreateProjectRequest) (*sandboxapi.StartResponse, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastCreate = req
	return &sandboxapi.StartResponse{
		Success:   true,
		Message:   "Project creation started (all previous projects terminated)",
		ProjectID: req.ProjectID,
		Port:      req.Port,
		StartTime: time.Now().UTC().Format(time.RFC3339),
		Mode:      "SOLO_MODE",
	}, nil
}

func (f *fakeSupervisor) Restart(_ context.Context, projectID string, port int) (*sandboxapi.StartResponse, error) {
	if f.restartErr != nil {
		return nil, f.restartErr
	}
	f.lastPort = port
	return &sandboxapi.StartResponse{
		Success:   true,
		ProjectID: projectID,
		Port:      port,
		Mode:      "RESTART_MODE",
	}, nil
}

func (f *fakeSupervisor) Stop(projectID string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, projectID)
	return nil
}

func (f *fakeSupervisor) PullChanges(_ context.Context, projectID string) error {
	if f.pullErr != nil {
		return f.pullErr
	}
	f.pulled = append(f.pulled, projectID)
	return nil
}

func setupTestServer(t *testing.T, sup *fakeSupervisor) *Server {
	t.Helper()
	server, err := NewServer(sup, zap.NewNop(), Config{Host: "localhost", Port: 3000})
	require.NoError(t, err)
	return server
}

func postJSON(server *Server, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("requires a supervisor", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), Config{})
		assert.Error(t, err)
	})

	t.Run("requires a logger", func(t *testing.T) {
		_, err := NewServer(&fakeSupervisor{}, nil, Config{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, &fakeSupervisor{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp sandboxapi.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OK", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestHandleProjects(t *testing.T) {
	sup := &fakeSupervisor{running: []sandboxapi.RunningProject{
		{ProjectID: "todo-app-12345", Port: 3001, PID: 4242},
	}}
	server := setupTestServer(t, sup)

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp sandboxapi.ProjectsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Projects, 1)
	assert.Equal(t, "todo-app-12345", resp.Projects[0].ProjectID)
}

func TestHandleCreateProject(t *testing.T) {
	t.Run("creates and returns 201", func(t *testing.T) {
		sup := &fakeSupervisor{}
		server := setupTestServer(t, sup)

		rec := postJSON(server, "/create-project", sandboxapi.CreateProjectRequest{
			ProjectID:       "todo-app-12345",
			ProjectTitle:    "todo",
			Port:            3001,
			ProjectOverview: "A todo app",
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp sandboxapi.StartResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "SOLO_MODE", resp.Mode)
		assert.Equal(t, "todo-app-12345", sup.lastCreate.ProjectID)
	})

	t.Run("maps validation failure to 400 with details", func(t *testing.T) {
		sup := &fakeSupervisor{createErr: &sandbox.ValidationError{
			Details: []string{"projectId is required and must be a non-empty string"},
		}}
		server := setupTestServer(t, sup)

		rec := postJSON(server, "/create-project", sandboxapi.CreateProjectRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp sandboxapi.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Validation failed", resp.Error)
		assert.Len(t, resp.Details, 1)
	})

	t.Run("maps other failures to 500", func(t *testing.T) {
		sup := &fakeSupervisor{createErr: errors.New("clone failed")}
		server := setupTestServer(t, sup)

		rec := postJSON(server, "/create-project", sandboxapi.CreateProjectRequest{
			ProjectID: "todo-app-12345", ProjectTitle: "todo", Port: 3001, ProjectOverview: "x",
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp sandboxapi.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Internal server error", resp.Error)
		assert.Equal(t, "clone failed", resp.Message)
	})
}

func TestHandleStopProject(t *testing.T) {
	t.Run("stops a running project", func(t *testing.T) {
		sup := &fakeSupervisor{}
		server := setupTestServer(t, sup)

		rec := postJSON(server, "/stop-project/todo-app-12345", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"todo-app-12345"}, sup.stopped)
	})

	t.Run("404 for unknown project", func(t *testing.T) {
		sup := &fakeSupervisor{stopErr: sandbox.ErrNotFound}
		server := setupTestServer(t, sup)

		rec := postJSON(server, "/stop-project/nope-00000", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var resp sandboxapi.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Project not found", resp.Error)
	})
}

func TestHandlePullChanges(t *testing.T) {
	t.Run("pulls for an existing workspace", func(t *testing.T) {
		sup := &fakeSupervisor{}
		server := setupTestServer(t, sup)

		rec := postJSON(server, "/pull-changes/todo-app-12345", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"todo-app-12345"}, sup.pulled)
	})

	t.Run("404 when the workspace is missing", func(t *testing.T) {
		sup := &fakeSupervisor{pullErr: sandbox.ErrNotFound}
		server := setupTestServer(t, sup)

		rec := postJSON(server, "/pull-changes/nope-00000", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var resp sandboxapi.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Project directory not found", resp.Error)
	})
}

func TestHandleRestartProject(t *testing.T) {
	t.Run("restarts with the requested port", func(t *testing.T) {
		sup := &fakeSupervisor{}
		server := setupTestServer(t, sup)

		rec := postJSON(server, "/restart-project/todo-app-12345", sandboxapi.RestartRequest{Port: 3002})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp sandboxapi.StartResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "RESTART_MODE", resp.Mode)
		assert.Equal(t, 3002, sup.lastPort)
	})

	t.Run("maps failures to 500", func(t *testing.T) {
		sup := &fakeSupervisor{restartErr: errors.New("clone failed")}
		server := setupTestServer(t, sup)

		rec := postJSON(server, "/restart-project/todo-app-12345", sandboxapi.RestartRequest{Port: 3002})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp sandboxapi.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Failed to restart project", resp.Error)
	})
}
