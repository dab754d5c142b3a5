package httpapi

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

	"github.com/athenalabs/athena/internal/changeset"
	"github.com/athenalabs/athena/internal/codegen"
	"github.com/athenalabs/athena/internal/provision"
	"github.com/athenalabs/athena/internal/registry"
	"github.com/athenalabs/athena/internal/sandboxapi"
)

type fakeProvisioner struct {
	project   *registry.Project
	createErr error
	deleteErr error
	deleted   []string
}

func (f *fakeProvisioner) CreateProject(_ context.Context, overview, _, _ string) (*registry.Project, *provision.Job, error) {
	if overview == "" {
		return nil, nil, provision.ErrMissingOverview
	}
	if f.createErr != nil {
		return nil, nil, f.createErr
	}
	return f.project, nil, nil
}

func (f *fakeProvisioner) DeleteProject(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeStore struct {
	projects map[string]*registry.Project
}

func (f *fakeStore) Get(_ context.Context, id string) (*registry.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) Put(_ context.Context, p *registry.Project) error {
	f.projects[p.ID] = p
	return nil
}

type fakePipeline struct {
	result *codegen.Result
	err    error
	repoID string
}

func (f *fakePipeline) GenerateAndApply(_ context.Context, repoID, _, _ string) (*codegen.Result, error) {
	f.repoID = repoID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeSandbox struct {
	running     []sandboxapi.RunningProject
	err         error
	restartErr  error
	restartPort int
	stopErr     error
	stopped     []string
}

func (f *fakeSandbox) ListRunning(_ context.Context) ([]sandboxapi.RunningProject, error) {
	return f.running, f.err
}

func (f *fakeSandbox) Restart(_ context.Context, projectID string, port int) (*sandboxapi.StartResponse, error) {
	if f.restartErr != nil {
		return nil, f.restartErr
	}
	f.restartPort = port
	return &sandboxapi.StartResponse{
		Success:   true,
		ProjectID: projectID,
		Port:      port,
		Mode:      "RESTART_MODE",
	}, nil
}

func (f *fakeSandbox) Stop(_ context.Context, projectID string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, projectID)
	return nil
}

type harness struct {
	server   *Server
	prov     *fakeProvisioner
	store    *fakeStore
	pipeline *fakePipeline
	sandbox  *fakeSandbox
}

func setup(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		prov: &fakeProvisioner{project: &registry.Project{
			ID:     "todo-app-12345",
			Title:  "todo",
			Status: registry.StatusCreated,
			Port:   3001,
		}},
		store:    &fakeStore{projects: map[string]*registry.Project{}},
		pipeline: &fakePipeline{result: &codegen.Result{CommitSHA: "abc123"}},
		sandbox:  &fakeSandbox{},
	}
	server, err := NewServer(h.prov, h.store, h.pipeline, h.sandbox, zap.NewNop(), Config{Host: "localhost", Port: 3000})
	require.NoError(t, err)
	h.server = server
	return h
}

func do(server *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		reader = &bytes.Buffer{}
		_ = json.NewEncoder(reader).Encode(body)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("requires all collaborators", func(t *testing.T) {
		_, err := NewServer(nil, &fakeStore{}, &fakePipeline{}, &fakeSandbox{}, zap.NewNop(), Config{})
		assert.Error(t, err)
	})

	t.Run("requires a logger", func(t *testing.T) {
		_, err := NewServer(&fakeProvisioner{}, &fakeStore{}, &fakePipeline{}, &fakeSandbox{}, nil, Config{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	h := setup(t)
	rec := do(h.server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleCreateProject(t *testing.T) {
	t.Run("creates and returns the record snapshot", func(t *testing.T) {
		h := setup(t)

		rec := do(h.server, http.MethodPost, "/api/v1/projects", CreateProjectRequest{
			ProjectOverview: "A todo app with dark mode",
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp CreateProjectResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "todo-app-12345", resp.ProjectID)
		assert.Equal(t, "created", resp.Status)
		assert.Equal(t, 3001, resp.Port)
	})

	t.Run("missing overview is a 400", func(t *testing.T) {
		h := setup(t)

		rec := do(h.server, http.MethodPost, "/api/v1/projects", CreateProjectRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "projectoverview is required")
	})

	t.Run("provisioner failure is a 500", func(t *testing.T) {
		h := setup(t)
		h.prov.createErr = errors.New("sandbox creation failed")

		rec := do(h.server, http.MethodPost, "/api/v1/projects", CreateProjectRequest{
			ProjectOverview: "A todo app",
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Failed to create project", resp.Error)
	})
}

func TestHandleListProjects(t *testing.T) {
	t.Run("proxies the running set", func(t *testing.T) {
		h := setup(t)
		h.sandbox.running = []sandboxapi.RunningProject{
			{ProjectID: "todo-app-12345", Port: 3001, StartTime: time.Now().Format(time.RFC3339), PID: 7},
		}

		rec := do(h.server, http.MethodGet, "/api/v1/projects", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp sandboxapi.ProjectsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Projects, 1)
	})

	t.Run("empty set serializes as an empty array", func(t *testing.T) {
		h := setup(t)
		rec := do(h.server, http.MethodGet, "/api/v1/projects", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"projects":[]`)
	})

	t.Run("sandbox failure is a 500", func(t *testing.T) {
		h := setup(t)
		h.sandbox.err = errors.New("sandbox unreachable")

		rec := do(h.server, http.MethodGet, "/api/v1/projects", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleGetProject(t *testing.T) {
	t.Run("returns the stored record", func(t *testing.T) {
		h := setup(t)
		h.store.projects["todo-app-12345"] = &registry.Project{
			ID: "todo-app-12345", Status: registry.StatusReady,
		}

		rec := do(h.server, http.MethodGet, "/api/v1/projects/todo-app-12345", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp ProjectResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, registry.StatusReady, resp.Project.Status)
	})

	t.Run("unknown project is a 404", func(t *testing.T) {
		h := setup(t)

		rec := do(h.server, http.MethodGet, "/api/v1/projects/nope-00000", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Project not found", resp.Error)
	})
}

func TestHandleDeleteProject(t *testing.T) {
	h := setup(t)

	rec := do(h.server, http.MethodDelete, "/api/v1/projects/todo-app-12345", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"todo-app-12345"}, h.prov.deleted)
}

func TestHandleRestartProject(t *testing.T) {
	t.Run("forwards the stored port and marks the record restarting", func(t *testing.T) {
		h := setup(t)
		h.store.projects["todo-app-12345"] = &registry.Project{
			ID: "todo-app-12345", Port: 3004, Status: registry.StatusReady,
		}

		rec := do(h.server, http.MethodPost, "/api/v1/restart-project/todo-app-12345", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3004, h.sandbox.restartPort)

		var resp RestartResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Data)
		assert.Equal(t, "RESTART_MODE", resp.Data.Mode)

		stored := h.store.projects["todo-app-12345"]
		assert.Equal(t, registry.StatusRestarting, stored.Status)
		assert.NotZero(t, stored.RestartTimestamp)
	})

	t.Run("unknown project is a 404", func(t *testing.T) {
		h := setup(t)
		rec := do(h.server, http.MethodPost, "/api/v1/restart-project/nope-00000", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("sandbox failure is a 500", func(t *testing.T) {
		h := setup(t)
		h.store.projects["todo-app-12345"] = &registry.Project{ID: "todo-app-12345", Port: 3001}
		h.sandbox.restartErr = errors.New("dev server would not start")

		rec := do(h.server, http.MethodPost, "/api/v1/restart-project/todo-app-12345", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Failed to restart project on EC2", resp.Error)
	})
}

func TestHandleStopProject(t *testing.T) {
	t.Run("forwards the stop to the sandbox", func(t *testing.T) {
		h := setup(t)

		rec := do(h.server, http.MethodPost, "/api/v1/stop-project/todo-app-12345", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"todo-app-12345"}, h.sandbox.stopped)

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "Project 'todo-app-12345' stopped successfully", resp.Message)
	})

	t.Run("sandbox failure is a 500", func(t *testing.T) {
		h := setup(t)
		h.sandbox.stopErr = errors.New("no running project")

		rec := do(h.server, http.MethodPost, "/api/v1/stop-project/todo-app-12345", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Failed to stop project", resp.Error)
	})
}

func TestHandleUpdateProject(t *testing.T) {
	t.Run("applies the change request", func(t *testing.T) {
		h := setup(t)
		h.pipeline.result = &codegen.Result{
			Changes: []changeset.FileChange{
				{Path: "app/page.tsx", Content: "x"},
				{Path: "app/old.tsx", Remove: true},
			},
			CommitSHA: "abc123",
		}

		rec := do(h.server, http.MethodPost, "/api/v1/update-project", UpdateProjectRequest{
			RepoID:        "todo-app-12345",
			ChangeRequest: "Add a dark mode toggle",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp UpdateProjectResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		require.Len(t, resp.Changes, 2)
		assert.Equal(t, "created/updated", resp.Changes[0].Action)
		assert.Equal(t, "deleted", resp.Changes[1].Action)
		assert.Equal(t, "todo-app-12345", h.pipeline.repoID)
	})

	t.Run("missing fields are a 400", func(t *testing.T) {
		h := setup(t)

		rec := do(h.server, http.MethodPost, "/api/v1/update-project", UpdateProjectRequest{
			RepoID: "todo-app-12345",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("pipeline failure is a 500 with the error surfaced", func(t *testing.T) {
		h := setup(t)
		h.pipeline.err = errors.New("no file changes found in completion")

		rec := do(h.server, http.MethodPost, "/api/v1/update-project", UpdateProjectRequest{
			RepoID:        "todo-app-12345",
			ChangeRequest: "Add a toggle",
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "no file changes found")
	})
}
