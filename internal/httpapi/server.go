// Package httpapi is the control plane's HTTP surface: project
// lifecycle, change requests, and a proxy view of the sandbox.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/codegen"
	"github.com/athenalabs/athena/internal/provision"
	"github.com/athenalabs/athena/internal/registry"
	"github.com/athenalabs/athena/internal/sandboxapi"
)

// Provisioner creates and deletes projects.
type Provisioner interface {
	CreateProject(ctx context.Context, overview, stack, deployment string) (*registry.Project, *provision.Job, error)
	DeleteProject(ctx context.Context, id string) error
}

// Store reads and writes project records.
type Store interface {
	Get(ctx context.Context, id string) (*registry.Project, error)
	Put(ctx context.Context, p *registry.Project) error
}

// Pipeline applies change requests.
type Pipeline interface {
	GenerateAndApply(ctx context.Context, repoID, changeRequest, projectContext string) (*codegen.Result, error)
}

// Sandbox proxies lifecycle operations to the sandbox daemon.
type Sandbox interface {
	ListRunning(ctx context.Context) ([]sandboxapi.RunningProject, error)
	Restart(ctx context.Context, projectID string, port int) (*sandboxapi.StartResponse, error)
	Stop(ctx context.Context, projectID string) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server serves the control plane API.
type Server struct {
	echo     *echo.Echo
	prov     Provisioner
	store    Store
	pipeline Pipeline
	sandbox  Sandbox
	logger   *zap.Logger
	config   Config
}

// NewServer creates the control plane HTTP server.
func NewServer(prov Provisioner, store Store, pipeline Pipeline, sandbox Sandbox, logger *zap.Logger, cfg Config) (*Server, error) {
	if prov == nil || store == nil || pipeline == nil || sandbox == nil {
		return nil, fmt.Errorf("provisioner, store, pipeline, and sandbox are all required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		prov:     prov,
		store:    store,
		pipeline: pipeline,
		sandbox:  sandbox,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/projects", s.handleCreateProject)
	v1.GET("/projects", s.handleListProjects)
	v1.GET("/projects/:id", s.handleGetProject)
	v1.DELETE("/projects/:id", s.handleDeleteProject)
	v1.POST("/update-project", s.handleUpdateProject)
	v1.POST("/restart-project/:projectId", s.handleRestartProject)
	v1.POST("/stop-project/:projectId", s.handleStopProject)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "request body must be JSON",
		})
	}

	project, _, err := s.prov.CreateProject(c.Request().Context(), req.ProjectOverview, req.Stack, req.Deployment)
	if err != nil {
		if errors.Is(err, provision.ErrMissingOverview) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Missing required field: projectoverview is required",
			})
		}
		s.logger.Error("project creation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create project",
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, CreateProjectResponse{
		ProjectID: project.ID,
		Title:     project.Title,
		Status:    string(project.Status),
		Port:      project.Port,
	})
}

func (s *Server) handleListProjects(c echo.Context) error {
	running, err := s.sandbox.ListRunning(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to query sandbox", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get project status",
			Message: err.Error(),
		})
	}
	if running == nil {
		running = []sandboxapi.RunningProject{}
	}
	return c.JSON(http.StatusOK, sandboxapi.ProjectsResponse{Projects: running})
}

func (s *Server) handleGetProject(c echo.Context) error {
	projectID := c.Param("id")
	project, err := s.store.Get(c.Request().Context(), projectID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Project not found",
				Message: fmt.Sprintf("No project found with ID: %s", projectID),
			})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to retrieve project data",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, ProjectResponse{Success: true, Project: project})
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	projectID := c.Param("id")
	if err := s.prov.DeleteProject(c.Request().Context(), projectID); err != nil {
		s.logger.Error("project deletion failed", zap.String("project", projectID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete project data",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Success: true,
		Message: "Project deleted successfully",
	})
}

func (s *Server) handleUpdateProject(c echo.Context) error {
	var req UpdateProjectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "request body must be JSON",
		})
	}
	if req.RepoID == "" || req.ChangeRequest == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "repoId and changeRequest are required",
		})
	}

	result, err := s.pipeline.GenerateAndApply(c.Request().Context(), req.RepoID, req.ChangeRequest, req.ProjectContext)
	if err != nil {
		s.logger.Error("change request failed", zap.String("repo", req.RepoID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
		})
	}

	changes := make([]ChangeSummary, 0, len(result.Changes))
	for _, change := range result.Changes {
		action := "created/updated"
		if change.Remove {
			action = "deleted"
		}
		changes = append(changes, ChangeSummary{Path: change.Path, Action: action})
	}

	return c.JSON(http.StatusOK, UpdateProjectResponse{
		Success: true,
		Message: "Changes applied successfully!",
		Changes: changes,
	})
}

func (s *Server) handleRestartProject(c echo.Context) error {
	projectID := c.Param("projectId")
	ctx := c.Request().Context()

	project, err := s.store.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "Project not found"})
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to retrieve project data",
			Message: err.Error(),
		})
	}

	resp, err := s.sandbox.Restart(ctx, projectID, project.Port)
	if err != nil {
		s.logger.Error("sandbox restart failed", zap.String("project", projectID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to restart project on EC2",
			Message: err.Error(),
		})
	}

	project.Status = registry.StatusRestarting
	project.RestartTimestamp = time.Now().UnixMilli()
	if err := s.store.Put(ctx, project); err != nil {
		s.logger.Warn("failed to record restart", zap.String("project", projectID), zap.Error(err))
	}

	return c.JSON(http.StatusOK, RestartResponse{
		Success: true,
		Message: fmt.Sprintf("Project %s restarted successfully", projectID),
		Data:    resp,
	})
}

func (s *Server) handleStopProject(c echo.Context) error {
	projectID := c.Param("projectId")

	if err := s.sandbox.Stop(c.Request().Context(), projectID); err != nil {
		s.logger.Error("sandbox stop failed", zap.String("project", projectID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to stop project",
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, StatusResponse{
		Success: true,
		Message: fmt.Sprintf("Project '%s' stopped successfully", projectID),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting control plane http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down control plane http server")
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for mounting extra handlers.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
