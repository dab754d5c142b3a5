// Package httpd exposes the sandbox supervisor over HTTP for the
// control plane.
package httpd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/sandbox"
	"github.com/athenalabs/athena/internal/sandboxapi"
)

// Supervisor is the slice of the sandbox supervisor the HTTP layer
// drives.
type Supervisor interface {
	ListRunning() []sandboxapi.RunningProject
	CreateProject(ctx context.Context, req sandboxapi.CreateProjectRequest) (*sandboxapi.StartResponse, error)
	Restart(ctx context.Context, projectID string, port int) (*sandboxapi.StartResponse, error)
	Stop(projectID string) error
	PullChanges(ctx context.Context, projectID string) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server serves the sandbox daemon API.
type Server struct {
	echo   *echo.Echo
	sup    Supervisor
	logger *zap.Logger
	config Config
}

// NewServer creates the sandbox HTTP server.
func NewServer(sup Supervisor, logger *zap.Logger, cfg Config) (*Server, error) {
	if sup == nil {
		return nil, fmt.Errorf("supervisor is required")
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
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		sup:    sup,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/projects", s.handleProjects)
	s.echo.POST("/create-project", s.handleCreateProject)
	s.echo.POST("/stop-project/:projectId", s.handleStopProject)
	s.echo.POST("/pull-changes/:projectId", s.handlePullChanges)
	s.echo.POST("/restart-project/:projectId", s.handleRestartProject)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, sandboxapi.HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleProjects(c echo.Context) error {
	return c.JSON(http.StatusOK, sandboxapi.ProjectsResponse{Projects: s.sup.ListRunning()})
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req sandboxapi.CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, sandboxapi.ErrorResponse{
			Error:   "Validation failed",
			Details: []string{"request body must be JSON"},
		})
	}

	resp, err := s.sup.CreateProject(c.Request().Context(), req)
	if err != nil {
		var verr *sandbox.ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, sandboxapi.ErrorResponse{
				Error:   "Validation failed",
				Details: verr.Details,
			})
		}
		s.logger.Error("project creation failed", zap.String("project", req.ProjectID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, sandboxapi.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleStopProject(c echo.Context) error {
	projectID := c.Param("projectId")
	if err := s.sup.Stop(projectID); err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return c.JSON(http.StatusNotFound, sandboxapi.ErrorResponse{
				Error:   "Project not found",
				Message: fmt.Sprintf("No running project found with ID '%s'", projectID),
			})
		}
		return c.JSON(http.StatusInternalServerError, sandboxapi.ErrorResponse{
			Error:   "Failed to stop project",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, sandboxapi.StatusResponse{
		Success: true,
		Message: fmt.Sprintf("Project '%s' stopped successfully", projectID),
	})
}

func (s *Server) handlePullChanges(c echo.Context) error {
	projectID := c.Param("projectId")
	if err := s.sup.PullChanges(c.Request().Context(), projectID); err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return c.JSON(http.StatusNotFound, sandboxapi.ErrorResponse{
				Error:   "Project directory not found",
				Message: fmt.Sprintf("Project directory for '%s' does not exist", projectID),
			})
		}
		return c.JSON(http.StatusInternalServerError, sandboxapi.ErrorResponse{
			Error:   "Failed to pull changes",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, sandboxapi.StatusResponse{
		Success: true,
		Message: fmt.Sprintf("Latest changes pulled successfully for project '%s'", projectID),
	})
}

func (s *Server) handleRestartProject(c echo.Context) error {
	projectID := c.Param("projectId")
	var req sandboxapi.RestartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, sandboxapi.ErrorResponse{
			Error: "request body must be JSON",
		})
	}

	resp, err := s.sup.Restart(c.Request().Context(), projectID, req.Port)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, sandboxapi.ErrorResponse{
			Error:   "Failed to restart project",
			Message: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// Echo exposes the underlying router so the daemon can mount extra
// handlers like metrics.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting sandbox http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down sandbox http server")
	return s.echo.Shutdown(ctx)
}
