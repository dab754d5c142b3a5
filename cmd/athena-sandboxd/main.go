// Athena-sandboxd is the EC2-resident daemon that hosts project dev
// servers. It provisions repositories and workspaces, runs one
// `npm run dev` at a time, and aggressively reclaims processes and
// disk between projects.
//
// Usage:
//
//	# Start with defaults
//	athena-sandboxd
//
//	# Configure via environment
//	SERVER_PORT=3000 GITHUB_TOKEN=ghp_xxx athena-sandboxd
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/config"
	"github.com/athenalabs/athena/internal/gitops"
	"github.com/athenalabs/athena/internal/logging"
	"github.com/athenalabs/athena/internal/sandbox"
	"github.com/athenalabs/athena/internal/sandbox/httpd"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("server shutdown complete")
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("ATHENA_CONFIG"))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging, "athena-sandboxd")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting sandbox daemon",
		zap.Int("port", cfg.Server.Port),
		zap.String("projects_dir", cfg.Sandbox.ProjectsDir),
		zap.Int("memory_limit_mb", cfg.Sandbox.MemoryLimitMB),
	)

	git, err := gitops.NewClient(ctx, cfg.GitHub, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize github client: %w", err)
	}

	supervisor, err := sandbox.New(
		cfg.Sandbox,
		cfg.GitHub,
		git,
		sandbox.NewControlPlaneClient(cfg.Sandbox.ControlPlaneURL),
		sandbox.NewGitWorkspace(cfg.GitHub, cfg.Codegen.Branch, logger),
		sandbox.NewExecLauncher(logger),
		sandbox.NewMetrics(prometheus.DefaultRegisterer),
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize supervisor: %w", err)
	}
	supervisor.StartMaintenance()
	defer supervisor.Close()

	srv, err := httpd.NewServer(supervisor, logger, httpd.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
