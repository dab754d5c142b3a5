// Athena is the control plane daemon: it turns app ideas into hosted
// projects and applies natural-language change requests to their
// repositories.
//
// Configuration is loaded from a YAML file plus environment overrides.
//
// Usage:
//
//	# Start with defaults
//	athena
//
//	# Configure via environment
//	SERVER_PORT=8080 GITHUB_TOKEN=ghp_xxx athena
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/codegen"
	"github.com/athenalabs/athena/internal/config"
	"github.com/athenalabs/athena/internal/gitops"
	"github.com/athenalabs/athena/internal/httpapi"
	"github.com/athenalabs/athena/internal/logging"
	"github.com/athenalabs/athena/internal/provision"
	"github.com/athenalabs/athena/internal/registry"
	"github.com/athenalabs/athena/internal/sandboxapi"
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

	logger, err := logging.New(cfg.Logging, "athena")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting athena control plane",
		zap.Int("port", cfg.Server.Port),
		zap.String("sandbox", cfg.Sandbox.BaseURL),
	)

	git, err := gitops.NewClient(ctx, cfg.GitHub, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize github client: %w", err)
	}

	store, err := registry.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	completer, err := codegen.NewLLMClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize llm client: %w", err)
	}

	sandboxClient := sandboxapi.NewClient(cfg.Sandbox.BaseURL)

	pipeline, err := codegen.NewPipeline(completer, git, sandboxClient, cfg.GitHub, cfg.Codegen, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize codegen pipeline: %w", err)
	}

	provisioner, err := provision.New(store, sandboxClient, pipeline, git, cfg.Provision, cfg.Sandbox.BasePort, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize provisioner: %w", err)
	}

	srv, err := httpapi.NewServer(provisioner, store, pipeline, sandboxClient, logger, httpapi.Config{
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
