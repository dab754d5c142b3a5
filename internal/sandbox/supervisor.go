// Package sandbox is the EC2-resident supervisor: it provisions project
// workspaces, runs the single hosted dev server, and keeps the machine
// healthy by aggressively reclaiming processes and disk.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/config"
	"github.com/athenalabs/athena/internal/sandboxapi"
)

// ErrNotFound indicates the project is not hosted on this sandbox.
var ErrNotFound = errors.New("project not found")

// RepoCreator creates the hosted repository backing a project.
type RepoCreator interface {
	CreateRepo(ctx context.Context, name, description string) error
}

// Supervisor hosts one project dev server at a time.
type Supervisor struct {
	cfg      config.SandboxConfig
	github   config.GitHubConfig
	repos    RepoCreator
	control  ControlPlane
	git      GitWorkspace
	launcher Launcher
	table    *runningTable
	metrics  *Metrics
	logger   *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// New wires a Supervisor.
func New(cfg config.SandboxConfig, github config.GitHubConfig, repos RepoCreator, control ControlPlane, git GitWorkspace, launcher Launcher, metrics *Metrics, logger *zap.Logger) (*Supervisor, error) {
	if repos == nil || control == nil || git == nil || launcher == nil {
		return nil, fmt.Errorf("repos, control, git, and launcher are all required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		cfg:      cfg,
		github:   github,
		repos:    repos,
		control:  control,
		git:      git,
		launcher: launcher,
		table:    newRunningTable(),
		metrics:  metrics,
		logger:   logger,
		stop:     make(chan struct{}),
	}, nil
}

// ListRunning reports the current running set.
func (s *Supervisor) ListRunning() []sandboxapi.RunningProject {
	entries := s.table.List()
	out := make([]sandboxapi.RunningProject, 0, len(entries))
	for _, e := range entries {
		out = append(out, sandboxapi.RunningProject{
			ProjectID: e.ProjectID,
			Port:      e.Port,
			StartTime: e.StartTime.UTC().Format(time.RFC3339),
			PID:       e.PID,
		})
	}
	return out
}

// CreateProject provisions a fresh project and starts its dev server.
// Every previously hosted project is killed first; the sandbox is
// single tenant and a creation request always wins.
func (s *Supervisor) CreateProject(ctx context.Context, req sandboxapi.CreateProjectRequest) (*sandboxapi.StartResponse, error) {
	s.evictAll(syscall.SIGKILL)
	s.nuclearCleanup(ctx)
	s.sleep(ctx, s.cfg.SettleDelay.Duration())

	if verr := validateCreateRequest(req); verr != nil {
		return nil, verr
	}

	s.logger.Info("creating project",
		zap.String("project", req.ProjectID),
		zap.String("title", req.ProjectTitle),
		zap.Int("port", req.Port),
	)

	if err := s.repos.CreateRepo(ctx, req.ProjectID, req.ProjectOverview); err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	dir := s.projectDir(req.ProjectID)
	repoURL := s.github.RepoURL(req.ProjectID)
	if err := s.git.Clone(ctx, repoURL, dir); err != nil {
		return nil, err
	}
	if err := writeScaffold(dir, req.ProjectID, req.ProjectTitle, req.ProjectOverview); err != nil {
		return nil, err
	}
	if err := s.git.CommitAndPush(ctx, dir, "Initial Next.js template"); err != nil {
		return nil, err
	}
	s.logger.Info("initial template pushed", zap.String("project", req.ProjectID))

	// Let the hosting side catch up before the codegen overlay reads
	// the repository back.
	s.sleep(ctx, s.cfg.PropagationDelay.Duration())

	s.applyOverlay(ctx, req, dir)

	installCtx, cancel := context.WithTimeout(ctx, s.cfg.InstallTimeout.Duration())
	err := s.launcher.Install(installCtx, dir)
	cancel()
	if err != nil {
		// The dev server can often still come up from a partial
		// install; npm retries on first request.
		s.logger.Warn("dependency install failed", zap.String("project", req.ProjectID), zap.Error(err))
	}

	entry, err := s.startDevServer(req.ProjectID, dir, req.Port, true)
	if err != nil {
		return nil, err
	}

	return &sandboxapi.StartResponse{
		Success:   true,
		Message:   "Project creation started (all previous projects terminated)",
		ProjectID: req.ProjectID,
		Port:      req.Port,
		StartTime: entry.StartTime.UTC().Format(time.RFC3339),
		Mode:      "SOLO_MODE",
	}, nil
}

// applyOverlay asks the control plane to transform the scaffold per the
// overview, then syncs the workspace to the commit it produced. Both
// steps are best effort: the baseline template still runs without them.
func (s *Supervisor) applyOverlay(ctx context.Context, req sandboxapi.CreateProjectRequest, dir string) {
	changeRequest := fmt.Sprintf("Create the initial project based on this overview: %s", req.ProjectOverview)
	projectContext := fmt.Sprintf("Initial project setup for %s. Transform the basic Next.js template into the described project.", req.ProjectTitle)

	changes, err := s.control.UpdateProject(ctx, req.ProjectID, changeRequest, projectContext)
	if err != nil {
		s.logger.Warn("initial overlay failed", zap.String("project", req.ProjectID), zap.Error(err))
		return
	}
	if changes == 0 {
		s.logger.Info("initial overlay produced no changes", zap.String("project", req.ProjectID))
		return
	}

	s.logger.Info("initial overlay applied",
		zap.String("project", req.ProjectID), zap.Int("changes", changes))
	s.sleep(ctx, s.cfg.PropagationDelay.Duration())
	if err := s.git.SyncToRemote(ctx, dir); err != nil {
		s.logger.Warn("failed to pull overlay changes", zap.String("project", req.ProjectID), zap.Error(err))
	}
}

// Restart kills whatever is running and brings the project's dev server
// back up from the latest pushed state.
func (s *Supervisor) Restart(ctx context.Context, projectID string, port int) (*sandboxapi.StartResponse, error) {
	s.logger.Info("restarting project", zap.String("project", projectID), zap.Int("port", port))

	s.evictAll(syscall.SIGKILL)
	for _, pattern := range killPatterns {
		s.launcher.KillPattern(pattern)
	}
	s.sleep(ctx, s.cfg.SettleDelay.Duration())

	dir := s.projectDir(projectID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := s.git.Clone(ctx, s.github.RepoURL(projectID), dir); err != nil {
			return nil, err
		}
		installCtx, cancel := context.WithTimeout(ctx, s.cfg.InstallTimeout.Duration())
		err := s.launcher.Install(installCtx, dir)
		cancel()
		if err != nil {
			return nil, err
		}
	} else {
		if err := s.git.SyncToRemote(ctx, dir); err != nil {
			// Stale files still serve; the restart itself matters more.
			s.logger.Warn("failed to sync before restart", zap.String("project", projectID), zap.Error(err))
		}
	}

	entry, err := s.startDevServer(projectID, dir, port, false)
	if err != nil {
		return nil, err
	}

	return &sandboxapi.StartResponse{
		Success:   true,
		Message:   fmt.Sprintf("Project '%s' restarted successfully", projectID),
		ProjectID: projectID,
		Port:      port,
		StartTime: entry.StartTime.UTC().Format(time.RFC3339),
		Mode:      "RESTART_MODE",
	}, nil
}

// Stop terminates the hosted project's process group.
func (s *Supervisor) Stop(projectID string) error {
	entry, ok := s.table.Get(projectID)
	if !ok {
		return ErrNotFound
	}
	if err := s.launcher.Signal(entry.PID, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop project %s: %w", projectID, err)
	}
	s.table.Remove(projectID)
	s.logger.Info("stopped project", zap.String("project", projectID))
	return nil
}

// PullChanges syncs the project workspace to the remote head without
// touching the running process. Next.js hot-reloads the new files.
func (s *Supervisor) PullChanges(ctx context.Context, projectID string) error {
	dir := s.projectDir(projectID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNotFound
	}
	if err := s.git.SyncToRemote(ctx, dir); err != nil {
		return err
	}
	s.logger.Info("pulled latest changes", zap.String("project", projectID))
	return nil
}

// startDevServer spawns the dev server and registers it as the sole
// running entry. removeDirOnExit controls whether the workdir is
// reclaimed when the process dies; creations reclaim, restarts keep the
// clone for the next restart.
func (s *Supervisor) startDevServer(projectID, dir string, port int, removeDirOnExit bool) (RunningEntry, error) {
	pid, err := s.launcher.StartDev(DevServerSpec{
		ProjectID:     projectID,
		Dir:           dir,
		Port:          port,
		MemoryLimitMB: s.cfg.MemoryLimitMB,
		CacheDir:      s.cfg.CacheDir,
		OnExit: func(pid int) {
			if !s.table.RemoveByExit(projectID, pid) {
				return
			}
			s.logger.Info("dev server gone from running set", zap.String("project", projectID))
			if removeDirOnExit {
				if err := os.RemoveAll(dir); err != nil {
					s.logger.Warn("failed to clean project directory", zap.String("project", projectID), zap.Error(err))
				}
			}
		},
	})
	if err != nil {
		return RunningEntry{}, err
	}

	entry := RunningEntry{
		ProjectID: projectID,
		Port:      port,
		StartTime: time.Now(),
		PID:       pid,
	}
	if err := s.table.Insert(entry); err != nil {
		// Should be unreachable after eviction; kill the orphan rather
		// than leak it.
		s.logger.Error("running table occupied after eviction", zap.Error(err))
		_ = s.launcher.Signal(pid, syscall.SIGKILL)
		return RunningEntry{}, err
	}

	if s.metrics != nil {
		s.metrics.ProjectStarts.Inc()
	}
	s.logger.Info("dev server started",
		zap.String("project", projectID), zap.Int("port", port), zap.Int("pid", pid))
	return entry, nil
}

// evictAll SIGKILLs every registered process group and clears the
// table. Per-kill failures are swallowed; the pattern kills that follow
// mop up anything a pid-based signal missed.
func (s *Supervisor) evictAll(sig syscall.Signal) {
	for _, entry := range s.table.EvictAll() {
		if err := s.launcher.Signal(entry.PID, sig); err != nil {
			s.logger.Warn("could not kill project",
				zap.String("project", entry.ProjectID), zap.Int("pid", entry.PID), zap.Error(err))
			continue
		}
		s.logger.Info("killed project", zap.String("project", entry.ProjectID), zap.Int("pid", entry.PID))
		if s.metrics != nil {
			s.metrics.Evictions.Inc()
		}
	}
}

func (s *Supervisor) projectDir(projectID string) string {
	return filepath.Join(s.cfg.ProjectsDir, projectID)
}

// sleep waits d unless ctx or the supervisor shuts down first.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	case <-s.stop:
	}
}
