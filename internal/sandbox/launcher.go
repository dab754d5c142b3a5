package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
)

// DevServerSpec describes one dev server invocation.
type DevServerSpec struct {
	ProjectID     string
	Dir           string
	Port          int
	MemoryLimitMB int
	CacheDir      string
	// OnExit is invoked from the reaper goroutine once the process
	// exits, with the pid that was started.
	OnExit func(pid int)
}

// Launcher abstracts process control so the supervisor can be tested
// without spawning real npm processes.
type Launcher interface {
	// StartDev spawns the dev server detached in its own process group
	// and returns its pid.
	StartDev(spec DevServerSpec) (int, error)
	// Signal delivers sig to the process group rooted at pid.
	Signal(pid int, sig syscall.Signal) error
	// KillPattern force-kills every process whose command line matches
	// pattern. No match is not an error.
	KillPattern(pattern string)
	// Install runs npm install in dir.
	Install(ctx context.Context, dir string) error
	// CleanCache clears the npm package cache.
	CleanCache(ctx context.Context)
}

// execLauncher runs real processes.
type execLauncher struct {
	logger *zap.Logger
}

// NewExecLauncher returns the Launcher backed by os/exec.
func NewExecLauncher(logger *zap.Logger) Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &execLauncher{logger: logger}
}

func (l *execLauncher) StartDev(spec DevServerSpec) (int, error) {
	cmd := exec.Command("npm", "run", "dev")
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PORT=%d", spec.Port),
		fmt.Sprintf("NODE_OPTIONS=--max-old-space-size=%d", spec.MemoryLimitMB),
		fmt.Sprintf("npm_config_cache=%s", spec.CacheDir),
	)
	// Own process group so eviction can kill npm and every node child
	// it forked in one signal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start dev server: %w", err)
	}
	pid := cmd.Process.Pid

	go l.drain(spec.ProjectID, "stdout", stdout)
	go l.drain(spec.ProjectID, "stderr", stderr)

	go func() {
		err := cmd.Wait()
		l.logger.Info("dev server exited",
			zap.String("project", spec.ProjectID),
			zap.Int("pid", pid),
			zap.Error(err),
		)
		if spec.OnExit != nil {
			spec.OnExit(pid)
		}
	}()

	return pid, nil
}

func (l *execLauncher) drain(projectID, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		l.logger.Debug("dev server output",
			zap.String("project", projectID),
			zap.String("stream", stream),
			zap.String("line", scanner.Text()),
		)
	}
}

func (l *execLauncher) Signal(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

func (l *execLauncher) KillPattern(pattern string) {
	// pkill exits 1 when nothing matched, which is the common case.
	if err := exec.Command("pkill", "-9", "-f", pattern).Run(); err == nil {
		l.logger.Debug("killed processes", zap.String("pattern", pattern))
	}
}

func (l *execLauncher) Install(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, "npm", "install")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("npm install failed: %w (%s)", err, firstLine(out))
	}
	return nil
}

func (l *execLauncher) CleanCache(ctx context.Context) {
	if err := exec.CommandContext(ctx, "npm", "cache", "clean", "--force").Run(); err != nil {
		l.logger.Debug("npm cache clean failed", zap.Error(err))
	}
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}
