package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	memCheckInterval    = time.Minute
	orphanSweepInterval = 5 * time.Minute

	// memPressureThreshold is the used-memory percentage above which a
	// cleanup sweep is forced between scheduled sweeps.
	memPressureThreshold = 80.0
)

// killPatterns match the process trees a dev server leaves behind.
var killPatterns = []string{"npm run dev", "next dev", "node.*server"}

// nuclearCleanup wipes every trace of previous projects: process trees,
// workdirs, and the package cache. Run before each creation so the new
// project starts on a machine that looks freshly booted.
func (s *Supervisor) nuclearCleanup(ctx context.Context) {
	for _, pattern := range killPatterns {
		s.launcher.KillPattern(pattern)
	}

	entries, err := os.ReadDir(s.cfg.ProjectsDir)
	if err != nil && !os.IsNotExist(err) {
		s.logger.Warn("could not read projects directory", zap.Error(err))
	}
	for _, entry := range entries {
		path := filepath.Join(s.cfg.ProjectsDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("could not remove project directory", zap.String("path", path), zap.Error(err))
		}
	}

	s.launcher.CleanCache(ctx)
	s.logger.Info("cleaned project directories and package cache")
}

// orphanCleanup reclaims leaked dev server processes and workdirs old
// enough that no live project can own them.
func (s *Supervisor) orphanCleanup() {
	s.logger.Info("cleaning up orphaned processes")
	s.launcher.KillPattern("npm run dev")
	s.launcher.KillPattern("next dev")

	cutoff := time.Now().Add(-s.cfg.StaleDirAge.Duration())
	entries, err := os.ReadDir(s.cfg.ProjectsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("could not read projects directory", zap.Error(err))
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.cfg.ProjectsDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("could not remove stale directory", zap.String("path", path), zap.Error(err))
		} else {
			s.logger.Info("removed stale project directory", zap.String("path", path))
		}
	}

	if s.metrics != nil {
		s.metrics.OrphanCleanups.Inc()
	}
}

// checkMemoryPressure samples host memory and forces a cleanup sweep
// when usage crosses the threshold.
func (s *Supervisor) checkMemoryPressure() {
	usedPct, err := readMemoryUsedPercent()
	if err != nil {
		s.logger.Debug("could not sample memory", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.MemoryUsedPct.Set(usedPct)
	}
	s.logger.Debug("memory usage sampled", zap.Float64("used_percent", usedPct))

	if usedPct > memPressureThreshold {
		s.logger.Warn("high memory usage, running cleanup", zap.Float64("used_percent", usedPct))
		s.orphanCleanup()
	}
}

// StartMaintenance launches the periodic memory check and orphan sweep.
// An initial sweep runs immediately so a crashed predecessor's leavings
// do not survive a daemon restart.
func (s *Supervisor) StartMaintenance() {
	s.orphanCleanup()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(memCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.checkMemoryPressure()
			case <-s.stop:
				return
			}
		}
	}()
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(orphanSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.orphanCleanup()
			case <-s.stop:
				return
			}
		}
	}()
}

// Close stops the maintenance loops and unblocks any pending waits.
func (s *Supervisor) Close() {
	close(s.stop)
	s.wg.Wait()
}
