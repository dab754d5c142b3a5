package sandbox

import (
	"fmt"
	"sync"
	"time"
)

// RunningEntry describes the dev server currently hosted by the
// sandbox.
type RunningEntry struct {
	ProjectID string
	Port      int
	StartTime time.Time
	PID       int
}

// runningTable is the mutex-guarded record of what the sandbox hosts.
// The sandbox runs one project at a time, so the table holds at most
// one entry; Insert enforces it.
type runningTable struct {
	mu    sync.Mutex
	entry *RunningEntry
}

func newRunningTable() *runningTable {
	return &runningTable{}
}

// List returns the current entries, newest first. With the single
// tenant invariant this is zero or one entry.
func (t *runningTable) List() []RunningEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entry == nil {
		return nil
	}
	return []RunningEntry{*t.entry}
}

// Get looks up the entry for projectID.
func (t *runningTable) Get(projectID string) (RunningEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entry == nil || t.entry.ProjectID != projectID {
		return RunningEntry{}, false
	}
	return *t.entry, true
}

// Insert registers the sole running project. Callers must have evicted
// first; a still-occupied table is a bug, not a race to resolve.
func (t *runningTable) Insert(e RunningEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entry != nil {
		return fmt.Errorf("running table occupied by %q, eviction did not complete", t.entry.ProjectID)
	}
	copied := e
	t.entry = &copied
	return nil
}

// EvictAll empties the table and returns what was evicted so the
// caller can kill the processes.
func (t *runningTable) EvictAll() []RunningEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entry == nil {
		return nil
	}
	evicted := []RunningEntry{*t.entry}
	t.entry = nil
	return evicted
}

// RemoveByExit clears the entry when the recorded process exits. The
// PID guard keeps a stale exit notification from a killed predecessor
// from removing its successor's entry.
func (t *runningTable) RemoveByExit(projectID string, pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entry == nil || t.entry.ProjectID != projectID || t.entry.PID != pid {
		return false
	}
	t.entry = nil
	return true
}

// Remove clears the entry for projectID regardless of PID.
func (t *runningTable) Remove(projectID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entry == nil || t.entry.ProjectID != projectID {
		return false
	}
	t.entry = nil
	return true
}
