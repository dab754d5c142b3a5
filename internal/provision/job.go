package provision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/registry"
)

// Job is the background initial-codegen automation for one project. It
// always writes a terminal status (ready or error) to the registry
// before closing its Done channel, so the record is never parked in
// "created" indefinitely.
type Job struct {
	ProjectID string
	done      chan struct{}
}

// Done is closed once the job has written its terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// startInitialCodegen launches the bounded retry loop that populates a
// freshly created repository from the project overview. Detached from
// the request context: the HTTP response has already been decided.
func (p *Provisioner) startInitialCodegen(project *registry.Project) *Job {
	job := &Job{ProjectID: project.ID, done: make(chan struct{})}
	// The job owns its own copy; the caller's snapshot is already on
	// its way out in the HTTP response.
	snapshot := *project
	go p.runInitialCodegen(context.Background(), &snapshot, job)
	return job
}

func (p *Provisioner) runInitialCodegen(ctx context.Context, project *registry.Project, job *Job) {
	defer close(job.done)

	changeRequest := fmt.Sprintf("Create the initial project based on this overview: %s", project.Overview)
	projectContext := fmt.Sprintf("Initial project setup for %s. Transform the basic Next.js template into the described project.", project.Title)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(p.cfg.RetryDelay.Duration()):
		}
		// Only cancellation during the sleep ends the loop early; a
		// failed attempt keeps retrying until the bound is spent.
		if ctx.Err() != nil {
			break
		}

		result, err := p.codegen.GenerateAndApply(ctx, project.ID, changeRequest, projectContext)
		if err != nil {
			// Intermediate failures are logged, not reported; only the
			// last error surfaces if every attempt fails.
			lastErr = err
			p.logger.Warn("initial codegen attempt failed",
				zap.String("project", project.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.cfg.MaxAttempts),
				zap.Error(err),
			)
			continue
		}

		project.Status = registry.StatusReady
		project.Error = ""
		project.LastChange = time.Now().UnixMilli()
		project.Changes = result.Changes
		if err := p.store.Put(ctx, project); err != nil {
			p.logger.Error("failed to record ready status", zap.String("project", project.ID), zap.Error(err))
		}
		p.logger.Info("initial codegen succeeded",
			zap.String("project", project.ID),
			zap.Int("attempt", attempt),
			zap.Int("changes", len(result.Changes)),
		)
		return
	}

	msg := "change request failed after retries"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	project.Status = registry.StatusError
	project.Error = msg
	if err := p.store.Put(ctx, project); err != nil {
		p.logger.Error("failed to record error status", zap.String("project", project.ID), zap.Error(err))
	}
	p.logger.Warn("initial codegen exhausted retries",
		zap.String("project", project.ID), zap.String("error", msg))
}
