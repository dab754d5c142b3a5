// Package provision is the control-plane project provisioner: id and
// port derivation, registry writes, forwarding to the sandbox daemon,
// and the async initial-codegen automation.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/codegen"
	"github.com/athenalabs/athena/internal/config"
	"github.com/athenalabs/athena/internal/registry"
	"github.com/athenalabs/athena/internal/sandboxapi"
)

// ErrMissingOverview indicates a creation request without overview text.
var ErrMissingOverview = errors.New("projectoverview is required")

// Store is the slice of the project registry the provisioner uses.
type Store interface {
	Put(ctx context.Context, p *registry.Project) error
	Get(ctx context.Context, id string) (*registry.Project, error)
	Delete(ctx context.Context, id string) error
}

// Sandbox is the slice of the sandbox daemon client the provisioner
// uses.
type Sandbox interface {
	ListRunning(ctx context.Context) ([]sandboxapi.RunningProject, error)
	CreateProject(ctx context.Context, req sandboxapi.CreateProjectRequest) (*sandboxapi.StartResponse, error)
}

// Codegen runs the change-application pipeline.
type Codegen interface {
	GenerateAndApply(ctx context.Context, repoID, changeRequest, projectContext string) (*codegen.Result, error)
}

// RepoAdmin deletes hosted repositories.
type RepoAdmin interface {
	DeleteRepo(ctx context.Context, name string) error
}

// Provisioner creates and deletes projects.
type Provisioner struct {
	store    Store
	sandbox  Sandbox
	codegen  Codegen
	repos    RepoAdmin
	cfg      config.ProvisionConfig
	basePort int
	logger   *zap.Logger
}

// New wires a Provisioner.
func New(store Store, sandbox Sandbox, cg Codegen, repos RepoAdmin, cfg config.ProvisionConfig, basePort int, logger *zap.Logger) (*Provisioner, error) {
	if store == nil || sandbox == nil || cg == nil || repos == nil {
		return nil, fmt.Errorf("store, sandbox, codegen, and repos are all required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		store:    store,
		sandbox:  sandbox,
		codegen:  cg,
		repos:    repos,
		cfg:      cfg,
		basePort: basePort,
		logger:   logger,
	}, nil
}

// CreateProject provisions a new project and returns its record with
// status "created", plus the background job populating it. The caller's
// response does not wait for the job: the record's status field is the
// authoritative, polled signal of eventual success or failure.
func (p *Provisioner) CreateProject(ctx context.Context, overview, stack, deployment string) (*registry.Project, *Job, error) {
	if overview == "" {
		return nil, nil, ErrMissingOverview
	}
	if stack == "" {
		stack = "next-on-pages"
	}
	if deployment == "" {
		deployment = "cloudflare"
	}

	projectID := GenerateProjectID(overview)
	title := TitleFromID(projectID)
	port := p.allocatePort(ctx)

	now := time.Now()
	project := &registry.Project{
		ID:               projectID,
		Title:            title,
		Overview:         overview,
		Stack:            stack,
		Deployment:       deployment,
		Port:             port,
		Status:           registry.StatusCreating,
		CreatedAt:        now.UTC(),
		CreatedTimestamp: now.UnixMilli(),
	}
	if err := p.store.Put(ctx, project); err != nil {
		return nil, nil, err
	}

	p.logger.Info("forwarding project creation to sandbox",
		zap.String("project", projectID), zap.Int("port", port))

	_, err := p.sandbox.CreateProject(ctx, sandboxapi.CreateProjectRequest{
		ProjectID:       projectID,
		ProjectTitle:    title,
		Port:            port,
		ProjectOverview: overview,
	})
	if err != nil {
		project.Status = registry.StatusError
		project.Error = err.Error()
		if putErr := p.store.Put(ctx, project); putErr != nil {
			p.logger.Error("failed to record sandbox error", zap.Error(putErr))
		}
		return nil, nil, fmt.Errorf("sandbox creation failed: %w", err)
	}

	project.Status = registry.StatusCreated
	if err := p.store.Put(ctx, project); err != nil {
		return nil, nil, err
	}

	job := p.startInitialCodegen(project)
	return project, job, nil
}

// DeleteProject removes the hosted repository and the registry record.
func (p *Provisioner) DeleteProject(ctx context.Context, id string) error {
	if err := p.repos.DeleteRepo(ctx, id); err != nil {
		return fmt.Errorf("failed to delete repository: %w", err)
	}
	if err := p.store.Delete(ctx, id); err != nil {
		return err
	}
	p.logger.Info("project deleted", zap.String("project", id))
	return nil
}

// allocatePort picks the lowest free port at or above the base by
// querying the live running set. A registry query failure falls back to
// the base port.
func (p *Provisioner) allocatePort(ctx context.Context) int {
	running, err := p.sandbox.ListRunning(ctx)
	if err != nil {
		p.logger.Warn("could not query running projects, using base port", zap.Error(err))
		return p.basePort
	}

	used := make([]int, 0, len(running))
	for _, r := range running {
		used = append(used, r.Port)
	}
	return LowestFreePort(used, p.basePort)
}
