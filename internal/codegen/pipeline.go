// Package codegen turns free-text change requests into committed code:
// prompt build, text completion, parse, atomic commit, sandbox sync.
package codegen

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/changeset"
	"github.com/athenalabs/athena/internal/config"
	"github.com/athenalabs/athena/internal/gitops"
)

// ErrEmptyCompletion indicates the backend returned a blank completion.
var ErrEmptyCompletion = errors.New("empty response from completion backend")

// Applier is the slice of the gitops client the pipeline needs.
type Applier interface {
	ApplyChanges(ctx context.Context, repoURL, branch string, changes []changeset.FileChange, message string) (string, error)
	ListFiles(ctx context.Context, repo, branch string, limit int) ([]gitops.RepoFile, error)
}

// Notifier tells the sandbox daemon to pull a fresh commit. Failures are
// logged, never propagated: the repository is the durable result and the
// sandbox catches up on its next restart.
type Notifier interface {
	PullChanges(ctx context.Context, projectID string) error
}

// Result is the outcome of one change-application run.
type Result struct {
	Changes   []changeset.FileChange `json:"changes"`
	CommitSHA string                 `json:"commitSha"`
}

// Pipeline orchestrates the codegen path. It performs no retries; retry
// policy lives with the caller.
type Pipeline struct {
	completer Completer
	git       Applier
	notifier  Notifier
	github    config.GitHubConfig
	cfg       config.CodegenConfig
	logger    *zap.Logger
}

// NewPipeline wires the pipeline. notifier may be nil.
func NewPipeline(completer Completer, git Applier, notifier Notifier, github config.GitHubConfig, cfg config.CodegenConfig, logger *zap.Logger) (*Pipeline, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if git == nil {
		return nil, fmt.Errorf("git applier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		completer: completer,
		git:       git,
		notifier:  notifier,
		github:    github,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// GenerateAndApply runs the full pipeline for one change request against
// repoID and returns the applied changes.
func (p *Pipeline) GenerateAndApply(ctx context.Context, repoID, changeRequest, projectContext string) (*Result, error) {
	// Repository contents enrich the prompt; a fetch failure only costs
	// context, not the run.
	files, err := p.git.ListFiles(ctx, repoID, p.cfg.Branch, p.cfg.ContextFileCap)
	if err != nil {
		p.logger.Warn("failed to fetch repo contents for prompt context",
			zap.String("repo", repoID), zap.Error(err))
		files = nil
	}

	output, err := p.completer.Complete(ctx, systemPrompt, buildUserPrompt(repoID, changeRequest, projectContext, files))
	if err != nil {
		return nil, fmt.Errorf("code generation failed: %w", err)
	}
	if output == "" {
		return nil, ErrEmptyCompletion
	}

	changes := changeset.Parse(output)
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: try a more specific change request", changeset.ErrNoChanges)
	}

	sha, err := p.git.ApplyChanges(ctx, p.github.RepoURL(repoID), p.cfg.Branch, changes, p.commitMessage(changeRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to commit changes: %w", err)
	}

	p.logger.Info("change request applied",
		zap.String("repo", repoID),
		zap.Int("changes", len(changes)),
		zap.String("commit", sha),
	)

	if p.notifier != nil {
		if err := p.notifier.PullChanges(ctx, repoID); err != nil {
			p.logger.Warn("sandbox pull notification failed, sandbox will catch up on restart",
				zap.String("project", repoID), zap.Error(err))
		}
	}

	return &Result{Changes: changes, CommitSHA: sha}, nil
}

// commitMessage truncates the change request into the commit subject.
// The trailing ellipsis is unconditional, short requests included.
func (p *Pipeline) commitMessage(changeRequest string) string {
	const max = 50
	runes := []rune(changeRequest)
	if len(runes) > max {
		runes = runes[:max]
	}
	return p.cfg.CommitPrefix + string(runes) + "..."
}
