package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/config"
)

const (
	commitAuthorName  = "Athena AI Service Account"
	commitAuthorEmail = "athena-service@example.com"
)

// GitWorkspace manages the local clone of a project repository.
type GitWorkspace interface {
	// Clone checks the repository out into dir. A freshly created,
	// still-empty remote yields an initialized local repo wired to it.
	Clone(ctx context.Context, url, dir string) error
	// CommitAndPush stages everything in dir, commits, and pushes the
	// branch.
	CommitAndPush(ctx context.Context, dir, message string) error
	// SyncToRemote fetches and hard-resets dir to the remote branch
	// head, discarding local state.
	SyncToRemote(ctx context.Context, dir string) error
}

type gitWorkspace struct {
	auth   *githttp.BasicAuth
	branch string
	logger *zap.Logger
}

// NewGitWorkspace returns a GitWorkspace authenticating as the service
// account.
func NewGitWorkspace(cfg config.GitHubConfig, branch string, logger *zap.Logger) GitWorkspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	var auth *githttp.BasicAuth
	if cfg.Token.IsSet() {
		auth = &githttp.BasicAuth{Username: cfg.Owner, Password: cfg.Token.Value()}
	}
	return &gitWorkspace{auth: auth, branch: branch, logger: logger}
}

func (w *gitWorkspace) Clone(ctx context.Context, url, dir string) error {
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  url,
		Auth: w.auth,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return fmt.Errorf("failed to clone %s: %w", url, err)
	}

	// Repos are created without auto-init, so the first clone lands on
	// an empty remote. Initialize locally and wire the remote by hand.
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return fmt.Errorf("failed to init workspace: %w", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	}); err != nil {
		return fmt.Errorf("failed to add origin remote: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(w.branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return fmt.Errorf("failed to set HEAD: %w", err)
	}
	w.logger.Debug("initialized workspace for empty remote", zap.String("dir", dir))
	return nil
}

func (w *gitWorkspace) CommitAndPush(ctx context.Context, dir, message string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage files: %w", err)
	}
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  commitAuthorName,
			Email: commitAuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", w.branch, w.branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       w.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to push: %w", err)
	}
	return nil
}

func (w *gitWorkspace) SyncToRemote(ctx context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		Auth:       w.auth,
		Force:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", w.branch), true)
	if err != nil {
		return fmt.Errorf("failed to resolve origin/%s: %w", w.branch, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: ref.Hash()}); err != nil {
		return fmt.Errorf("failed to reset to origin/%s: %w", w.branch, err)
	}
	return nil
}
