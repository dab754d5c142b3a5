package gitops

import (
	"context"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/athenalabs/athena/internal/changeset"
)

const blobMode = "100644"

// ApplyChanges lands every change as one new commit on branch and
// fast-forwards the ref to it. Either the whole change set is committed
// or the ref is left untouched; blobs created before a failure are
// unreferenced and harmless.
//
// Deleting a path that does not exist on the branch is a no-op.
// Duplicate paths within one change set are passed through to the tree
// call untouched.
func (c *Client) ApplyChanges(ctx context.Context, repoURL, branch string, changes []changeset.FileChange, message string) (string, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return "", err
	}

	ref, resp, err := c.gh.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		return "", upstream("branch lookup", resp, err)
	}
	headSHA := ref.GetObject().GetSHA()

	var entries []*github.TreeEntry
	for _, change := range changes {
		if change.Remove {
			// A nil SHA tree entry marks deletion; skip silently when the
			// file is not on the branch.
			_, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, change.Path,
				&github.RepositoryContentGetOptions{Ref: branch})
			if err != nil {
				c.logger.Debug("skipping delete of missing file",
					zap.String("repo", repo), zap.String("path", change.Path))
				continue
			}
			entries = append(entries, &github.TreeEntry{
				Path: github.String(change.Path),
				Mode: github.String(blobMode),
				Type: github.String("blob"),
			})
			continue
		}

		blob, resp, err := c.gh.Git.CreateBlob(ctx, owner, repo, &github.Blob{
			Content:  github.String(change.Content),
			Encoding: github.String("utf-8"),
		})
		if err != nil {
			return "", upstream("blob creation", resp, err)
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.String(change.Path),
			Mode: github.String(blobMode),
			Type: github.String("blob"),
			SHA:  blob.SHA,
		})
	}

	tree, resp, err := c.gh.Git.CreateTree(ctx, owner, repo, headSHA, entries)
	if err != nil {
		return "", upstream("tree creation", resp, err)
	}

	commit, resp, err := c.gh.Git.CreateCommit(ctx, owner, repo, &github.Commit{
		Message: github.String(message),
		Tree:    &github.Tree{SHA: tree.SHA},
		Parents: []*github.Commit{{SHA: github.String(headSHA)}},
	}, nil)
	if err != nil {
		return "", upstream("commit creation", resp, err)
	}

	_, resp, err = c.gh.Git.UpdateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		return "", upstream("ref update", resp, err)
	}

	c.logger.Info("applied change set",
		zap.String("repo", repo),
		zap.String("branch", branch),
		zap.Int("changes", len(changes)),
		zap.String("commit", commit.GetSHA()),
	)
	return commit.GetSHA(), nil
}
