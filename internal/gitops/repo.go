package gitops

import (
	"context"
	"net/http"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

// RepoFile is one file fetched from a repository tree.
type RepoFile struct {
	Path    string
	Content string
}

// CreateRepo creates a public repository under the service account,
// without auto-init so the first push owns the root commit.
func (c *Client) CreateRepo(ctx context.Context, name, description string) error {
	_, resp, err := c.gh.Repositories.Create(ctx, "", &github.Repository{
		Name:        github.String(name),
		Description: github.String(description),
		Private:     github.Bool(false),
		AutoInit:    github.Bool(false),
	})
	if err != nil {
		return upstream("repo creation", resp, err)
	}
	c.logger.Info("created repository", zap.String("repo", name))
	return nil
}

// DeleteRepo removes a repository. A missing repository is not an error.
func (c *Client) DeleteRepo(ctx context.Context, name string) error {
	resp, err := c.gh.Repositories.Delete(ctx, c.owner, name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return upstream("repo deletion", resp, err)
	}
	c.logger.Info("deleted repository", zap.String("repo", name))
	return nil
}

// ListFiles fetches every blob on the main branch, up to limit files
// (0 means no limit). Used to build codegen context.
func (c *Client) ListFiles(ctx context.Context, repo, branch string, limit int) ([]RepoFile, error) {
	tree, resp, err := c.gh.Git.GetTree(ctx, c.owner, repo, branch, true)
	if err != nil {
		return nil, upstream("tree fetch", resp, err)
	}

	var files []RepoFile
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		if limit > 0 && len(files) >= limit {
			break
		}
		raw, resp, err := c.gh.Git.GetBlobRaw(ctx, c.owner, repo, entry.GetSHA())
		if err != nil {
			return nil, upstream("blob fetch", resp, err)
		}
		files = append(files, RepoFile{Path: entry.GetPath(), Content: string(raw)})
	}
	return files, nil
}
