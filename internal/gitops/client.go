// Package gitops performs all Git hosting operations for the platform:
// repository administration and atomic multi-file commits through the
// low-level Git data API (blobs, trees, commits, refs).
package gitops

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/athenalabs/athena/internal/config"
)

// repoURLPattern extracts owner and repo from a clone URL.
var repoURLPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/]+?)(?:\.git)?$`)

// Client talks to the Git hosting provider under the fixed service
// identity.
type Client struct {
	gh     *github.Client
	owner  string
	logger *zap.Logger
}

// NewClient creates a Client authenticated with the service account
// token.
func NewClient(ctx context.Context, cfg config.GitHubConfig, logger *zap.Logger) (*Client, error) {
	if !cfg.Token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))

	if cfg.BaseURL != "" && cfg.BaseURL != "https://api.github.com/" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
		gh.BaseURL = base
	}

	return &Client{gh: gh, owner: cfg.Owner, logger: logger}, nil
}

// Owner returns the service account login that owns every project repo.
func (c *Client) Owner() string {
	return c.owner
}

// ParseRepoURL resolves a clone URL into owner and repo name.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(repoURL)
	if m == nil {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidRepoURL, repoURL)
	}
	return m[1], m[2], nil
}
