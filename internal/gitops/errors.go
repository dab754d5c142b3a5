package gitops

import (
	"errors"
	"fmt"

	"github.com/google/go-github/v57/github"
)

// ErrInvalidRepoURL indicates a repository URL that does not match
// host/owner/repo[.git].
var ErrInvalidRepoURL = errors.New("invalid GitHub repository URL")

// UpstreamError wraps a non-2xx response from the Git hosting API,
// preserving the HTTP status and the failing operation.
type UpstreamError struct {
	Op     string
	Status int
	Err    error
}

// Error implements error.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("github %s failed (status %d): %v", e.Op, e.Status, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// upstream converts a go-github call result into an *UpstreamError.
func upstream(op string, resp *github.Response, err error) error {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	return &UpstreamError{Op: op, Status: status, Err: err}
}
