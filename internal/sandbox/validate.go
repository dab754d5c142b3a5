package sandbox

import (
	"regexp"
	"strings"

	"github.com/athenalabs/athena/internal/sandboxapi"
)

var projectIDChars = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidationError carries every violation found in a creation request
// so the caller sees the full list, not just the first.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// validateCreateRequest checks a creation request against repository
// naming and port range constraints.
func validateCreateRequest(req sandboxapi.CreateProjectRequest) *ValidationError {
	var details []string

	if strings.TrimSpace(req.ProjectID) == "" {
		details = append(details, "projectId is required and must be a non-empty string")
	} else if !projectIDChars.MatchString(req.ProjectID) {
		details = append(details, "projectId can only contain letters, numbers, hyphens, and underscores")
	}

	if strings.TrimSpace(req.ProjectTitle) == "" {
		details = append(details, "projectTitle is required and must be a non-empty string")
	}

	if req.Port < 3001 || req.Port > 5000 {
		details = append(details, "port is required and must be an integer between 3001-5000")
	}

	if strings.TrimSpace(req.ProjectOverview) == "" {
		details = append(details, "projectOverview is required and must be a non-empty string")
	}

	if len(details) == 0 {
		return nil
	}
	return &ValidationError{Details: details}
}
