// Package changeset extracts structured file operations from raw
// text-completion output.
//
// The completion contract uses two tag vocabularies, freely interleaved
// with prose that is ignored:
//
//	<page><path>app/page.tsx</path><content>...</content></page>
//	<file><path>app/page.tsx</path>...</file>
//	remove(app/old.tsx)
package changeset

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoChanges indicates the completion contained no recognizable file
// operations. Callers must fail rather than committing nothing.
var ErrNoChanges = errors.New("no file changes found in completion output")

// FileChange is one file create/update (Content set) or deletion
// (Remove set, Content empty). Path never begins with "/".
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Remove  bool   `json:"remove,omitempty"`
}

var (
	pageRe   = regexp.MustCompile(`(?s)<page>\s*<path>(.*?)</path>\s*<content>(.*?)</content>\s*</page>`)
	fileRe   = regexp.MustCompile(`(?s)<file>\s*<path>(.*?)</path>(.*?)</file>`)
	removeRe = regexp.MustCompile(`remove\((.*?)\)`)
)

// Parse scans output left to right and returns the extracted changes:
// first every <page> and <file> block in appearance order, then every
// remove() directive. A single leading slash is stripped from each path
// because the commit API rejects absolute paths; no further path
// validation is performed.
func Parse(output string) []FileChange {
	var changes []FileChange

	for _, m := range pageRe.FindAllStringSubmatch(output, -1) {
		changes = append(changes, FileChange{
			Path:    normalizePath(m[1]),
			Content: strings.TrimSpace(m[2]),
		})
	}
	for _, m := range fileRe.FindAllStringSubmatch(output, -1) {
		changes = append(changes, FileChange{
			Path:    normalizePath(m[1]),
			Content: strings.TrimSpace(m[2]),
		})
	}
	for _, m := range removeRe.FindAllStringSubmatch(output, -1) {
		changes = append(changes, FileChange{
			Path:   normalizePath(m[1]),
			Remove: true,
		})
	}

	return changes
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	return strings.TrimPrefix(p, "/")
}
