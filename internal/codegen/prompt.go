package codegen

import (
	"fmt"
	"strings"

	"github.com/athenalabs/athena/internal/gitops"
)

// systemPrompt fixes the output-format contract the parser understands.
const systemPrompt = `You are Athena, the Code Generator Agent. You receive a change request for a Next.js frontend project and must generate the required code changes.

Your job is to:
1. Understand the change request
2. Generate the necessary code files
3. Output the changes in this exact format:

<page><path>path/to/file.ext</path><content>
// Your code here
</content></page>

<page><path>another/file.js</path><content>
// Another file's code
</content></page>

remove(path/to/delete/file.js)

Rules:
- Only generate frontend code (HTML, CSS, JavaScript, React components)
- Be concise and practical
- Use modern web standards
- Include proper HTML structure for HTML files
- Use semantic HTML and modern CSS
- For React components, use functional components with hooks
- Output ONLY the code changes, no explanations
- Use the exact format shown above
- IMPORTANT: File paths should NOT start with a slash (e.g., use "index.html" not "/index.html")
- If creating a new file, use <page> tags
- If deleting a file, use remove(path) format`

// buildUserPrompt assembles the user message from the change request,
// optional project context, and optional repository contents.
func buildUserPrompt(repoID, changeRequest, projectContext string, files []gitops.RepoFile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Change Request: %s\n\n", changeRequest)
	if projectContext != "" {
		fmt.Fprintf(&b, "Project Context: %s\n\n", projectContext)
	}
	fmt.Fprintf(&b, "Repository: %s\n\n", repoID)

	if len(files) > 0 {
		b.WriteString("Current repository files:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "File: %s\n%s\n---\n", f.Path, f.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Please generate the necessary code files to implement this change request. Output only the file changes in the required format.")
	return b.String()
}
