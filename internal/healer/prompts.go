package healer

import (
	"fmt"
	"strings"

	"testforge/internal/executor"
	"testforge/internal/filestore"
)

const healSystemPrompt = `You are an expert Go test engineer fixing failing generated tests. The
failures are caused by bugs in the test code itself: compile errors, wrong
request construction, malformed bodies, broken assertions.

HARD CONSTRAINT: tests that expect an error status (4xx or 5xx) verify
error handling of the API. You must NEVER change such a test's expected
status to a success status (2xx) to make it pass. Fix the request, the
body, or the assertion logic instead. If the only way to make such a test
pass is to expect success, leave that test unchanged.

Respond with one or more fix blocks, each a full file replacement:

FILE: <relative path>
` + "```go" + `
<complete file content>
` + "```" + `
RATIONALE: <one line>`

const maxFailureOutputChars = 2000

// buildFixPrompt renders the genuine failures and the current project
// sources into the fix prompt.
func buildFixPrompt(failures []executor.TestDetail, files []filestore.File) string {
	var sb strings.Builder

	sb.WriteString("Failing tests:\n")
	for _, f := range failures {
		output := f.Output
		if len(output) > maxFailureOutputChars {
			output = output[:maxFailureOutputChars] + "\n[output truncated]"
		}
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", f.Name, output)
	}

	sb.WriteString("\nCurrent project files:\n")
	for _, f := range files {
		fmt.Fprintf(&sb, "\nFILE: %s\n```go\n%s\n```\n", f.Path, f.Content)
	}

	sb.WriteString("\nReturn full replacement files only for the files that need to change.")
	return sb.String()
}

// parseFixes parses FILE/fenced-content/RATIONALE blocks out of a fix
// response. Blocks missing a path or content are dropped.
func parseFixes(response string) []TestFix {
	var fixes []TestFix

	for _, part := range strings.Split(response, "FILE:")[1:] {
		lines := strings.SplitN(part, "\n", 2)
		path := strings.TrimSpace(lines[0])
		if path == "" || len(lines) < 2 {
			continue
		}
		rest := lines[1]

		content := fencedContent(rest)
		if content == "" {
			continue
		}

		rationale := ""
		if idx := strings.LastIndex(rest, "RATIONALE:"); idx != -1 {
			rationale = strings.TrimSpace(rest[idx+len("RATIONALE:"):])
			if nl := strings.Index(rationale, "\n"); nl != -1 {
				rationale = rationale[:nl]
			}
		}

		fixes = append(fixes, TestFix{Path: path, Content: content, Rationale: rationale})
	}
	return fixes
}

// fencedContent extracts the first fenced code block.
func fencedContent(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return ""
	}
	rest := s[start+3:]
	if nl := strings.Index(rest, "\n"); nl != -1 {
		rest = rest[nl+1:]
	} else {
		return ""
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end]) + "\n"
}
