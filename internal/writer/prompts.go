package writer

import (
	"fmt"
	"strings"

	"testforge/internal/plan"
)

const codegenSystemPrompt = `You are an expert Go test engineer. You write functional HTTP API tests
using the standard testing package and a provided testutil helper package.
You respond with a single Go source file in a fenced code block and nothing
else. Every test function you are given must appear with exactly the name
provided. Never rename a test and never change its expected status code.`

// buildChunkPrompt renders the codegen prompt for one chunk of plan
// items. The testutil contract is restated verbatim so the model never
// invents helpers that do not exist.
func buildChunkPrompt(items []plan.TestPlanItem) string {
	var sb strings.Builder

	sb.WriteString(`Write one Go test file implementing the test cases below.

The file must:
- start with: package apitest
- import "testing" and "` + testutilImportPlaceholder + `"
- define exactly one test function per case, using the exact function
  name given for that case

Available helpers in testutil:
- testutil.NewClient(t) *testutil.Client
- (c *Client).Do(t, method, path, body string) (*http.Response, string)
  performs the request and returns the response and its body
- testutil.RequireStatus(t, resp, wantStatus)
- testutil.RequireBodyContains(t, body, substring)
- testutil.SaveID(operationID, responseBody) stashes the created id
- testutil.ResolvePath(pathTemplate, operationID) substitutes {param}
  segments with the id stashed by that operation

For cases listing a dependsOn operation, resolve the path with
testutil.ResolvePath using the first dependsOn operation id. For
creation cases, call testutil.SaveID after asserting the status so
dependent cases can reuse the created id.

Test cases:
`)

	for _, item := range items {
		fmt.Fprintf(&sb, "\n- function name: %s\n", item.Name)
		fmt.Fprintf(&sb, "  request: %s %s\n", strings.ToUpper(item.Method), item.Path)
		fmt.Fprintf(&sb, "  category: %s\n", item.Category)
		fmt.Fprintf(&sb, "  description: %s\n", item.Description)
		fmt.Fprintf(&sb, "  expected status: %d (assert with testutil.RequireStatus)\n", item.ExpectedStatus)
		if item.NeedsBody {
			body := item.SuggestedBody
			if body == "" {
				body = "{}"
			}
			fmt.Fprintf(&sb, "  request body: %s\n", body)
		}
		if len(item.DependsOn) > 0 {
			fmt.Fprintf(&sb, "  dependsOn: %s\n", strings.Join(item.DependsOn, ", "))
		}
		for _, a := range item.Assertions {
			fmt.Fprintf(&sb, "  assert: %s\n", a)
		}
	}

	sb.WriteString("\nRespond with the complete Go file in a single fenced code block.")
	return sb.String()
}

// extractGoSource pulls the Go source out of a codegen response. It
// prefers a fenced code block; failing that, it accepts a raw response
// that starts at a package clause. Returns "" when no usable source is
// present.
func extractGoSource(response string) string {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```"); idx != -1 {
		rest := response[idx+3:]
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end != -1 {
			rest = rest[:end]
		}
		response = strings.TrimSpace(rest)
	}

	if pkg := strings.Index(response, "package "); pkg != -1 {
		return strings.TrimSpace(response[pkg:])
	}
	return ""
}
