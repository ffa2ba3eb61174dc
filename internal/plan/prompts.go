package plan

import (
	"fmt"
	"strings"

	"testforge/internal/apispec"
)

const planSystemPrompt = `You are an expert API test engineer. You design positive-path functional
test plans for HTTP APIs. You respond with a single JSON object and nothing
else. Do not invent operations that are not in the provided specification.`

// buildPlanPrompt serializes a spec summary into the planning prompt:
// operations, parameters, truncated schema previews and response codes.
func buildPlanPrompt(spec *apispec.Spec, schemaPreviewChars int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("API: %s\nBase URL: %s\n\nOperations:\n", spec.Title, spec.BaseURL))

	for _, op := range spec.Operations {
		sb.WriteString(fmt.Sprintf("- %s: %s %s", op.ID, strings.ToUpper(op.Method), op.Path))
		if op.Summary != "" {
			sb.WriteString(" - " + op.Summary)
		}
		sb.WriteString("\n")

		for _, p := range op.Parameters {
			required := ""
			if p.Required {
				required = ", required"
			}
			sb.WriteString(fmt.Sprintf("    param %s (%s, %s%s)\n", p.Name, p.In, p.Type, required))
		}

		if len(op.RequestSchema) > 0 {
			preview := schemaPreview(op.RequestSchema, schemaPreviewChars)
			sb.WriteString("    body schema: " + preview + "\n")
		}

		if len(op.Responses) > 0 {
			codes := make([]string, 0, len(op.Responses))
			for _, r := range op.Responses {
				codes = append(codes, fmt.Sprintf("%d", r.Status))
			}
			sb.WriteString("    responses: " + strings.Join(codes, ", ") + "\n")
		}
	}

	sb.WriteString(`
Produce a positive-path test plan as JSON:
{
  "title": "...",
  "items": [
    {
      "operationId": "...",
      "method": "...",
      "path": "...",
      "description": "...",
      "expectedStatus": 200,
      "dependsOn": ["operationId of an operation whose result this test needs"],
      "assertions": ["human-readable assertion", "..."],
      "needsBody": true,
      "suggestedBody": "{\"field\": \"realistic value\"}"
    }
  ],
  "dependencies": [
    {"source": "createItem", "target": "getItemById", "description": "created id is read back"}
  ],
  "reasoning": "..."
}

Rules:
- At least one happy-path test per operation.
- Use realistic request bodies matching the schema previews.
- Express data flow between operations in dependsOn and dependencies
  (for example: create before read, read before delete).
- expectedStatus must be the documented success code of the operation.`)

	return sb.String()
}

// schemaPreview renders a truncated single-line schema preview.
func schemaPreview(fields []apispec.SchemaField, limit int) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s:%s", f.Name, f.Type))
	}
	preview := "{" + strings.Join(parts, ", ") + "}"
	if limit > 0 && len(preview) > limit {
		preview = preview[:limit] + "…"
	}
	return preview
}
