package plan

import (
	"fmt"
	"strings"

	"testforge/internal/apispec"
)

// Deterministic test generation. These generators are pure functions of the
// operation shape: for a given spec they always yield the same items in the
// same order, with no LLM involvement.

// GenerateNegative produces negative tests for every operation:
//   - nonexistent identifier for path-parameterized operations (404)
//   - empty body for body-accepting operations (400)
//   - type-mismatched payload for body-accepting operations whose schema
//     carries at least one non-string field (400)
//   - malformed identifier for path-parameterized operations (400)
func GenerateNegative(spec *apispec.Spec) []TestPlanItem {
	var items []TestPlanItem

	for _, op := range spec.Operations {
		if op.HasPathParam() {
			items = append(items, TestPlanItem{
				Name:           testName(op.ID, "NotFound"),
				OperationID:    op.ID,
				Method:         op.Method,
				Path:           substitutePathParams(op.Path, "999999999"),
				Description:    fmt.Sprintf("%s with a nonexistent identifier", op.ID),
				Category:       CategoryNegative,
				ExpectedStatus: 404,
				Assertions:     []string{"status is 404"},
			})
		}

		if op.AcceptsBody() {
			items = append(items, TestPlanItem{
				Name:           testName(op.ID, "EmptyBody"),
				OperationID:    op.ID,
				Method:         op.Method,
				Path:           substitutePathParams(op.Path, "1"),
				Description:    fmt.Sprintf("%s with an empty request body", op.ID),
				Category:       CategoryNegative,
				ExpectedStatus: 400,
				Assertions:     []string{"status is 400"},
				NeedsBody:      true,
				SuggestedBody:  "{}",
			})

			if body := typeMismatchedBody(op); body != "" {
				items = append(items, TestPlanItem{
					Name:           testName(op.ID, "TypeMismatch"),
					OperationID:    op.ID,
					Method:         op.Method,
					Path:           substitutePathParams(op.Path, "1"),
					Description:    fmt.Sprintf("%s with type-mismatched field values", op.ID),
					Category:       CategoryNegative,
					ExpectedStatus: 400,
					Assertions:     []string{"status is 400"},
					NeedsBody:      true,
					SuggestedBody:  body,
				})
			}
		}

		if op.HasPathParam() {
			items = append(items, TestPlanItem{
				Name:           testName(op.ID, "MalformedID"),
				OperationID:    op.ID,
				Method:         op.Method,
				Path:           substitutePathParams(op.Path, "not-a-valid-id"),
				Description:    fmt.Sprintf("%s with a malformed identifier", op.ID),
				Category:       CategoryNegative,
				ExpectedStatus: 400,
				Assertions:     []string{"status is 400"},
			})
		}
	}

	return items
}

// GenerateEdge produces edge-case tests:
//   - boundary identifier values 0 and -1 for integer path parameters (404)
//   - special-character payload for creation operations whose schema has a
//     string field (400)
//   - oversized pagination limit for list operations with a limit-style
//     query parameter (400)
func GenerateEdge(spec *apispec.Spec) []TestPlanItem {
	var items []TestPlanItem

	for _, op := range spec.Operations {
		if _, ok := op.IntegerPathParam(); ok {
			items = append(items, TestPlanItem{
				Name:           testName(op.ID, "BoundaryZero"),
				OperationID:    op.ID,
				Method:         op.Method,
				Path:           substitutePathParams(op.Path, "0"),
				Description:    fmt.Sprintf("%s with boundary identifier 0", op.ID),
				Category:       CategoryEdgeCase,
				ExpectedStatus: 404,
				Assertions:     []string{"status is 404"},
			})
			items = append(items, TestPlanItem{
				Name:           testName(op.ID, "BoundaryNegative"),
				OperationID:    op.ID,
				Method:         op.Method,
				Path:           substitutePathParams(op.Path, "-1"),
				Description:    fmt.Sprintf("%s with boundary identifier -1", op.ID),
				Category:       CategoryEdgeCase,
				ExpectedStatus: 404,
				Assertions:     []string{"status is 404"},
			})
		}

		if op.IsCreation() {
			if body := specialCharBody(op); body != "" {
				items = append(items, TestPlanItem{
					Name:           testName(op.ID, "SpecialChars"),
					OperationID:    op.ID,
					Method:         op.Method,
					Path:           op.Path,
					Description:    fmt.Sprintf("%s with special-character payload", op.ID),
					Category:       CategoryEdgeCase,
					ExpectedStatus: 400,
					Assertions:     []string{"status is 400"},
					NeedsBody:      true,
					SuggestedBody:  body,
				})
			}
		}

		if op.IsList() {
			if p, ok := op.PaginationParam(); ok {
				items = append(items, TestPlanItem{
					Name:           testName(op.ID, "PaginationLimit"),
					OperationID:    op.ID,
					Method:         op.Method,
					Path:           fmt.Sprintf("%s?%s=1000000", op.Path, p.Name),
					Description:    fmt.Sprintf("%s with an oversized %s", op.ID, p.Name),
					Category:       CategoryEdgeCase,
					ExpectedStatus: 400,
					Assertions:     []string{"status is 400"},
				})
			}
		}
	}

	return items
}

// substitutePathParams replaces every {param} segment with the given value.
func substitutePathParams(path, value string) string {
	for {
		start := strings.Index(path, "{")
		if start == -1 {
			return path
		}
		end := strings.Index(path[start:], "}")
		if end == -1 {
			return path
		}
		path = path[:start] + value + path[start+end+1:]
	}
}

// typeMismatchedBody builds a JSON body whose non-string fields carry
// string values. Empty when the schema has no typed field to mismatch.
func typeMismatchedBody(op apispec.Operation) string {
	var fields []string
	for _, f := range op.RequestSchema {
		switch f.Type {
		case "integer", "number":
			fields = append(fields, fmt.Sprintf("%q: %q", f.Name, "not-a-number"))
		case "boolean":
			fields = append(fields, fmt.Sprintf("%q: %q", f.Name, "not-a-bool"))
		}
	}
	if len(fields) == 0 {
		return ""
	}
	return "{" + strings.Join(fields, ", ") + "}"
}

// specialCharBody builds a JSON body injecting special characters into
// string fields. Empty when the schema has no string field.
func specialCharBody(op apispec.Operation) string {
	var fields []string
	for _, f := range op.RequestSchema {
		if f.Type == "string" {
			fields = append(fields, fmt.Sprintf("%q: %q", f.Name, "<>'\";%&\x00"))
		}
	}
	if len(fields) == 0 {
		return ""
	}
	return "{" + strings.Join(fields, ", ") + "}"
}
