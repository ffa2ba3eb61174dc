// Package plan turns a normalized API spec into an ordered test plan.
// Positive-path tests come from the LLM; negative and edge-case tests are
// generated deterministically and are unaffected by LLM behavior.
package plan

import (
	"strings"
	"unicode"
)

// Category classifies a plan item.
type Category string

const (
	CategoryPositive Category = "positive"
	CategoryNegative Category = "negative"
	CategoryEdgeCase Category = "edge-case"
)

// ExpectsError reports whether the category's success criterion is an
// error response. The expected status of such items must stay in the
// 4xx/5xx range for the whole life of a run.
func (c Category) ExpectsError() bool {
	return c == CategoryNegative || c == CategoryEdgeCase
}

// TestPlanItem is one candidate test case.
type TestPlanItem struct {
	// Name is the unique generated test function name, assigned at merge
	// time. It is the stable key linking plan items to execution results.
	Name           string   `json:"name"`
	OperationID    string   `json:"operationId"`
	Method         string   `json:"method"`
	Path           string   `json:"path"`
	Description    string   `json:"description"`
	Category       Category `json:"category"`
	ExpectedStatus int      `json:"expectedStatus"`
	Priority       int      `json:"priority"`
	DependsOn      []string `json:"dependsOn,omitempty"` // operation ids this test needs data from
	Assertions     []string `json:"assertions,omitempty"`
	NeedsBody      bool     `json:"needsBody"`
	SuggestedBody  string   `json:"suggestedBody,omitempty"`
}

// OperationDependency is one edge of the inter-operation data-flow
// adjacency list.
type OperationDependency struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Description string `json:"description,omitempty"`
}

// TestPlan is an ordered plan of test cases for one spec.
type TestPlan struct {
	Title        string                `json:"title"`
	BaseURL      string                `json:"baseUrl"`
	Items        []TestPlanItem        `json:"items"`
	Dependencies []OperationDependency `json:"dependencies,omitempty"`
	Reasoning    string                `json:"reasoning,omitempty"`
}

// ItemByName returns the plan item carrying the given test name.
func (p *TestPlan) ItemByName(name string) (TestPlanItem, bool) {
	for _, item := range p.Items {
		if item.Name == name {
			return item, true
		}
	}
	return TestPlanItem{}, false
}

// HasOperation reports whether any item in the plan exercises the
// given operation.
func (p *TestPlan) HasOperation(operationID string) bool {
	for _, item := range p.Items {
		if item.OperationID == operationID {
			return true
		}
	}
	return false
}

// camelCase converts an identifier like "get-item_by.id" to "GetItemById".
func camelCase(s string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
