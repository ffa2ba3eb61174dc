package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"testforge/internal/apispec"
	"testforge/internal/config"
	"testforge/internal/llm"
	"testforge/internal/logging"
)

// Planner builds test plans from normalized specs.
type Planner struct {
	client llm.Client
	cfg    config.PlannerConfig
}

// NewPlanner creates a planner backed by the given LLM client.
func NewPlanner(client llm.Client, cfg config.PlannerConfig) *Planner {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.SchemaPreviewChars <= 0 {
		cfg.SchemaPreviewChars = 400
	}
	return &Planner{client: client, cfg: cfg}
}

// llmPlan is the JSON structure requested from the LLM.
type llmPlan struct {
	Title        string                `json:"title"`
	Items        []llmPlanItem         `json:"items"`
	Dependencies []OperationDependency `json:"dependencies"`
	Reasoning    string                `json:"reasoning"`
}

type llmPlanItem struct {
	OperationID    string   `json:"operationId"`
	Method         string   `json:"method"`
	Path           string   `json:"path"`
	Description    string   `json:"description"`
	ExpectedStatus int      `json:"expectedStatus"`
	DependsOn      []string `json:"dependsOn"`
	Assertions     []string `json:"assertions"`
	NeedsBody      bool     `json:"needsBody"`
	SuggestedBody  string   `json:"suggestedBody"`
}

// Plan builds the full test plan for a spec: LLM-authored positive-path
// tests plus deterministically generated negative and edge-case tests,
// merged with contiguous priorities. An unparsable LLM response degrades
// to a minimal fallback plan and is noted in the reasoning; only a
// provider failure is returned as an error.
func (p *Planner) Plan(ctx context.Context, spec *apispec.Spec) (*TestPlan, error) {
	timer := logging.StartTimer(logging.CategoryPlanner, "Test planning")
	defer timer.StopWithInfo()

	positives, deps, reasoning, err := p.planPositive(ctx, spec)
	if err != nil {
		return nil, err
	}

	negatives := GenerateNegative(spec)
	edges := GenerateEdge(spec)

	logging.Planner("plan for spec %s: %d positive, %d negative, %d edge",
		spec.ID, len(positives), len(negatives), len(edges))

	merged := Merge(positives, negatives, edges)
	pruneUnresolvedDependencies(merged)

	return &TestPlan{
		Title:        fmt.Sprintf("Functional tests: %s", spec.Title),
		BaseURL:      spec.BaseURL,
		Items:        merged,
		Dependencies: deps,
		Reasoning:    reasoning,
	}, nil
}

// planPositive asks the LLM for positive-path tests and inter-operation
// dependencies. Parse failures never propagate: the deterministic
// fallback takes over and the degradation is recorded in the reasoning.
func (p *Planner) planPositive(ctx context.Context, spec *apispec.Spec) ([]TestPlanItem, []OperationDependency, string, error) {
	prompt := buildPlanPrompt(spec, p.cfg.SchemaPreviewChars)

	response, err := p.client.CompleteWithSystem(ctx, planSystemPrompt, prompt, llm.Options{
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("planning completion failed: %w", err)
	}

	parsed, perr := parsePlanResponse(response)
	if perr != nil {
		logging.PlannerWarn("LLM plan unparsable, using fallback: %v", perr)
		items := fallbackPositive(spec)
		reasoning := fmt.Sprintf(
			"Plan degraded: the model response could not be parsed (%v); generated one minimal positive test per operation instead.", perr)
		return items, nil, reasoning, nil
	}

	items := make([]TestPlanItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		item := TestPlanItem{
			OperationID:    it.OperationID,
			Method:         it.Method,
			Path:           it.Path,
			Description:    it.Description,
			Category:       CategoryPositive,
			ExpectedStatus: it.ExpectedStatus,
			DependsOn:      it.DependsOn,
			Assertions:     it.Assertions,
			NeedsBody:      it.NeedsBody,
			SuggestedBody:  it.SuggestedBody,
		}
		if item.ExpectedStatus == 0 {
			item.ExpectedStatus = 200
		}
		if item.OperationID == "" {
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		logging.PlannerWarn("LLM plan parsed but empty, using fallback")
		return fallbackPositive(spec), nil, "Plan degraded: the model returned no usable items; generated one minimal positive test per operation instead.", nil
	}

	return items, parsed.Dependencies, parsed.Reasoning, nil
}

// fallbackPositive yields one minimal positive test per operation.
func fallbackPositive(spec *apispec.Spec) []TestPlanItem {
	items := make([]TestPlanItem, 0, len(spec.Operations))
	for _, op := range spec.Operations {
		expected := 200
		if op.IsCreation() {
			expected = 201
		}
		item := TestPlanItem{
			OperationID:    op.ID,
			Method:         op.Method,
			Path:           substitutePathParams(op.Path, "1"),
			Description:    fmt.Sprintf("%s happy path", op.ID),
			Category:       CategoryPositive,
			ExpectedStatus: expected,
			Assertions:     []string{fmt.Sprintf("status is %d", expected)},
		}
		if op.AcceptsBody() {
			item.NeedsBody = true
			item.SuggestedBody = minimalBody(op)
		}
		items = append(items, item)
	}
	return items
}

// minimalBody builds a plausible request body from the schema preview.
func minimalBody(op apispec.Operation) string {
	if len(op.RequestSchema) == 0 {
		return "{}"
	}
	var fields []string
	for _, f := range op.RequestSchema {
		switch f.Type {
		case "integer", "number":
			fields = append(fields, fmt.Sprintf("%q: 1", f.Name))
		case "boolean":
			fields = append(fields, fmt.Sprintf("%q: true", f.Name))
		default:
			example := f.Example
			if example == "" {
				example = "sample-" + f.Name
			}
			fields = append(fields, fmt.Sprintf("%q: %q", f.Name, example))
		}
	}
	return "{" + strings.Join(fields, ", ") + "}"
}

// parsePlanResponse extracts and decodes the plan JSON from an LLM
// response that may wrap it in prose or markdown fences.
func parsePlanResponse(response string) (*llmPlan, error) {
	raw := extractJSON(response)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var parsed llmPlan
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("plan JSON invalid: %w", err)
	}
	return &parsed, nil
}

// extractJSON finds the first balanced JSON object in a response
// (handles markdown wrappers).
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}

// Merge combines positive, negative and edge items in that order,
// renumbers priorities into a contiguous sequence starting at 1, and
// assigns each item its unique test name.
func Merge(positives, negatives, edges []TestPlanItem) []TestPlanItem {
	merged := make([]TestPlanItem, 0, len(positives)+len(negatives)+len(edges))
	merged = append(merged, positives...)
	merged = append(merged, negatives...)
	merged = append(merged, edges...)

	seen := make(map[string]int, len(merged))
	perOp := make(map[string]int)
	for i := range merged {
		if merged[i].Name == "" {
			perOp[merged[i].OperationID]++
			merged[i].Name = testName(merged[i].OperationID, fmt.Sprintf("Happy%d", perOp[merged[i].OperationID]))
		}
		// Disambiguate collisions deterministically.
		if n, dup := seen[merged[i].Name]; dup {
			seen[merged[i].Name] = n + 1
			merged[i].Name = fmt.Sprintf("%s%d", merged[i].Name, n+1)
		}
		seen[merged[i].Name] = 1
		merged[i].Priority = i + 1
	}

	return merged
}

// pruneUnresolvedDependencies drops dependsOn references to operations
// that no plan item exercises, keeping the in-plan resolution invariant.
func pruneUnresolvedDependencies(items []TestPlanItem) {
	present := make(map[string]bool, len(items))
	for _, item := range items {
		present[item.OperationID] = true
	}
	for i := range items {
		if len(items[i].DependsOn) == 0 {
			continue
		}
		kept := items[i].DependsOn[:0]
		for _, dep := range items[i].DependsOn {
			if present[dep] {
				kept = append(kept, dep)
			} else {
				logging.PlannerWarn("dropping unresolved dependency %s from item %s", dep, items[i].Name)
			}
		}
		items[i].DependsOn = kept
	}
}

// testName builds the deterministic test function name for an item.
func testName(operationID, label string) string {
	return "Test" + camelCase(operationID) + label
}
