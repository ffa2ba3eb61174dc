// Package healer diagnoses failing generated tests and proposes code
// fixes, guarding the invariant that a negative test is never made to
// pass by weakening its expectation.
package healer

import (
	"context"
	"fmt"
	"strings"

	"testforge/internal/config"
	"testforge/internal/executor"
	"testforge/internal/filestore"
	"testforge/internal/llm"
	"testforge/internal/logging"
	"testforge/internal/plan"
)

// TestFix is one full-file replacement proposed by the healer.
type TestFix struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Rationale string `json:"rationale"`
}

// RejectedFix records a fix the post-filter refused to apply.
type RejectedFix struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Reflection is the outcome of diagnosing one execution result.
type Reflection struct {
	Fixes            []TestFix     `json:"fixes"`
	FalsePositives   []string      `json:"falsePositives"`
	SuspectedDefects []string      `json:"suspectedDefects"`
	Rejected         []RejectedFix `json:"rejected"`
	GenuineFailures  []string      `json:"genuineFailures"`
}

// ApplyResult is the outcome of persisting a fix set.
type ApplyResult struct {
	Applied       []string `json:"applied"`
	CompileFailed bool     `json:"compileFailed"`
	Reverted      bool     `json:"reverted"`
	CompileOutput string   `json:"-"`
}

// Healer diagnoses failures and applies verified fixes.
type Healer struct {
	client llm.Client
	store  *filestore.Store
	exec   *executor.Executor
	cfg    *config.Config
}

// New creates a healer over the given project store.
func New(client llm.Client, store *filestore.Store, exec *executor.Executor, cfg *config.Config) *Healer {
	return &Healer{client: client, store: store, exec: exec, cfg: cfg}
}

// Reflect classifies the failing tests and asks the LLM for fixes to
// the genuine ones. False positives and suspected API defects never
// reach the prompt. An error is returned only on provider failure;
// an unusable fix response yields an empty fix set.
func (h *Healer) Reflect(ctx context.Context, result *executor.ExecutionResult, p *plan.TestPlan) (*Reflection, error) {
	reflection := &Reflection{}

	genuine := classifyFailures(result, p, reflection)
	for _, name := range reflection.FalsePositives {
		logging.Healer("excluding %s: observed error status matches the negative expectation", name)
	}
	for _, name := range reflection.SuspectedDefects {
		logging.HealerWarn("suspected API defect: %s expected an error status but the API returned success; flagged for review", name)
	}

	if len(genuine) == 0 {
		logging.Healer("no genuine failures to fix")
		return reflection, nil
	}
	for _, d := range genuine {
		reflection.GenuineFailures = append(reflection.GenuineFailures, d.Name)
	}
	logging.Healer("diagnosing %d genuine failures", len(genuine))

	files, err := h.relevantFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to read project files: %w", err)
	}

	opts := llm.Options{
		Temperature: h.cfg.Planner.Temperature,
		MaxTokens:   h.cfg.Planner.MaxTokens,
	}
	response, err := h.client.CompleteWithSystem(ctx, healSystemPrompt, buildFixPrompt(genuine, files), opts)
	if err != nil {
		return nil, fmt.Errorf("fix generation failed: %w", err)
	}

	for _, fix := range parseFixes(response) {
		if reason := h.vetFix(fix, p); reason != "" {
			logging.HealerWarn("rejecting fix for %s: %s", fix.Path, reason)
			reflection.Rejected = append(reflection.Rejected, RejectedFix{Path: fix.Path, Reason: reason})
			continue
		}
		reflection.Fixes = append(reflection.Fixes, fix)
	}

	logging.Healer("accepted %d fixes, rejected %d", len(reflection.Fixes), len(reflection.Rejected))
	return reflection, nil
}

// vetFix runs the deterministic post-filter over one proposed fix.
func (h *Healer) vetFix(fix TestFix, p *plan.TestPlan) string {
	if fix.Path == "" || fix.Content == "" {
		return "incomplete fix block"
	}
	if !strings.HasSuffix(fix.Path, ".go") {
		return "fix targets a non-Go file"
	}
	if weakened := weakenedNegatives(fix.Content, p); len(weakened) > 0 {
		return fmt.Sprintf("moves expected status of %s into the success range", strings.Join(weakened, ", "))
	}
	if missing := unassertedNegatives(fix.Content, p); len(missing) > 0 {
		return fmt.Sprintf("drops the error-status assertion of %s", strings.Join(missing, ", "))
	}
	return ""
}

// Apply persists a fix set and verifies it with a compile-only check.
// A fix set that fails to compile is reverted in full; the run goes on.
func (h *Healer) Apply(ctx context.Context, fixes []TestFix, projectPath string) (*ApplyResult, error) {
	result := &ApplyResult{}
	if len(fixes) == 0 {
		return result, nil
	}

	type original struct {
		path    string
		content string
		existed bool
	}
	originals := make([]original, 0, len(fixes))

	for _, fix := range fixes {
		o := original{path: fix.Path}
		if h.store.Exists(fix.Path) {
			content, err := h.store.ReadFile(fix.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to snapshot %s before fixing: %w", fix.Path, err)
			}
			o.content, o.existed = content, true
		}
		originals = append(originals, o)

		if err := h.store.WriteFile(fix.Path, fix.Content); err != nil {
			return nil, fmt.Errorf("failed to apply fix to %s: %w", fix.Path, err)
		}
		result.Applied = append(result.Applied, fix.Path)
		logging.Healer("applied fix to %s: %s", fix.Path, fix.Rationale)
	}

	ok, output, err := h.exec.CompileCheck(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	result.CompileOutput = output
	if ok {
		return result, nil
	}

	logging.HealerWarn("fix set does not compile, reverting %d files", len(originals))
	for _, o := range originals {
		if o.existed {
			if err := h.store.WriteFile(o.path, o.content); err != nil {
				return nil, fmt.Errorf("failed to revert %s: %w", o.path, err)
			}
			continue
		}
		// The fix created this file; revert means deleting it.
		if err := h.store.Remove(o.path); err != nil {
			return nil, fmt.Errorf("failed to revert %s: %w", o.path, err)
		}
	}
	result.CompileFailed = true
	result.Reverted = true
	result.Applied = nil
	return result, nil
}

// relevantFiles returns the test sources and helpers the fix prompt
// needs: every Go file of the generated project.
func (h *Healer) relevantFiles() ([]filestore.File, error) {
	all, err := h.store.List()
	if err != nil {
		return nil, err
	}
	var files []filestore.File
	for _, f := range all {
		if strings.HasSuffix(f.Path, ".go") || f.Path == "go.mod" {
			files = append(files, f)
		}
	}
	return files, nil
}
