package healer

import (
	"context"
	"strings"
	"testing"

	"testforge/internal/config"
	"testforge/internal/executor"
	"testforge/internal/filestore"
	"testforge/internal/llm"
)

type mockClient struct {
	response string
	err      error
	prompts  []string
}

func (m *mockClient) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.response, m.err
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, system, user string, opts llm.Options) (string, error) {
	m.prompts = append(m.prompts, user)
	return m.response, m.err
}

// scriptedRunner plays back one process result per call.
type scriptedRunner struct {
	results []*executor.ProcessResult
	calls   int
}

func (s *scriptedRunner) Run(ctx context.Context, cmd executor.Command) (*executor.ProcessResult, error) {
	result := s.results[s.calls%len(s.results)]
	s.calls++
	return result, nil
}

func newTestHealer(t *testing.T, client llm.Client, runner executor.ProcessRunner) (*Healer, *filestore.Store) {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	exec := executor.New(runner, cfg)
	return New(client, store, exec, cfg), store
}

func fixResponse(path, content string) string {
	return "FILE: " + path + "\n```go\n" + content + "```\nRATIONALE: corrected the request body\n"
}

func TestReflectExcludesFalsePositivesFromPrompt(t *testing.T) {
	client := &mockClient{response: "no fixes"}
	h, store := newTestHealer(t, client, &scriptedRunner{results: []*executor.ProcessResult{{Success: true}}})

	if err := store.WriteFile("items_test.go", "package apitest\n"); err != nil {
		t.Fatal(err)
	}

	result := &executor.ExecutionResult{Details: []executor.TestDetail{
		failed("TestCreateItemHappy1", "expected status 201, got 500"),
		failed("TestGetItemByIdHappy1", "request failed: connection refused"),
		failed("TestGetItemByIdNotFound", "expected status 404, got 400"),
	}}

	reflection, err := h.Reflect(context.Background(), result, filterPlan())
	if err != nil {
		t.Fatalf("Reflect failed: %v", err)
	}

	if len(reflection.GenuineFailures) != 2 {
		t.Fatalf("genuine = %v", reflection.GenuineFailures)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("expected one fix prompt, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]
	if strings.Contains(prompt, "TestGetItemByIdNotFound") {
		t.Error("false positive leaked into the fix prompt")
	}
	if !strings.Contains(prompt, "TestCreateItemHappy1") || !strings.Contains(prompt, "TestGetItemByIdHappy1") {
		t.Error("genuine failures missing from the fix prompt")
	}
}

func TestReflectSkipsLLMWhenNothingGenuine(t *testing.T) {
	client := &mockClient{response: "unused"}
	h, _ := newTestHealer(t, client, &scriptedRunner{results: []*executor.ProcessResult{{Success: true}}})

	result := &executor.ExecutionResult{Details: []executor.TestDetail{
		failed("TestGetItemByIdNotFound", "expected status 404, got 400"),
	}}

	reflection, err := h.Reflect(context.Background(), result, filterPlan())
	if err != nil {
		t.Fatal(err)
	}
	if len(client.prompts) != 0 {
		t.Error("LLM called with an empty failure set")
	}
	if len(reflection.Fixes) != 0 {
		t.Errorf("fixes = %+v", reflection.Fixes)
	}
}

func TestReflectRejectsWeakeningFix(t *testing.T) {
	weakening := fixResponse("items_test.go", `package apitest

func TestGetItemByIdNotFound(t *testing.T) {
	testutil.RequireStatus(t, resp, 200)
}
`)
	client := &mockClient{response: weakening}
	h, store := newTestHealer(t, client, &scriptedRunner{results: []*executor.ProcessResult{{Success: true}}})
	if err := store.WriteFile("items_test.go", "package apitest\n"); err != nil {
		t.Fatal(err)
	}

	result := &executor.ExecutionResult{Details: []executor.TestDetail{
		failed("TestCreateItemHappy1", "expected status 201, got 500"),
	}}

	reflection, err := h.Reflect(context.Background(), result, filterPlan())
	if err != nil {
		t.Fatal(err)
	}
	if len(reflection.Fixes) != 0 {
		t.Fatalf("weakening fix accepted: %+v", reflection.Fixes)
	}
	if len(reflection.Rejected) != 1 {
		t.Fatalf("rejected = %+v", reflection.Rejected)
	}
	if !strings.Contains(reflection.Rejected[0].Reason, "TestGetItemByIdNotFound") {
		t.Errorf("rejection reason does not name the test: %q", reflection.Rejected[0].Reason)
	}

	// The file on disk is untouched.
	content, err := store.ReadFile("items_test.go")
	if err != nil {
		t.Fatal(err)
	}
	if content != "package apitest\n" {
		t.Errorf("rejected fix reached disk: %q", content)
	}
}

func TestReflectRejectsFixDroppingStatusHelper(t *testing.T) {
	// The fix keeps the negative test failing-proof by replacing the
	// RequireStatus call with a raw success comparison.
	dropping := fixResponse("items_test.go", `package apitest

func TestGetItemByIdNotFound(t *testing.T) {
	c := testutil.NewClient(t)
	resp, _ := c.Do(t, "GET", "/items/999999999", "")
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}
`)
	client := &mockClient{response: dropping}
	h, store := newTestHealer(t, client, &scriptedRunner{results: []*executor.ProcessResult{{Success: true}}})
	if err := store.WriteFile("items_test.go", "package apitest\n"); err != nil {
		t.Fatal(err)
	}

	result := &executor.ExecutionResult{Details: []executor.TestDetail{
		failed("TestCreateItemHappy1", "expected status 201, got 500"),
	}}

	reflection, err := h.Reflect(context.Background(), result, filterPlan())
	if err != nil {
		t.Fatal(err)
	}
	if len(reflection.Fixes) != 0 {
		t.Fatalf("helper-dropping fix accepted: %+v", reflection.Fixes)
	}
	if len(reflection.Rejected) != 1 || !strings.Contains(reflection.Rejected[0].Reason, "TestGetItemByIdNotFound") {
		t.Errorf("rejected = %+v", reflection.Rejected)
	}
}

func TestApplyCompileFailureReverts(t *testing.T) {
	// First CompileCheck call reports a broken build.
	runner := &scriptedRunner{results: []*executor.ProcessResult{
		{ExitCode: 1, Stderr: "undefined: frob", Success: true},
	}}
	h, store := newTestHealer(t, &mockClient{}, runner)

	if err := store.WriteFile("items_test.go", "original content\n"); err != nil {
		t.Fatal(err)
	}

	applied, err := h.Apply(context.Background(), []TestFix{
		{Path: "items_test.go", Content: "broken fix\n", Rationale: "attempt"},
		{Path: "helpers_test.go", Content: "package apitest\n", Rationale: "shared setup"},
	}, store.Root())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !applied.CompileFailed || !applied.Reverted {
		t.Fatalf("applied = %+v", applied)
	}
	content, err := store.ReadFile("items_test.go")
	if err != nil {
		t.Fatal(err)
	}
	if content != "original content\n" {
		t.Errorf("revert lost the original: %q", content)
	}
	// A file the fix set created has no original; revert deletes it.
	if store.Exists("helpers_test.go") {
		t.Error("created file survived the revert")
	}
}

func TestApplyPersistsCompilingFixes(t *testing.T) {
	runner := &scriptedRunner{results: []*executor.ProcessResult{{ExitCode: 0, Success: true}}}
	h, store := newTestHealer(t, &mockClient{}, runner)

	applied, err := h.Apply(context.Background(), []TestFix{
		{Path: "items_test.go", Content: "package apitest\n", Rationale: "rewrite"},
	}, store.Root())
	if err != nil {
		t.Fatal(err)
	}
	if applied.CompileFailed || len(applied.Applied) != 1 {
		t.Fatalf("applied = %+v", applied)
	}
	if !store.Exists("items_test.go") {
		t.Error("fix not persisted")
	}
}

func TestParseFixes(t *testing.T) {
	response := "Here are the fixes.\n\n" +
		fixResponse("a_test.go", "package apitest\n\nfunc TestA(t *testing.T) {}\n") +
		"\n" +
		fixResponse("b_test.go", "package apitest\n\nfunc TestB(t *testing.T) {}\n")

	fixes := parseFixes(response)
	if len(fixes) != 2 {
		t.Fatalf("parsed %d fixes", len(fixes))
	}
	if fixes[0].Path != "a_test.go" || fixes[1].Path != "b_test.go" {
		t.Errorf("paths = %s, %s", fixes[0].Path, fixes[1].Path)
	}
	if !strings.Contains(fixes[0].Content, "func TestA") {
		t.Errorf("content = %q", fixes[0].Content)
	}
	if fixes[0].Rationale != "corrected the request body" {
		t.Errorf("rationale = %q", fixes[0].Rationale)
	}
}

func TestParseFixesDropsIncompleteBlocks(t *testing.T) {
	response := "FILE: orphan.go\nno code fence here\n"
	if fixes := parseFixes(response); len(fixes) != 0 {
		t.Errorf("incomplete block parsed: %+v", fixes)
	}
}
