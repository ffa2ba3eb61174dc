package writer

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"testforge/internal/config"
	"testforge/internal/filestore"
	"testforge/internal/llm"
	"testforge/internal/plan"
)

type mockClient struct {
	response string
	err      error
	calls    int
}

func (m *mockClient) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	m.calls++
	return m.response, m.err
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, system, user string, opts llm.Options) (string, error) {
	m.calls++
	return m.response, m.err
}

func testPlan() *plan.TestPlan {
	return &plan.TestPlan{
		Title:   "Functional tests: Items API",
		BaseURL: "http://localhost:8080",
		Items: []plan.TestPlanItem{
			{
				Name: "TestCreateItemHappy1", OperationID: "createItem",
				Method: "POST", Path: "/items", Category: plan.CategoryPositive,
				ExpectedStatus: 201, Priority: 1,
				NeedsBody: true, SuggestedBody: `{"name": "widget"}`,
				Description: "create an item",
			},
			{
				Name: "TestGetItemByIdHappy1", OperationID: "getItemById",
				Method: "GET", Path: "/items/{id}", Category: plan.CategoryPositive,
				ExpectedStatus: 200, Priority: 2, DependsOn: []string{"createItem"},
				Description: "read the created item",
			},
			{
				Name: "TestGetItemByIdNotFound", OperationID: "getItemById",
				Method: "GET", Path: "/items/999999999", Category: plan.CategoryNegative,
				ExpectedStatus: 404, Priority: 3,
				Description: "nonexistent identifier",
			},
		},
	}
}

func newTestWriter(t *testing.T, client llm.Client) (*Writer, *filestore.Store) {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	return New(client, store, cfg), store
}

func TestWriteScaffoldsProject(t *testing.T) {
	w, store := newTestWriter(t, &mockClient{response: "not go code"})

	result, err := w.Write(context.Background(), testPlan(), "example.com/generated")
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	gomod, err := store.ReadFile("go.mod")
	if err != nil {
		t.Fatalf("go.mod missing: %v", err)
	}
	if !strings.Contains(gomod, "module example.com/generated") {
		t.Errorf("go.mod content: %q", gomod)
	}

	testutil, err := store.ReadFile("testutil/client.go")
	if err != nil {
		t.Fatalf("testutil missing: %v", err)
	}
	if !strings.Contains(testutil, `"http://localhost:8080"`) {
		t.Error("testutil does not carry the plan base URL")
	}
	if !strings.Contains(testutil, "expected status %d, got %d") {
		t.Error("testutil lost the fixed assertion message format")
	}

	if result.FallbackChunks != result.TotalChunks {
		t.Errorf("garbage codegen must fall back: %d of %d", result.FallbackChunks, result.TotalChunks)
	}
}

func TestWriteFallbackCoversEveryPlanItem(t *testing.T) {
	w, store := newTestWriter(t, &mockClient{response: "no code here"})
	p := testPlan()

	if _, err := w.Write(context.Background(), p, "example.com/generated"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	files, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	var all strings.Builder
	for _, f := range files {
		all.WriteString(f.Content)
	}
	for _, item := range p.Items {
		if !strings.Contains(all.String(), "func "+item.Name+"(t *testing.T)") {
			t.Errorf("generated tree missing test %s", item.Name)
		}
	}
	if strings.Contains(all.String(), testutilImportPlaceholder) {
		t.Error("import placeholder leaked into the tree")
	}
	if !strings.Contains(all.String(), `"example.com/generated/testutil"`) {
		t.Error("testutil import path not substituted")
	}
}

func TestWriteIsOverwriteDeterministic(t *testing.T) {
	client := &mockClient{response: "still not go code"}
	w, store := newTestWriter(t, client)
	p := testPlan()

	if _, err := w.Write(context.Background(), p, "example.com/generated"); err != nil {
		t.Fatal(err)
	}
	first, err := store.List()
	if err != nil {
		t.Fatal(err)
	}

	// A stray file from the previous pass must not survive the rewrite.
	if err := store.WriteFile("leftover_test.go", "package apitest\n"); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Write(context.Background(), p, "example.com/generated"); err != nil {
		t.Fatal(err)
	}
	second, err := store.List()
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("rewrite is not byte-identical:\n%s", diff)
	}
}

func TestWriteAcceptsValidCodegenResponse(t *testing.T) {
	p := &plan.TestPlan{
		Title:   "single",
		BaseURL: "http://localhost:8080",
		Items: []plan.TestPlanItem{
			{
				Name: "TestHealthHappy1", OperationID: "health",
				Method: "GET", Path: "/health", Category: plan.CategoryPositive,
				ExpectedStatus: 200, Priority: 1,
			},
		},
	}

	response := "```go\npackage apitest\n\nimport (\n\t\"testing\"\n\n\t\"" +
		testutilImportPlaceholder + "\"\n)\n\nfunc TestHealthHappy1(t *testing.T) {\n" +
		"\tc := testutil.NewClient(t)\n\tresp, _ := c.Do(t, \"GET\", \"/health\", \"\")\n" +
		"\ttestutil.RequireStatus(t, resp, 200)\n}\n```"

	w, store := newTestWriter(t, &mockClient{response: response})
	result, err := w.Write(context.Background(), p, "example.com/generated")
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if result.FallbackChunks != 0 {
		t.Errorf("valid response must not fall back, got %d fallback chunks", result.FallbackChunks)
	}

	content, err := store.ReadFile("health_test.go")
	if err != nil {
		t.Fatalf("expected health_test.go: %v", err)
	}
	if !strings.Contains(content, `"example.com/generated/testutil"`) {
		t.Errorf("placeholder not substituted:\n%s", content)
	}
}

func TestValidateChunkSource(t *testing.T) {
	chunk := []plan.TestPlanItem{{Name: "TestFoo"}}

	tests := []struct {
		name   string
		source string
		valid  bool
	}{
		{"valid", "package apitest\n\nfunc TestFoo(t *testing.T) {}\n", true},
		{"leading comment", "// generated\npackage apitest\n\nfunc TestFoo(t *testing.T) {}\n", true},
		{"empty", "", false},
		{"wrong package", "package main\n\nfunc TestFoo(t *testing.T) {}\n", false},
		{"missing function", "package apitest\n\nfunc TestBar(t *testing.T) {}\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := validateChunkSource(tt.source, chunk)
			if (reason == "") != tt.valid {
				t.Errorf("validateChunkSource = %q, valid expectation %v", reason, tt.valid)
			}
		})
	}
}

func TestExtractGoSource(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"fenced", "```go\npackage apitest\n```", "package apitest"},
		{"bare", "package apitest\n\nfunc TestA(t *testing.T) {}", "package apitest\n\nfunc TestA(t *testing.T) {}"},
		{"prose only", "sorry, no code", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractGoSource(tt.response); got != tt.want {
				t.Errorf("extractGoSource = %q, want %q", got, tt.want)
			}
		})
	}
}
