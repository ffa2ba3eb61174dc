package report

import (
	"strings"
	"testing"
	"time"

	"testforge/internal/executor"
	"testforge/internal/filestore"
	"testforge/internal/plan"
)

func TestGenerateWritesArtifact(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	p := &plan.TestPlan{
		Title: "Functional tests: Items API",
		Items: []plan.TestPlanItem{
			{Name: "TestGetItemByIdHappy1", Category: plan.CategoryPositive},
			{Name: "TestGetItemByIdNotFound", Category: plan.CategoryNegative},
		},
	}
	result := &executor.ExecutionResult{
		Total: 2, Passed: 1, Failed: 1,
		Duration: 1200 * time.Millisecond,
		Details: []executor.TestDetail{
			{Name: "TestGetItemByIdHappy1", Status: executor.StatusPass},
			{Name: "TestGetItemByIdNotFound", Status: executor.StatusFail, Output: "expected status 404, got 200"},
		},
	}

	if err := New(store).Generate("abc123", p, result); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	html, err := store.ReadFile(ArtifactPath)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	for _, want := range []string{
		"Functional tests: Items API",
		"abc123",
		"TestGetItemByIdNotFound",
		"negative",
		"expected status 404, got 200",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}

	// The artifact never shows up among generated files.
	files, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if strings.HasPrefix(f.Path, ".testforge/") {
			t.Errorf("report artifact listed: %s", f.Path)
		}
	}
}

func TestGenerateWithoutResultErrs(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := New(store).Generate("run", &plan.TestPlan{}, nil); err == nil {
		t.Fatal("nil result must error")
	}
}
