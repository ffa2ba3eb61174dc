package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSortByDependenciesOrdersChains(t *testing.T) {
	items := []TestPlanItem{
		{Name: "TestDelete", OperationID: "deleteItem", DependsOn: []string{"getItem"}, Priority: 1},
		{Name: "TestGet", OperationID: "getItem", DependsOn: []string{"createItem"}, Priority: 2},
		{Name: "TestCreate", OperationID: "createItem", Priority: 3},
	}

	sorted := SortByDependencies(items)

	pos := make(map[string]int)
	for i, item := range sorted {
		pos[item.OperationID] = i
	}
	if !(pos["createItem"] < pos["getItem"] && pos["getItem"] < pos["deleteItem"]) {
		t.Fatalf("dependency order violated: %v", namesOf(sorted))
	}
}

func TestSortByDependenciesIsStableForIndependentItems(t *testing.T) {
	items := []TestPlanItem{
		{Name: "TestA", OperationID: "a", Priority: 1},
		{Name: "TestB", OperationID: "b", Priority: 2},
		{Name: "TestC", OperationID: "c", Priority: 3},
	}

	first := SortByDependencies(items)
	second := SortByDependencies(items)

	if diff := cmp.Diff(items, first); diff != "" {
		t.Errorf("independent items reordered:\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("sort not deterministic:\n%s", diff)
	}
}

func TestSortByDependenciesToleratesCycles(t *testing.T) {
	items := []TestPlanItem{
		{Name: "TestA", OperationID: "a", DependsOn: []string{"b"}},
		{Name: "TestB", OperationID: "b", DependsOn: []string{"a"}},
		{Name: "TestC", OperationID: "c"},
	}

	sorted := SortByDependencies(items)
	if len(sorted) != 3 {
		t.Fatalf("cycle dropped items: %v", namesOf(sorted))
	}
}

func TestSortByDependenciesKeepsItemsOfOneOperationTogether(t *testing.T) {
	items := []TestPlanItem{
		{Name: "TestGetHappy", OperationID: "getItem", DependsOn: []string{"createItem"}},
		{Name: "TestGetNotFound", OperationID: "getItem"},
		{Name: "TestCreateHappy", OperationID: "createItem"},
	}

	sorted := SortByDependencies(items)
	if sorted[0].OperationID != "createItem" {
		t.Fatalf("createItem must come first: %v", namesOf(sorted))
	}
	if sorted[1].Name != "TestGetHappy" || sorted[2].Name != "TestGetNotFound" {
		t.Errorf("getItem items reordered: %v", namesOf(sorted))
	}
}

func TestDependencyComponents(t *testing.T) {
	items := []TestPlanItem{
		{Name: "TestCreate", OperationID: "createItem"},
		{Name: "TestGet", OperationID: "getItem", DependsOn: []string{"createItem"}},
		{Name: "TestHealth", OperationID: "health"},
		{Name: "TestList", OperationID: "listItems"},
	}

	components := DependencyComponents(items)
	if len(components) != 3 {
		t.Fatalf("expected 3 components, got %d", len(components))
	}

	// createItem and getItem share a chain.
	if len(components[0]) != 2 {
		t.Errorf("chain component has %d items: %v", len(components[0]), namesOf(components[0]))
	}
	if components[1][0].OperationID != "health" || components[2][0].OperationID != "listItems" {
		t.Errorf("singleton order broken: %v, %v", namesOf(components[1]), namesOf(components[2]))
	}
}
