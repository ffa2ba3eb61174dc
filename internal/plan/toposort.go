package plan

import "sort"

// SortByDependencies orders plan items so that every item appears after
// the items of the operations it depends on. The sort is an explicit
// stable topological sort over the operation adjacency list: items with
// no ordering constraint keep their relative priority order, and cycles
// degrade gracefully to priority order for the remaining items.
func SortByDependencies(items []TestPlanItem) []TestPlanItem {
	// Operation -> items exercising it, in priority order.
	byOp := make(map[string][]int)
	for i, item := range items {
		byOp[item.OperationID] = append(byOp[item.OperationID], i)
	}

	// Operation-level in-degrees from the dependsOn adjacency list.
	opDeps := make(map[string]map[string]bool)
	for _, item := range items {
		if opDeps[item.OperationID] == nil {
			opDeps[item.OperationID] = make(map[string]bool)
		}
		for _, dep := range item.DependsOn {
			if dep != item.OperationID {
				opDeps[item.OperationID][dep] = true
			}
		}
	}

	ops := make([]string, 0, len(opDeps))
	for op := range opDeps {
		ops = append(ops, op)
	}
	// Stable seed order: by the first (lowest-priority-number) item of
	// each operation.
	sort.SliceStable(ops, func(a, b int) bool {
		return byOp[ops[a]][0] < byOp[ops[b]][0]
	})

	ordered := make([]string, 0, len(ops))
	placed := make(map[string]bool, len(ops))
	for len(ordered) < len(ops) {
		progressed := false
		for _, op := range ops {
			if placed[op] {
				continue
			}
			ready := true
			for dep := range opDeps[op] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, op)
				placed[op] = true
				progressed = true
			}
		}
		if !progressed {
			// Cycle: place the remaining operations in seed order.
			for _, op := range ops {
				if !placed[op] {
					ordered = append(ordered, op)
					placed[op] = true
				}
			}
		}
	}

	result := make([]TestPlanItem, 0, len(items))
	for _, op := range ordered {
		for _, idx := range byOp[op] {
			result = append(result, items[idx])
		}
	}
	return result
}

// DependencyComponents partitions plan items into connected components
// of the dependsOn graph (undirected), preserving plan order inside and
// across components. Items in the same component share a dependency
// chain and must never be split across codegen chunks.
func DependencyComponents(items []TestPlanItem) [][]TestPlanItem {
	// Union-find over operation ids.
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for _, item := range items {
		find(item.OperationID)
		for _, dep := range item.DependsOn {
			union(item.OperationID, dep)
		}
	}

	// Group items by component root, keeping first-seen component order.
	order := make([]string, 0)
	groups := make(map[string][]TestPlanItem)
	for _, item := range items {
		root := find(item.OperationID)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], item)
	}

	components := make([][]TestPlanItem, 0, len(order))
	for _, root := range order {
		components = append(components, groups[root])
	}
	return components
}
