package writer

import "testforge/internal/plan"

// Chunk packs plan items into codegen chunks of at most size items.
// Items are first partitioned into dependsOn connected components;
// whole components are packed in plan order, so a dependency chain is
// never split across chunks. A component larger than size becomes its
// own oversized chunk.
func Chunk(items []plan.TestPlanItem, size int) [][]plan.TestPlanItem {
	if size <= 0 {
		size = 8
	}
	if len(items) == 0 {
		return nil
	}

	components := plan.DependencyComponents(items)

	var chunks [][]plan.TestPlanItem
	var current []plan.TestPlanItem
	for _, comp := range components {
		if len(comp) >= size {
			if len(current) > 0 {
				chunks = append(chunks, current)
				current = nil
			}
			chunks = append(chunks, comp)
			continue
		}
		if len(current)+len(comp) > size && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
		}
		current = append(current, comp...)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks
}
