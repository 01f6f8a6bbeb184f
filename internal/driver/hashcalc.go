package driver

import (
	"irasm/internal/project"
	"irasm/internal/project/dag"
)

// ComputeUnitHashes fills UnitHash in topological order: H(content || base ||
// hashes of imported batch units, in import order). base folds in whatever
// every unit was assembled against (dependency files, flags).
// Для циклического графа намеренно ничего не делает (оставляет нули).
func ComputeUnitHashes(idx dag.UnitIndex, g dag.Graph, slots []dag.UnitSlot, topo *dag.Topo, base project.Digest) {
	if topo == nil || topo.Cyclic {
		return
	}
	for _, id := range topo.Order {
		slot := &slots[int(id)]
		if !slot.Present {
			continue
		}
		deps := make([]project.Digest, 0, len(slot.Meta.Imports)+1)
		deps = append(deps, base)
		for _, imp := range slot.Meta.Imports {
			depID, ok := idx.NameToID[imp.Ident]
			if !ok || !g.Present[int(depID)] {
				continue
			}
			deps = append(deps, slots[int(depID)].Meta.UnitHash)
		}
		slot.Meta.UnitHash = project.Combine(slot.Meta.ContentHash, deps...)
	}
}
