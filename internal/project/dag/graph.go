// Package dag orders the units of a batch so every unit is assembled after
// the units whose modules it imports.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"irasm/internal/project"
)

// Graph edges run from a module to the units importing it, so a Kahn walk
// yields dependencies first. Imports of modules outside the batch are not
// edges; those come from compiled dependency files.
type Graph struct {
	Edges   [][]UnitID // Edges[dep] = []dependents
	Indeg   []int      // входящие степени для Kahn (только юниты батча)
	Present []bool     // юнит реально есть в батче, а не только импортируется
}

type UnitSlot struct {
	Meta    project.UnitMeta
	Present bool
}

// BuildGraph links the units of a batch. Duplicate units and self imports are
// reported together; the graph is still built from the first occurrence.
func BuildGraph(idx UnitIndex, metas []project.UnitMeta) (Graph, []UnitSlot, error) {
	nodeCount := len(idx.IDToName)
	g := Graph{
		Edges:   make([][]UnitID, nodeCount),
		Indeg:   make([]int, nodeCount),
		Present: make([]bool, nodeCount),
	}
	slots := make([]UnitSlot, nodeCount)
	for i, name := range idx.IDToName {
		slots[i].Meta.Ident = name
	}

	var errs []error
	for _, meta := range metas {
		if meta.Ident == "" {
			continue
		}
		id, ok := idx.NameToID[meta.Ident]
		if !ok {
			// не должно происходить, индекс строится на тех же метаданных
			continue
		}
		slot := &slots[int(id)]
		if slot.Present {
			errs = append(errs, fmt.Errorf("%s: duplicate unit %s (first declared in %s)", meta.Path, meta.Ident, slot.Meta.Path))
			continue
		}
		slot.Meta = meta
		slot.Present = true
		g.Present[int(id)] = true
	}

	for from := range slots {
		slot := &slots[from]
		if !slot.Present || len(slot.Meta.Imports) == 0 {
			continue
		}
		seen := make(map[UnitID]struct{}, len(slot.Meta.Imports))
		for _, imp := range slot.Meta.Imports {
			depID, ok := idx.NameToID[imp.Ident]
			if !ok {
				continue
			}
			if UnitID(from) == depID {
				errs = append(errs, fmt.Errorf("%s: unit %s imports itself", slot.Meta.Path, slot.Meta.Ident))
				continue
			}
			if !g.Present[int(depID)] {
				continue
			}
			if _, dup := seen[depID]; dup {
				continue
			}
			seen[depID] = struct{}{}
			g.Edges[int(depID)] = append(g.Edges[int(depID)], UnitID(from))
			g.Indeg[from]++
		}
	}
	for i := range g.Edges {
		if len(g.Edges[i]) > 1 {
			slices.Sort(g.Edges[i])
		}
	}
	return g, slots, errors.Join(errs...)
}

// CycleError describes the units left in an import cycle, or nil.
func CycleError(idx UnitIndex, topo *Topo) error {
	if !topo.Cyclic || len(topo.Cycles) == 0 {
		return nil
	}
	names := make([]string, 0, len(topo.Cycles))
	for _, id := range topo.Cycles {
		names = append(names, idx.IDToName[int(id)])
	}
	return fmt.Errorf("import cycle between units: %s", strings.Join(names, " -> "))
}
