package driver_test

import (
	"testing"

	"irasm/internal/driver"
	"irasm/internal/project"
	"irasm/internal/project/dag"
)

func digest(b byte) project.Digest {
	var d project.Digest
	for i := range d {
		d[i] = b
	}
	return d
}

func imports(idents ...string) []project.ImportMeta {
	out := make([]project.ImportMeta, 0, len(idents))
	for _, id := range idents {
		out = append(out, project.ImportMeta{Ident: id})
	}
	return out
}

func TestComputeUnitHashes_DeterministicAndTransitive(t *testing.T) {
	// A импортирует B, B импортирует C
	metas := []project.UnitMeta{
		{Ident: "0x1::A", Path: "A", ContentHash: digest('A'), Imports: imports("0x1::B")},
		{Ident: "0x1::B", Path: "B", ContentHash: digest('B'), Imports: imports("0x1::C", "0x1::Outside")},
		{Ident: "0x1::C", Path: "C", ContentHash: digest('C')},
	}
	build := func(base project.Digest) []dag.UnitSlot {
		idx := dag.BuildIndex(metas)
		g, slots, err := dag.BuildGraph(idx, metas)
		if err != nil {
			t.Fatalf("BuildGraph: %v", err)
		}
		topo := dag.ToposortKahn(g)
		driver.ComputeUnitHashes(idx, g, slots, topo, base)
		return slots
	}
	hashOf := func(slots []dag.UnitSlot, ident string) project.Digest {
		for _, s := range slots {
			if s.Meta.Ident == ident {
				return s.Meta.UnitHash
			}
		}
		t.Fatalf("no slot for %s", ident)
		return project.Digest{}
	}

	slots := build(digest(0))
	a, b, c := hashOf(slots, "0x1::A"), hashOf(slots, "0x1::B"), hashOf(slots, "0x1::C")
	if c == (project.Digest{}) {
		t.Fatal("C.UnitHash should be non-zero")
	}
	if a == b || b == c {
		t.Fatal("unit hashes must differ")
	}
	if again := build(digest(0)); hashOf(again, "0x1::A") != a {
		t.Fatal("hashing is not deterministic")
	}
	if other := build(digest(1)); hashOf(other, "0x1::C") == c {
		t.Fatal("base digest must reach every unit")
	}

	// меняем «внука»: C
	metas[2].ContentHash = digest('X')
	slots = build(digest(0))
	if hashOf(slots, "0x1::A") == a {
		t.Fatal("A.UnitHash must change when transitive import (C) changes")
	}
}

func TestComputeUnitHashes_CycleDoesNothing(t *testing.T) {
	g := dag.Graph{
		Edges:   [][]dag.UnitID{{1}, {0}},
		Indeg:   []int{1, 1},
		Present: []bool{true, true},
	}
	topo := &dag.Topo{Cyclic: true}
	slots := []dag.UnitSlot{
		{Meta: project.UnitMeta{Path: "A", ContentHash: digest('A')}, Present: true},
		{Meta: project.UnitMeta{Path: "B", ContentHash: digest('B')}, Present: true},
	}
	driver.ComputeUnitHashes(dag.UnitIndex{}, g, slots, topo, digest(0))
	if slots[0].Meta.UnitHash != (project.Digest{}) || slots[1].Meta.UnitHash != (project.Digest{}) {
		t.Fatal("hashes must stay zero on cycles")
	}
}
