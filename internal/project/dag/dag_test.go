package dag

import (
	"strings"
	"testing"

	"irasm/internal/project"
)

func idsToNames(idx UnitIndex, ids []UnitID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = idx.IDToName[int(id)]
	}
	return out
}

func unit(ident string, imports ...string) project.UnitMeta {
	meta := project.UnitMeta{Ident: ident, Path: ident + ".toml"}
	for _, imp := range imports {
		meta.Imports = append(meta.Imports, project.ImportMeta{Ident: imp})
	}
	return meta
}

func TestBuildIndexIncludesImports(t *testing.T) {
	metas := []project.UnitMeta{
		unit("0x42::App", "0x1::Coin", "0x2::Bank"),
		unit("0x2::Bank"),
	}
	idx := BuildIndex(metas)

	wantNames := []string{"0x1::Coin", "0x2::Bank", "0x42::App"}
	if len(idx.IDToName) != len(wantNames) {
		t.Fatalf("unexpected unit count: %d", len(idx.IDToName))
	}
	for i, want := range wantNames {
		if got := idx.IDToName[i]; got != want {
			t.Fatalf("idx.IDToName[%d] = %q, want %q", i, got, want)
		}
		if id, ok := idx.NameToID[want]; !ok || int(id) != i {
			t.Fatalf("idx.NameToID[%q] = %v, want %d", want, id, i)
		}
	}
}

func TestToposortPutsDependenciesFirst(t *testing.T) {
	metas := []project.UnitMeta{
		unit("0x42::App", "0x2::Bank", "0x1::Coin", "0x9::External"),
		unit("0x2::Bank", "0x1::Coin"),
		unit("0x1::Coin"),
	}
	idx := BuildIndex(metas)
	g, slots, err := BuildGraph(idx, metas)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	if slots[idx.NameToID["0x9::External"]].Present {
		t.Fatalf("external module marked present")
	}
	topo := ToposortKahn(g)
	if topo.Cyclic {
		t.Fatalf("unexpected cycle: %v", idsToNames(idx, topo.Cycles))
	}
	got := strings.Join(idsToNames(idx, topo.Order), ",")
	if got != "0x1::Coin,0x2::Bank,0x42::App" {
		t.Fatalf("order = %s", got)
	}
	if len(topo.Batches) != 3 {
		t.Fatalf("batches = %d", len(topo.Batches))
	}
}

func TestIndependentUnitsShareABatch(t *testing.T) {
	metas := []project.UnitMeta{unit("0x1::B"), unit("0x1::A"), unit("0x1::C", "0x1::A", "0x1::B")}
	idx := BuildIndex(metas)
	g, _, err := BuildGraph(idx, metas)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	topo := ToposortKahn(g)
	if len(topo.Batches) != 2 || strings.Join(idsToNames(idx, topo.Batches[0]), ",") != "0x1::A,0x1::B" {
		t.Fatalf("batches = %v", topo.Batches)
	}
}

func TestCycleDetected(t *testing.T) {
	metas := []project.UnitMeta{
		unit("0x1::A", "0x1::B"),
		unit("0x1::B", "0x1::A"),
		unit("0x1::C"),
	}
	idx := BuildIndex(metas)
	g, _, err := BuildGraph(idx, metas)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	topo := ToposortKahn(g)
	if !topo.Cyclic {
		t.Fatalf("cycle not detected")
	}
	if got := strings.Join(idsToNames(idx, topo.Order), ","); got != "0x1::C" {
		t.Fatalf("order = %s", got)
	}
	err = CycleError(idx, topo)
	if err == nil || !strings.Contains(err.Error(), "0x1::A -> 0x1::B") {
		t.Fatalf("CycleError = %v", err)
	}
}

func TestBuildGraphReportsDuplicatesAndSelfImports(t *testing.T) {
	metas := []project.UnitMeta{
		unit("0x1::A", "0x1::A"),
		{Ident: "0x1::B", Path: "b.toml"},
		{Ident: "0x1::B", Path: "b2.toml"},
	}
	idx := BuildIndex(metas)
	_, slots, err := BuildGraph(idx, metas)
	if err == nil {
		t.Fatalf("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "imports itself") || !strings.Contains(msg, "duplicate unit 0x1::B (first declared in b.toml)") {
		t.Fatalf("errors = %s", msg)
	}
	if slots[idx.NameToID["0x1::B"]].Meta.Path != "b.toml" {
		t.Fatalf("first occurrence not kept")
	}
}
