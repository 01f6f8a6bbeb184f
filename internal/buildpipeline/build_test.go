package buildpipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"irasm/internal/buildpipeline"
	"irasm/internal/driver"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/project"
	"irasm/internal/sourcemap"
	"irasm/internal/testkit"
)

const unitA = `
[module]
address = "0x42"
name = "A"

[[import]]
address = "0x1"
module = "D"

[[struct]]
name = "Box"
abilities = ["drop"]
fields = [{ name = "s", type = "D.S" }]

[[function]]
name = "make"
visibility = "public"
parameters = [{ name = "s", type = "D.S" }]
returns = ["Box"]

  [[function.block]]
  label = "b0"
  code = ["call D.f", "pack Box", "ret"]
`

const unitB = `
[module]
address = "0x42"
name = "B"

[[import]]
address = "0x42"
module = "A"

[[import]]
address = "0x1"
module = "D"

[[function]]
name = "wrap"
parameters = [{ name = "s", type = "D.S" }]
returns = ["A.Box"]

  [[function.block]]
  label = "b0"
  code = ["call A.make", "ret"]
`

type batch struct {
	dir   string
	units []string
	deps  []string
	out   string
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
}

// newBatch lays out deps/D.mv and the given units under a temp dir.
func newBatch(t *testing.T, units map[string]string) batch {
	t.Helper()
	b := batch{dir: t.TempDir()}
	b.out = filepath.Join(b.dir, "out")

	d := testkit.NewModule("0x1", "D")
	d.Struct("S", fileformat.Abilities(fileformat.AbilityCopy, fileformat.AbilityDrop),
		testkit.Field{Name: "x", Type: fileformat.Primitive(fileformat.TokenU64)})
	d.Function(d.Self(), "f", nil, nil)
	data, err := fileformat.Marshal(d.Build())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	dep := filepath.Join(b.dir, "deps", "D.mv")
	writeFile(t, dep, data)
	b.deps = []string{dep}

	for name, content := range units {
		path := filepath.Join(b.dir, "units", name)
		writeFile(t, path, []byte(content))
		b.units = append(b.units, path)
	}
	return b
}

func (b batch) request() *buildpipeline.BuildRequest {
	return &buildpipeline.BuildRequest{
		Units:        b.units,
		Dependencies: b.deps,
		BaseDir:      b.dir,
		OutDir:       b.out,
		Jobs:         2,
	}
}

func TestBuild(t *testing.T) {
	b := newBatch(t, map[string]string{"b.toml": unitB, "a.toml": unitA})
	sink := &buildpipeline.RecordSink{}
	req := b.request()
	req.Progress = sink

	res, err := buildpipeline.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Units) != 2 || res.Units[0].Name != "units/a.toml" || res.Units[1].Name != "units/b.toml" {
		t.Fatalf("units = %+v", res.Units)
	}
	if res.Failed() != 0 {
		t.Fatalf("%d units failed", res.Failed())
	}
	if res.Store.Len() != 3 {
		t.Fatalf("store holds %d modules", res.Store.Len())
	}
	a, _ := ir.NewModuleIdent("0x42", "A")
	if !res.Store.Has(a) {
		t.Fatal("assembled module missing from the store")
	}

	for _, u := range res.Units {
		data, err := os.ReadFile(u.OutPath)
		if err != nil {
			t.Fatalf("%s: %v", u.Name, err)
		}
		m, err := fileformat.Unmarshal(data)
		if err != nil {
			t.Fatalf("%s: %v", u.Name, err)
		}
		if err := testkit.CheckModuleInvariants(m); err != nil {
			t.Fatalf("%s: %v", u.Name, err)
		}
		raw, err := os.ReadFile(u.MapPath)
		if err != nil {
			t.Fatalf("%s: %v", u.Name, err)
		}
		sm, err := sourcemap.Unmarshal(raw)
		if err != nil || sm.Function(0) == nil {
			t.Fatalf("%s: source map %v", u.Name, err)
		}
	}
	if filepath.Base(res.Units[1].OutPath) != "b"+buildpipeline.ModuleExt {
		t.Fatalf("out path = %s", res.Units[1].OutPath)
	}

	if evt, ok := sink.Last("units/b.toml", buildpipeline.StageWrite); !ok || evt.Status != buildpipeline.StatusDone {
		t.Fatalf("last write event = %+v, %v", evt, ok)
	}
	if evt, ok := sink.Last("", buildpipeline.StageLoad); !ok || evt.Status != buildpipeline.StatusDone {
		t.Fatalf("load event = %+v, %v", evt, ok)
	}
	if !res.Timings.Has(buildpipeline.StageAssemble) || !res.Timings.Has(buildpipeline.StagePlan) {
		t.Fatal("stage timings missing")
	}
}

func TestBuild_SkipsDependentsOfFailedUnit(t *testing.T) {
	b := newBatch(t, map[string]string{
		"a.toml": strings.Replace(unitA, "call D.f", "call D.nope", 1),
		"b.toml": unitB,
	})
	sink := &buildpipeline.RecordSink{}
	req := b.request()
	req.Progress = sink

	res, err := buildpipeline.Build(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.Failed() != 2 {
		t.Fatalf("%d units failed", res.Failed())
	}
	if !strings.Contains(res.Units[1].Err.Error(), "skipped") {
		t.Fatalf("b: %v", res.Units[1].Err)
	}
	if evt, ok := sink.Last("units/a.toml", buildpipeline.StageAssemble); !ok || evt.Status != buildpipeline.StatusError {
		t.Fatalf("a event = %+v", evt)
	}
	if _, err := os.Stat(filepath.Join(b.out, "b.mv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("skipped unit was written: %v", err)
	}
	if res.Store.Len() != 1 {
		t.Fatalf("store holds %d modules", res.Store.Len())
	}
}

func TestBuild_DiskCache(t *testing.T) {
	b := newBatch(t, map[string]string{"a.toml": unitA, "b.toml": unitB})
	dc, err := driver.OpenDiskCacheAt(filepath.Join(b.dir, "cache"))
	if err != nil {
		t.Fatalf("OpenDiskCacheAt: %v", err)
	}

	req := b.request()
	req.DiskCache = dc
	req.ModuleCache = driver.NewModuleCache(1)
	first, err := buildpipeline.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := buildpipeline.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, u := range second.Units {
		if !u.Output.Cached {
			t.Fatalf("%s was assembled again", u.Name)
		}
		if first.Units[i].Output.Cached {
			t.Fatalf("%s was cached on the first run", u.Name)
		}
	}
	if !second.Loaded[0].Cached {
		t.Fatal("dependency was decoded again")
	}

	// the lenient flag is part of the cache key
	req.Lenient = true
	third, err := buildpipeline.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if third.Units[0].Output.Cached {
		t.Fatal("cache ignored the lenient flag")
	}
}

func TestBuild_Rejects(t *testing.T) {
	if _, err := buildpipeline.Build(context.Background(), &buildpipeline.BuildRequest{}); !errors.Is(err, project.ErrNoUnits) {
		t.Fatalf("empty batch: %v", err)
	}

	b := newBatch(t, map[string]string{"a.toml": unitA})
	req := b.request()
	req.Dependencies = append(req.Dependencies, filepath.Join(b.dir, "deps", "missing.mv"))
	if _, err := buildpipeline.Build(context.Background(), req); err == nil {
		t.Fatal("missing dependency file accepted")
	}

	req = b.request()
	req.Dependencies = append(req.Dependencies, req.Dependencies[0])
	if _, err := buildpipeline.Build(context.Background(), req); err == nil {
		t.Fatal("duplicate dependency accepted")
	}

	other := filepath.Join(b.dir, "more", "a.toml")
	writeFile(t, other, []byte(strings.Replace(unitA, `name = "A"`, `name = "A2"`, 1)))
	req = b.request()
	req.Units = append(req.Units, other)
	if _, err := buildpipeline.Build(context.Background(), req); err == nil || !strings.Contains(err.Error(), "would both write") {
		t.Fatalf("output collision: %v", err)
	}
}

func TestPlanUnits(t *testing.T) {
	b := newBatch(t, map[string]string{"a.toml": unitA, "b.toml": unitB})
	plan, err := buildpipeline.PlanUnits(b.units, b.dir, project.Digest{})
	if err != nil {
		t.Fatalf("PlanUnits: %v", err)
	}
	if len(plan.Units) != 2 || plan.Units[0].Meta.Ident != "0x42::A" || plan.Units[1].Meta.Ident != "0x42::B" {
		t.Fatalf("plan = %+v", plan.Units)
	}
	if len(plan.Batches) != 2 {
		t.Fatalf("batches = %v", plan.Batches)
	}
	if plan.Units[1].Meta.UnitHash == (project.Digest{}) {
		t.Fatal("unit hash not computed")
	}

	cyclic := strings.Replace(unitA, "[[struct]]", "[[import]]\naddress = \"0x42\"\nmodule = \"B\"\n\n[[struct]]", 1)
	c := newBatch(t, map[string]string{"a.toml": cyclic, "b.toml": unitB})
	if _, err := buildpipeline.PlanUnits(c.units, c.dir, project.Digest{}); err == nil {
		t.Fatal("import cycle accepted")
	}
}

func TestProgressFiles(t *testing.T) {
	base := t.TempDir()
	files := []string{
		filepath.Join(base, "units", "b.toml"),
		filepath.Join(base, "units", "a.toml"),
		filepath.Join(base, "units", "a.toml"),
		"",
	}
	got := buildpipeline.ProgressFiles(files, base)
	if len(got) != 2 || got[0] != "units/a.toml" || got[1] != "units/b.toml" {
		t.Fatalf("ProgressFiles = %v", got)
	}
	outside := buildpipeline.ProgressFiles([]string{"/elsewhere/c.toml"}, base)
	if len(outside) != 1 || outside[0] != "/elsewhere/c.toml" {
		t.Fatalf("outside = %v", outside)
	}
}
