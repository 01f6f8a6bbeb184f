package buildpipeline

import (
	"errors"
	"fmt"

	"irasm/internal/driver"
	"irasm/internal/ir"
	"irasm/internal/project"
	"irasm/internal/project/dag"
	"irasm/internal/source"
	"irasm/internal/unit"
)

// PlannedUnit is one parsed unit of a batch.
type PlannedUnit struct {
	Unit *unit.Unit
	Meta project.UnitMeta
	Name string // progress name
}

// Plan is a batch in assembly order: every unit follows the batch units
// whose modules it imports.
type Plan struct {
	FileSet *source.FileSet
	Units   []PlannedUnit
	Batches [][]string // idents per wave of independent units
}

// PlanUnits parses every unit file and orders the batch. base is folded into
// every unit hash; pass the digest of what the batch is assembled against.
func PlanUnits(paths []string, baseDir string, base project.Digest) (*Plan, error) {
	fs := source.NewFileSet()
	var errs []error
	units := make([]*unit.Unit, 0, len(paths))
	metas := make([]project.UnitMeta, 0, len(paths))
	for _, path := range paths {
		u, err := unit.Load(fs, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		meta, err := unitMeta(fs, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		units = append(units, u)
		metas = append(metas, meta)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	idx := dag.BuildIndex(metas)
	g, slots, err := dag.BuildGraph(idx, metas)
	if err != nil {
		return nil, err
	}
	topo := dag.ToposortKahn(g)
	if err := dag.CycleError(idx, topo); err != nil {
		return nil, err
	}
	driver.ComputeUnitHashes(idx, g, slots, topo, base)

	byPath := make(map[string]*unit.Unit, len(units))
	for _, u := range units {
		byPath[u.Path] = u
	}
	plan := &Plan{FileSet: fs, Units: make([]PlannedUnit, 0, len(units))}
	for _, id := range topo.Order {
		slot := slots[int(id)]
		plan.Units = append(plan.Units, PlannedUnit{
			Unit: byPath[slot.Meta.Path],
			Meta: slot.Meta,
			Name: progressName(slot.Meta.Path, baseDir),
		})
	}
	for _, wave := range topo.Batches {
		names := make([]string, 0, len(wave))
		for _, id := range wave {
			names = append(names, idx.IDToName[int(id)])
		}
		plan.Batches = append(plan.Batches, names)
	}
	return plan, nil
}

func unitMeta(fs *source.FileSet, u *unit.Unit) (project.UnitMeta, error) {
	meta := project.UnitMeta{
		Path:        u.Path,
		Script:      u.IsScript(),
		Span:        u.Whole(),
		ContentHash: project.Digest(fs.Get(u.File).Hash),
	}
	if u.IsScript() {
		// скрипты никто не импортирует, путь уникален
		meta.Ident = u.Path
	} else {
		id, err := u.Ident()
		if err != nil {
			return meta, err
		}
		meta.Ident = id.String()
		meta.Span = u.Locate(string(id.Name), u.Section("[module]", 0))
	}
	for i, imp := range u.Imports {
		id, err := ir.NewModuleIdent(imp.Address, imp.Module)
		if err != nil {
			return meta, fmt.Errorf("%s: import %s: %w", u.Path, imp.Module, err)
		}
		meta.Imports = append(meta.Imports, project.ImportMeta{
			Ident: id.String(),
			Span:  u.Locate(string(imp.Module), u.Section("[[import]]", i)),
		})
	}
	return meta, nil
}
