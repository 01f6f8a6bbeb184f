package driver

import (
	"fmt"

	"irasm/internal/asm"
	"irasm/internal/deps"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/sourcemap"
	"irasm/internal/trace"
	"irasm/internal/unit"
)

// AssembleOptions tunes AssembleUnit.
type AssembleOptions struct {
	Tracer  trace.Tracer
	Parent  uint64 // span the unit's events are parented to
	Lenient bool   // allow a function to be redeclared with another signature
}

// Output is one assembled unit.
type Output struct {
	Unit      *unit.Unit
	Ident     ir.ModuleIdent
	Module    *fileformat.CompiledModule
	SourceMap *sourcemap.SourceMap
	Pools     map[string]int // pool sizes before materialization
	Cached    bool
}

// AssembleUnit lowers u onto a fresh context over store. The store comes back
// in every case, holding the same dependencies it went in with.
func AssembleUnit(u *unit.Unit, store *deps.Store, opts AssembleOptions) (*Output, *deps.Store, error) {
	if store == nil {
		store = deps.NewStore()
	}
	id, err := u.Ident()
	if err != nil {
		return nil, store, err
	}
	var current *ir.ModuleIdent
	declLoc := u.Locate(string(id.Name), u.Section("[module]", 0))
	if !u.IsScript() {
		current = &id
	} else {
		declLoc = u.Locate(string(u.Script.Main), u.Section("[script]", 0))
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}
	span := trace.Begin(tracer, trace.ScopeUnit, "assemble", opts.Parent).WithExtra("unit", u.Name())
	c := asm.NewContext(declLoc, store, current,
		asm.WithTracer(tracer),
		asm.WithTraceParent(span.ID()),
		asm.WithStrictRedeclaration(!opts.Lenient),
	)

	m, err := lowerUnit(c, u)
	if err != nil {
		span.End("error")
		return nil, c.TakeDependencies(), fmt.Errorf("%s: %w", u.Path, err)
	}
	sizes := c.PoolSizes()
	pools, store, sm := c.Materialize()
	pools.ApplyTo(m)
	sm.File = u.Path
	span.End(fmt.Sprintf("%d functions", len(m.FunctionDefs)))

	return &Output{Unit: u, Ident: id, Module: m, SourceMap: sm, Pools: sizes}, store, nil
}
