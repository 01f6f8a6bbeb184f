package asm

import (
	"fmt"

	"irasm/internal/deps"
	"irasm/internal/fileformat"
	"irasm/internal/pool"
	"irasm/internal/sourcemap"
	"irasm/internal/trace"
)

// MaterializedPools holds every pool as an ordered vector; an entry's position
// is the index other sections use to reference it.
type MaterializedPools struct {
	ModuleHandles           []fileformat.ModuleHandle
	DataTypeHandles         []fileformat.DataTypeHandle
	FunctionHandles         []fileformat.FunctionHandle
	FieldHandles            []fileformat.FieldHandle
	StructDefInstantiations []fileformat.StructDefInstantiation
	EnumDefInstantiations   []fileformat.EnumDefInstantiation
	FunctionInstantiations  []fileformat.FunctionInstantiation
	FieldInstantiations     []fileformat.FieldInstantiation
	Signatures              []fileformat.Signature
	Identifiers             []fileformat.Identifier
	AddressIdentifiers      []fileformat.AccountAddress
	ConstantPool            []fileformat.Constant
}

// ApplyTo copies the pools into m, replacing its pool sections.
func (p *MaterializedPools) ApplyTo(m *fileformat.CompiledModule) {
	m.ModuleHandles = p.ModuleHandles
	m.DataTypeHandles = p.DataTypeHandles
	m.FunctionHandles = p.FunctionHandles
	m.FieldHandles = p.FieldHandles
	m.StructDefInstantiations = p.StructDefInstantiations
	m.EnumDefInstantiations = p.EnumDefInstantiations
	m.FunctionInstantiations = p.FunctionInstantiations
	m.FieldInstantiations = p.FieldInstantiations
	m.Signatures = p.Signatures
	m.Identifiers = p.Identifiers
	m.AddressIdentifiers = p.AddressIdentifiers
	m.ConstantPool = p.ConstantPool
}

// Materialize consumes the context: it checks every pool for density, emits
// the ordered vectors and hands back the dependency store and source map.
// Calling it twice, or reaching an inconsistent pool, panics.
func (c *Context) Materialize() (*MaterializedPools, *deps.Store, *sourcemap.SourceMap) {
	if c.materialized {
		panic("asm: context materialized twice")
	}
	c.materialized = true

	if len(c.functions) != len(c.functionSignatures) {
		panic(fmt.Errorf("asm: %d function handles for %d signatures", len(c.functions), len(c.functionSignatures)))
	}
	entries := make([]pool.Entry[fileformat.FunctionHandle], 0, len(c.functions))
	for _, e := range c.functions {
		entries = append(entries, pool.Entry[fileformat.FunctionHandle]{Item: e.handle, Index: fileformat.TableIndex(e.index)})
	}

	out := &MaterializedPools{
		ModuleHandles:           c.moduleHandles.Materialize(),
		DataTypeHandles:         c.dataTypeHandles.Materialize(),
		FunctionHandles:         pool.Dense("function handles", len(c.functions), entries),
		FieldHandles:            c.fieldHandles.Materialize(),
		StructDefInstantiations: c.structInsts.Materialize(),
		EnumDefInstantiations:   c.enumInsts.Materialize(),
		FunctionInstantiations:  c.functionInsts.Materialize(),
		FieldInstantiations:     c.fieldInsts.Materialize(),
		Signatures:              c.signatures.Materialize(),
		Identifiers:             c.identifiers.Materialize(),
		AddressIdentifiers:      c.addresses.Materialize(),
		ConstantPool:            c.constants.Materialize(),
	}

	store, sm := c.deps, c.sourceMap
	c.deps = nil
	c.point(trace.ScopeModule, "materialize", fmt.Sprintf("%d handles, %d functions, %d signatures", len(out.DataTypeHandles), len(out.FunctionHandles), len(out.Signatures)))
	return out, store, sm
}
