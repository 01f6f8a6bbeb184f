// Package deps exposes already-compiled dependency modules to the assembler.
//
// A View is a read-only projection over one CompiledModule built once per
// dependency. A Dependency wraps a View either over a module the caller keeps
// alive (Borrowed) or over a private copy the dependency owns (Owned). A Store
// maps module identities to dependencies for one compilation and is handed
// back after materialization so later units can reuse it.
package deps

import (
	"fmt"

	"fortio.org/safecast"

	"irasm/internal/asmerr"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
)

type typeKey struct {
	module fileformat.Identifier
	name   fileformat.Identifier
}

// View indexes the exported shapes of one compiled module.
type View struct {
	id        ir.ModuleIdent
	types     map[typeKey]fileformat.DataTypeHandleIndex
	functions map[fileformat.Identifier]fileformat.FunctionHandleIndex
	module    *fileformat.CompiledModule
}

// NewView indexes m: every data type handle by (declaring module name, type name),
// and every function handle declared by m itself by name.
func NewView(m *fileformat.CompiledModule) (*View, error) {
	if m == nil {
		return nil, asmerr.New(asmerr.KindDependencyMalformed, "<nil module>")
	}
	addr, name, err := m.SelfID()
	if err != nil {
		return nil, asmerr.Wrap(asmerr.KindDependencyMalformed, "<unknown module>", err)
	}
	v := &View{
		id:        ir.ModuleIdent{Address: addr, Name: ir.ModuleName(name)},
		types:     make(map[typeKey]fileformat.DataTypeHandleIndex, len(m.DataTypeHandles)),
		functions: make(map[fileformat.Identifier]fileformat.FunctionHandleIndex),
		module:    m,
	}
	subject := v.id.String()

	for i, h := range m.DataTypeHandles {
		mh := m.ModuleHandleAt(h.Module)
		if mh == nil {
			return nil, asmerr.Newf(asmerr.KindDependencyMalformed, subject, "type handle %d: module handle %d out of range", i, h.Module)
		}
		mname, ok := m.IdentifierAt(mh.Name)
		if !ok {
			return nil, asmerr.Newf(asmerr.KindDependencyMalformed, subject, "type handle %d: module name %d out of range", i, mh.Name)
		}
		tname, ok := m.IdentifierAt(h.Name)
		if !ok {
			return nil, asmerr.Newf(asmerr.KindDependencyMalformed, subject, "type handle %d: name %d out of range", i, h.Name)
		}
		idx, err := safecast.Conv[fileformat.DataTypeHandleIndex](i)
		if err != nil {
			return nil, asmerr.Wrap(asmerr.KindTableOverflow, subject, err)
		}
		// handles are ordered, so the first occurrence wins like a pool insert
		k := typeKey{module: mname, name: tname}
		if _, seen := v.types[k]; !seen {
			v.types[k] = idx
		}
	}

	// only functions defined by this module, not ones it imports
	for i, h := range m.FunctionHandles {
		if h.Module != m.SelfModuleHandleIdx {
			continue
		}
		fname, ok := m.IdentifierAt(h.Name)
		if !ok {
			return nil, asmerr.Newf(asmerr.KindDependencyMalformed, subject, "function handle %d: name %d out of range", i, h.Name)
		}
		idx, err := safecast.Conv[fileformat.FunctionHandleIndex](i)
		if err != nil {
			return nil, asmerr.Wrap(asmerr.KindTableOverflow, subject, err)
		}
		v.functions[fname] = idx
	}
	return v, nil
}

// ID returns the identity of the viewed module.
func (v *View) ID() ir.ModuleIdent { return v.id }

// SourceStructInfo maps a type handle index of the viewed module back to the
// identity of the module declaring that type and the type's name.
func (v *View) SourceStructInfo(idx fileformat.DataTypeHandleIndex) (ir.ModuleIdent, ir.DataTypeName, bool) {
	h := v.module.DataTypeHandleAt(idx)
	if h == nil {
		return ir.ModuleIdent{}, "", false
	}
	mh := v.module.ModuleHandleAt(h.Module)
	if mh == nil {
		return ir.ModuleIdent{}, "", false
	}
	addr, ok := v.module.AddressIdentifierAt(mh.Address)
	if !ok {
		return ir.ModuleIdent{}, "", false
	}
	mname, ok := v.module.IdentifierAt(mh.Name)
	if !ok || ir.ModuleName(mname).IsSelf() {
		return ir.ModuleIdent{}, "", false
	}
	tname, ok := v.module.IdentifierAt(h.Name)
	if !ok {
		return ir.ModuleIdent{}, "", false
	}
	return ir.ModuleIdent{Address: addr, Name: ir.ModuleName(mname)}, ir.DataTypeName(tname), true
}

// DataTypeHandle returns the shape of module::name as seen by the viewed module.
// The returned handle carries foreign indices and must not be stored locally.
func (v *View) DataTypeHandle(module ir.ModuleName, name ir.DataTypeName) (fileformat.DataTypeHandle, bool) {
	idx, ok := v.types[typeKey{module: fileformat.Identifier(module), name: fileformat.Identifier(name)}]
	if !ok {
		return fileformat.DataTypeHandle{}, false
	}
	h := v.module.DataTypeHandleAt(idx)
	if h == nil {
		return fileformat.DataTypeHandle{}, false
	}
	return h.Clone(), true
}

// FunctionSignature reconstructs the signature of a function the viewed module
// defines. Tokens still reference the viewed module's type handles.
func (v *View) FunctionSignature(name ir.FunctionName) (ir.FunctionSignature, bool) {
	idx, ok := v.functions[fileformat.Identifier(name)]
	if !ok {
		return ir.FunctionSignature{}, false
	}
	h := v.module.FunctionHandleAt(idx)
	if h == nil {
		return ir.FunctionSignature{}, false
	}
	params, ok := v.module.SignatureAt(h.Parameters)
	if !ok {
		return ir.FunctionSignature{}, false
	}
	ret, ok := v.module.SignatureAt(h.Return)
	if !ok {
		return ir.FunctionSignature{}, false
	}
	return ir.FunctionSignature{
		Parameters:     params.Clone(),
		Return:         ret.Clone(),
		TypeParameters: append([]fileformat.AbilitySet(nil), h.TypeParameters...),
	}, true
}

// NumTypes reports how many type handles were indexed.
func (v *View) NumTypes() int { return len(v.types) }

// NumFunctions reports how many defined functions were indexed.
func (v *View) NumFunctions() int { return len(v.functions) }

func (v *View) String() string {
	return fmt.Sprintf("view(%s: %d types, %d functions)", v.id, len(v.types), len(v.functions))
}
