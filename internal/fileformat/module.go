package fileformat

import (
	"fmt"
	"slices"
)

// CompiledModule is a whole compiled module: the materialized pools plus the
// definitions that reference them.
type CompiledModule struct {
	Version             uint32            `msgpack:"version"`
	SelfModuleHandleIdx ModuleHandleIndex `msgpack:"self_module_handle_idx"`

	ModuleHandles   []ModuleHandle   `msgpack:"module_handles"`
	DataTypeHandles []DataTypeHandle `msgpack:"data_type_handles"`
	FunctionHandles []FunctionHandle `msgpack:"function_handles"`
	FieldHandles    []FieldHandle    `msgpack:"field_handles"`
	FriendDecls     []ModuleHandle   `msgpack:"friend_decls"`

	StructDefInstantiations []StructDefInstantiation `msgpack:"struct_def_instantiations"`
	EnumDefInstantiations   []EnumDefInstantiation   `msgpack:"enum_def_instantiations"`
	FunctionInstantiations  []FunctionInstantiation  `msgpack:"function_instantiations"`
	FieldInstantiations     []FieldInstantiation     `msgpack:"field_instantiations"`

	Signatures         []Signature      `msgpack:"signatures"`
	Identifiers        []Identifier     `msgpack:"identifiers"`
	AddressIdentifiers []AccountAddress `msgpack:"address_identifiers"`
	ConstantPool       []Constant       `msgpack:"constant_pool"`

	StructDefs   []StructDefinition   `msgpack:"struct_defs"`
	EnumDefs     []EnumDefinition     `msgpack:"enum_defs"`
	FunctionDefs []FunctionDefinition `msgpack:"function_defs"`
}

// ModuleHandleAt returns the handle or nil if idx is out of range.
func (m *CompiledModule) ModuleHandleAt(idx ModuleHandleIndex) *ModuleHandle {
	if int(idx) >= len(m.ModuleHandles) {
		return nil
	}
	return &m.ModuleHandles[idx]
}

// DataTypeHandleAt returns the handle or nil if idx is out of range.
func (m *CompiledModule) DataTypeHandleAt(idx DataTypeHandleIndex) *DataTypeHandle {
	if int(idx) >= len(m.DataTypeHandles) {
		return nil
	}
	return &m.DataTypeHandles[idx]
}

// FunctionHandleAt returns the handle or nil if idx is out of range.
func (m *CompiledModule) FunctionHandleAt(idx FunctionHandleIndex) *FunctionHandle {
	if int(idx) >= len(m.FunctionHandles) {
		return nil
	}
	return &m.FunctionHandles[idx]
}

// SignatureAt returns the signature and whether idx was in range.
func (m *CompiledModule) SignatureAt(idx SignatureIndex) (Signature, bool) {
	if int(idx) >= len(m.Signatures) {
		return nil, false
	}
	return m.Signatures[idx], true
}

// IdentifierAt returns the identifier and whether idx was in range.
func (m *CompiledModule) IdentifierAt(idx IdentifierIndex) (Identifier, bool) {
	if int(idx) >= len(m.Identifiers) {
		return "", false
	}
	return m.Identifiers[idx], true
}

// AddressIdentifierAt returns the address and whether idx was in range.
func (m *CompiledModule) AddressIdentifierAt(idx AddressIdentifierIndex) (AccountAddress, bool) {
	if int(idx) >= len(m.AddressIdentifiers) {
		return AccountAddress{}, false
	}
	return m.AddressIdentifiers[idx], true
}

// SelfHandle returns the module's own handle or nil for a malformed module.
func (m *CompiledModule) SelfHandle() *ModuleHandle {
	return m.ModuleHandleAt(m.SelfModuleHandleIdx)
}

// SelfID resolves the module's own address and name.
func (m *CompiledModule) SelfID() (AccountAddress, Identifier, error) {
	self := m.SelfHandle()
	if self == nil {
		return AccountAddress{}, "", fmt.Errorf("self module handle %d out of range", m.SelfModuleHandleIdx)
	}
	addr, ok := m.AddressIdentifierAt(self.Address)
	if !ok {
		return AccountAddress{}, "", fmt.Errorf("self address index %d out of range", self.Address)
	}
	name, ok := m.IdentifierAt(self.Name)
	if !ok {
		return AccountAddress{}, "", fmt.Errorf("self name index %d out of range", self.Name)
	}
	return addr, name, nil
}

// Clone returns a deep copy sharing no memory with m.
func (m *CompiledModule) Clone() *CompiledModule {
	out := &CompiledModule{
		Version:                 m.Version,
		SelfModuleHandleIdx:     m.SelfModuleHandleIdx,
		ModuleHandles:           slices.Clone(m.ModuleHandles),
		FieldHandles:            slices.Clone(m.FieldHandles),
		FriendDecls:             slices.Clone(m.FriendDecls),
		StructDefInstantiations: slices.Clone(m.StructDefInstantiations),
		EnumDefInstantiations:   slices.Clone(m.EnumDefInstantiations),
		FunctionInstantiations:  slices.Clone(m.FunctionInstantiations),
		FieldInstantiations:     slices.Clone(m.FieldInstantiations),
		Identifiers:             slices.Clone(m.Identifiers),
		AddressIdentifiers:      slices.Clone(m.AddressIdentifiers),
	}
	out.DataTypeHandles = cloneEach(m.DataTypeHandles, DataTypeHandle.Clone)
	out.FunctionHandles = cloneEach(m.FunctionHandles, FunctionHandle.Clone)
	out.Signatures = cloneEach(m.Signatures, Signature.Clone)
	out.ConstantPool = cloneEach(m.ConstantPool, Constant.Clone)
	out.StructDefs = cloneEach(m.StructDefs, func(d StructDefinition) StructDefinition {
		return StructDefinition{Handle: d.Handle, Fields: cloneFields(d.Fields)}
	})
	out.EnumDefs = cloneEach(m.EnumDefs, func(d EnumDefinition) EnumDefinition {
		return EnumDefinition{Handle: d.Handle, Variants: cloneEach(d.Variants, func(v VariantDefinition) VariantDefinition {
			return VariantDefinition{Name: v.Name, Fields: cloneFields(v.Fields)}
		})}
	})
	out.FunctionDefs = cloneEach(m.FunctionDefs, func(d FunctionDefinition) FunctionDefinition {
		d.Acquires = slices.Clone(d.Acquires)
		d.Code = d.Code.Clone()
		return d
	})
	return out
}

func cloneFields(fields []FieldDefinition) []FieldDefinition {
	return cloneEach(fields, func(f FieldDefinition) FieldDefinition {
		return FieldDefinition{Name: f.Name, Signature: f.Signature.Clone()}
	})
}

func cloneEach[T any](in []T, clone func(T) T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i := range in {
		out[i] = clone(in[i])
	}
	return out
}
