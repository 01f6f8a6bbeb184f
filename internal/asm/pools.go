package asm

import (
	"fmt"

	"fortio.org/safecast"

	"irasm/internal/asmerr"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
)

func (c *Context) moduleAlias(id ir.ModuleIdent) (ir.ModuleName, error) {
	alias, ok := c.aliases[id]
	if !ok {
		return "", asmerr.Newf(asmerr.KindUnboundAlias, id.String(), "missing import for module")
	}
	return alias, nil
}

func (c *Context) moduleEntry(alias ir.ModuleName) (moduleEntry, error) {
	e, ok := c.modules[alias]
	if !ok {
		return moduleEntry{}, asmerr.Newf(asmerr.KindUnboundAlias, string(alias), "unbound module alias")
	}
	return e, nil
}

// ModuleIdent resolves an alias to the module identity it was imported as.
func (c *Context) ModuleIdent(alias ir.ModuleName) (ir.ModuleIdent, error) {
	e, err := c.moduleEntry(alias)
	if err != nil {
		return ir.ModuleIdent{}, err
	}
	return e.id, nil
}

// ModuleHandleIndex returns the pool index of the handle bound to alias.
func (c *Context) ModuleHandleIndex(alias ir.ModuleName) (fileformat.ModuleHandleIndex, error) {
	e, err := c.moduleEntry(alias)
	if err != nil {
		return 0, err
	}
	idx, ok := c.moduleHandles.Index(e.handle)
	if !ok {
		panic(fmt.Errorf("asm: module %s bound without a pooled handle", alias))
	}
	return fileformat.ModuleHandleIndex(idx), nil
}

// FieldHandleIndex interns the handle of field number field of struct owner.
func (c *Context) FieldHandleIndex(owner fileformat.StructDefinitionIndex, field fileformat.MemberCount) (fileformat.FieldHandleIndex, error) {
	idx, err := c.fieldHandles.GetOrAdd(fileformat.FieldHandle{Owner: owner, Field: field})
	return fileformat.FieldHandleIndex(idx), err
}

// StructInstantiationIndex interns a generic struct instantiation.
func (c *Context) StructInstantiationIndex(def fileformat.StructDefinitionIndex, typeParams fileformat.SignatureIndex) (fileformat.StructDefInstantiationIndex, error) {
	idx, err := c.structInsts.GetOrAdd(fileformat.StructDefInstantiation{Def: def, TypeParameters: typeParams})
	return fileformat.StructDefInstantiationIndex(idx), err
}

// EnumInstantiationIndex interns a generic enum instantiation.
func (c *Context) EnumInstantiationIndex(def fileformat.EnumDefinitionIndex, typeParams fileformat.SignatureIndex) (fileformat.EnumDefInstantiationIndex, error) {
	idx, err := c.enumInsts.GetOrAdd(fileformat.EnumDefInstantiation{Def: def, TypeParameters: typeParams})
	return fileformat.EnumDefInstantiationIndex(idx), err
}

// FunctionInstantiationIndex interns a generic function instantiation.
func (c *Context) FunctionInstantiationIndex(handle fileformat.FunctionHandleIndex, typeParams fileformat.SignatureIndex) (fileformat.FunctionInstantiationIndex, error) {
	idx, err := c.functionInsts.GetOrAdd(fileformat.FunctionInstantiation{Handle: handle, TypeParameters: typeParams})
	return fileformat.FunctionInstantiationIndex(idx), err
}

// FieldInstantiationIndex interns a field access on a generic struct.
func (c *Context) FieldInstantiationIndex(handle fileformat.FieldHandleIndex, typeParams fileformat.SignatureIndex) (fileformat.FieldInstantiationIndex, error) {
	idx, err := c.fieldInsts.GetOrAdd(fileformat.FieldInstantiation{Handle: handle, TypeParameters: typeParams})
	return fileformat.FieldInstantiationIndex(idx), err
}

// IdentifierIndex validates and interns s.
func (c *Context) IdentifierIndex(s string) (fileformat.IdentifierIndex, error) {
	ident, err := fileformat.NewIdentifier(s)
	if err != nil {
		return 0, asmerr.Wrap(asmerr.KindInvalidIdentifier, s, err)
	}
	idx, err := c.identifiers.GetOrAdd(ident)
	return fileformat.IdentifierIndex(idx), err
}

// AddressIndex interns addr.
func (c *Context) AddressIndex(addr fileformat.AccountAddress) (fileformat.AddressIdentifierIndex, error) {
	idx, err := c.addresses.GetOrAdd(addr)
	return fileformat.AddressIdentifierIndex(idx), err
}

// ConstantIndex interns an anonymous constant.
func (c *Context) ConstantIndex(constant fileformat.Constant) (fileformat.ConstantPoolIndex, error) {
	idx, err := c.constants.GetOrAdd(constant.Clone())
	return fileformat.ConstantPoolIndex(idx), err
}

// NamedConstantIndex returns the pool index of a constant declared by name.
func (c *Context) NamedConstantIndex(name ir.ConstantName) (fileformat.ConstantPoolIndex, error) {
	idx, ok := c.namedConstants[name]
	if !ok {
		return 0, asmerr.Newf(asmerr.KindUnboundDefinition, string(name), "missing constant definition")
	}
	return idx, nil
}

// SignatureIndex interns sig.
func (c *Context) SignatureIndex(sig fileformat.Signature) (fileformat.SignatureIndex, error) {
	idx, err := c.signatures.GetOrAdd(sig.Clone())
	return fileformat.SignatureIndex(idx), err
}

// Field looks up a declared field of the struct behind owner.
func (c *Context) Field(owner fileformat.DataTypeHandleIndex, name ir.FieldName) (FieldInfo, error) {
	f, ok := c.fields[memberKey{owner: owner, name: string(name)}]
	if !ok {
		return FieldInfo{}, asmerr.Newf(asmerr.KindUnboundMember, string(name), "unbound field")
	}
	f.Type = f.Type.Clone()
	return f, nil
}

// Variant looks up a declared variant of the enum behind owner.
func (c *Context) Variant(owner fileformat.DataTypeHandleIndex, name ir.VariantName) (VariantInfo, error) {
	v, ok := c.variants[memberKey{owner: owner, name: string(name)}]
	if !ok {
		return VariantInfo{}, asmerr.Newf(asmerr.KindUnboundMember, string(name), "unbound variant")
	}
	return v, nil
}

// StructDefinitionIndex returns the index declared for a local struct.
func (c *Context) StructDefinitionIndex(name ir.DataTypeName) (fileformat.StructDefinitionIndex, error) {
	idx, ok := c.structDefs[name]
	if !ok {
		return 0, asmerr.Newf(asmerr.KindUnboundDefinition, string(name), "missing struct definition")
	}
	return idx, nil
}

// EnumDefinitionIndex returns the index declared for a local enum.
func (c *Context) EnumDefinitionIndex(name ir.DataTypeName) (fileformat.EnumDefinitionIndex, error) {
	idx, ok := c.enumDefs[name]
	if !ok {
		return 0, asmerr.Newf(asmerr.KindUnboundDefinition, string(name), "missing enum definition")
	}
	return idx, nil
}

// SetFunctionIndex records which function definition is being lowered.
func (c *Context) SetFunctionIndex(idx fileformat.FunctionDefinitionIndex) {
	c.currentFunction = idx
}

// CurrentFunctionDefinitionIndex is the index last set by SetFunctionIndex.
func (c *Context) CurrentFunctionDefinitionIndex() fileformat.FunctionDefinitionIndex {
	return c.currentFunction
}

// CurrentStructDefinitionIndex is the index the next new struct will get.
func (c *Context) CurrentStructDefinitionIndex() (fileformat.StructDefinitionIndex, error) {
	idx, err := safecast.Conv[fileformat.StructDefinitionIndex](len(c.structDefs))
	if err != nil {
		return 0, asmerr.Wrap(asmerr.KindTableOverflow, "struct definitions", err)
	}
	return idx, nil
}

// CurrentEnumDefinitionIndex is the index the next new enum will get.
func (c *Context) CurrentEnumDefinitionIndex() (fileformat.EnumDefinitionIndex, error) {
	idx, err := safecast.Conv[fileformat.EnumDefinitionIndex](len(c.enumDefs))
	if err != nil {
		return 0, asmerr.Wrap(asmerr.KindTableOverflow, "enum definitions", err)
	}
	return idx, nil
}

// PoolSizes reports the current size of every pool, keyed by pool name.
func (c *Context) PoolSizes() map[string]int {
	return map[string]int{
		c.moduleHandles.Name():   c.moduleHandles.Len(),
		c.dataTypeHandles.Name(): c.dataTypeHandles.Len(),
		"function handles":       len(c.functions),
		c.fieldHandles.Name():    c.fieldHandles.Len(),
		c.structInsts.Name():     c.structInsts.Len(),
		c.enumInsts.Name():       c.enumInsts.Len(),
		c.functionInsts.Name():   c.functionInsts.Len(),
		c.fieldInsts.Name():      c.fieldInsts.Len(),
		c.signatures.Name():      c.signatures.Len(),
		c.identifiers.Name():     c.identifiers.Len(),
		c.addresses.Name():       c.addresses.Len(),
		c.constants.Name():       c.constants.Len(),
	}
}
