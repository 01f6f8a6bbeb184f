package asm

import (
	"slices"

	"fortio.org/safecast"

	"irasm/internal/asmerr"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/trace"
)

// DeclareFriend interns the friend's address and name and returns its handle.
// Friend handles are not part of the module handle pool.
func (c *Context) DeclareFriend(id ir.ModuleIdent) (fileformat.ModuleHandle, error) {
	address, err := c.AddressIndex(id.Address)
	if err != nil {
		return fileformat.ModuleHandle{}, err
	}
	name, err := c.IdentifierIndex(string(id.Name))
	if err != nil {
		return fileformat.ModuleHandle{}, err
	}
	return fileformat.ModuleHandle{Address: address, Name: name}, nil
}

// DeclareImport binds alias to id and interns the module handle. Re-aliasing
// an identity is allowed; the last alias wins for reverse lookups.
func (c *Context) DeclareImport(id ir.ModuleIdent, alias ir.ModuleName) (fileformat.ModuleHandleIndex, error) {
	address, err := c.AddressIndex(id.Address)
	if err != nil {
		return 0, err
	}
	name, err := c.IdentifierIndex(string(id.Name))
	if err != nil {
		return 0, err
	}
	handle := fileformat.ModuleHandle{Address: address, Name: name}
	idx, err := c.moduleHandles.GetOrAdd(handle)
	if err != nil {
		return 0, err
	}
	c.aliases[id] = alias
	c.modules[alias] = moduleEntry{id: id, handle: handle}
	c.point(trace.ScopeModule, "import", id.String()+" as "+string(alias))
	return fileformat.ModuleHandleIndex(idx), nil
}

// DeclareDataTypeHandleIndex interns the handle of a struct or enum named
// through a bound alias and remembers it under that qualified name.
func (c *Context) DeclareDataTypeHandleIndex(name ir.QualifiedDataTypeIdent, abilities fileformat.AbilitySet, typeParams []fileformat.DataTypeTyParameter) (fileformat.DataTypeHandleIndex, error) {
	module, err := c.ModuleHandleIndex(name.Module)
	if err != nil {
		return 0, err
	}
	ident, err := c.IdentifierIndex(string(name.Name))
	if err != nil {
		return 0, err
	}
	handle := fileformat.DataTypeHandle{
		Module:         module,
		Name:           ident,
		Abilities:      abilities,
		TypeParameters: slices.Clone(typeParams),
	}
	idx, err := c.dataTypeHandles.GetOrAdd(handle)
	if err != nil {
		return 0, err
	}
	c.structs[name] = handle
	return fileformat.DataTypeHandleIndex(idx), nil
}

// DeclareStructDefinitionIndex assigns the next struct definition index to
// name, or returns the one it already has.
func (c *Context) DeclareStructDefinitionIndex(name ir.DataTypeName) (fileformat.StructDefinitionIndex, error) {
	if idx, ok := c.structDefs[name]; ok {
		return idx, nil
	}
	if len(c.structDefs) >= fileformat.TableMaxSize {
		return 0, asmerr.Newf(asmerr.KindTableOverflow, string(name), "too many struct definitions")
	}
	idx, err := safecast.Conv[fileformat.StructDefinitionIndex](len(c.structDefs))
	if err != nil {
		return 0, asmerr.Wrap(asmerr.KindTableOverflow, string(name), err)
	}
	c.structDefs[name] = idx
	return idx, nil
}

// DeclareEnumDefinitionIndex assigns the next enum definition index to name,
// or returns the one it already has.
func (c *Context) DeclareEnumDefinitionIndex(name ir.DataTypeName) (fileformat.EnumDefinitionIndex, error) {
	if idx, ok := c.enumDefs[name]; ok {
		return idx, nil
	}
	if len(c.enumDefs) >= fileformat.TableMaxSize {
		return 0, asmerr.Newf(asmerr.KindTableOverflow, string(name), "too many enum definitions")
	}
	idx, err := safecast.Conv[fileformat.EnumDefinitionIndex](len(c.enumDefs))
	if err != nil {
		return 0, asmerr.Wrap(asmerr.KindTableOverflow, string(name), err)
	}
	c.enumDefs[name] = idx
	return idx, nil
}

// DeclareFunction creates the handle of module::name with the given signature.
// A repeated declaration keeps the handle index it got first. With strict
// redeclaration a repeat with another signature is rejected; otherwise the
// later signature replaces the stored one.
func (c *Context) DeclareFunction(module ir.ModuleName, name ir.FunctionName, sig ir.FunctionSignature) error {
	key := functionKey{module: module, name: name}
	moduleIdx, err := c.ModuleHandleIndex(module)
	if err != nil {
		return err
	}
	prev, declared := c.functions[key]
	if declared && c.strict {
		if old := c.functionSignatures[key]; !old.Equal(sig) {
			return asmerr.Newf(asmerr.KindMismatchedRedeclaration, string(module)+"::"+string(name),
				"declared with %s -> %s, now %s -> %s",
				fileformat.Signature(old.Parameters), fileformat.Signature(old.Return),
				fileformat.Signature(sig.Parameters), fileformat.Signature(sig.Return))
		}
	}

	hidx := prev.index
	if !declared {
		if len(c.functions) >= fileformat.TableMaxSize {
			return asmerr.Newf(asmerr.KindTableOverflow, string(module)+"::"+string(name), "too many functions")
		}
		next, err := safecast.Conv[fileformat.FunctionHandleIndex](len(c.functions))
		if err != nil {
			return asmerr.Wrap(asmerr.KindTableOverflow, string(name), err)
		}
		hidx = next
	}

	ident, err := c.IdentifierIndex(string(name))
	if err != nil {
		return err
	}
	params, err := c.SignatureIndex(sig.Parameters)
	if err != nil {
		return err
	}
	ret, err := c.SignatureIndex(sig.Return)
	if err != nil {
		return err
	}

	c.functionSignatures[key] = cloneFunctionSignature(sig)
	c.functions[key] = functionEntry{
		handle: fileformat.FunctionHandle{
			Module:         moduleIdx,
			Name:           ident,
			Parameters:     params,
			Return:         ret,
			TypeParameters: slices.Clone(sig.TypeParameters),
		},
		index: hidx,
	}
	return nil
}

// DeclareConstant interns constant and binds name to its pool index.
func (c *Context) DeclareConstant(name ir.ConstantName, constant fileformat.Constant) error {
	idx, err := c.ConstantIndex(constant)
	if err != nil {
		return err
	}
	c.namedConstants[name] = idx
	return nil
}

// DeclareField records a field of the struct behind owner. The first
// declaration of a (owner, field) pair is kept.
func (c *Context) DeclareField(owner fileformat.DataTypeHandleIndex, def fileformat.StructDefinitionIndex, name ir.FieldName, token fileformat.SignatureToken, order int) {
	key := memberKey{owner: owner, name: string(name)}
	if _, ok := c.fields[key]; ok {
		return
	}
	c.fields[key] = FieldInfo{Def: def, Type: token.Clone(), Order: order}
}

// DeclareVariant records a variant of the enum behind owner. The first
// declaration of a (owner, variant) pair is kept.
func (c *Context) DeclareVariant(owner fileformat.DataTypeHandleIndex, def fileformat.EnumDefinitionIndex, name ir.VariantName, fieldCount, tag int) {
	key := memberKey{owner: owner, name: string(name)}
	if _, ok := c.variants[key]; ok {
		return
	}
	c.variants[key] = VariantInfo{Def: def, FieldCount: fieldCount, Tag: tag}
}

func cloneFunctionSignature(sig ir.FunctionSignature) ir.FunctionSignature {
	return ir.FunctionSignature{
		Parameters:     fileformat.Signature(sig.Parameters).Clone(),
		Return:         fileformat.Signature(sig.Return).Clone(),
		TypeParameters: slices.Clone(sig.TypeParameters),
	}
}
