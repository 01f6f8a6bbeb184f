package asm

import (
	"fmt"

	"irasm/internal/asmerr"
	"irasm/internal/deps"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/trace"
)

func (c *Context) dependency(id ir.ModuleIdent) (*deps.View, error) {
	return c.deps.View(id)
}

// DataTypeHandleIndex returns the local handle index of a struct or enum.
// The first lookup of a type owned by a dependency imports its handle.
func (c *Context) DataTypeHandleIndex(name ir.QualifiedDataTypeIdent) (fileformat.DataTypeHandleIndex, error) {
	if h, ok := c.structs[name]; ok {
		idx, found := c.dataTypeHandles.Index(h)
		if !found {
			panic(fmt.Errorf("asm: type %s bound without a pooled handle", name))
		}
		return fileformat.DataTypeHandleIndex(idx), nil
	}
	abilities, typeParams, err := c.depDataTypeHandle(name)
	if err != nil {
		return 0, err
	}
	idx, err := c.DeclareDataTypeHandleIndex(name, abilities, typeParams)
	if err != nil {
		return 0, err
	}
	c.point(trace.ScopeNode, "import type", fmt.Sprintf("%s -> %d", name, idx))
	return idx, nil
}

func (c *Context) depDataTypeHandle(name ir.QualifiedDataTypeIdent) (fileformat.AbilitySet, []fileformat.DataTypeTyParameter, error) {
	if name.Module.IsSelf() {
		return 0, nil, asmerr.Newf(asmerr.KindUnboundDefinition, name.String(), "unbound struct")
	}
	id, err := c.ModuleIdent(name.Module)
	if err != nil {
		return 0, nil, err
	}
	view, err := c.dependency(id)
	if err != nil {
		return 0, nil, err
	}
	h, ok := view.DataTypeHandle(id.Name, name.Name)
	if !ok {
		return 0, nil, asmerr.Newf(asmerr.KindUnboundDefinition, name.String(), "unbound struct in %s", id)
	}
	return h.Abilities, h.TypeParameters, nil
}

// reindexToken rewrites a token read from dependency dep so every data type
// it names points at a local handle.
func (c *Context) reindexToken(dep ir.ModuleIdent, tok fileformat.SignatureToken) (fileformat.SignatureToken, error) {
	switch tok.Kind {
	case fileformat.TokenVector, fileformat.TokenReference, fileformat.TokenMutableReference:
		if tok.Inner == nil {
			return fileformat.SignatureToken{}, asmerr.Newf(asmerr.KindDependencyMalformed, dep.String(), "token kind %d without inner type", tok.Kind)
		}
		inner, err := c.reindexToken(dep, *tok.Inner)
		if err != nil {
			return fileformat.SignatureToken{}, err
		}
		return fileformat.SignatureToken{Kind: tok.Kind, Inner: &inner}, nil

	case fileformat.TokenDataType:
		local, err := c.reindexHandle(dep, tok.Handle)
		if err != nil {
			return fileformat.SignatureToken{}, err
		}
		return fileformat.DataType(local), nil

	case fileformat.TokenDataTypeInstantiation:
		local, err := c.reindexHandle(dep, tok.Handle)
		if err != nil {
			return fileformat.SignatureToken{}, err
		}
		args := make([]fileformat.SignatureToken, 0, len(tok.Args))
		for _, arg := range tok.Args {
			a, err := c.reindexToken(dep, arg)
			if err != nil {
				return fileformat.SignatureToken{}, err
			}
			args = append(args, a)
		}
		return fileformat.DataTypeInstantiation(local, args), nil

	default:
		// primitives and type parameters carry no foreign index
		return tok.Clone(), nil
	}
}

// reindexHandle maps a data type handle index of dependency dep to a local one,
// importing the type under the local alias of its declaring module.
func (c *Context) reindexHandle(dep ir.ModuleIdent, foreign fileformat.DataTypeHandleIndex) (fileformat.DataTypeHandleIndex, error) {
	view, err := c.dependency(dep)
	if err != nil {
		return 0, err
	}
	owner, name, ok := view.SourceStructInfo(foreign)
	if !ok {
		return 0, asmerr.Newf(asmerr.KindDependencyMalformed, dep.String(), "type handle %d resolves to nothing", foreign)
	}
	alias, err := c.moduleAlias(owner)
	if err != nil {
		return 0, err
	}
	return c.DataTypeHandleIndex(ir.QualifiedDataTypeIdent{Module: alias, Name: name})
}

func (c *Context) reindexSignature(dep ir.ModuleIdent, sig ir.FunctionSignature) (ir.FunctionSignature, error) {
	out := ir.FunctionSignature{
		Parameters:     make([]fileformat.SignatureToken, 0, len(sig.Parameters)),
		Return:         make([]fileformat.SignatureToken, 0, len(sig.Return)),
		TypeParameters: sig.TypeParameters,
	}
	for _, tok := range sig.Return {
		t, err := c.reindexToken(dep, tok)
		if err != nil {
			return ir.FunctionSignature{}, err
		}
		out.Return = append(out.Return, t)
	}
	for _, tok := range sig.Parameters {
		t, err := c.reindexToken(dep, tok)
		if err != nil {
			return ir.FunctionSignature{}, err
		}
		out.Parameters = append(out.Parameters, t)
	}
	return out, nil
}

func (c *Context) depFunctionSignature(module ir.ModuleName, name ir.FunctionName) (ir.FunctionSignature, error) {
	subject := string(module) + "::" + string(name)
	if module.IsSelf() {
		return ir.FunctionSignature{}, asmerr.Newf(asmerr.KindUnboundDefinition, subject, "unbound function")
	}
	id, err := c.ModuleIdent(module)
	if err != nil {
		return ir.FunctionSignature{}, err
	}
	view, err := c.dependency(id)
	if err != nil {
		return ir.FunctionSignature{}, err
	}
	sig, ok := view.FunctionSignature(name)
	if !ok {
		return ir.FunctionSignature{}, asmerr.Newf(asmerr.KindUnboundDefinition, subject, "unbound function in %s", id)
	}
	return c.reindexSignature(id, sig)
}

func (c *Context) ensureFunctionDeclared(module ir.ModuleName, name ir.FunctionName) error {
	key := functionKey{module: module, name: name}
	if _, ok := c.functions[key]; ok {
		return nil
	}
	if _, ok := c.functionSignatures[key]; ok {
		panic(fmt.Errorf("asm: signature of %s::%s stored without a handle", module, name))
	}
	sig, err := c.depFunctionSignature(module, name)
	if err != nil {
		return err
	}
	if err := c.DeclareFunction(module, name, sig); err != nil {
		return err
	}
	c.point(trace.ScopeNode, "import function", string(module)+"::"+string(name))
	return nil
}

// FunctionHandle returns the handle and index of module::name. The first
// lookup of a function owned by a dependency imports it, re-indexing its
// signature onto local type handles.
func (c *Context) FunctionHandle(module ir.ModuleName, name ir.FunctionName) (fileformat.FunctionHandle, fileformat.FunctionHandleIndex, error) {
	if err := c.ensureFunctionDeclared(module, name); err != nil {
		return fileformat.FunctionHandle{}, 0, err
	}
	e := c.functions[functionKey{module: module, name: name}]
	return e.handle.Clone(), e.index, nil
}

// FunctionSignature returns the declared or imported signature of module::name.
func (c *Context) FunctionSignature(module ir.ModuleName, name ir.FunctionName) (ir.FunctionSignature, bool) {
	sig, ok := c.functionSignatures[functionKey{module: module, name: name}]
	if !ok {
		return ir.FunctionSignature{}, false
	}
	return cloneFunctionSignature(sig), true
}
