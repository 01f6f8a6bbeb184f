package driver

import (
	"errors"
	"fmt"
	"slices"

	"fortio.org/safecast"

	"irasm/internal/asm"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/source"
	"irasm/internal/unit"
)

// ErrUndefinedLabel is returned for a branch to a label no block declares.
var ErrUndefinedLabel = errors.New("branch to undefined label")

// dataType is a struct or enum of the unit, declared ahead of its body.
type dataType struct {
	handle fileformat.DataTypeHandleIndex
	params []string
	loc    source.Span
}

// lowerer walks one unit and drives the context. It owns the definition
// sections of the output; the pools come from the context at the end.
type lowerer struct {
	c   *asm.Context
	u   *unit.Unit
	out *fileformat.CompiledModule

	structs []dataType
	enums   []dataType
}

func lowerUnit(c *asm.Context, u *unit.Unit) (*fileformat.CompiledModule, error) {
	l := &lowerer{c: c, u: u, out: &fileformat.CompiledModule{Version: fileformat.VersionMax}}
	steps := []func() error{
		l.imports,
		l.friends,
		l.declareDataTypes,
		l.defineStructs,
		l.defineEnums,
		l.constants,
		l.declareFunctions,
		l.defineFunctions,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return l.out, nil
}

func (l *lowerer) imports() error {
	self, err := l.u.Ident()
	if err != nil {
		return err
	}
	idx, err := l.c.DeclareImport(self, ir.SelfModule)
	if err != nil {
		return err
	}
	l.out.SelfModuleHandleIdx = idx

	seen := make(map[ir.ModuleName]struct{}, len(l.u.Imports))
	for _, imp := range l.u.Imports {
		if imp.Alias.IsSelf() {
			return fmt.Errorf("import %s: alias %q is reserved", imp.Module, imp.Alias)
		}
		if _, dup := seen[imp.Alias]; dup {
			return fmt.Errorf("import %s: alias %q is already bound", imp.Module, imp.Alias)
		}
		seen[imp.Alias] = struct{}{}
		id, err := ir.NewModuleIdent(imp.Address, imp.Module)
		if err != nil {
			return fmt.Errorf("import %s: %w", imp.Module, err)
		}
		if _, err := l.c.DeclareImport(id, imp.Alias); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) friends() error {
	for _, f := range l.u.Friends {
		id, err := ir.NewModuleIdent(f.Address, f.Module)
		if err != nil {
			return fmt.Errorf("friend %s: %w", f.Module, err)
		}
		h, err := l.c.DeclareFriend(id)
		if err != nil {
			return err
		}
		l.out.FriendDecls = append(l.out.FriendDecls, h)
	}
	return nil
}

// declareDataTypes binds every struct and enum before any field is lowered,
// so declarations may refer to each other in any order.
func (l *lowerer) declareDataTypes() error {
	names := make(map[ir.DataTypeName]struct{}, len(l.u.Structs)+len(l.u.Enums))
	declare := func(name ir.DataTypeName, abilities []string, tps []unit.TypeParameter, loc source.Span) (dataType, error) {
		if _, dup := names[name]; dup {
			return dataType{}, fmt.Errorf("type %s declared twice", name)
		}
		names[name] = struct{}{}
		set, err := fileformat.ParseAbilities(abilities)
		if err != nil {
			return dataType{}, fmt.Errorf("type %s: %w", name, err)
		}
		params, err := unit.DataTypeParameters(tps)
		if err != nil {
			return dataType{}, fmt.Errorf("type %s: %w", name, err)
		}
		h, err := l.c.DeclareDataTypeHandleIndex(ir.QualifiedDataTypeIdent{Module: ir.SelfModule, Name: name}, set, params)
		if err != nil {
			return dataType{}, err
		}
		return dataType{handle: h, params: unit.TypeParameterNames(tps), loc: loc}, nil
	}

	for i, s := range l.u.Structs {
		dt, err := declare(s.Name, s.Abilities, s.TypeParameters, l.u.Locate(string(s.Name), l.u.Section("[[struct]]", i)))
		if err != nil {
			return err
		}
		if _, err := l.c.DeclareStructDefinitionIndex(s.Name); err != nil {
			return err
		}
		l.structs = append(l.structs, dt)
	}
	for i, e := range l.u.Enums {
		dt, err := declare(e.Name, e.Abilities, e.TypeParameters, l.u.Locate(string(e.Name), l.u.Section("[[enum]]", i)))
		if err != nil {
			return err
		}
		if _, err := l.c.DeclareEnumDefinitionIndex(e.Name); err != nil {
			return err
		}
		l.enums = append(l.enums, dt)
	}
	return nil
}

func (l *lowerer) fieldDefinitions(owner string, fields []unit.Field, tparams []string, each func(j int, f unit.Field, tok fileformat.SignatureToken)) ([]fileformat.FieldDefinition, error) {
	seen := make(map[ir.FieldName]struct{}, len(fields))
	out := make([]fileformat.FieldDefinition, 0, len(fields))
	for j, f := range fields {
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("%s: field %s declared twice", owner, f.Name)
		}
		seen[f.Name] = struct{}{}
		tok, err := l.typeToken(f.Type, tparams)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", owner, f.Name, err)
		}
		name, err := l.c.IdentifierIndex(string(f.Name))
		if err != nil {
			return nil, err
		}
		if each != nil {
			each(j, f, tok)
		}
		out = append(out, fileformat.FieldDefinition{Name: name, Signature: tok})
	}
	return out, nil
}

func (l *lowerer) defineStructs() error {
	sm := l.c.SourceMap()
	for i, s := range l.u.Structs {
		dt := l.structs[i]
		def, err := l.c.StructDefinitionIndex(s.Name)
		if err != nil {
			return err
		}
		fields, err := l.fieldDefinitions(string(s.Name), s.Fields, dt.params, func(j int, f unit.Field, tok fileformat.SignatureToken) {
			l.c.DeclareField(dt.handle, def, f.Name, tok, j)
		})
		if err != nil {
			return err
		}
		l.out.StructDefs = append(l.out.StructDefs, fileformat.StructDefinition{Handle: dt.handle, Fields: fields})

		m := sm.AddStruct(def, s.Name, dt.loc)
		for _, tp := range s.TypeParameters {
			m.AddTypeParameter(tp.Name, l.u.Locate(tp.Name, dt.loc))
		}
		for _, f := range s.Fields {
			m.AddMember(string(f.Name), l.u.Locate(string(f.Name), dt.loc))
		}
	}
	return nil
}

func (l *lowerer) defineEnums() error {
	sm := l.c.SourceMap()
	for i, e := range l.u.Enums {
		dt := l.enums[i]
		def, err := l.c.EnumDefinitionIndex(e.Name)
		if err != nil {
			return err
		}
		if len(e.Variants) == 0 {
			return fmt.Errorf("enum %s has no variants", e.Name)
		}
		m := sm.AddEnum(def, e.Name, dt.loc)
		for _, tp := range e.TypeParameters {
			m.AddTypeParameter(tp.Name, l.u.Locate(tp.Name, dt.loc))
		}

		seen := make(map[ir.VariantName]struct{}, len(e.Variants))
		variants := make([]fileformat.VariantDefinition, 0, len(e.Variants))
		for tag, v := range e.Variants {
			if _, dup := seen[v.Name]; dup {
				return fmt.Errorf("enum %s: variant %s declared twice", e.Name, v.Name)
			}
			seen[v.Name] = struct{}{}
			owner := string(e.Name) + "::" + string(v.Name)
			fields, err := l.fieldDefinitions(owner, v.Fields, dt.params, nil)
			if err != nil {
				return err
			}
			name, err := l.c.IdentifierIndex(string(v.Name))
			if err != nil {
				return err
			}
			l.c.DeclareVariant(dt.handle, def, v.Name, len(fields), tag)
			variants = append(variants, fileformat.VariantDefinition{Name: name, Fields: fields})
			m.AddMember(string(v.Name), l.u.Locate(string(v.Name), dt.loc))
		}
		l.out.EnumDefs = append(l.out.EnumDefs, fileformat.EnumDefinition{Handle: dt.handle, Variants: variants})
	}
	return nil
}

func (l *lowerer) constants() error {
	sm := l.c.SourceMap()
	seen := make(map[ir.ConstantName]struct{}, len(l.u.Constants))
	for i, k := range l.u.Constants {
		if _, dup := seen[k.Name]; dup {
			return fmt.Errorf("constant %s declared twice", k.Name)
		}
		seen[k.Name] = struct{}{}
		if _, err := l.c.IdentifierIndex(string(k.Name)); err != nil {
			return err
		}
		ty, data, err := unit.EncodeConstant(k)
		if err != nil {
			return fmt.Errorf("constant %s: %w", k.Name, err)
		}
		tok, err := l.resolveType(ty, nil)
		if err != nil {
			return fmt.Errorf("constant %s: %w", k.Name, err)
		}
		if err := l.c.DeclareConstant(k.Name, fileformat.Constant{Type: tok, Data: data}); err != nil {
			return err
		}
		idx, err := l.c.NamedConstantIndex(k.Name)
		if err != nil {
			return err
		}
		sm.AddConstant(k.Name, idx, l.u.Locate(string(k.Name), l.u.Section("[[constant]]", i)))
	}
	return nil
}

// declareFunctions declares every signature first so bodies can call
// functions defined later in the unit.
func (l *lowerer) declareFunctions() error {
	seen := make(map[ir.FunctionName]struct{}, len(l.u.Functions))
	for _, f := range l.u.Functions {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("function %s declared twice", f.Name)
		}
		seen[f.Name] = struct{}{}
		sig, err := l.functionSignature(f)
		if err != nil {
			return fmt.Errorf("function %s: %w", f.Name, err)
		}
		if err := l.c.DeclareFunction(ir.SelfModule, f.Name, sig); err != nil {
			return err
		}
	}
	if l.u.IsScript() {
		if _, ok := seen[l.u.Script.Main]; !ok {
			return fmt.Errorf("script entry function %s is not defined", l.u.Script.Main)
		}
	}
	return nil
}

func (l *lowerer) functionSignature(f unit.Function) (ir.FunctionSignature, error) {
	tparams, err := unit.FunctionTypeParameters(f.TypeParameters)
	if err != nil {
		return ir.FunctionSignature{}, err
	}
	names := unit.TypeParameterNames(f.TypeParameters)
	sig := ir.FunctionSignature{TypeParameters: tparams}
	for _, p := range f.Parameters {
		tok, err := l.typeToken(p.Type, names)
		if err != nil {
			return ir.FunctionSignature{}, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		sig.Parameters = append(sig.Parameters, tok)
	}
	if sig.Return, err = l.typeTokens(f.Returns, names); err != nil {
		return ir.FunctionSignature{}, fmt.Errorf("return: %w", err)
	}
	return sig, nil
}

func (l *lowerer) defineFunctions() error {
	sm := l.c.SourceMap()
	for i, f := range l.u.Functions {
		defIdx, err := safecast.Conv[fileformat.FunctionDefinitionIndex](i)
		if err != nil {
			return fmt.Errorf("function %s: %w", f.Name, err)
		}
		l.c.SetFunctionIndex(defIdx)

		_, handle, err := l.c.FunctionHandle(ir.SelfModule, f.Name)
		if err != nil {
			return err
		}
		vis, err := unit.ParseVisibility(f.Visibility)
		if err != nil {
			return fmt.Errorf("function %s: %w", f.Name, err)
		}
		def := fileformat.FunctionDefinition{Function: handle, Visibility: vis, IsEntry: f.Entry}
		for _, name := range f.Acquires {
			sd, err := l.c.StructDefinitionIndex(name)
			if err != nil {
				return fmt.Errorf("function %s: acquires: %w", f.Name, err)
			}
			def.Acquires = append(def.Acquires, sd)
		}

		loc := l.u.Locate(string(f.Name), l.u.Section("[[function]]", i))
		fm := sm.AddFunction(defIdx, f.Name, loc)
		for _, tp := range f.TypeParameters {
			fm.AddTypeParameter(tp.Name, l.u.Locate(tp.Name, loc))
		}
		for _, p := range f.Parameters {
			fm.AddParameter(p.Name, l.u.Locate(p.Name, loc))
		}

		switch {
		case f.Native && len(f.Blocks) > 0:
			return fmt.Errorf("native function %s has a body", f.Name)
		case f.Native:
			fm.IsNative = true
		default:
			code, err := l.lowerBody(f)
			if err != nil {
				return fmt.Errorf("function %s: %w", f.Name, err)
			}
			def.Code = code
		}
		l.out.FunctionDefs = append(l.out.FunctionDefs, def)
	}
	return nil
}

// lowerBody lays out the blocks in order. Branches are first emitted with
// the label's temporary index and rewritten once every block offset is known.
func (l *lowerer) lowerBody(f unit.Function) (*fileformat.CodeUnit, error) {
	if len(f.Blocks) == 0 {
		return nil, fmt.Errorf("non-native function has no blocks")
	}
	tparams := unit.TypeParameterNames(f.TypeParameters)

	locals, err := l.typeTokens(f.Locals, tparams)
	if err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	localsIdx, err := l.c.SignatureIndex(locals)
	if err != nil {
		return nil, err
	}

	offsets := make(map[ir.BlockLabel]fileformat.CodeOffset, len(f.Blocks))
	var code []fileformat.Instruction
	for _, b := range f.Blocks {
		if b.Label == "" {
			return nil, fmt.Errorf("block without a label")
		}
		if _, dup := offsets[b.Label]; dup {
			return nil, fmt.Errorf("block %s declared twice", b.Label)
		}
		off, err := safecast.Conv[fileformat.CodeOffset](len(code))
		if err != nil {
			return nil, fmt.Errorf("block %s: code too long: %w", b.Label, err)
		}
		offsets[b.Label] = off
		if _, err := l.c.LabelIndex(b.Label); err != nil {
			return nil, err
		}
		for _, line := range b.Code {
			in, err := unit.ParseInstr(line)
			if err != nil {
				return nil, fmt.Errorf("block %s: %w", b.Label, err)
			}
			ins, err := l.lowerInstr(in, tparams)
			if err != nil {
				return nil, fmt.Errorf("block %s: %s: %w", b.Label, line, err)
			}
			code = append(code, ins)
		}
	}

	remap, err := l.c.BuildIndexRemapping(offsets)
	if err != nil {
		return nil, err
	}
	for i := range code {
		if !code[i].Op.IsBranch() {
			continue
		}
		target, ok := remap[fileformat.CodeOffset(code[i].Index)]
		if !ok {
			return nil, fmt.Errorf("instruction %d: %w", i, ErrUndefinedLabel)
		}
		code[i].Index = fileformat.TableIndex(target)
	}
	return &fileformat.CodeUnit{Locals: localsIdx, Code: code}, nil
}

var genericOps = map[fileformat.Opcode]fileformat.Opcode{
	fileformat.OpCall:        fileformat.OpCallGeneric,
	fileformat.OpPack:        fileformat.OpPackGeneric,
	fileformat.OpUnpack:      fileformat.OpUnpackGeneric,
	fileformat.OpBorrowField: fileformat.OpBorrowFieldGeneric,
	fileformat.OpPackVariant: fileformat.OpPackVariantGeneric,
}

func (l *lowerer) lowerInstr(in unit.Instr, tparams []string) (fileformat.Instruction, error) {
	switch in.Op {
	case fileformat.OpNop, fileformat.OpRet:
		return fileformat.Instruction{Op: in.Op}, nil

	case fileformat.OpBranch, fileformat.OpBrTrue, fileformat.OpBrFalse:
		tmp, err := l.c.LabelIndex(in.Label)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		return fileformat.Instruction{Op: in.Op, Index: fileformat.TableIndex(tmp)}, nil

	case fileformat.OpLdConst:
		idx, err := l.c.NamedConstantIndex(in.Constant)
		return fileformat.Instruction{Op: in.Op, Index: fileformat.TableIndex(idx)}, err

	case fileformat.OpCall:
		_, h, err := l.c.FunctionHandle(in.Module, in.Function)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		if len(in.TypeArgs) == 0 {
			return fileformat.Instruction{Op: in.Op, Index: fileformat.TableIndex(h)}, nil
		}
		sig, err := l.typeArguments(in.TypeArgs, tparams)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		fi, err := l.c.FunctionInstantiationIndex(h, sig)
		return fileformat.Instruction{Op: genericOps[in.Op], Index: fileformat.TableIndex(fi)}, err

	case fileformat.OpPack, fileformat.OpUnpack:
		def, err := l.c.StructDefinitionIndex(in.Type.Name)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		if len(in.Type.Args) == 0 {
			return fileformat.Instruction{Op: in.Op, Index: fileformat.TableIndex(def)}, nil
		}
		sig, err := l.typeArguments(in.Type.Args, tparams)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		si, err := l.c.StructInstantiationIndex(def, sig)
		return fileformat.Instruction{Op: genericOps[in.Op], Index: fileformat.TableIndex(si)}, err

	case fileformat.OpBorrowField:
		owner, err := l.c.DataTypeHandleIndex(ir.QualifiedDataTypeIdent{Module: ir.SelfModule, Name: in.Type.Name})
		if err != nil {
			return fileformat.Instruction{}, err
		}
		field, err := l.c.Field(owner, ir.FieldName(in.Member))
		if err != nil {
			return fileformat.Instruction{}, err
		}
		order, err := safecast.Conv[fileformat.MemberCount](field.Order)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		fh, err := l.c.FieldHandleIndex(field.Def, order)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		if len(in.Type.Args) == 0 {
			return fileformat.Instruction{Op: in.Op, Index: fileformat.TableIndex(fh)}, nil
		}
		sig, err := l.typeArguments(in.Type.Args, tparams)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		fi, err := l.c.FieldInstantiationIndex(fh, sig)
		return fileformat.Instruction{Op: genericOps[in.Op], Index: fileformat.TableIndex(fi)}, err

	case fileformat.OpPackVariant:
		owner, err := l.c.DataTypeHandleIndex(ir.QualifiedDataTypeIdent{Module: ir.SelfModule, Name: in.Type.Name})
		if err != nil {
			return fileformat.Instruction{}, err
		}
		v, err := l.c.Variant(owner, ir.VariantName(in.Member))
		if err != nil {
			return fileformat.Instruction{}, err
		}
		tag, err := safecast.Conv[fileformat.VariantTag](v.Tag)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		if len(in.Type.Args) == 0 {
			return fileformat.Instruction{Op: in.Op, Index: fileformat.TableIndex(v.Def), Tag: tag}, nil
		}
		sig, err := l.typeArguments(in.Type.Args, tparams)
		if err != nil {
			return fileformat.Instruction{}, err
		}
		ei, err := l.c.EnumInstantiationIndex(v.Def, sig)
		return fileformat.Instruction{Op: genericOps[in.Op], Index: fileformat.TableIndex(ei), Tag: tag}, err
	}
	return fileformat.Instruction{}, fmt.Errorf("opcode %s cannot be written directly", in.Op)
}

func (l *lowerer) typeArguments(args []unit.TypeExpr, tparams []string) (fileformat.SignatureIndex, error) {
	sig := make(fileformat.Signature, 0, len(args))
	for _, a := range args {
		tok, err := l.resolveType(a, tparams)
		if err != nil {
			return 0, err
		}
		sig = append(sig, tok)
	}
	return l.c.SignatureIndex(sig)
}

func (l *lowerer) typeTokens(list []string, tparams []string) (fileformat.Signature, error) {
	types, err := unit.ParseTypeList(list)
	if err != nil {
		return nil, err
	}
	out := make(fileformat.Signature, 0, len(types))
	for _, t := range types {
		tok, err := l.resolveType(t, tparams)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, nil
}

func (l *lowerer) typeToken(s string, tparams []string) (fileformat.SignatureToken, error) {
	t, err := unit.ParseType(s)
	if err != nil {
		return fileformat.SignatureToken{}, err
	}
	return l.resolveType(t, tparams)
}

// resolveType turns a type expression into a token. A bare name is a type
// parameter when one is in scope, otherwise a type of the unit itself.
func (l *lowerer) resolveType(t unit.TypeExpr, tparams []string) (fileformat.SignatureToken, error) {
	switch t.Kind {
	case unit.TypePrimitive:
		return fileformat.Primitive(t.Prim), nil

	case unit.TypeVector, unit.TypeRef, unit.TypeMutRef:
		inner, err := l.resolveType(*t.Inner, tparams)
		if err != nil {
			return fileformat.SignatureToken{}, err
		}
		switch t.Kind {
		case unit.TypeVector:
			return fileformat.Vector(inner), nil
		case unit.TypeRef:
			return fileformat.Reference(inner), nil
		default:
			return fileformat.MutableReference(inner), nil
		}

	case unit.TypeParam:
		if int(t.Param) >= len(tparams) {
			return fileformat.SignatureToken{}, fmt.Errorf("type parameter #%d out of range (%d declared)", t.Param, len(tparams))
		}
		return fileformat.TypeParameter(t.Param), nil
	}

	if !t.Qualified() {
		if i := slices.Index(tparams, string(t.Name)); i >= 0 {
			if len(t.Args) > 0 {
				return fileformat.SignatureToken{}, fmt.Errorf("type parameter %s takes no arguments", t.Name)
			}
			idx, err := safecast.Conv[fileformat.TypeParameterIndex](i)
			if err != nil {
				return fileformat.SignatureToken{}, err
			}
			return fileformat.TypeParameter(idx), nil
		}
	}
	module := t.Module
	if module == "" {
		module = ir.SelfModule
	}
	h, err := l.c.DataTypeHandleIndex(ir.QualifiedDataTypeIdent{Module: module, Name: t.Name})
	if err != nil {
		return fileformat.SignatureToken{}, err
	}
	if len(t.Args) == 0 {
		return fileformat.DataType(h), nil
	}
	args := make([]fileformat.SignatureToken, 0, len(t.Args))
	for _, a := range t.Args {
		tok, err := l.resolveType(a, tparams)
		if err != nil {
			return fileformat.SignatureToken{}, err
		}
		args = append(args, tok)
	}
	return fileformat.DataTypeInstantiation(h, args), nil
}
