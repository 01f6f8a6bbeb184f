// Package testkit builds compiled modules for tests and checks the structural
// invariants assembled modules must hold.
package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"irasm/internal/fileformat"
	"irasm/internal/ir"
)

// ModuleBuilder assembles a CompiledModule by hand, standing in for a module
// produced by an earlier compilation.
type ModuleBuilder struct {
	m           fileformat.CompiledModule
	identifiers map[fileformat.Identifier]fileformat.IdentifierIndex
	addresses   map[fileformat.AccountAddress]fileformat.AddressIdentifierIndex
	signatures  map[string]fileformat.SignatureIndex
	modules     map[fileformat.ModuleHandle]fileformat.ModuleHandleIndex
}

// NewModule starts a module address::name whose self handle is index 0.
func NewModule(address, name string) *ModuleBuilder {
	b := &ModuleBuilder{
		m:           fileformat.CompiledModule{Version: fileformat.VersionMax},
		identifiers: make(map[fileformat.Identifier]fileformat.IdentifierIndex),
		addresses:   make(map[fileformat.AccountAddress]fileformat.AddressIdentifierIndex),
		signatures:  make(map[string]fileformat.SignatureIndex),
		modules:     make(map[fileformat.ModuleHandle]fileformat.ModuleHandleIndex),
	}
	b.m.SelfModuleHandleIdx = b.Import(address, name)
	return b
}

// ID is the identity of the module being built.
func (b *ModuleBuilder) ID() ir.ModuleIdent {
	addr, name, err := b.m.SelfID()
	if err != nil {
		panic(err)
	}
	return ir.ModuleIdent{Address: addr, Name: ir.ModuleName(name)}
}

// Self is the module's own handle index.
func (b *ModuleBuilder) Self() fileformat.ModuleHandleIndex { return b.m.SelfModuleHandleIdx }

func conv[T safecast.Integer](n int) T {
	v, err := safecast.Conv[T](n)
	if err != nil {
		panic(err)
	}
	return v
}

func (b *ModuleBuilder) ident(s string) fileformat.IdentifierIndex {
	id := fileformat.Identifier(s)
	if idx, ok := b.identifiers[id]; ok {
		return idx
	}
	idx := conv[fileformat.IdentifierIndex](len(b.m.Identifiers))
	b.m.Identifiers = append(b.m.Identifiers, id)
	b.identifiers[id] = idx
	return idx
}

func (b *ModuleBuilder) address(s string) fileformat.AddressIdentifierIndex {
	addr := fileformat.MustParseAddress(s)
	if idx, ok := b.addresses[addr]; ok {
		return idx
	}
	idx := conv[fileformat.AddressIdentifierIndex](len(b.m.AddressIdentifiers))
	b.m.AddressIdentifiers = append(b.m.AddressIdentifiers, addr)
	b.addresses[addr] = idx
	return idx
}

// Signature interns sig and returns its index.
func (b *ModuleBuilder) Signature(sig ...fileformat.SignatureToken) fileformat.SignatureIndex {
	s := fileformat.Signature(sig)
	if idx, ok := b.signatures[s.Key()]; ok {
		return idx
	}
	idx := conv[fileformat.SignatureIndex](len(b.m.Signatures))
	b.m.Signatures = append(b.m.Signatures, s.Clone())
	b.signatures[s.Key()] = idx
	return idx
}

// Import adds a module handle for address::name.
func (b *ModuleBuilder) Import(address, name string) fileformat.ModuleHandleIndex {
	h := fileformat.ModuleHandle{Address: b.address(address), Name: b.ident(name)}
	if idx, ok := b.modules[h]; ok {
		return idx
	}
	idx := conv[fileformat.ModuleHandleIndex](len(b.m.ModuleHandles))
	b.m.ModuleHandles = append(b.m.ModuleHandles, h)
	b.modules[h] = idx
	return idx
}

// Type adds a data type handle owned by module.
func (b *ModuleBuilder) Type(module fileformat.ModuleHandleIndex, name string, abilities fileformat.AbilitySet, typeParams ...fileformat.DataTypeTyParameter) fileformat.DataTypeHandleIndex {
	idx := conv[fileformat.DataTypeHandleIndex](len(b.m.DataTypeHandles))
	b.m.DataTypeHandles = append(b.m.DataTypeHandles, fileformat.DataTypeHandle{
		Module:         module,
		Name:           b.ident(name),
		Abilities:      abilities,
		TypeParameters: typeParams,
	})
	return idx
}

// Field is one struct field handed to Struct.
type Field struct {
	Name string
	Type fileformat.SignatureToken
}

// Struct adds a self-owned, non-generic type handle and a struct definition for it.
func (b *ModuleBuilder) Struct(name string, abilities fileformat.AbilitySet, fields ...Field) fileformat.DataTypeHandleIndex {
	h := b.Type(b.Self(), name, abilities)
	def := fileformat.StructDefinition{Handle: h}
	for _, f := range fields {
		def.Fields = append(def.Fields, fileformat.FieldDefinition{Name: b.ident(f.Name), Signature: f.Type})
	}
	b.m.StructDefs = append(b.m.StructDefs, def)
	return h
}

// Function adds a function handle owned by module and, for self-owned
// functions, a public definition.
func (b *ModuleBuilder) Function(module fileformat.ModuleHandleIndex, name string, params, ret []fileformat.SignatureToken, typeParams ...fileformat.AbilitySet) fileformat.FunctionHandleIndex {
	idx := conv[fileformat.FunctionHandleIndex](len(b.m.FunctionHandles))
	b.m.FunctionHandles = append(b.m.FunctionHandles, fileformat.FunctionHandle{
		Module:         module,
		Name:           b.ident(name),
		Parameters:     b.Signature(params...),
		Return:         b.Signature(ret...),
		TypeParameters: typeParams,
	})
	if module == b.Self() {
		b.m.FunctionDefs = append(b.m.FunctionDefs, fileformat.FunctionDefinition{Function: idx, Visibility: fileformat.VisibilityPublic})
	}
	return idx
}

// Build returns a copy of the module built so far.
func (b *ModuleBuilder) Build() *fileformat.CompiledModule {
	return b.m.Clone()
}

// CheckModuleInvariants verifies that every cross-reference inside m resolves:
// handles point at existing identifiers, addresses, modules and signatures,
// signature tokens only name existing data type handles, and every code
// operand lands inside the pool its opcode names.
func CheckModuleInvariants(m *fileformat.CompiledModule) error {
	if m == nil {
		return fmt.Errorf("nil module")
	}
	if _, _, err := m.SelfID(); err != nil {
		return err
	}
	checkModule := func(what string, h fileformat.ModuleHandle) error {
		if _, ok := m.AddressIdentifierAt(h.Address); !ok {
			return fmt.Errorf("%s: address %d out of range", what, h.Address)
		}
		if _, ok := m.IdentifierAt(h.Name); !ok {
			return fmt.Errorf("%s: name %d out of range", what, h.Name)
		}
		return nil
	}
	for i, h := range m.ModuleHandles {
		if err := checkModule(fmt.Sprintf("module handle %d", i), h); err != nil {
			return err
		}
	}
	for i, h := range m.FriendDecls {
		if err := checkModule(fmt.Sprintf("friend %d", i), h); err != nil {
			return err
		}
	}
	for i, h := range m.DataTypeHandles {
		if m.ModuleHandleAt(h.Module) == nil {
			return fmt.Errorf("type handle %d: module %d out of range", i, h.Module)
		}
		if _, ok := m.IdentifierAt(h.Name); !ok {
			return fmt.Errorf("type handle %d: name %d out of range", i, h.Name)
		}
	}
	checkToken := func(what string, tok fileformat.SignatureToken) error {
		var err error
		tok.Walk(func(t fileformat.SignatureToken) {
			if err != nil {
				return
			}
			switch t.Kind {
			case fileformat.TokenDataType, fileformat.TokenDataTypeInstantiation:
				if m.DataTypeHandleAt(t.Handle) == nil {
					err = fmt.Errorf("%s: type handle %d out of range", what, t.Handle)
				}
			}
		})
		return err
	}
	for i, sig := range m.Signatures {
		for _, tok := range sig {
			if err := checkToken(fmt.Sprintf("signature %d", i), tok); err != nil {
				return err
			}
		}
	}
	for i, h := range m.FunctionHandles {
		if m.ModuleHandleAt(h.Module) == nil {
			return fmt.Errorf("function handle %d: module %d out of range", i, h.Module)
		}
		if _, ok := m.IdentifierAt(h.Name); !ok {
			return fmt.Errorf("function handle %d: name %d out of range", i, h.Name)
		}
		if _, ok := m.SignatureAt(h.Parameters); !ok {
			return fmt.Errorf("function handle %d: parameters %d out of range", i, h.Parameters)
		}
		if _, ok := m.SignatureAt(h.Return); !ok {
			return fmt.Errorf("function handle %d: return %d out of range", i, h.Return)
		}
	}
	for i, c := range m.ConstantPool {
		if err := checkToken(fmt.Sprintf("constant %d", i), c.Type); err != nil {
			return err
		}
	}
	for i, d := range m.StructDefs {
		if m.DataTypeHandleAt(d.Handle) == nil {
			return fmt.Errorf("struct def %d: handle %d out of range", i, d.Handle)
		}
		for _, f := range d.Fields {
			if err := checkToken(fmt.Sprintf("struct def %d field", i), f.Signature); err != nil {
				return err
			}
		}
	}
	for i, d := range m.EnumDefs {
		if m.DataTypeHandleAt(d.Handle) == nil {
			return fmt.Errorf("enum def %d: handle %d out of range", i, d.Handle)
		}
	}
	for i, fh := range m.FieldHandles {
		if int(fh.Owner) >= len(m.StructDefs) {
			return fmt.Errorf("field handle %d: owner %d out of range", i, fh.Owner)
		}
		if int(fh.Field) >= len(m.StructDefs[fh.Owner].Fields) {
			return fmt.Errorf("field handle %d: field %d out of range", i, fh.Field)
		}
	}
	for i, inst := range m.StructDefInstantiations {
		if int(inst.Def) >= len(m.StructDefs) || int(inst.TypeParameters) >= len(m.Signatures) {
			return fmt.Errorf("struct instantiation %d out of range", i)
		}
	}
	for i, inst := range m.EnumDefInstantiations {
		if int(inst.Def) >= len(m.EnumDefs) || int(inst.TypeParameters) >= len(m.Signatures) {
			return fmt.Errorf("enum instantiation %d out of range", i)
		}
	}
	for i, inst := range m.FunctionInstantiations {
		if int(inst.Handle) >= len(m.FunctionHandles) || int(inst.TypeParameters) >= len(m.Signatures) {
			return fmt.Errorf("function instantiation %d out of range", i)
		}
	}
	for i, inst := range m.FieldInstantiations {
		if int(inst.Handle) >= len(m.FieldHandles) || int(inst.TypeParameters) >= len(m.Signatures) {
			return fmt.Errorf("field instantiation %d out of range", i)
		}
	}
	for i, d := range m.FunctionDefs {
		if m.FunctionHandleAt(d.Function) == nil {
			return fmt.Errorf("function def %d: handle %d out of range", i, d.Function)
		}
		for _, a := range d.Acquires {
			if int(a) >= len(m.StructDefs) {
				return fmt.Errorf("function def %d: acquires %d out of range", i, a)
			}
		}
		if d.Code == nil {
			continue
		}
		if _, ok := m.SignatureAt(d.Code.Locals); !ok {
			return fmt.Errorf("function def %d: locals %d out of range", i, d.Code.Locals)
		}
		for pc, ins := range d.Code.Code {
			if err := checkInstruction(m, len(d.Code.Code), ins); err != nil {
				return fmt.Errorf("function def %d at %d: %w", i, pc, err)
			}
		}
	}
	return nil
}

func checkInstruction(m *fileformat.CompiledModule, codeLen int, ins fileformat.Instruction) error {
	idx := int(ins.Index)
	limit := 0
	switch ins.Op {
	case fileformat.OpNop, fileformat.OpRet:
		return nil
	case fileformat.OpBranch, fileformat.OpBrTrue, fileformat.OpBrFalse:
		limit = codeLen
	case fileformat.OpCall:
		limit = len(m.FunctionHandles)
	case fileformat.OpCallGeneric:
		limit = len(m.FunctionInstantiations)
	case fileformat.OpPack, fileformat.OpUnpack:
		limit = len(m.StructDefs)
	case fileformat.OpPackGeneric, fileformat.OpUnpackGeneric:
		limit = len(m.StructDefInstantiations)
	case fileformat.OpBorrowField:
		limit = len(m.FieldHandles)
	case fileformat.OpBorrowFieldGeneric:
		limit = len(m.FieldInstantiations)
	case fileformat.OpPackVariant, fileformat.OpPackVariantGeneric:
		def := idx
		if ins.Op == fileformat.OpPackVariantGeneric {
			if idx >= len(m.EnumDefInstantiations) {
				return fmt.Errorf("%s: operand %d out of range", ins.Op, idx)
			}
			def = int(m.EnumDefInstantiations[idx].Def)
		}
		if def >= len(m.EnumDefs) {
			return fmt.Errorf("%s: enum %d out of range", ins.Op, def)
		}
		if int(ins.Tag) >= len(m.EnumDefs[def].Variants) {
			return fmt.Errorf("%s: tag %d out of range", ins.Op, ins.Tag)
		}
		return nil
	case fileformat.OpLdConst:
		limit = len(m.ConstantPool)
	default:
		return fmt.Errorf("unknown opcode %s", ins.Op)
	}
	if idx >= limit {
		return fmt.Errorf("%s: operand %d out of range (%d)", ins.Op, idx, limit)
	}
	return nil
}
