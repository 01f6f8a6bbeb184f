package asm

import (
	"testing"

	"irasm/internal/deps"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/source"
	"irasm/internal/testkit"
)

var (
	u64     = fileformat.Primitive(fileformat.TokenU64)
	boolTok = fileformat.Primitive(fileformat.TokenBool)
)

func ident(t *testing.T, addr string, name ir.ModuleName) ir.ModuleIdent {
	t.Helper()
	id, err := ir.NewModuleIdent(addr, name)
	if err != nil {
		t.Fatalf("NewModuleIdent: %v", err)
	}
	return id
}

// depD is 0x1::D: struct S has copy+drop, f(vector<&S>), g(E::R<u64>) -> S,
// where R is declared by 0x2::E.
func depD() *fileformat.CompiledModule {
	b := testkit.NewModule("0x1", "D")
	e := b.Import("0x2", "E")
	s := b.Struct("S", fileformat.Abilities(fileformat.AbilityCopy, fileformat.AbilityDrop),
		testkit.Field{Name: "x", Type: u64})
	r := b.Type(e, "R", fileformat.Abilities(fileformat.AbilityDrop), fileformat.DataTypeTyParameter{IsPhantom: true})
	b.Function(b.Self(), "f", []fileformat.SignatureToken{fileformat.Vector(fileformat.Reference(fileformat.DataType(s)))}, nil)
	b.Function(b.Self(), "g",
		[]fileformat.SignatureToken{fileformat.DataTypeInstantiation(r, []fileformat.SignatureToken{u64})},
		[]fileformat.SignatureToken{fileformat.DataType(s)})
	b.Function(b.Self(), "id", []fileformat.SignatureToken{fileformat.TypeParameter(0)}, []fileformat.SignatureToken{fileformat.TypeParameter(0)},
		fileformat.Abilities(fileformat.AbilityCopy))
	return b.Build()
}

// depE is 0x2::E declaring R<phantom T>.
func depE() *fileformat.CompiledModule {
	b := testkit.NewModule("0x2", "E")
	b.Type(b.Self(), "R", fileformat.Abilities(fileformat.AbilityDrop), fileformat.DataTypeTyParameter{IsPhantom: true})
	return b.Build()
}

func storeOf(t *testing.T, modules ...*fileformat.CompiledModule) *deps.Store {
	t.Helper()
	s := deps.NewStore()
	for _, m := range modules {
		if err := s.AddOwned(m); err != nil {
			t.Fatalf("AddOwned: %v", err)
		}
	}
	return s
}

// newModuleContext creates a context compiling 0x42::M with Self bound.
func newModuleContext(t *testing.T, store *deps.Store, opts ...Option) *Context {
	t.Helper()
	self := ident(t, "0x42", "M")
	c := NewContext(source.Span{}, store, &self, opts...)
	if _, err := c.DeclareImport(self, ir.SelfModule); err != nil {
		t.Fatalf("import Self: %v", err)
	}
	return c
}

func mustImport(t *testing.T, c *Context, addr string, name, alias ir.ModuleName) fileformat.ModuleHandleIndex {
	t.Helper()
	idx, err := c.DeclareImport(ident(t, addr, name), alias)
	if err != nil {
		t.Fatalf("DeclareImport %s as %s: %v", name, alias, err)
	}
	return idx
}
