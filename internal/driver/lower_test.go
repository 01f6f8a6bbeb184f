package driver_test

import (
	"errors"
	"strings"
	"testing"

	"irasm/internal/asmerr"
	"irasm/internal/deps"
	"irasm/internal/driver"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/source"
	"irasm/internal/testkit"
	"irasm/internal/unit"
)

const coinUnit = `
[module]
address = "0x42"
name = "Coin"

[[import]]
address = "0x1"
module = "D"

[[friend]]
address = "0x43"
module = "Bank"

[[struct]]
name = "Coin"
abilities = ["store"]
type_parameters = [{ name = "T", phantom = true }]
fields = [{ name = "value", type = "u64" }, { name = "tag", type = "D.S" }]

[[struct]]
name = "Pair"
type_parameters = [{ name = "A" }, { name = "B" }]
fields = [{ name = "left", type = "A" }, { name = "right", type = "B" }]

[[struct]]
name = "Plain"
fields = [{ name = "n", type = "u8" }]

[[enum]]
name = "Option"
abilities = ["copy", "drop"]
type_parameters = [{ name = "T" }]

  [[enum.variant]]
  name = "None"

  [[enum.variant]]
  name = "Some"
  fields = [{ name = "v", type = "T" }]

[[constant]]
name = "MAX"
type = "u64"
value = 1000

[[function]]
name = "mint"
visibility = "public"
parameters = [{ name = "amount", type = "u64" }]
returns = ["Coin<D.S>"]
acquires = ["Coin"]
locals = ["bool"]

  [[function.block]]
  label = "entry"
  code = ["ld_const MAX", "br_true done", "call D.f", "call D.id<u64>", "branch entry"]

  [[function.block]]
  label = "done"
  code = ["pack Coin<D.S>", "borrow_field Pair<u64, bool> right", "pack_variant Option<u8> Some", "call helper", "ret"]

[[function]]
name = "helper"

  [[function.block]]
  label = "b0"
  code = ["pack Plain", "borrow_field Plain n", "unpack Coin<u8>", "ret"]

[[function]]
name = "native_thing"
native = true
parameters = [{ name = "x", type = "&mut D.S" }]
`

// depD is 0x1::D: struct S has copy+drop, f(), id<T: copy>(T) -> T.
func depD() *fileformat.CompiledModule {
	b := testkit.NewModule("0x1", "D")
	b.Struct("S", fileformat.Abilities(fileformat.AbilityCopy, fileformat.AbilityDrop),
		testkit.Field{Name: "x", Type: fileformat.Primitive(fileformat.TokenU64)})
	b.Function(b.Self(), "f", nil, nil)
	b.Function(b.Self(), "id", []fileformat.SignatureToken{fileformat.TypeParameter(0)}, []fileformat.SignatureToken{fileformat.TypeParameter(0)},
		fileformat.Abilities(fileformat.AbilityCopy))
	return b.Build()
}

func storeWithD(t *testing.T) *deps.Store {
	t.Helper()
	s := deps.NewStore()
	if err := s.AddOwned(depD()); err != nil {
		t.Fatalf("AddOwned: %v", err)
	}
	return s
}

func parseUnit(t *testing.T, content string) *unit.Unit {
	t.Helper()
	fs := source.NewFileSet()
	u, err := unit.Parse(fs.Get(fs.AddVirtual("unit.toml", []byte(content))))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return u
}

func identifier(t *testing.T, m *fileformat.CompiledModule, idx fileformat.IdentifierIndex) string {
	t.Helper()
	id, ok := m.IdentifierAt(idx)
	if !ok {
		t.Fatalf("identifier %d out of range", idx)
	}
	return string(id)
}

func TestAssembleModuleUnit(t *testing.T) {
	out, store, err := driver.AssembleUnit(parseUnit(t, coinUnit), storeWithD(t), driver.AssembleOptions{})
	if err != nil {
		t.Fatalf("AssembleUnit: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("store holds %d modules, want only D", store.Len())
	}
	m := out.Module
	if err := testkit.CheckModuleInvariants(m); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if out.Ident.String() != "0x42::Coin" || m.Version != fileformat.VersionMax {
		t.Fatalf("ident %s version %d", out.Ident, m.Version)
	}
	addr, name, _ := m.SelfID()
	if name != "Coin" || addr != fileformat.MustParseAddress("0x42") {
		t.Fatalf("self = %s::%s", addr.ShortHex(), name)
	}
	if len(m.FriendDecls) != 1 || identifier(t, m, m.FriendDecls[0].Name) != "Bank" {
		t.Fatalf("friends = %+v", m.FriendDecls)
	}
	if len(m.StructDefs) != 3 || len(m.EnumDefs) != 1 || len(m.EnumDefs[0].Variants) != 2 {
		t.Fatalf("defs: %d structs, %d enums", len(m.StructDefs), len(m.EnumDefs))
	}
	if len(m.FunctionDefs) != 3 || len(m.ConstantPool) != 1 {
		t.Fatalf("%d functions, %d constants", len(m.FunctionDefs), len(m.ConstantPool))
	}
	mint := m.FunctionDefs[0]
	if mint.Visibility != fileformat.VisibilityPublic || len(mint.Acquires) != 1 || mint.Acquires[0] != 0 {
		t.Fatalf("mint def = %+v", mint)
	}
	code := mint.Code.Code
	if len(code) != 10 {
		t.Fatalf("mint has %d instructions", len(code))
	}
	wantOps := []fileformat.Opcode{
		fileformat.OpLdConst, fileformat.OpBrTrue, fileformat.OpCall, fileformat.OpCallGeneric, fileformat.OpBranch,
		fileformat.OpPackGeneric, fileformat.OpBorrowFieldGeneric, fileformat.OpPackVariantGeneric, fileformat.OpCall, fileformat.OpRet,
	}
	for i, op := range wantOps {
		if code[i].Op != op {
			t.Fatalf("code[%d] = %s, want %s", i, code[i].Op, op)
		}
	}
	if code[1].Index != 5 || code[4].Index != 0 {
		t.Fatalf("branch targets = %d, %d; want 5, 0", code[1].Index, code[4].Index)
	}
	if code[7].Tag != 1 {
		t.Fatalf("Some tag = %d", code[7].Tag)
	}
	helper := m.FunctionHandleAt(fileformat.FunctionHandleIndex(code[8].Index))
	if helper == nil || identifier(t, m, helper.Name) != "helper" || helper.Module != m.SelfModuleHandleIdx {
		t.Fatalf("call helper resolved to %+v", helper)
	}
	f := m.FunctionHandleAt(fileformat.FunctionHandleIndex(code[2].Index))
	if f == nil || identifier(t, m, f.Name) != "f" || f.Module == m.SelfModuleHandleIdx {
		t.Fatalf("call D.f resolved to %+v", f)
	}
	if sig, _ := m.SignatureAt(mint.Code.Locals); len(sig) != 1 || sig[0].Kind != fileformat.TokenBool {
		t.Fatalf("locals = %v", sig)
	}

	hcode := m.FunctionDefs[1].Code.Code
	if hcode[0].Op != fileformat.OpPack || hcode[1].Op != fileformat.OpBorrowField || hcode[2].Op != fileformat.OpUnpackGeneric {
		t.Fatalf("helper code = %v", hcode)
	}
	if fh := m.FieldHandles[hcode[1].Index]; fh.Owner != 2 || fh.Field != 0 {
		t.Fatalf("Plain.n field handle = %+v", fh)
	}
	if m.FunctionDefs[2].Code != nil {
		t.Fatalf("native function has code")
	}

	// D.S came in through the dependency, owned by the D module handle
	tag := m.StructDefs[0].Fields[1].Signature
	if tag.Kind != fileformat.TokenDataType {
		t.Fatalf("Coin.tag = %s", tag)
	}
	sh := m.DataTypeHandleAt(tag.Handle)
	if identifier(t, m, sh.Name) != "S" || identifier(t, m, m.ModuleHandles[sh.Module].Name) != "D" {
		t.Fatalf("S handle = %+v", sh)
	}

	sm := out.SourceMap
	if sm.Module == nil || sm.Module.String() != "0x42::Coin" {
		t.Fatalf("source map module = %v", sm.Module)
	}
	if fm := sm.Function(0); fm == nil || fm.Name != "mint" || len(fm.Parameters) != 1 {
		t.Fatalf("source map mint = %+v", fm)
	}
	if fm := sm.Function(2); fm == nil || !fm.IsNative {
		t.Fatalf("source map native = %+v", fm)
	}
	if c, ok := sm.Constant("MAX"); !ok || c.Index != 0 {
		t.Fatalf("source map MAX = %+v, %v", c, ok)
	}
	if dm := sm.Struct(0); dm == nil || len(dm.Members) != 2 || dm.Members[1].Name != "tag" {
		t.Fatalf("source map Coin = %+v", dm)
	}
	if dm := sm.Enum(0); dm == nil || len(dm.Members) != 2 {
		t.Fatalf("source map Option = %+v", dm)
	}
	if out.Pools["identifiers"] != len(m.Identifiers) {
		t.Fatalf("pool sizes = %v", out.Pools)
	}
}

func TestAssembleHandsBackStore(t *testing.T) {
	d, _ := ir.NewModuleIdent("0x1", "D")
	_, store, err := driver.AssembleUnit(parseUnit(t, coinUnit), storeWithD(t), driver.AssembleOptions{})
	if err != nil {
		t.Fatalf("AssembleUnit: %v", err)
	}
	if store.Len() != 1 || !store.Has(d) {
		t.Fatalf("store after success = %v", store.IDs())
	}

	broken := strings.Replace(coinUnit, "call D.f", "call D.nope", 1)
	_, store, err = driver.AssembleUnit(parseUnit(t, broken), store, driver.AssembleOptions{})
	if !errors.Is(err, asmerr.ErrUnboundDefinition) {
		t.Fatalf("err = %v, want unbound definition", err)
	}
	if store == nil || store.Len() != 1 || !store.Has(d) {
		t.Fatalf("store after failure lost its dependencies")
	}
}

func TestAssembleScript(t *testing.T) {
	const script = `
[script]
main = "main"

[[import]]
address = "0x1"
module = "D"

[[function]]
name = "main"
parameters = [{ name = "s", type = "D.S" }]

  [[function.block]]
  label = "start"
  code = ["call D.f", "ret"]
`
	out, _, err := driver.AssembleUnit(parseUnit(t, script), storeWithD(t), driver.AssembleOptions{})
	if err != nil {
		t.Fatalf("AssembleUnit: %v", err)
	}
	if out.SourceMap.Module != nil {
		t.Fatalf("script source map carries a module")
	}
	_, name, err := out.Module.SelfID()
	if err != nil || ir.ModuleName(name) != unit.ScriptModuleName {
		t.Fatalf("script self = %q, %v", name, err)
	}
	if err := testkit.CheckModuleInvariants(out.Module); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	noMain := strings.Replace(script, `name = "main"`, `name = "other"`, 1)
	if _, _, err := driver.AssembleUnit(parseUnit(t, noMain), storeWithD(t), driver.AssembleOptions{}); err == nil || !strings.Contains(err.Error(), "entry function main") {
		t.Fatalf("missing main: %v", err)
	}
}

func TestAssembleRejects(t *testing.T) {
	cases := []struct {
		name    string
		edits   []string // old, new pairs
		wantIs  error
		wantMsg string
	}{
		{"undefined label", []string{"branch entry", "branch nowhere"}, driver.ErrUndefinedLabel, ""},
		{"unbound alias", []string{"call D.f", "call X.f"}, asmerr.ErrUnboundAlias, ""},
		{"unknown constant", []string{"ld_const MAX", "ld_const MIN"}, asmerr.ErrUnboundDefinition, ""},
		{"unknown field", []string{"borrow_field Plain n", "borrow_field Plain m"}, asmerr.ErrUnboundMember, ""},
		{"unknown variant", []string{"Option<u8> Some", "Option<u8> Many"}, asmerr.ErrUnboundMember, ""},
		{"unknown local type", []string{"pack Plain", "pack Ghost"}, asmerr.ErrUnboundDefinition, ""},
		{"missing dependency", []string{
			`module = "D"`, "module = \"D\"\n\n[[import]]\naddress = \"0x9\"\nmodule = \"Z\"",
			`{ name = "value", type = "u64" }`, `{ name = "value", type = "Z.T" }`,
		}, asmerr.ErrDependencyMissing, ""},
		{"duplicate function", []string{`name = "helper"`, `name = "mint"`}, nil, "declared twice"},
		{"duplicate type", []string{`name = "Plain"`, `name = "Pair"`}, nil, "declared twice"},
		{"native with body", []string{
			`type = "&mut D.S" }]`, "type = \"&mut D.S\" }]\n\n  [[function.block]]\n  label = \"x\"\n  code = [\"ret\"]",
		}, nil, "has a body"},
		{"reserved alias", []string{`module = "D"`, "module = \"D\"\nalias = \"Self\""}, nil, "reserved"},
		{"type parameter out of range", []string{`type = "A" }`, `type = "#5" }`}, nil, "out of range"},
		{"bad constant", []string{"value = 1000", "value = -1"}, nil, "out of range"},
		{"malformed return type", []string{`returns = ["Coin<D.S>"]`, `returns = ["Coin<D.S"]`}, nil, "return:"},
		{"malformed local type", []string{`locals = ["bool"]`, `locals = ["bool", "vector<"]`}, nil, "local:"},
		{"unknown local type in locals", []string{`locals = ["bool"]`, `locals = ["Ghost"]`}, asmerr.ErrUnboundDefinition, ""},
	}
	for _, tc := range cases {
		src := strings.NewReplacer(tc.edits...).Replace(coinUnit)
		if src == coinUnit {
			t.Fatalf("%s: fixture edit did not apply", tc.name)
		}
		_, store, err := driver.AssembleUnit(parseUnit(t, src), storeWithD(t), driver.AssembleOptions{})
		if err == nil {
			t.Fatalf("%s: assembled", tc.name)
		}
		if tc.wantIs != nil && !errors.Is(err, tc.wantIs) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.wantIs)
		}
		if tc.wantMsg != "" && !strings.Contains(err.Error(), tc.wantMsg) {
			t.Fatalf("%s: err = %v, want %q", tc.name, err, tc.wantMsg)
		}
		if store.Len() != 1 {
			t.Fatalf("%s: store has %d dependencies", tc.name, store.Len())
		}
	}
}
