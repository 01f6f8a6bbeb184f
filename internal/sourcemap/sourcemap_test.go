package sourcemap

import (
	"testing"

	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/source"
)

func sampleMap(t *testing.T) *SourceMap {
	t.Helper()
	id, err := ir.NewModuleIdent("0x42", "M")
	if err != nil {
		t.Fatalf("NewModuleIdent: %v", err)
	}
	m := New(source.Span{File: 1, Start: 0, End: 120}, &id)
	m.File = "m.toml"
	s := m.AddStruct(0, "Coin", source.Span{File: 1, Start: 10, End: 14})
	s.AddTypeParameter("T", source.Span{File: 1, Start: 15, End: 16})
	s.AddMember("value", source.Span{File: 1, Start: 20, End: 25})
	m.AddEnum(0, "Option", source.Span{File: 1, Start: 30, End: 36})
	f := m.AddFunction(1, "mint", source.Span{File: 1, Start: 40, End: 44})
	f.AddParameter("amount", source.Span{File: 1, Start: 45, End: 51})
	m.AddFunction(0, "burn", source.Span{File: 1, Start: 60, End: 64})
	m.AddConstant("MAX", 2, source.Span{File: 1, Start: 70, End: 73})
	return m
}

func TestFirstRecordWins(t *testing.T) {
	m := sampleMap(t)
	again := m.AddStruct(0, "Other", source.Span{Start: 99})
	if again.Name != "Coin" || again.Location.Start != 10 {
		t.Fatalf("second AddStruct replaced the record: %+v", again)
	}
	if got := m.Function(1); got == nil || got.Name != "mint" || len(got.Parameters) != 1 {
		t.Fatalf("Function(1) = %+v", got)
	}
	if m.Struct(5) != nil {
		t.Fatalf("unknown struct should be nil")
	}
	if _, ok := m.Constant("MIN"); ok {
		t.Fatalf("unknown constant reported")
	}
}

func TestEntriesOrder(t *testing.T) {
	got := sampleMap(t).Entries()
	want := []struct {
		kind  string
		index int
		name  string
	}{
		{"struct", 0, "Coin"},
		{"enum", 0, "Option"},
		{"function", 0, "burn"},
		{"function", 1, "mint"},
		{"constant", 2, "MAX"},
	}
	if len(got) != len(want) {
		t.Fatalf("entries = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Kind != w.kind || got[i].Index != w.index || got[i].Name != w.name {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], w)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	m := sampleMap(t)
	data, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.String() != m.String() || back.File != "m.toml" {
		t.Fatalf("round trip: %s vs %s", back, m)
	}
	if back.Module == nil || back.Module.Name != "M" {
		t.Fatalf("module identity lost: %v", back.Module)
	}
	s := back.Struct(0)
	if s == nil || len(s.Members) != 1 || s.Members[0].Location.End != 25 || len(s.TypeParameters) != 1 {
		t.Fatalf("struct record = %+v", s)
	}
	if c, ok := back.Constant("MAX"); !ok || c.Index != fileformat.ConstantPoolIndex(2) {
		t.Fatalf("constant = %+v, %v", c, ok)
	}
}

func TestScriptMapRoundTrip(t *testing.T) {
	m := New(source.Span{End: 4}, nil)
	data, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Module != nil || back.Len() != 0 {
		t.Fatalf("script map = %s", back)
	}
	// decoded maps are writable
	back.AddStruct(0, "S", source.Span{})
	if back.Len() != 1 {
		t.Fatalf("AddStruct after decode failed")
	}
}

func TestDecodeRejectsForeignData(t *testing.T) {
	if _, err := Unmarshal([]byte{0xc0}); err == nil {
		t.Fatalf("nil container accepted")
	}
	if _, err := Unmarshal([]byte("garbage")); err == nil {
		t.Fatalf("garbage accepted")
	}
	if err := Encode(nil, nil); err == nil {
		t.Fatalf("nil map encoded")
	}
}
