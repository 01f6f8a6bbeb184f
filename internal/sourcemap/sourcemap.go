// Package sourcemap records where the definitions of an assembled unit were
// declared, keyed by the definition indices the assembler handed out.
package sourcemap

import (
	"fmt"
	"sort"

	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/source"
)

// MemberLoc places one field or variant.
type MemberLoc struct {
	Name     string      `msgpack:"name"`
	Location source.Span `msgpack:"loc"`
}

// DataTypeMap describes one struct or enum definition.
type DataTypeMap struct {
	Name           ir.DataTypeName `msgpack:"name"`
	Location       source.Span     `msgpack:"loc"`
	TypeParameters []MemberLoc     `msgpack:"type_parameters,omitempty"`
	Members        []MemberLoc     `msgpack:"members,omitempty"` // fields or variants, in declaration order
}

// FunctionMap describes one function definition.
type FunctionMap struct {
	Name           ir.FunctionName `msgpack:"name"`
	Location       source.Span     `msgpack:"loc"`
	TypeParameters []MemberLoc     `msgpack:"type_parameters,omitempty"`
	Parameters     []MemberLoc     `msgpack:"parameters,omitempty"`
	IsNative       bool            `msgpack:"native"`
}

// ConstantMap places one named constant.
type ConstantMap struct {
	Name     ir.ConstantName              `msgpack:"name"`
	Index    fileformat.ConstantPoolIndex `msgpack:"index"`
	Location source.Span                  `msgpack:"loc"`
}

// SourceMap is the location side table produced alongside the pools.
type SourceMap struct {
	DefinitionLocation source.Span     `msgpack:"definition_location"`
	File               string          `msgpack:"file,omitempty"`
	Module             *ir.ModuleIdent `msgpack:"module,omitempty"` // nil for scripts

	Structs   map[fileformat.StructDefinitionIndex]*DataTypeMap   `msgpack:"structs"`
	Enums     map[fileformat.EnumDefinitionIndex]*DataTypeMap     `msgpack:"enums"`
	Functions map[fileformat.FunctionDefinitionIndex]*FunctionMap `msgpack:"functions"`
	Constants map[ir.ConstantName]ConstantMap                     `msgpack:"constants"`
}

// New creates an empty map for a unit declared at loc.
func New(loc source.Span, module *ir.ModuleIdent) *SourceMap {
	var id *ir.ModuleIdent
	if module != nil {
		cp := *module
		id = &cp
	}
	m := &SourceMap{DefinitionLocation: loc, Module: id}
	m.ensureMaps()
	return m
}

// ensureMaps allocates tables left nil, e.g. by msgpack for empty maps.
func (m *SourceMap) ensureMaps() {
	if m.Structs == nil {
		m.Structs = make(map[fileformat.StructDefinitionIndex]*DataTypeMap)
	}
	if m.Enums == nil {
		m.Enums = make(map[fileformat.EnumDefinitionIndex]*DataTypeMap)
	}
	if m.Functions == nil {
		m.Functions = make(map[fileformat.FunctionDefinitionIndex]*FunctionMap)
	}
	if m.Constants == nil {
		m.Constants = make(map[ir.ConstantName]ConstantMap)
	}
}

// AddStruct records a struct definition; the first record for an index wins.
func (m *SourceMap) AddStruct(idx fileformat.StructDefinitionIndex, name ir.DataTypeName, loc source.Span) *DataTypeMap {
	if e, ok := m.Structs[idx]; ok {
		return e
	}
	e := &DataTypeMap{Name: name, Location: loc}
	m.Structs[idx] = e
	return e
}

// AddEnum records an enum definition; the first record for an index wins.
func (m *SourceMap) AddEnum(idx fileformat.EnumDefinitionIndex, name ir.DataTypeName, loc source.Span) *DataTypeMap {
	if e, ok := m.Enums[idx]; ok {
		return e
	}
	e := &DataTypeMap{Name: name, Location: loc}
	m.Enums[idx] = e
	return e
}

// AddFunction records a function definition; the first record for an index wins.
func (m *SourceMap) AddFunction(idx fileformat.FunctionDefinitionIndex, name ir.FunctionName, loc source.Span) *FunctionMap {
	if e, ok := m.Functions[idx]; ok {
		return e
	}
	e := &FunctionMap{Name: name, Location: loc}
	m.Functions[idx] = e
	return e
}

// AddConstant records a named constant.
func (m *SourceMap) AddConstant(name ir.ConstantName, idx fileformat.ConstantPoolIndex, loc source.Span) {
	m.Constants[name] = ConstantMap{Name: name, Index: idx, Location: loc}
}

// AddMember appends a field or variant location.
func (d *DataTypeMap) AddMember(name string, loc source.Span) {
	d.Members = append(d.Members, MemberLoc{Name: name, Location: loc})
}

// AddTypeParameter appends a type parameter location.
func (d *DataTypeMap) AddTypeParameter(name string, loc source.Span) {
	d.TypeParameters = append(d.TypeParameters, MemberLoc{Name: name, Location: loc})
}

// AddParameter appends a parameter location.
func (f *FunctionMap) AddParameter(name string, loc source.Span) {
	f.Parameters = append(f.Parameters, MemberLoc{Name: name, Location: loc})
}

// AddTypeParameter appends a type parameter location.
func (f *FunctionMap) AddTypeParameter(name string, loc source.Span) {
	f.TypeParameters = append(f.TypeParameters, MemberLoc{Name: name, Location: loc})
}

// Struct returns the record for idx or nil.
func (m *SourceMap) Struct(idx fileformat.StructDefinitionIndex) *DataTypeMap { return m.Structs[idx] }

// Enum returns the record for idx or nil.
func (m *SourceMap) Enum(idx fileformat.EnumDefinitionIndex) *DataTypeMap { return m.Enums[idx] }

// Function returns the record for idx or nil.
func (m *SourceMap) Function(idx fileformat.FunctionDefinitionIndex) *FunctionMap {
	return m.Functions[idx]
}

// Constant returns the record for name.
func (m *SourceMap) Constant(name ir.ConstantName) (ConstantMap, bool) {
	c, ok := m.Constants[name]
	return c, ok
}

// Len reports the number of definitions recorded.
func (m *SourceMap) Len() int {
	return len(m.Structs) + len(m.Enums) + len(m.Functions) + len(m.Constants)
}

// Entry is one flattened row of a source map, used for listings.
type Entry struct {
	Kind     string
	Index    int
	Name     string
	Location source.Span
}

// Entries lists all definitions ordered by kind, then index (constants by name).
func (m *SourceMap) Entries() []Entry {
	out := make([]Entry, 0, m.Len())
	for idx, s := range m.Structs {
		out = append(out, Entry{Kind: "struct", Index: int(idx), Name: string(s.Name), Location: s.Location})
	}
	for idx, e := range m.Enums {
		out = append(out, Entry{Kind: "enum", Index: int(idx), Name: string(e.Name), Location: e.Location})
	}
	for idx, f := range m.Functions {
		out = append(out, Entry{Kind: "function", Index: int(idx), Name: string(f.Name), Location: f.Location})
	}
	for _, c := range m.Constants {
		out = append(out, Entry{Kind: "constant", Index: int(c.Index), Name: string(c.Name), Location: c.Location})
	}
	rank := map[string]int{"struct": 0, "enum": 1, "function": 2, "constant": 3}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return rank[out[i].Kind] < rank[out[j].Kind]
		}
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (m *SourceMap) String() string {
	mod := "script"
	if m.Module != nil {
		mod = m.Module.String()
	}
	return fmt.Sprintf("sourcemap(%s: %d structs, %d enums, %d functions, %d constants)",
		mod, len(m.Structs), len(m.Enums), len(m.Functions), len(m.Constants))
}
