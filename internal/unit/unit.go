// Package unit reads the declarative description of one compilation unit, a
// module or a script, from TOML. It is the front-end the driver lowers onto an
// assembly context; it does no resolution of its own.
package unit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"irasm/internal/fileformat"
	"irasm/internal/ir"
	"irasm/internal/source"
)

var (
	// ErrNoHeader indicates that neither [module] nor [script] is present.
	ErrNoHeader = errors.New("missing [module] or [script]")
	// ErrBothHeaders indicates that a unit declares both [module] and [script].
	ErrBothHeaders = errors.New("[module] and [script] are mutually exclusive")
)

// ScriptModuleName is the name a script's implicit module is bound under.
const ScriptModuleName ir.ModuleName = "<SELF>"

// Unit is one decoded unit file.
type Unit struct {
	Path string        `toml:"-"`
	File source.FileID `toml:"-"`

	Module    *ModuleHeader `toml:"module"`
	Script    *ScriptHeader `toml:"script"`
	Imports   []Import      `toml:"import"`
	Friends   []Friend      `toml:"friend"`
	Structs   []Struct      `toml:"struct"`
	Enums     []Enum        `toml:"enum"`
	Constants []Constant    `toml:"constant"`
	Functions []Function    `toml:"function"`

	file *source.File
}

type ModuleHeader struct {
	Address string        `toml:"address"`
	Name    ir.ModuleName `toml:"name"`
}

type ScriptHeader struct {
	Main ir.FunctionName `toml:"main"`
}

type Import struct {
	Address string        `toml:"address"`
	Module  ir.ModuleName `toml:"module"`
	Alias   ir.ModuleName `toml:"alias"` // defaults to Module
}

type Friend struct {
	Address string        `toml:"address"`
	Module  ir.ModuleName `toml:"module"`
}

// TypeParameter declares a type parameter by name.
type TypeParameter struct {
	Name      string   `toml:"name"`
	Abilities []string `toml:"abilities"`
	Phantom   bool     `toml:"phantom"`
}

type Field struct {
	Name ir.FieldName `toml:"name"`
	Type string       `toml:"type"`
}

type Struct struct {
	Name           ir.DataTypeName `toml:"name"`
	Abilities      []string        `toml:"abilities"`
	TypeParameters []TypeParameter `toml:"type_parameters"`
	Fields         []Field         `toml:"fields"`
}

type Variant struct {
	Name   ir.VariantName `toml:"name"`
	Fields []Field        `toml:"fields"`
}

type Enum struct {
	Name           ir.DataTypeName `toml:"name"`
	Abilities      []string        `toml:"abilities"`
	TypeParameters []TypeParameter `toml:"type_parameters"`
	Variants       []Variant       `toml:"variant"`
}

type Constant struct {
	Name  ir.ConstantName `toml:"name"`
	Type  string          `toml:"type"`
	Value any             `toml:"value"`
	NFC   bool            `toml:"nfc"` // normalize a string value to NFC
}

type Parameter struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// Block is a labeled run of instructions. Blocks are laid out in order.
type Block struct {
	Label ir.BlockLabel `toml:"label"`
	Code  []string      `toml:"code"`
}

type Function struct {
	Name           ir.FunctionName   `toml:"name"`
	Visibility     string            `toml:"visibility"`
	Entry          bool              `toml:"entry"`
	Native         bool              `toml:"native"`
	TypeParameters []TypeParameter   `toml:"type_parameters"`
	Parameters     []Parameter       `toml:"parameters"`
	Returns        []string          `toml:"returns"`
	Locals         []string          `toml:"locals"`
	Acquires       []ir.DataTypeName `toml:"acquires"`
	Blocks         []Block           `toml:"block"`
}

// Load reads path into fs and decodes it.
func Load(fs *source.FileSet, path string) (*Unit, error) {
	id, err := fs.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read unit: %w", path, err)
	}
	return Parse(fs.Get(id))
}

// Parse decodes the unit held by f.
func Parse(f *source.File) (*Unit, error) {
	u := &Unit{Path: f.Path, File: f.ID, file: f}
	meta, err := toml.Decode(string(f.Content), u)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", f.Path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", f.Path, strings.Join(keys, ", "))
	}
	switch {
	case u.Module == nil && u.Script == nil:
		return nil, fmt.Errorf("%s: %w", f.Path, ErrNoHeader)
	case u.Module != nil && u.Script != nil:
		return nil, fmt.Errorf("%s: %w", f.Path, ErrBothHeaders)
	}
	if u.Module != nil {
		if !meta.IsDefined("module", "address") || strings.TrimSpace(u.Module.Address) == "" {
			return nil, fmt.Errorf("%s: missing [module].address", f.Path)
		}
		if !meta.IsDefined("module", "name") || u.Module.Name == "" {
			return nil, fmt.Errorf("%s: missing [module].name", f.Path)
		}
	}
	if u.Script != nil && u.Script.Main == "" {
		u.Script.Main = "main"
	}
	for i := range u.Imports {
		if u.Imports[i].Alias == "" {
			u.Imports[i].Alias = u.Imports[i].Module
		}
	}
	return u, nil
}

// IsScript reports whether the unit is a script.
func (u *Unit) IsScript() bool { return u.Script != nil }

// Ident returns the identity the unit is compiled under; scripts get the
// zero address and ScriptModuleName.
func (u *Unit) Ident() (ir.ModuleIdent, error) {
	if u.Module == nil {
		return ir.ModuleIdent{Name: ScriptModuleName}, nil
	}
	id, err := ir.NewModuleIdent(u.Module.Address, u.Module.Name)
	if err != nil {
		return ir.ModuleIdent{}, fmt.Errorf("%s: [module].address: %w", u.Path, err)
	}
	return id, nil
}

// Name is the unit's display name.
func (u *Unit) Name() string {
	if u.Module != nil {
		return string(u.Module.Name)
	}
	return "script " + string(u.Script.Main)
}

// Locate finds the quoted declaration of name at or after from and falls
// back to from itself, or the whole file when from is empty.
func (u *Unit) Locate(name string, from source.Span) source.Span {
	if u.file == nil {
		return from
	}
	if span, ok := u.file.Find(`"`+name+`"`, from.Start); ok {
		// без кавычек
		span.Start++
		span.End--
		return span
	}
	if from.Empty() {
		return u.file.Whole()
	}
	return from
}

// Section returns the span of the n-th occurrence (from zero) of a table
// header such as "[[struct]]" or "[module]". A missing header yields the
// empty span at the start of the file.
func (u *Unit) Section(header string, n int) source.Span {
	if u.file == nil {
		return source.Span{File: u.File}
	}
	var from uint32
	for i := 0; ; i++ {
		span, ok := u.file.Find(header, from)
		if !ok {
			return source.Span{File: u.File}
		}
		if i == n {
			return span
		}
		from = span.End
	}
}

// Whole is the span of the entire unit file.
func (u *Unit) Whole() source.Span {
	if u.file == nil {
		return source.Span{File: u.File}
	}
	return u.file.Whole()
}

// ParseVisibility maps the visibility key of a function.
func ParseVisibility(s string) (fileformat.Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "private":
		return fileformat.VisibilityPrivate, nil
	case "public":
		return fileformat.VisibilityPublic, nil
	case "friend", "public(friend)":
		return fileformat.VisibilityFriend, nil
	default:
		return 0, fmt.Errorf("unknown visibility %q", s)
	}
}

// DataTypeParameters converts declared type parameters into handle form.
func DataTypeParameters(tps []TypeParameter) ([]fileformat.DataTypeTyParameter, error) {
	out := make([]fileformat.DataTypeTyParameter, 0, len(tps))
	for _, tp := range tps {
		set, err := fileformat.ParseAbilities(tp.Abilities)
		if err != nil {
			return nil, fmt.Errorf("type parameter %s: %w", tp.Name, err)
		}
		out = append(out, fileformat.DataTypeTyParameter{Constraints: set, IsPhantom: tp.Phantom})
	}
	return out, nil
}

// FunctionTypeParameters converts declared type parameters into constraint sets.
func FunctionTypeParameters(tps []TypeParameter) ([]fileformat.AbilitySet, error) {
	out := make([]fileformat.AbilitySet, 0, len(tps))
	for _, tp := range tps {
		if tp.Phantom {
			return nil, fmt.Errorf("type parameter %s: functions have no phantom parameters", tp.Name)
		}
		set, err := fileformat.ParseAbilities(tp.Abilities)
		if err != nil {
			return nil, fmt.Errorf("type parameter %s: %w", tp.Name, err)
		}
		out = append(out, set)
	}
	return out, nil
}

// TypeParameterNames lists declared names in order.
func TypeParameterNames(tps []TypeParameter) []string {
	names := make([]string, len(tps))
	for i, tp := range tps {
		names[i] = tp.Name
	}
	return names
}
