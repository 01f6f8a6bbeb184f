package fileformat

import (
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

// ModuleHandle references a module by interned address and name.
type ModuleHandle struct {
	Address AddressIdentifierIndex `msgpack:"address"`
	Name    IdentifierIndex        `msgpack:"name"`
}

// DataTypeTyParameter is one type parameter of a struct or enum.
type DataTypeTyParameter struct {
	Constraints AbilitySet `msgpack:"constraints"`
	IsPhantom   bool       `msgpack:"phantom"`
}

// DataTypeHandle is the externally visible shape of a struct or enum.
type DataTypeHandle struct {
	Module         ModuleHandleIndex     `msgpack:"module"`
	Name           IdentifierIndex       `msgpack:"name"`
	Abilities      AbilitySet            `msgpack:"abilities"`
	TypeParameters []DataTypeTyParameter `msgpack:"type_parameters"`
}

// Key is the interning key of the handle.
func (h DataTypeHandle) Key() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(h.Module)))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(int(h.Name)))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(int(h.Abilities)))
	for _, tp := range h.TypeParameters {
		sb.WriteByte(',')
		if tp.IsPhantom {
			sb.WriteByte('~')
		}
		sb.WriteString(strconv.Itoa(int(tp.Constraints)))
	}
	return sb.String()
}

// Clone returns a deep copy.
func (h DataTypeHandle) Clone() DataTypeHandle {
	h.TypeParameters = slices.Clone(h.TypeParameters)
	return h
}

// FunctionHandle is the externally visible shape of a function.
type FunctionHandle struct {
	Module         ModuleHandleIndex `msgpack:"module"`
	Name           IdentifierIndex   `msgpack:"name"`
	Parameters     SignatureIndex    `msgpack:"parameters"`
	Return         SignatureIndex    `msgpack:"return"`
	TypeParameters []AbilitySet      `msgpack:"type_parameters"`
}

// Equal compares structurally.
func (h FunctionHandle) Equal(other FunctionHandle) bool {
	return h.Module == other.Module &&
		h.Name == other.Name &&
		h.Parameters == other.Parameters &&
		h.Return == other.Return &&
		slices.Equal(h.TypeParameters, other.TypeParameters)
}

// Clone returns a deep copy.
func (h FunctionHandle) Clone() FunctionHandle {
	h.TypeParameters = slices.Clone(h.TypeParameters)
	return h
}

// FieldHandle references a field of a struct defined in this module.
type FieldHandle struct {
	Owner StructDefinitionIndex `msgpack:"owner"`
	Field MemberCount           `msgpack:"field"`
}

type StructDefInstantiation struct {
	Def            StructDefinitionIndex `msgpack:"def"`
	TypeParameters SignatureIndex        `msgpack:"type_parameters"`
}

type EnumDefInstantiation struct {
	Def            EnumDefinitionIndex `msgpack:"def"`
	TypeParameters SignatureIndex      `msgpack:"type_parameters"`
}

type FunctionInstantiation struct {
	Handle         FunctionHandleIndex `msgpack:"handle"`
	TypeParameters SignatureIndex      `msgpack:"type_parameters"`
}

type FieldInstantiation struct {
	Handle         FieldHandleIndex `msgpack:"handle"`
	TypeParameters SignatureIndex   `msgpack:"type_parameters"`
}

// Constant is a typed serialized value.
type Constant struct {
	Type SignatureToken `msgpack:"type"`
	Data []byte         `msgpack:"data"`
}

// Key is the interning key of the constant.
func (c Constant) Key() string {
	return c.Type.Key() + "=" + hex.EncodeToString(c.Data)
}

// Clone returns a deep copy.
func (c Constant) Clone() Constant {
	return Constant{Type: c.Type.Clone(), Data: slices.Clone(c.Data)}
}

// FieldDefinition is one declared field of a struct or variant.
type FieldDefinition struct {
	Name      IdentifierIndex `msgpack:"name"`
	Signature SignatureToken  `msgpack:"signature"`
}

// StructDefinition gives a local data type handle its field layout.
type StructDefinition struct {
	Handle DataTypeHandleIndex `msgpack:"handle"`
	Fields []FieldDefinition   `msgpack:"fields"`
}

// VariantDefinition is one case of an enum.
type VariantDefinition struct {
	Name   IdentifierIndex   `msgpack:"name"`
	Fields []FieldDefinition `msgpack:"fields"`
}

// EnumDefinition gives a local data type handle its variants.
type EnumDefinition struct {
	Handle   DataTypeHandleIndex `msgpack:"handle"`
	Variants []VariantDefinition `msgpack:"variants"`
}

// Visibility of a function definition.
type Visibility uint8

const (
	VisibilityPrivate Visibility = iota
	VisibilityPublic
	VisibilityFriend
)

func (v Visibility) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityFriend:
		return "public(friend)"
	default:
		return "private"
	}
}

// FunctionDefinition declares a function of this module. Native functions
// have no Code.
type FunctionDefinition struct {
	Function   FunctionHandleIndex     `msgpack:"function"`
	Visibility Visibility              `msgpack:"visibility"`
	IsEntry    bool                    `msgpack:"is_entry"`
	Acquires   []StructDefinitionIndex `msgpack:"acquires,omitempty"`
	Code       *CodeUnit               `msgpack:"code,omitempty"`
}
