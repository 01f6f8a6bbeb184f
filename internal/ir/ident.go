// Package ir holds the identifiers an IR front-end hands to the assembly context.
package ir

import (
	"fmt"

	"irasm/internal/fileformat"
)

// ModuleName is a module's name or a local alias for it.
type ModuleName string

// SelfModule is the alias every unit binds to its own module.
const SelfModule ModuleName = fileformat.SelfModuleName

// IsSelf reports whether n is the reserved Self alias.
func (n ModuleName) IsSelf() bool { return n == SelfModule }

// ModuleIdent globally identifies a module.
type ModuleIdent struct {
	Address fileformat.AccountAddress
	Name    ModuleName
}

// NewModuleIdent parses the address literal.
func NewModuleIdent(address string, name ModuleName) (ModuleIdent, error) {
	addr, err := fileformat.ParseAddress(address)
	if err != nil {
		return ModuleIdent{}, err
	}
	return ModuleIdent{Address: addr, Name: name}, nil
}

func (id ModuleIdent) String() string {
	return fmt.Sprintf("%s::%s", id.Address.ShortHex(), id.Name)
}

type (
	DataTypeName string
	FunctionName string
	ConstantName string
	FieldName    string
	VariantName  string
	BlockLabel   string
)

// QualifiedDataTypeIdent names a struct or enum through a module alias.
type QualifiedDataTypeIdent struct {
	Module ModuleName
	Name   DataTypeName
}

func (q QualifiedDataTypeIdent) String() string {
	return fmt.Sprintf("%s::%s", q.Module, q.Name)
}

// FunctionSignature is a function shape before its signatures are interned.
type FunctionSignature struct {
	Parameters     []fileformat.SignatureToken
	Return         []fileformat.SignatureToken
	TypeParameters []fileformat.AbilitySet
}

// Equal compares structurally.
func (s FunctionSignature) Equal(other FunctionSignature) bool {
	if len(s.TypeParameters) != len(other.TypeParameters) {
		return false
	}
	for i := range s.TypeParameters {
		if s.TypeParameters[i] != other.TypeParameters[i] {
			return false
		}
	}
	return fileformat.Signature(s.Parameters).Key() == fileformat.Signature(other.Parameters).Key() &&
		fileformat.Signature(s.Return).Key() == fileformat.Signature(other.Return).Key()
}
