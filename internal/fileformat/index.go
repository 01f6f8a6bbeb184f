// Package fileformat describes the binary module format produced by the assembler:
// pool entries, handles, signature tokens and the CompiledModule container.
//
// Cross-references between pools are expressed as typed TableIndex values; the
// position of an entry inside its pool vector is its index, so pool ordering is
// load-bearing for every consumer of a module.
package fileformat

// TableIndex is a position inside one pool.
type TableIndex uint16

// TableMaxSize is the maximum number of entries a single pool may hold.
const TableMaxSize = 1 << 16

type (
	ModuleHandleIndex           TableIndex
	DataTypeHandleIndex         TableIndex
	FunctionHandleIndex         TableIndex
	FieldHandleIndex            TableIndex
	StructDefinitionIndex       TableIndex
	EnumDefinitionIndex         TableIndex
	FunctionDefinitionIndex     TableIndex
	StructDefInstantiationIndex TableIndex
	EnumDefInstantiationIndex   TableIndex
	FunctionInstantiationIndex  TableIndex
	FieldInstantiationIndex     TableIndex
	SignatureIndex              TableIndex
	IdentifierIndex             TableIndex
	AddressIdentifierIndex      TableIndex
	ConstantPoolIndex           TableIndex

	// TypeParameterIndex refers to a type parameter of the enclosing definition.
	TypeParameterIndex uint16
	// CodeOffset is an instruction offset inside a function body.
	CodeOffset uint16
	// MemberCount counts fields of a struct or variant.
	MemberCount uint16
	// VariantTag is the position of a variant inside its enum.
	VariantTag uint16
)

// VersionMax is the format version written by this assembler.
const VersionMax uint32 = 7
