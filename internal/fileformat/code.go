package fileformat

import (
	"fmt"
	"slices"
)

// Opcode is an instruction of the control skeleton kept for a function body.
// Only instructions that reference a pool or a code offset are modeled; the
// rest of a body is represented by Nop.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpRet
	OpBranch
	OpBrTrue
	OpBrFalse
	OpCall
	OpCallGeneric
	OpPack
	OpPackGeneric
	OpUnpack
	OpUnpackGeneric
	OpBorrowField
	OpBorrowFieldGeneric
	OpPackVariant
	OpPackVariantGeneric
	OpLdConst
)

var opcodeNames = [...]string{
	OpNop:                "nop",
	OpRet:                "ret",
	OpBranch:             "branch",
	OpBrTrue:             "br_true",
	OpBrFalse:            "br_false",
	OpCall:               "call",
	OpCallGeneric:        "call_generic",
	OpPack:               "pack",
	OpPackGeneric:        "pack_generic",
	OpUnpack:             "unpack",
	OpUnpackGeneric:      "unpack_generic",
	OpBorrowField:        "borrow_field",
	OpBorrowFieldGeneric: "borrow_field_generic",
	OpPackVariant:        "pack_variant",
	OpPackVariantGeneric: "pack_variant_generic",
	OpLdConst:            "ld_const",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsBranch reports whether Index is a code offset.
func (op Opcode) IsBranch() bool {
	return op == OpBranch || op == OpBrTrue || op == OpBrFalse
}

// Instruction is one code unit entry. Index is interpreted per opcode: a code
// offset for branches, otherwise an index into the pool the opcode names.
// Tag carries the variant tag of PackVariant.
type Instruction struct {
	Op    Opcode     `msgpack:"op"`
	Index TableIndex `msgpack:"idx,omitempty"`
	Tag   VariantTag `msgpack:"tag,omitempty"`
}

func (i Instruction) String() string {
	switch {
	case i.Op == OpNop || i.Op == OpRet:
		return i.Op.String()
	case i.Op == OpPackVariant || i.Op == OpPackVariantGeneric:
		return fmt.Sprintf("%s %d #%d", i.Op, i.Index, i.Tag)
	default:
		return fmt.Sprintf("%s %d", i.Op, i.Index)
	}
}

// CodeUnit is the body of a non-native function.
type CodeUnit struct {
	Locals SignatureIndex `msgpack:"locals"`
	Code   []Instruction  `msgpack:"code"`
}

// Clone returns a deep copy; nil stays nil.
func (c *CodeUnit) Clone() *CodeUnit {
	if c == nil {
		return nil
	}
	return &CodeUnit{Locals: c.Locals, Code: slices.Clone(c.Code)}
}
