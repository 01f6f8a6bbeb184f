package unit

import (
	"fmt"
	"strings"

	"irasm/internal/fileformat"
	"irasm/internal/ir"
)

// Instr is one parsed instruction of a block. Which fields are set depends
// on Op:
//
//	branch, br_true, br_false   Label
//	call                        Module, Function, TypeArgs
//	pack, unpack                Type
//	borrow_field                Type, Member (field)
//	pack_variant                Type, Member (variant)
//	ld_const                    Constant
//
// Generic forms are not spelled out; the lowering picks them when type
// arguments are present.
type Instr struct {
	Op       fileformat.Opcode
	Label    ir.BlockLabel
	Module   ir.ModuleName
	Function ir.FunctionName
	TypeArgs []TypeExpr
	Type     TypeExpr
	Member   string
	Constant ir.ConstantName
}

var instrOps = map[string]fileformat.Opcode{
	"nop":          fileformat.OpNop,
	"ret":          fileformat.OpRet,
	"branch":       fileformat.OpBranch,
	"br_true":      fileformat.OpBrTrue,
	"br_false":     fileformat.OpBrFalse,
	"call":         fileformat.OpCall,
	"pack":         fileformat.OpPack,
	"unpack":       fileformat.OpUnpack,
	"borrow_field": fileformat.OpBorrowField,
	"pack_variant": fileformat.OpPackVariant,
	"ld_const":     fileformat.OpLdConst,
}

// ParseInstr parses one line of a block's code.
func ParseInstr(line string) (Instr, error) {
	line = strings.TrimSpace(line)
	mnemonic, rest, _ := strings.Cut(line, " ")
	op, ok := instrOps[mnemonic]
	if !ok {
		return Instr{}, fmt.Errorf("unknown instruction %q", mnemonic)
	}
	rest = strings.TrimSpace(rest)
	in := Instr{Op: op}

	switch op {
	case fileformat.OpNop, fileformat.OpRet:
		if rest != "" {
			return Instr{}, fmt.Errorf("%s takes no operand", mnemonic)
		}
		return in, nil

	case fileformat.OpBranch, fileformat.OpBrTrue, fileformat.OpBrFalse:
		if rest == "" || strings.ContainsAny(rest, " \t") {
			return Instr{}, fmt.Errorf("%s needs a single label", mnemonic)
		}
		in.Label = ir.BlockLabel(rest)
		return in, nil

	case fileformat.OpLdConst:
		if rest == "" {
			return Instr{}, fmt.Errorf("ld_const needs a constant name")
		}
		in.Constant = ir.ConstantName(rest)
		return in, nil

	case fileformat.OpCall:
		// a call target has the same shape as a qualified type
		t, err := ParseType(rest)
		if err != nil {
			return Instr{}, fmt.Errorf("call: %w", err)
		}
		if t.Kind != TypeNamed {
			return Instr{}, fmt.Errorf("call: %q is not a function", rest)
		}
		in.Module, in.Function, in.TypeArgs = t.Module, ir.FunctionName(t.Name), t.Args
		if in.Module == "" {
			in.Module = ir.SelfModule
		}
		return in, nil

	case fileformat.OpPack, fileformat.OpUnpack:
		t, err := parseLocalType(mnemonic, rest)
		if err != nil {
			return Instr{}, err
		}
		in.Type = t
		return in, nil

	default: // borrow_field, pack_variant
		i := strings.LastIndexAny(rest, " \t")
		if i < 0 {
			return Instr{}, fmt.Errorf("%s needs a type and a member", mnemonic)
		}
		t, err := parseLocalType(mnemonic, rest[:i])
		if err != nil {
			return Instr{}, err
		}
		in.Type, in.Member = t, strings.TrimSpace(rest[i+1:])
		return in, nil
	}
}

// parseLocalType accepts only types defined by the unit itself.
func parseLocalType(mnemonic, s string) (TypeExpr, error) {
	t, err := ParseType(s)
	if err != nil {
		return TypeExpr{}, fmt.Errorf("%s: %w", mnemonic, err)
	}
	if t.Kind != TypeNamed || (t.Module != "" && !t.Module.IsSelf()) {
		return TypeExpr{}, fmt.Errorf("%s: %q is not a type of this module", mnemonic, s)
	}
	return t, nil
}
