package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"irasm/internal/buildpipeline"
	"irasm/internal/fileformat"
	"irasm/internal/source"
	"irasm/internal/sourcemap"
	"irasm/internal/unit"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] module.mv",
	Short: "List the pools and definitions of a compiled module",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectExecution,
}

func init() {
	inspectCmd.Flags().String("srcmap", "", "source map to annotate definitions with (default: next to the module)")
	inspectCmd.Flags().Bool("code", true, "disassemble function bodies")
}

func inspectExecution(cmd *cobra.Command, args []string) error {
	srcmapPath, err := cmd.Flags().GetString("srcmap")
	if err != nil {
		return err
	}
	withCode, err := cmd.Flags().GetBool("code")
	if err != nil {
		return err
	}

	path := args[0]
	// #nosec G304 -- path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read module: %w", err)
	}
	m, err := fileformat.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	explicit := srcmapPath != ""
	if !explicit {
		srcmapPath = strings.TrimSuffix(path, buildpipeline.ModuleExt) + buildpipeline.SourceMapExt
	}
	sm, err := loadSourceMap(srcmapPath)
	if err != nil && explicit {
		return err
	}

	l := newLister(cmd.OutOrStdout(), m, sm)
	return l.list(withCode)
}

func loadSourceMap(path string) (*sourcemap.SourceMap, error) {
	// #nosec G304 -- path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source map: %w", err)
	}
	sm, err := sourcemap.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sm, nil
}

// lister renders one module; every lookup tolerates out-of-range indices so
// a malformed module still lists.
type lister struct {
	w   io.Writer
	m   *fileformat.CompiledModule
	sm  *sourcemap.SourceMap
	fs  *source.FileSet
	src source.FileID
	ok  bool // source file loaded

	heading lipgloss.Style
	dim     *color.Color
	err     error
}

func newLister(w io.Writer, m *fileformat.CompiledModule, sm *sourcemap.SourceMap) *lister {
	l := &lister{
		w:       w,
		m:       m,
		sm:      sm,
		fs:      source.NewFileSet(),
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		dim:     color.New(color.Faint),
	}
	if sm != nil && sm.File != "" {
		if id, err := l.fs.Load(sm.File); err == nil {
			l.src, l.ok = id, true
		}
	}
	return l
}

func (l *lister) printf(format string, args ...any) {
	if l.err != nil {
		return
	}
	_, l.err = fmt.Fprintf(l.w, format, args...)
}

func (l *lister) section(title string) {
	l.printf("\n%s\n", l.heading.Render(title))
}

func (l *lister) ident(idx fileformat.IdentifierIndex) string {
	if id, ok := l.m.IdentifierAt(idx); ok {
		return string(id)
	}
	return fmt.Sprintf("?ident%d", idx)
}

func (l *lister) module(idx fileformat.ModuleHandleIndex) string {
	h := l.m.ModuleHandleAt(idx)
	if h == nil {
		return fmt.Sprintf("?module%d", idx)
	}
	addr, ok := l.m.AddressIdentifierAt(h.Address)
	if !ok {
		return "?::" + l.ident(h.Name)
	}
	return addr.ShortHex() + "::" + l.ident(h.Name)
}

func (l *lister) dataType(idx fileformat.DataTypeHandleIndex) string {
	h := l.m.DataTypeHandleAt(idx)
	if h == nil {
		return fmt.Sprintf("?type%d", idx)
	}
	if h.Module == l.m.SelfModuleHandleIdx {
		return l.ident(h.Name)
	}
	mh := l.m.ModuleHandleAt(h.Module)
	if mh == nil {
		return "?." + l.ident(h.Name)
	}
	return l.ident(mh.Name) + "." + l.ident(h.Name)
}

func (l *lister) token(t fileformat.SignatureToken) string {
	switch t.Kind {
	case fileformat.TokenVector:
		return "vector<" + l.inner(t) + ">"
	case fileformat.TokenReference:
		return "&" + l.inner(t)
	case fileformat.TokenMutableReference:
		return "&mut " + l.inner(t)
	case fileformat.TokenDataType:
		return l.dataType(t.Handle)
	case fileformat.TokenDataTypeInstantiation:
		return l.dataType(t.Handle) + "<" + l.tokens(t.Args) + ">"
	}
	return t.String()
}

func (l *lister) inner(t fileformat.SignatureToken) string {
	if t.Inner == nil {
		return "?"
	}
	return l.token(*t.Inner)
}

func (l *lister) tokens(ts []fileformat.SignatureToken) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = l.token(t)
	}
	return strings.Join(parts, ", ")
}

func (l *lister) signature(idx fileformat.SignatureIndex) string {
	sig, ok := l.m.SignatureAt(idx)
	if !ok {
		return fmt.Sprintf("?sig%d", idx)
	}
	return l.tokens(sig)
}

func (l *lister) loc(span source.Span) string {
	if !l.ok {
		return span.String()
	}
	span.File = l.src
	return l.fs.Format(span)
}

func (l *lister) list(withCode bool) error {
	addr, name, err := l.m.SelfID()
	if err != nil {
		return err
	}
	title := fmt.Sprintf("module %s::%s", addr.ShortHex(), name)
	if l.sm != nil && l.sm.Module == nil {
		title = "script"
	}
	l.printf("%s  %s\n", l.heading.Render(title), l.dim.Sprintf("bytecode v%d", l.m.Version))

	l.pools()
	l.imports()
	l.dataTypes()
	l.functions(withCode)
	l.constants()
	return l.err
}

func (l *lister) pools() {
	l.section("pools")
	rows := []struct {
		name string
		n    int
	}{
		{"module handles", len(l.m.ModuleHandles)},
		{"data type handles", len(l.m.DataTypeHandles)},
		{"function handles", len(l.m.FunctionHandles)},
		{"field handles", len(l.m.FieldHandles)},
		{"struct instantiations", len(l.m.StructDefInstantiations)},
		{"enum instantiations", len(l.m.EnumDefInstantiations)},
		{"function instantiations", len(l.m.FunctionInstantiations)},
		{"field instantiations", len(l.m.FieldInstantiations)},
		{"signatures", len(l.m.Signatures)},
		{"identifiers", len(l.m.Identifiers)},
		{"addresses", len(l.m.AddressIdentifiers)},
		{"constants", len(l.m.ConstantPool)},
	}
	for _, r := range rows {
		l.printf("  %s %d\n", runewidth.FillRight(r.name, 24), r.n)
	}
}

func (l *lister) imports() {
	if len(l.m.ModuleHandles) <= 1 && len(l.m.FriendDecls) == 0 {
		return
	}
	l.section("modules")
	for i := range l.m.ModuleHandles {
		idx := fileformat.ModuleHandleIndex(i)
		if idx == l.m.SelfModuleHandleIdx {
			continue
		}
		l.printf("  use %s\n", l.module(idx))
	}
	for _, f := range l.m.FriendDecls {
		addr, _ := l.m.AddressIdentifierAt(f.Address)
		l.printf("  friend %s::%s\n", addr.ShortHex(), l.ident(f.Name))
	}
}

func (l *lister) fields(fs []fileformat.FieldDefinition) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = l.ident(f.Name) + ": " + l.token(f.Signature)
	}
	return strings.Join(parts, ", ")
}

func (l *lister) dataTypeHeader(kind string, idx fileformat.DataTypeHandleIndex) string {
	h := l.m.DataTypeHandleAt(idx)
	if h == nil {
		return kind + " " + l.dataType(idx)
	}
	s := kind + " " + l.ident(h.Name)
	if len(h.TypeParameters) > 0 {
		ps := make([]string, len(h.TypeParameters))
		for i, tp := range h.TypeParameters {
			ps[i] = fmt.Sprintf("#%d", i)
			if tp.IsPhantom {
				ps[i] = "phantom " + ps[i]
			}
			if tp.Constraints != 0 {
				ps[i] += ": " + tp.Constraints.String()
			}
		}
		s += "<" + strings.Join(ps, ", ") + ">"
	}
	if h.Abilities != 0 {
		s += " has " + h.Abilities.String()
	}
	return s
}

func (l *lister) dataTypes() {
	if len(l.m.StructDefs)+len(l.m.EnumDefs) == 0 {
		return
	}
	l.section("types")
	for i, sd := range l.m.StructDefs {
		l.printf("  %s { %s }%s\n", l.dataTypeHeader("struct", sd.Handle), l.fields(sd.Fields),
			l.annotate(l.smStruct(fileformat.StructDefinitionIndex(i))))
	}
	for i, ed := range l.m.EnumDefs {
		l.printf("  %s%s\n", l.dataTypeHeader("enum", ed.Handle), l.annotate(l.smEnum(fileformat.EnumDefinitionIndex(i))))
		for tag, v := range ed.Variants {
			l.printf("    %d %s { %s }\n", tag, l.ident(v.Name), l.fields(v.Fields))
		}
	}
}

func (l *lister) smStruct(idx fileformat.StructDefinitionIndex) *sourcemap.DataTypeMap {
	if l.sm == nil {
		return nil
	}
	return l.sm.Struct(idx)
}

func (l *lister) smEnum(idx fileformat.EnumDefinitionIndex) *sourcemap.DataTypeMap {
	if l.sm == nil {
		return nil
	}
	return l.sm.Enum(idx)
}

func (l *lister) annotate(dm *sourcemap.DataTypeMap) string {
	if dm == nil {
		return ""
	}
	return "  " + l.dim.Sprint(l.loc(dm.Location))
}

func (l *lister) functions(withCode bool) {
	if len(l.m.FunctionDefs) == 0 {
		return
	}
	l.section("functions")
	for i, fd := range l.m.FunctionDefs {
		fh := l.m.FunctionHandleAt(fd.Function)
		if fh == nil {
			l.printf("  ?function%d\n", fd.Function)
			continue
		}
		head := fd.Visibility.String()
		if fd.IsEntry {
			head += " entry"
		}
		if fd.Code == nil {
			head += " native"
		}
		sig := fmt.Sprintf("%s fun %s(%s)", head, l.ident(fh.Name), l.signature(fh.Parameters))
		if ret := l.signature(fh.Return); ret != "" {
			sig += ": " + ret
		}
		if len(fd.Acquires) > 0 {
			names := make([]string, 0, len(fd.Acquires))
			for _, a := range fd.Acquires {
				if int(a) < len(l.m.StructDefs) {
					names = append(names, l.dataType(l.m.StructDefs[a].Handle))
				}
			}
			sig += " acquires " + strings.Join(names, ", ")
		}
		if l.sm != nil {
			if fm := l.sm.Function(fileformat.FunctionDefinitionIndex(i)); fm != nil {
				sig += "  " + l.dim.Sprint(l.loc(fm.Location))
			}
		}
		l.printf("  %s\n", sig)
		if withCode && fd.Code != nil {
			if locals := l.signature(fd.Code.Locals); locals != "" {
				l.printf("    locals %s\n", locals)
			}
			for off, ins := range fd.Code.Code {
				l.printf("    %s %s\n", l.dim.Sprint(runewidth.FillLeft(fmt.Sprint(off), 4)), l.instruction(ins))
			}
		}
	}
}

// instruction names the operand an index points at.
func (l *lister) instruction(ins fileformat.Instruction) string {
	op := ins.Op.String()
	switch ins.Op {
	case fileformat.OpNop, fileformat.OpRet:
		return op
	case fileformat.OpBranch, fileformat.OpBrTrue, fileformat.OpBrFalse:
		return fmt.Sprintf("%s %d", op, ins.Index)
	case fileformat.OpCall:
		return op + " " + l.functionName(fileformat.FunctionHandleIndex(ins.Index))
	case fileformat.OpCallGeneric:
		if int(ins.Index) < len(l.m.FunctionInstantiations) {
			fi := l.m.FunctionInstantiations[ins.Index]
			return fmt.Sprintf("%s %s<%s>", op, l.functionName(fi.Handle), l.signature(fi.TypeParameters))
		}
	case fileformat.OpPack, fileformat.OpUnpack:
		if int(ins.Index) < len(l.m.StructDefs) {
			return op + " " + l.dataType(l.m.StructDefs[ins.Index].Handle)
		}
	case fileformat.OpPackGeneric, fileformat.OpUnpackGeneric:
		if int(ins.Index) < len(l.m.StructDefInstantiations) {
			si := l.m.StructDefInstantiations[ins.Index]
			if int(si.Def) < len(l.m.StructDefs) {
				return fmt.Sprintf("%s %s<%s>", op, l.dataType(l.m.StructDefs[si.Def].Handle), l.signature(si.TypeParameters))
			}
		}
	case fileformat.OpBorrowField:
		return op + " " + l.fieldName(fileformat.FieldHandleIndex(ins.Index))
	case fileformat.OpBorrowFieldGeneric:
		if int(ins.Index) < len(l.m.FieldInstantiations) {
			fi := l.m.FieldInstantiations[ins.Index]
			return fmt.Sprintf("%s %s<%s>", op, l.fieldName(fi.Handle), l.signature(fi.TypeParameters))
		}
	case fileformat.OpPackVariant:
		if int(ins.Index) < len(l.m.EnumDefs) {
			return fmt.Sprintf("%s %s", op, l.variantName(l.m.EnumDefs[ins.Index], ins.Tag))
		}
	case fileformat.OpPackVariantGeneric:
		if int(ins.Index) < len(l.m.EnumDefInstantiations) {
			ei := l.m.EnumDefInstantiations[ins.Index]
			if int(ei.Def) < len(l.m.EnumDefs) {
				return fmt.Sprintf("%s %s<%s>", op, l.variantName(l.m.EnumDefs[ei.Def], ins.Tag), l.signature(ei.TypeParameters))
			}
		}
	case fileformat.OpLdConst:
		if int(ins.Index) < len(l.m.ConstantPool) {
			return fmt.Sprintf("%s %s", op, l.constant(l.m.ConstantPool[ins.Index]))
		}
	}
	return ins.String()
}

func (l *lister) functionName(idx fileformat.FunctionHandleIndex) string {
	fh := l.m.FunctionHandleAt(idx)
	if fh == nil {
		return fmt.Sprintf("?function%d", idx)
	}
	if fh.Module == l.m.SelfModuleHandleIdx {
		return l.ident(fh.Name)
	}
	mh := l.m.ModuleHandleAt(fh.Module)
	if mh == nil {
		return "?." + l.ident(fh.Name)
	}
	return l.ident(mh.Name) + "." + l.ident(fh.Name)
}

func (l *lister) fieldName(idx fileformat.FieldHandleIndex) string {
	if int(idx) >= len(l.m.FieldHandles) {
		return fmt.Sprintf("?field%d", idx)
	}
	fh := l.m.FieldHandles[idx]
	if int(fh.Owner) >= len(l.m.StructDefs) {
		return fmt.Sprintf("?struct%d.%d", fh.Owner, fh.Field)
	}
	sd := l.m.StructDefs[fh.Owner]
	if int(fh.Field) >= len(sd.Fields) {
		return fmt.Sprintf("%s.?%d", l.dataType(sd.Handle), fh.Field)
	}
	return l.dataType(sd.Handle) + "." + l.ident(sd.Fields[fh.Field].Name)
}

func (l *lister) variantName(ed fileformat.EnumDefinition, tag fileformat.VariantTag) string {
	if int(tag) >= len(ed.Variants) {
		return fmt.Sprintf("%s::?%d", l.dataType(ed.Handle), tag)
	}
	return l.dataType(ed.Handle) + "::" + l.ident(ed.Variants[tag].Name)
}

// constant renders integers, booleans and addresses; other payloads as hex.
func (l *lister) constant(c fileformat.Constant) string {
	ty := l.token(c.Type)
	switch c.Type.Kind {
	case fileformat.TokenBool:
		if len(c.Data) == 1 {
			return fmt.Sprintf("%t: %s", c.Data[0] != 0, ty)
		}
	case fileformat.TokenU8, fileformat.TokenU16, fileformat.TokenU32, fileformat.TokenU64, fileformat.TokenU128, fileformat.TokenU256:
		return unit.DecodeInt(c.Data).String() + ": " + ty
	case fileformat.TokenAddress:
		if len(c.Data) == fileformat.AddressLength {
			var a fileformat.AccountAddress
			copy(a[:], c.Data)
			return a.ShortHex() + ": " + ty
		}
	}
	return fmt.Sprintf("0x%x: %s", c.Data, ty)
}

func (l *lister) constants() {
	if len(l.m.ConstantPool) == 0 {
		return
	}
	l.section("constants")
	names := make(map[int]string)
	if l.sm != nil {
		for _, c := range l.sm.Constants {
			names[int(c.Index)] = string(c.Name)
		}
	}
	for i, c := range l.m.ConstantPool {
		name := names[i]
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		l.printf("  %s %s\n", runewidth.FillRight(name, 16), l.constant(c))
	}
}
