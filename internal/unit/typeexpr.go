package unit

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"irasm/internal/fileformat"
	"irasm/internal/ir"
)

// TypeExprKind discriminates TypeExpr.
type TypeExprKind uint8

const (
	TypePrimitive TypeExprKind = iota
	TypeVector
	TypeRef
	TypeMutRef
	TypeParam
	TypeNamed
)

// TypeExpr is a parsed type expression:
//
//	u64 | vector<T> | &T | &mut T | #0 | Name | Alias.Name | Alias.Name<T, ...>
//
// A bare Name is either a type parameter of the enclosing declaration or a
// type of the unit itself; the lowering decides.
type TypeExpr struct {
	Kind   TypeExprKind
	Prim   fileformat.TokenKind
	Inner  *TypeExpr
	Param  fileformat.TypeParameterIndex
	Module ir.ModuleName // empty for a bare name
	Name   ir.DataTypeName
	Args   []TypeExpr
}

// Qualified reports whether the named type carries an explicit module alias.
func (t TypeExpr) Qualified() bool { return t.Module != "" }

func (t TypeExpr) String() string {
	var sb strings.Builder
	t.writeTo(&sb)
	return sb.String()
}

func (t TypeExpr) writeTo(sb *strings.Builder) {
	switch t.Kind {
	case TypePrimitive:
		sb.WriteString(fileformat.Primitive(t.Prim).Key())
	case TypeVector:
		sb.WriteString("vector<")
		t.Inner.writeTo(sb)
		sb.WriteByte('>')
	case TypeRef:
		sb.WriteByte('&')
		t.Inner.writeTo(sb)
	case TypeMutRef:
		sb.WriteString("&mut ")
		t.Inner.writeTo(sb)
	case TypeParam:
		sb.WriteByte('#')
		sb.WriteString(strconv.Itoa(int(t.Param)))
	case TypeNamed:
		if t.Module != "" {
			sb.WriteString(string(t.Module))
			sb.WriteByte('.')
		}
		sb.WriteString(string(t.Name))
		if len(t.Args) > 0 {
			sb.WriteByte('<')
			for i, a := range t.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				a.writeTo(sb)
			}
			sb.WriteByte('>')
		}
	}
}

// ParseType parses a whole type expression.
func ParseType(s string) (TypeExpr, error) {
	p := &typeParser{src: s}
	t, err := p.parseType()
	if err != nil {
		return TypeExpr{}, err
	}
	if p.skipSpace(); !p.eof() {
		return TypeExpr{}, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

// ParseTypeList parses each element of list.
func ParseTypeList(list []string) ([]TypeExpr, error) {
	out := make([]TypeExpr, 0, len(list))
	for _, s := range list {
		t, err := ParseType(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) eof() bool { return p.pos >= len(p.src) }

func (p *typeParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *typeParser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *typeParser) errorf(format string, args ...any) error {
	return fmt.Errorf("type %q at %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		if p.eof() {
			return p.errorf("expected %q, got end of input", c)
		}
		return p.errorf("expected %q, got %q", c, p.peek())
	}
	p.pos++
	return nil
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

func (p *typeParser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() && isIdentByte(p.src[p.pos], p.pos == start) {
		p.pos++
	}
	if start == p.pos {
		if p.eof() {
			return "", p.errorf("expected identifier, got end of input")
		}
		return "", p.errorf("expected identifier, got %q", p.peek())
	}
	return p.src[start:p.pos], nil
}

func (p *typeParser) parseType() (TypeExpr, error) {
	p.skipSpace()
	switch c := p.peek(); {
	case c == '&':
		p.pos++
		kind := TypeRef
		save := p.pos
		if word, err := p.ident(); err == nil && word == "mut" {
			kind = TypeMutRef
		} else {
			p.pos = save
		}
		inner, err := p.parseType()
		if err != nil {
			return TypeExpr{}, err
		}
		return TypeExpr{Kind: kind, Inner: &inner}, nil

	case c == '#':
		p.pos++
		start := p.pos
		for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
			p.pos++
		}
		n, err := strconv.Atoi(p.src[start:p.pos])
		if err != nil {
			return TypeExpr{}, p.errorf("bad type parameter index")
		}
		idx, err := safecast.Conv[fileformat.TypeParameterIndex](n)
		if err != nil {
			return TypeExpr{}, p.errorf("type parameter index %d: %v", n, err)
		}
		return TypeExpr{Kind: TypeParam, Param: idx}, nil
	}

	first, err := p.ident()
	if err != nil {
		return TypeExpr{}, err
	}
	if first == "vector" {
		if err := p.expect('<'); err != nil {
			return TypeExpr{}, err
		}
		inner, err := p.parseType()
		if err != nil {
			return TypeExpr{}, err
		}
		if err := p.expect('>'); err != nil {
			return TypeExpr{}, err
		}
		return TypeExpr{Kind: TypeVector, Inner: &inner}, nil
	}
	if k, ok := fileformat.PrimitiveByName(first); ok {
		return TypeExpr{Kind: TypePrimitive, Prim: k}, nil
	}

	t := TypeExpr{Kind: TypeNamed, Name: ir.DataTypeName(first)}
	if p.skipSpace(); p.peek() == '.' {
		p.pos++
		name, err := p.ident()
		if err != nil {
			return TypeExpr{}, err
		}
		t.Module, t.Name = ir.ModuleName(first), ir.DataTypeName(name)
	}
	if p.skipSpace(); p.peek() == '<' {
		args, err := p.parseArgs()
		if err != nil {
			return TypeExpr{}, err
		}
		t.Args = args
	}
	return t, nil
}

// parseArgs reads "<T, U, ...>"; the opening bracket is the current byte.
func (p *typeParser) parseArgs() ([]TypeExpr, error) {
	p.pos++
	var args []TypeExpr
	for {
		arg, err := p.parseType()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '>':
			p.pos++
			return args, nil
		default:
			if p.eof() {
				return nil, p.errorf("unterminated type arguments")
			}
			return nil, p.errorf("expected ',' or '>', got %q", p.peek())
		}
	}
}
