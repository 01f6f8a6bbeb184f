package fileformat

import (
	"strconv"
	"strings"
)

// TokenKind discriminates SignatureToken variants.
type TokenKind uint8

const (
	TokenBool TokenKind = iota + 1
	TokenU8
	TokenU16
	TokenU32
	TokenU64
	TokenU128
	TokenU256
	TokenAddress
	TokenSigner
	TokenVector
	TokenReference
	TokenMutableReference
	TokenTypeParameter
	TokenDataType
	TokenDataTypeInstantiation
)

var primitiveNames = map[TokenKind]string{
	TokenBool:    "bool",
	TokenU8:      "u8",
	TokenU16:     "u16",
	TokenU32:     "u32",
	TokenU64:     "u64",
	TokenU128:    "u128",
	TokenU256:    "u256",
	TokenAddress: "address",
	TokenSigner:  "signer",
}

// PrimitiveByName maps "u64" and friends to their token kind.
func PrimitiveByName(name string) (TokenKind, bool) {
	for k, n := range primitiveNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// IsPrimitive reports whether k carries no payload.
func (k TokenKind) IsPrimitive() bool {
	_, ok := primitiveNames[k]
	return ok
}

// SignatureToken encodes a type expression. Which payload fields are meaningful
// depends on Kind:
//
//	Vector, Reference, MutableReference  Inner
//	TypeParameter                        TypeParam
//	DataType                             Handle
//	DataTypeInstantiation                Handle, Args
type SignatureToken struct {
	Kind      TokenKind           `msgpack:"k"`
	Inner     *SignatureToken     `msgpack:"i,omitempty"`
	TypeParam TypeParameterIndex  `msgpack:"p,omitempty"`
	Handle    DataTypeHandleIndex `msgpack:"h,omitempty"`
	Args      []SignatureToken    `msgpack:"a,omitempty"`
}

func Primitive(k TokenKind) SignatureToken { return SignatureToken{Kind: k} }

func Vector(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenVector, Inner: &inner}
}

func Reference(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenReference, Inner: &inner}
}

func MutableReference(inner SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenMutableReference, Inner: &inner}
}

func TypeParameter(idx TypeParameterIndex) SignatureToken {
	return SignatureToken{Kind: TokenTypeParameter, TypeParam: idx}
}

func DataType(h DataTypeHandleIndex) SignatureToken {
	return SignatureToken{Kind: TokenDataType, Handle: h}
}

func DataTypeInstantiation(h DataTypeHandleIndex, args []SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenDataTypeInstantiation, Handle: h, Args: args}
}

// Clone returns a deep copy.
func (t SignatureToken) Clone() SignatureToken {
	out := SignatureToken{Kind: t.Kind, TypeParam: t.TypeParam, Handle: t.Handle}
	if t.Inner != nil {
		inner := t.Inner.Clone()
		out.Inner = &inner
	}
	if t.Args != nil {
		out.Args = make([]SignatureToken, len(t.Args))
		for i := range t.Args {
			out.Args[i] = t.Args[i].Clone()
		}
	}
	return out
}

// Equal compares structurally.
func (t SignatureToken) Equal(other SignatureToken) bool {
	return t.Key() == other.Key()
}

// Key is a canonical structural encoding; equal tokens have equal keys.
func (t SignatureToken) Key() string {
	var sb strings.Builder
	t.writeTo(&sb)
	return sb.String()
}

func (t SignatureToken) String() string { return t.Key() }

func (t SignatureToken) writeTo(sb *strings.Builder) {
	if name, ok := primitiveNames[t.Kind]; ok {
		sb.WriteString(name)
		return
	}
	switch t.Kind {
	case TokenVector:
		sb.WriteString("vector<")
		t.inner().writeTo(sb)
		sb.WriteByte('>')
	case TokenReference:
		sb.WriteByte('&')
		t.inner().writeTo(sb)
	case TokenMutableReference:
		sb.WriteString("&mut ")
		t.inner().writeTo(sb)
	case TokenTypeParameter:
		sb.WriteByte('#')
		sb.WriteString(strconv.Itoa(int(t.TypeParam)))
	case TokenDataType:
		sb.WriteString("dt@")
		sb.WriteString(strconv.Itoa(int(t.Handle)))
	case TokenDataTypeInstantiation:
		sb.WriteString("dt@")
		sb.WriteString(strconv.Itoa(int(t.Handle)))
		sb.WriteByte('<')
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			a.writeTo(sb)
		}
		sb.WriteByte('>')
	default:
		sb.WriteString("?")
		sb.WriteString(strconv.Itoa(int(t.Kind)))
	}
}

func (t SignatureToken) inner() SignatureToken {
	if t.Inner == nil {
		return SignatureToken{}
	}
	return *t.Inner
}

// Walk visits t and every nested token in pre-order.
func (t SignatureToken) Walk(visit func(SignatureToken)) {
	visit(t)
	if t.Inner != nil {
		t.Inner.Walk(visit)
	}
	for _, a := range t.Args {
		a.Walk(visit)
	}
}

// Signature is an ordered token list: parameters, returns, locals or type arguments.
type Signature []SignatureToken

// Key is the canonical encoding used to intern signatures.
func (s Signature) Key() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, t := range s {
		if i > 0 {
			sb.WriteString(", ")
		}
		t.writeTo(&sb)
	}
	sb.WriteByte(')')
	return sb.String()
}

func (s Signature) String() string { return s.Key() }

// Clone returns a deep copy.
func (s Signature) Clone() Signature {
	if s == nil {
		return nil
	}
	out := make(Signature, len(s))
	for i := range s {
		out[i] = s[i].Clone()
	}
	return out
}
