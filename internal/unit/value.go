package unit

import (
	"fmt"
	"math/big"
	"strings"

	"fortio.org/safecast"
	"golang.org/x/text/unicode/norm"

	"irasm/internal/fileformat"
)

// EncodeValue serializes a TOML constant value as type t: integers little
// endian at their width, bool as one byte, addresses at full width, vectors
// as a ULEB128 length followed by the elements. A string is accepted for
// vector<u8> (its UTF-8 bytes as written), for address, and for integers
// too wide for TOML.
func EncodeValue(t TypeExpr, v any) ([]byte, error) {
	return encodeValue(t, v, false)
}

// EncodeConstant encodes c's value as its declared type. With c.NFC set, a
// string given for vector<u8> is NFC-normalized first.
func EncodeConstant(c Constant) (TypeExpr, []byte, error) {
	t, err := ParseType(c.Type)
	if err != nil {
		return TypeExpr{}, nil, err
	}
	if c.NFC {
		if _, ok := c.Value.(string); !ok || t.Kind != TypeVector || t.Inner.Kind != TypePrimitive || t.Inner.Prim != fileformat.TokenU8 {
			return TypeExpr{}, nil, fmt.Errorf("nfc applies only to a string given for vector<u8>")
		}
	}
	data, err := encodeValue(t, c.Value, c.NFC)
	return t, data, err
}

func encodeValue(t TypeExpr, v any, nfc bool) ([]byte, error) {
	switch t.Kind {
	case TypePrimitive:
		return encodePrimitive(t.Prim, v)
	case TypeVector:
		if s, ok := v.(string); ok && t.Inner.Kind == TypePrimitive && t.Inner.Prim == fileformat.TokenU8 {
			if nfc {
				s = norm.NFC.String(s)
			}
			out := appendULEB128(nil, uint64(len(s)))
			return append(out, s...), nil
		}
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected an array, got %T", t, v)
		}
		out := appendULEB128(nil, uint64(len(items)))
		for i, item := range items {
			b, err := encodeValue(*t.Inner, item, false)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, b...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: constants must be primitives or vectors", t)
	}
}

var intWidths = map[fileformat.TokenKind]int{
	fileformat.TokenU8:   1,
	fileformat.TokenU16:  2,
	fileformat.TokenU32:  4,
	fileformat.TokenU64:  8,
	fileformat.TokenU128: 16,
	fileformat.TokenU256: 32,
}

func encodePrimitive(k fileformat.TokenKind, v any) ([]byte, error) {
	name := fileformat.Primitive(k).Key()
	switch k {
	case fileformat.TokenBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%s: expected a boolean, got %T", name, v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case fileformat.TokenAddress:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected a string, got %T", name, v)
		}
		addr, err := fileformat.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		return addr[:], nil

	case fileformat.TokenSigner:
		return nil, fmt.Errorf("signer constants are not allowed")
	}

	width, ok := intWidths[k]
	if !ok {
		return nil, fmt.Errorf("token kind %d is not a primitive", k)
	}
	n, err := toBigInt(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if n.Sign() < 0 || n.BitLen() > width*8 {
		return nil, fmt.Errorf("%s: %s out of range", name, n)
	}
	be := n.FillBytes(make([]byte, width))
	// big.Int пишет big-endian
	for i, j := 0, len(be)-1; i < j; i, j = i+1, j-1 {
		be[i], be[j] = be[j], be[i]
	}
	return be, nil
}

func toBigInt(v any) (*big.Int, error) {
	switch x := v.(type) {
	case int64:
		return big.NewInt(x), nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), "_", "")
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("expected an integer, got %T", v)
	}
}

func appendULEB128(out []byte, n uint64) []byte {
	for {
		b, _ := safecast.Conv[byte](n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// DecodeInt reads back a little-endian integer constant.
func DecodeInt(data []byte) *big.Int {
	be := make([]byte, len(data))
	for i, b := range data {
		be[len(data)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}
