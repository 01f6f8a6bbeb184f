package fileformat

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte width of an account address.
const AddressLength = 32

// AccountAddress identifies the account a module is published under.
type AccountAddress [AddressLength]byte

// ParseAddress accepts "0x"-prefixed or bare hex, padding short forms on the left,
// so "0x1" is the address with a single trailing one byte.
func ParseAddress(s string) (AccountAddress, error) {
	var addr AccountAddress
	digits := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if digits == "" {
		return addr, fmt.Errorf("empty address %q", s)
	}
	if len(digits) > AddressLength*2 {
		return addr, fmt.Errorf("address %q is longer than %d bytes", s, AddressLength)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(addr[AddressLength-len(raw):], raw)
	return addr, nil
}

// MustParseAddress is ParseAddress for literals known to be valid.
func MustParseAddress(s string) AccountAddress {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// ShortHex renders the address without leading zero bytes: 0x1, 0xcafe.
func (a AccountAddress) ShortHex() string {
	s := strings.TrimLeft(hex.EncodeToString(a[:]), "0")
	if s == "" {
		s = "0"
	}
	return "0x" + s
}

// String renders the full-width hex form.
func (a AccountAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}
