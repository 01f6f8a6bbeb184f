package fileformat

import "fmt"

// Identifier is an interned name: module, type, function, field or variant.
type Identifier string

// SelfModuleName is the reserved alias of the module being compiled.
const SelfModuleName = "Self"

// ValidIdentifier reports whether s is [A-Za-z_][A-Za-z0-9_]* and not a lone "_".
// The reserved "<SELF>" form used by scripts is also accepted.
func ValidIdentifier(s string) bool {
	if s == "<SELF>" {
		return true
	}
	if s == "" || s == "_" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// NewIdentifier validates s.
func NewIdentifier(s string) (Identifier, error) {
	if !ValidIdentifier(s) {
		return "", fmt.Errorf("invalid identifier %q", s)
	}
	return Identifier(s), nil
}
