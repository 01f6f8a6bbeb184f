// Package asmerr defines the recoverable error taxonomy of the assembler.
//
// Every fallible pool, dependency and context operation returns an *Error so a
// front-end can attach a source location and report a diagnostic. Callers
// match on kinds with errors.Is against the sentinel values below.
package asmerr

import (
	"errors"
	"fmt"
)

// Kind enumerates assembler error categories.
type Kind uint8

const (
	// KindTableOverflow: a pool would exceed its maximum size.
	KindTableOverflow Kind = iota + 1
	// KindUnboundAlias: a module alias (or identity) has no import.
	KindUnboundAlias
	// KindUnboundMember: a field or variant lookup failed.
	KindUnboundMember
	// KindUnboundDefinition: a type, function or constant lookup failed.
	KindUnboundDefinition
	// KindDependencyMissing: the module was not supplied to the compilation.
	KindDependencyMissing
	// KindDependencyMalformed: a foreign index resolves to nothing.
	KindDependencyMalformed
	// KindDuplicateDependency: two dependencies share one module identity.
	KindDuplicateDependency
	// KindInvalidIdentifier: a string is not a valid identifier.
	KindInvalidIdentifier
	// KindMismatchedRedeclaration: a function was redeclared with another signature.
	KindMismatchedRedeclaration
)

func (k Kind) String() string {
	switch k {
	case KindTableOverflow:
		return "table overflow"
	case KindUnboundAlias:
		return "unbound alias"
	case KindUnboundMember:
		return "unbound member"
	case KindUnboundDefinition:
		return "unbound definition"
	case KindDependencyMissing:
		return "dependency missing"
	case KindDependencyMalformed:
		return "dependency malformed"
	case KindDuplicateDependency:
		return "duplicate dependency"
	case KindInvalidIdentifier:
		return "invalid identifier"
	case KindMismatchedRedeclaration:
		return "mismatched redeclaration"
	default:
		return fmt.Sprintf("asmerr kind=%d", uint8(k))
	}
}

// Sentinels for errors.Is.
var (
	ErrTableOverflow           = &Error{Kind: KindTableOverflow}
	ErrUnboundAlias            = &Error{Kind: KindUnboundAlias}
	ErrUnboundMember           = &Error{Kind: KindUnboundMember}
	ErrUnboundDefinition       = &Error{Kind: KindUnboundDefinition}
	ErrDependencyMissing       = &Error{Kind: KindDependencyMissing}
	ErrDependencyMalformed     = &Error{Kind: KindDependencyMalformed}
	ErrDuplicateDependency     = &Error{Kind: KindDuplicateDependency}
	ErrInvalidIdentifier       = &Error{Kind: KindInvalidIdentifier}
	ErrMismatchedRedeclaration = &Error{Kind: KindMismatchedRedeclaration}
)

// Error is an assembler error of a specific kind.
type Error struct {
	Kind    Kind
	Subject string // symbol, alias or module the error is about
	Detail  string
	Err     error
}

// New builds an error of the given kind about subject.
func New(kind Kind, subject string) *Error {
	return &Error{Kind: kind, Subject: subject}
}

// Newf builds an error with a formatted detail message.
func Newf(kind Kind, subject, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String()
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so sentinels compare by kind only.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return 0
}
