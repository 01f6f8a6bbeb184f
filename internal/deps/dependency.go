package deps

import (
	"irasm/internal/fileformat"
)

// Kind tells how a Dependency holds its module.
type Kind uint8

const (
	// KindBorrowed views a module whose storage the caller keeps alive.
	KindBorrowed Kind = iota + 1
	// KindOwned views a private copy held by the dependency itself.
	KindOwned
)

func (k Kind) String() string {
	switch k {
	case KindBorrowed:
		return "borrowed"
	case KindOwned:
		return "owned"
	default:
		return "unknown"
	}
}

// Dependency is one compiled module supplied to a compilation.
//
// An owned dependency copies its module before building the view, keeps the
// copy unexported and only ever hands out the view, so neither the caller nor
// the compilation can move or mutate the module under the view.
type Dependency struct {
	kind  Kind
	view  *View
	owned *fileformat.CompiledModule // set only for KindOwned
}

// Borrowed builds a view over m. The caller must keep m alive and unmodified
// for as long as the dependency is in use.
func Borrowed(m *fileformat.CompiledModule) (*Dependency, error) {
	view, err := NewView(m)
	if err != nil {
		return nil, err
	}
	return &Dependency{kind: KindBorrowed, view: view}, nil
}

// Owned takes a private deep copy of m and builds the view against the copy.
func Owned(m *fileformat.CompiledModule) (*Dependency, error) {
	if m == nil {
		return Borrowed(nil) // reports the malformed dependency
	}
	stored := m.Clone()
	view, err := NewView(stored)
	if err != nil {
		return nil, err
	}
	return &Dependency{kind: KindOwned, view: view, owned: stored}, nil
}

// View returns the dependency's view.
func (d *Dependency) View() *View { return d.view }

// Kind reports how the module is held.
func (d *Dependency) Kind() Kind { return d.kind }
