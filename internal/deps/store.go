package deps

import (
	"bytes"
	"slices"

	"irasm/internal/asmerr"
	"irasm/internal/fileformat"
	"irasm/internal/ir"
)

// Store holds the dependencies of a compilation keyed by module identity.
// It is not safe for concurrent mutation; it moves between compilations by
// ownership transfer.
type Store struct {
	byID  map[ir.ModuleIdent]*Dependency
	order []ir.ModuleIdent
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[ir.ModuleIdent]*Dependency)}
}

// Add registers d under its module identity. A second dependency for the same
// identity fails with DuplicateDependency.
func (s *Store) Add(d *Dependency) error {
	id := d.View().ID()
	if _, exists := s.byID[id]; exists {
		return asmerr.Newf(asmerr.KindDuplicateDependency, id.String(), "module supplied twice")
	}
	s.byID[id] = d
	s.order = append(s.order, id)
	return nil
}

// AddBorrowed views m in place and registers it.
func (s *Store) AddBorrowed(m *fileformat.CompiledModule) error {
	d, err := Borrowed(m)
	if err != nil {
		return err
	}
	return s.Add(d)
}

// AddOwned copies m into the store and registers it.
func (s *Store) AddOwned(m *fileformat.CompiledModule) error {
	d, err := Owned(m)
	if err != nil {
		return err
	}
	return s.Add(d)
}

// View returns the view of the module with the given identity.
func (s *Store) View(id ir.ModuleIdent) (*View, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, asmerr.Newf(asmerr.KindDependencyMissing, id.String(), "dependency not provided")
	}
	return d.View(), nil
}

// Get returns the dependency registered for id.
func (s *Store) Get(id ir.ModuleIdent) (*Dependency, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// Has reports whether id was supplied.
func (s *Store) Has(id ir.ModuleIdent) bool {
	_, ok := s.byID[id]
	return ok
}

// Len reports the number of dependencies.
func (s *Store) Len() int { return len(s.byID) }

// IsEmpty reports whether the store holds no dependencies.
func (s *Store) IsEmpty() bool { return len(s.byID) == 0 }

// Order returns identities in registration order.
func (s *Store) Order() []ir.ModuleIdent { return slices.Clone(s.order) }

// IDs returns identities sorted by address then name.
func (s *Store) IDs() []ir.ModuleIdent {
	ids := slices.Clone(s.order)
	slices.SortFunc(ids, func(a, b ir.ModuleIdent) int {
		if c := bytes.Compare(a.Address[:], b.Address[:]); c != 0 {
			return c
		}
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return ids
}
