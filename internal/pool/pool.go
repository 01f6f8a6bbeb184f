// Package pool implements the bounded interning pools backing every section of
// an emitted module.
//
// A Pool assigns dense, insertion-ordered indices to structurally distinct
// values. It grows monotonically and never removes entries, so the position of
// a value in Items() is the index it was assigned.
package pool

import (
	"fmt"

	"fortio.org/safecast"

	"irasm/internal/asmerr"
	"irasm/internal/fileformat"
)

// Pool interns values of type T under keys of type K.
type Pool[K comparable, T any] struct {
	name  string
	items []T
	index map[K]fileformat.TableIndex
	key   func(T) K
	limit int
}

// Option configures a pool.
type Option func(*options)

type options struct {
	name  string
	limit int
}

// WithName sets the name used in overflow errors.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLimit lowers the ceiling below fileformat.TableMaxSize.
func WithLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 && limit < fileformat.TableMaxSize {
			o.limit = limit
		}
	}
}

// New creates a pool keyed by the values themselves.
func New[T comparable](opts ...Option) *Pool[T, T] {
	return NewKeyed(func(v T) T { return v }, opts...)
}

// NewKeyed creates a pool whose structural identity is key(value).
// Use it for values that are not comparable (signatures, handles with slices).
func NewKeyed[K comparable, T any](key func(T) K, opts ...Option) *Pool[K, T] {
	o := options{name: "pool", limit: fileformat.TableMaxSize}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pool[K, T]{
		name:  o.name,
		index: make(map[K]fileformat.TableIndex),
		key:   key,
		limit: o.limit,
	}
}

// GetOrAdd returns the index of an equal item, or appends item at the next index.
// A full pool rejects new items with a TableOverflow error and stays unchanged.
func (p *Pool[K, T]) GetOrAdd(item T) (fileformat.TableIndex, error) {
	k := p.key(item)
	if idx, ok := p.index[k]; ok {
		return idx, nil
	}
	if len(p.items) >= p.limit {
		return 0, asmerr.Newf(asmerr.KindTableOverflow, p.name, "max table size %d reached", p.limit)
	}
	idx, err := safecast.Conv[fileformat.TableIndex](len(p.items))
	if err != nil {
		return 0, asmerr.Wrap(asmerr.KindTableOverflow, p.name, err)
	}
	p.items = append(p.items, item)
	p.index[k] = idx
	return idx, nil
}

// Index looks up an item without inserting it.
func (p *Pool[K, T]) Index(item T) (fileformat.TableIndex, bool) {
	idx, ok := p.index[p.key(item)]
	return idx, ok
}

// Contains reports whether an equal item was interned.
func (p *Pool[K, T]) Contains(item T) bool {
	_, ok := p.index[p.key(item)]
	return ok
}

// At returns the item stored at idx.
func (p *Pool[K, T]) At(idx fileformat.TableIndex) (T, bool) {
	if int(idx) >= len(p.items) {
		var zero T
		return zero, false
	}
	return p.items[idx], true
}

// Len reports the number of distinct interned items.
func (p *Pool[K, T]) Len() int { return len(p.items) }

// Name returns the pool name used in errors.
func (p *Pool[K, T]) Name() string { return p.name }

// Items returns a copy of the pool contents in index order.
func (p *Pool[K, T]) Items() []T {
	out := make([]T, len(p.items))
	copy(out, p.items)
	return out
}

// Materialize produces the ordered vector for emission after checking that
// the index map is dense and agrees with insertion order. A violation is an
// assembler defect, not an input error, and panics.
func (p *Pool[K, T]) Materialize() []T {
	if len(p.index) != len(p.items) {
		panic(fmt.Errorf("pool %s: %d keys for %d items", p.name, len(p.index), len(p.items)))
	}
	entries := make([]Entry[T], 0, len(p.items))
	for k, idx := range p.index {
		if int(idx) >= len(p.items) {
			panic(fmt.Errorf("pool %s: index %d out of range %d", p.name, idx, len(p.items)))
		}
		item := p.items[idx]
		if p.key(item) != k {
			panic(fmt.Errorf("pool %s: index %d holds a different item", p.name, idx))
		}
		entries = append(entries, Entry[T]{Item: item, Index: idx})
	}
	return Dense(p.name, len(p.items), entries)
}

// Entry pairs an item with its assigned index.
type Entry[T any] struct {
	Item  T
	Index fileformat.TableIndex
}

// Dense places every entry at its index in a vector of the given size. Every
// slot in [0, size) must be filled exactly once; anything else panics.
func Dense[T any](name string, size int, entries []Entry[T]) []T {
	if len(entries) != size {
		panic(fmt.Errorf("pool %s: %d entries for size %d", name, len(entries), size))
	}
	out := make([]T, size)
	filled := make([]bool, size)
	for _, e := range entries {
		i := int(e.Index)
		if i >= size {
			panic(fmt.Errorf("pool %s: index %d out of range %d", name, i, size))
		}
		if filled[i] {
			panic(fmt.Errorf("pool %s: index %d assigned twice", name, i))
		}
		filled[i] = true
		out[i] = e.Item
	}
	return out
}
