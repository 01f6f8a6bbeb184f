package pool

import (
	"errors"
	"fmt"
	"testing"

	"irasm/internal/asmerr"
	"irasm/internal/fileformat"
)

func TestGetOrAddIsIdempotent(t *testing.T) {
	p := New[string](WithName("identifiers"))
	first, err := p.GetOrAdd("Coin")
	if err != nil {
		t.Fatalf("GetOrAdd: %v", err)
	}
	for range 10 {
		idx, err := p.GetOrAdd("Coin")
		if err != nil {
			t.Fatalf("GetOrAdd: %v", err)
		}
		if idx != first {
			t.Fatalf("index changed: %d != %d", idx, first)
		}
	}
	if p.Len() != 1 {
		t.Fatalf("pool grew to %d", p.Len())
	}
}

func TestIndicesAreSequential(t *testing.T) {
	p := New[string]()
	for i, s := range []string{"a", "b", "a", "c", "b", "d"} {
		idx, err := p.GetOrAdd(s)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got, _ := p.At(idx); got != s {
			t.Fatalf("At(%d) = %q want %q", idx, got, s)
		}
	}
	want := []string{"a", "b", "c", "d"}
	got := p.Materialize()
	if len(got) != len(want) {
		t.Fatalf("materialized %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("materialized[%d] = %q want %q", i, got[i], want[i])
		}
	}
}

func TestKeyedPoolDeduplicatesStructurally(t *testing.T) {
	p := NewKeyed(fileformat.Signature.Key)
	a := fileformat.Signature{fileformat.Vector(fileformat.Reference(fileformat.DataType(1)))}
	b := fileformat.Signature{fileformat.Vector(fileformat.Reference(fileformat.DataType(1)))}
	c := fileformat.Signature{fileformat.Vector(fileformat.MutableReference(fileformat.DataType(1)))}

	ia, _ := p.GetOrAdd(a)
	ib, _ := p.GetOrAdd(b)
	ic, _ := p.GetOrAdd(c)
	if ia != ib {
		t.Fatalf("structurally equal signatures got %d and %d", ia, ib)
	}
	if ic == ia {
		t.Fatalf("distinct signatures share index %d", ic)
	}
	if idx, ok := p.Index(b); !ok || idx != ia {
		t.Fatalf("Index lookup failed")
	}
	if p.Len() != 2 {
		t.Fatalf("Len = %d", p.Len())
	}
}

func TestOverflowAtCeiling(t *testing.T) {
	p := New[uint32](WithName("constants"))
	for i := range uint32(fileformat.TableMaxSize) {
		if _, err := p.GetOrAdd(i); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if p.Len() != fileformat.TableMaxSize {
		t.Fatalf("Len = %d", p.Len())
	}
	last, err := p.GetOrAdd(uint32(fileformat.TableMaxSize - 1))
	if err != nil || last != fileformat.TableIndex(fileformat.TableMaxSize-1) {
		t.Fatalf("existing item must still resolve: %d, %v", last, err)
	}

	_, err = p.GetOrAdd(uint32(fileformat.TableMaxSize))
	if !errors.Is(err, asmerr.ErrTableOverflow) {
		t.Fatalf("expected TableOverflow, got %v", err)
	}
	if p.Len() != fileformat.TableMaxSize {
		t.Fatalf("pool changed after overflow: %d", p.Len())
	}
}

func TestWithLimit(t *testing.T) {
	p := New[int](WithLimit(3))
	for i := range 3 {
		if _, err := p.GetOrAdd(i); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if _, err := p.GetOrAdd(3); asmerr.KindOf(err) != asmerr.KindTableOverflow {
		t.Fatalf("expected overflow at custom limit, got %v", err)
	}
}

func TestDensePanicsOnGap(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for duplicated slot")
		}
	}()
	Dense("test", 2, []Entry[string]{{Item: "a", Index: 0}, {Item: "b", Index: 0}})
}

func TestDenseOrdersByIndex(t *testing.T) {
	out := Dense("test", 3, []Entry[string]{
		{Item: "c", Index: 2},
		{Item: "a", Index: 0},
		{Item: "b", Index: 1},
	})
	if fmt.Sprint(out) != "[a b c]" {
		t.Fatalf("Dense = %v", out)
	}
}

func TestItemsIsACopy(t *testing.T) {
	p := New[string]()
	_, _ = p.GetOrAdd("x")
	items := p.Items()
	items[0] = "y"
	if got, _ := p.At(0); got != "x" {
		t.Fatalf("Items exposed internal storage")
	}
}
