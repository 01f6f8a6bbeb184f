package driver_test

import (
	"testing"

	"irasm/internal/driver"
	"irasm/internal/project"
)

func TestModuleCache_HitMiss(t *testing.T) {
	c := driver.NewModuleCache(16)
	var d1, d2 project.Digest
	d1[0] = 1
	d2[0] = 2

	c.Put("deps/D.mv", d1, depD())

	if _, ok := c.Get("deps/D.mv", d2); ok {
		t.Fatal("expected miss on different content hash")
	}
	if _, ok := c.Get("deps/E.mv", d1); ok {
		t.Fatal("expected miss on unknown path")
	}
	m, ok := c.Get("deps/D.mv", d1)
	if !ok {
		t.Fatal("expected hit")
	}
	if _, name, err := m.SelfID(); err != nil || name != "D" {
		t.Fatalf("wrong module returned: %q, %v", name, err)
	}

	// hits are copies
	m.Identifiers[0] = "Mutated"
	again, _ := c.Get("deps/D.mv", d1)
	if _, name, _ := again.SelfID(); name != "D" {
		t.Fatalf("cache shares memory with callers: %q", name)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}
}

func TestModuleCache_Nil(t *testing.T) {
	var c *driver.ModuleCache
	c.Put("x", project.Digest{}, depD())
	if _, ok := c.Get("x", project.Digest{}); ok || c.Len() != 0 {
		t.Fatal("nil cache must stay empty")
	}
}
