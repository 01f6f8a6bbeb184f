package driver_test

import (
	"path/filepath"
	"testing"

	"irasm/internal/driver"
	"irasm/internal/project"
)

func TestDiskCache_PutGet(t *testing.T) {
	c, err := driver.OpenDiskCacheAt(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("OpenDiskCacheAt: %v", err)
	}
	key := digest('k')
	var miss driver.DiskPayload
	if ok, err := c.Get(key, &miss); ok || err != nil {
		t.Fatalf("empty cache: %v, %v", ok, err)
	}

	in := &driver.DiskPayload{Schema: 1, Path: "a.toml", Ident: "0x1::A", UnitHash: key, Module: []byte{1, 2}}
	if err := c.Put(key, in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	var out driver.DiskPayload
	ok, err := c.Get(key, &out)
	if err != nil || !ok {
		t.Fatalf("Get: %v, %v", ok, err)
	}
	if out.Path != "a.toml" || out.Ident != "0x1::A" || out.UnitHash != key || len(out.Module) != 2 {
		t.Fatalf("payload = %+v", out)
	}

	// чужая схема считается промахом
	in.Schema = 99
	if err := c.Put(key, in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := c.Get(key, &out); ok || err != nil {
		t.Fatalf("foreign schema: %v, %v", ok, err)
	}

	if err := c.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	if ok, _ := c.Get(key, &out); ok {
		t.Fatal("DropAll left entries behind")
	}
}

func TestDiskCache_Outputs(t *testing.T) {
	c, err := driver.OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDiskCacheAt: %v", err)
	}
	u := parseUnit(t, coinUnit)
	out, _, err := driver.AssembleUnit(u, storeWithD(t), driver.AssembleOptions{})
	if err != nil {
		t.Fatalf("AssembleUnit: %v", err)
	}
	key := project.Hash([]byte("coin"))
	if err := c.StoreOutput(key, digest('c'), out); err != nil {
		t.Fatalf("StoreOutput: %v", err)
	}

	got, ok, err := c.LoadOutput(key, u)
	if err != nil || !ok {
		t.Fatalf("LoadOutput: %v, %v", ok, err)
	}
	if !got.Cached || got.Unit != u || got.Ident != out.Ident {
		t.Fatalf("cached output = %+v", got)
	}
	if len(got.Module.FunctionDefs) != len(out.Module.FunctionDefs) || got.SourceMap.Len() != out.SourceMap.Len() {
		t.Fatal("cached module differs from the assembled one")
	}
	if got.SourceMap.File != u.Path {
		t.Fatalf("source map file = %q", got.SourceMap.File)
	}

	// another unit under the same key is not served
	other := parseUnit(t, `
[module]
address = "0x42"
name = "Other"
`)
	if _, ok, err := c.LoadOutput(key, other); ok || err != nil {
		t.Fatalf("ident mismatch served: %v, %v", ok, err)
	}
	if _, ok, _ := c.LoadOutput(project.Hash([]byte("nope")), u); ok {
		t.Fatal("unknown key served")
	}

	var nilCache *driver.DiskCache
	if err := nilCache.StoreOutput(key, key, out); err != nil {
		t.Fatalf("nil StoreOutput: %v", err)
	}
	if _, ok, _ := nilCache.LoadOutput(key, u); ok {
		t.Fatal("nil cache served an output")
	}
}
