package driver_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"irasm/internal/driver"
	"irasm/internal/fileformat"
	"irasm/internal/testkit"
)

func writeModule(t *testing.T, dir, name string, m *fileformat.CompiledModule) string {
	t.Helper()
	data, err := fileformat.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadModules(t *testing.T) {
	dir := t.TempDir()
	e := testkit.NewModule("0x2", "E")
	e.Struct("R", fileformat.Abilities(fileformat.AbilityStore))

	paths := []string{
		writeModule(t, dir, "D.mv", depD()),
		writeModule(t, dir, "E.mv", e.Build()),
		filepath.Join(dir, "missing.mv"),
	}
	bad := filepath.Join(dir, "bad.mv")
	if err := os.WriteFile(bad, []byte("not a module"), 0o600); err != nil {
		t.Fatal(err)
	}
	paths = append(paths, bad)

	cache := driver.NewModuleCache(4)
	results, err := driver.LoadModules(context.Background(), paths, 2, cache)
	if err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if len(results) != len(paths) {
		t.Fatalf("got %d results", len(results))
	}
	for i, want := range []string{"D", "E"} {
		r := results[i]
		if r.Err != nil || r.Module == nil || r.Cached {
			t.Fatalf("%s: %+v", r.Path, r)
		}
		if _, name, _ := r.Module.SelfID(); string(name) != want {
			t.Fatalf("result %d is %s, want %s", i, name, want)
		}
	}
	if results[2].Err == nil || results[3].Err == nil {
		t.Fatalf("broken files loaded: %v / %v", results[2].Err, results[3].Err)
	}
	if cache.Len() != 2 {
		t.Fatalf("cache holds %d modules", cache.Len())
	}

	again, err := driver.LoadModules(context.Background(), paths[:2], 0, cache)
	if err != nil {
		t.Fatalf("LoadModules: %v", err)
	}
	if !again[0].Cached || !again[1].Cached || again[0].Digest != results[0].Digest {
		t.Fatalf("second load missed the cache")
	}
}

func TestLoadModules_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	path := writeModule(t, dir, "D.mv", depD())
	if _, err := driver.LoadModules(ctx, []string{path}, 1, nil); err == nil {
		t.Fatal("expected context error")
	}
}
