package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const sampleManifest = `
[batch]
name = "coins"

[[dependency]]
path = "deps/framework.mv"

[[unit]]
path = "units/coin.toml"
`

func TestLoadManifestWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestName), sampleManifest)
	writeFile(t, filepath.Join(root, "units", "coin.toml"), "[module]\n")
	nested := filepath.Join(root, "units", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	m, ok, err := LoadManifest(nested)
	if err != nil || !ok {
		t.Fatalf("LoadManifest = %v, %v", ok, err)
	}
	if m.Config.Batch.Name != "coins" || m.Config.Batch.OutDir != DefaultOutDir {
		t.Fatalf("batch = %+v", m.Config.Batch)
	}
	units, err := m.UnitPaths()
	if err != nil || len(units) != 1 || units[0] != filepath.Join(root, "units", "coin.toml") {
		t.Fatalf("UnitPaths = %v, %v", units, err)
	}
	deps, err := m.DependencyPaths()
	if err != nil || deps[0] != filepath.Join(root, "deps", "framework.mv") {
		t.Fatalf("DependencyPaths = %v, %v", deps, err)
	}
	out, _ := m.OutDir()
	if out != filepath.Join(root, "build") {
		t.Fatalf("OutDir = %s", out)
	}
	if r, ok, _ := FindProjectRoot(nested); !ok || r != root {
		t.Fatalf("FindProjectRoot = %s, %v", r, ok)
	}
}

func TestLoadManifestAbsent(t *testing.T) {
	m, ok, err := LoadManifest(t.TempDir())
	if err != nil || ok || m != nil {
		t.Fatalf("LoadManifest on empty tree = %v, %v, %v", m, ok, err)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
		is      error
	}{
		{"no batch", "[[unit]]\npath = \"a.toml\"\n", "", ErrBatchSectionMissing},
		{"no name", "[batch]\nout_dir = \"x\"\n[[unit]]\npath = \"a\"\n", "missing [batch].name", nil},
		{"no units", "[batch]\nname = \"b\"\n", "", ErrNoUnits},
		{"empty unit path", "[batch]\nname = \"b\"\n[[unit]]\npath = \" \"\n", "[[unit]] #1 missing path", nil},
		{"empty dep path", "[batch]\nname = \"b\"\n[[unit]]\npath = \"a\"\n[[dependency]]\n", "[[dependency]] #1 missing path", nil},
		{"bad toml", "[batch\n", "failed to parse TOML", nil},
	}
	for _, tc := range cases {
		path := filepath.Join(t.TempDir(), ManifestName)
		writeFile(t, path, tc.content)
		_, err := LoadConfig(path)
		if err == nil {
			t.Fatalf("%s: accepted", tc.name)
		}
		if tc.is != nil && !errors.Is(err, tc.is) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.is)
		}
		if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want %q", tc.name, err, tc.want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()
	if _, err := ResolvePath(root, "../outside"); err == nil {
		t.Fatalf("escaping path accepted")
	}
	if _, err := ResolvePath(root, "/abs"); err == nil {
		t.Fatalf("absolute path accepted")
	}
	if p, err := ResolvePath(root, "a/./b"); err != nil || p != filepath.Join(root, "a", "b") {
		t.Fatalf("ResolvePath = %s, %v", p, err)
	}

	m := &Manifest{Path: filepath.Join(root, ManifestName), Root: root, Config: Config{Units: []UnitSpec{{Path: "missing.toml"}}}}
	if _, err := m.UnitPaths(); err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("UnitPaths on missing file = %v", err)
	}
}

func TestCombineDependsOnOrder(t *testing.T) {
	a, b, c := Hash([]byte("a")), Hash([]byte("b")), Hash([]byte("c"))
	if Combine(a, b, c) == Combine(a, c, b) {
		t.Fatalf("Combine ignores dependency order")
	}
	if Combine(a, b) != Combine(a, b) {
		t.Fatalf("Combine is not deterministic")
	}
}
