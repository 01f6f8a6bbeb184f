package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSetLoadNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unit.toml")
	content := []byte("\xEF\xBB\xBF[module]\r\nname = \"M\"\r\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	fs := NewFileSet()
	id, err := fs.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	f := fs.Get(id)
	if f == nil {
		t.Fatalf("file not registered")
	}
	if f.Flags&FileHadBOM == 0 || f.Flags&FileNormalizedCRLF == 0 {
		t.Fatalf("expected BOM and CRLF flags, got %b", f.Flags)
	}
	if string(f.Content) != "[module]\nname = \"M\"\n" {
		t.Fatalf("unexpected content %q", f.Content)
	}
	if got, ok := fs.GetByPath(path); !ok || got.ID != id {
		t.Fatalf("GetByPath did not find the file")
	}
	if fs.Get(FileID(42)) != nil {
		t.Fatalf("unknown id must return nil")
	}
}

func TestFileSetResolveAndFind(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("mem.toml", []byte("a = 1\nname = \"Coin\"\n"))
	f := fs.Get(id)

	sp, ok := f.Find(`"Coin"`, 0)
	if !ok {
		t.Fatalf("needle not found")
	}
	start, end := fs.Resolve(sp)
	if start.Line != 2 || start.Col != 8 {
		t.Fatalf("start = %+v", start)
	}
	if end.Line != 2 || end.Col != 14 {
		t.Fatalf("end = %+v", end)
	}
	if _, ok := f.Find(`"Coin"`, sp.End); ok {
		t.Fatalf("second occurrence should not exist")
	}
	if got := fs.Format(sp); got != "mem.toml:2:8" {
		t.Fatalf("Format = %q", got)
	}
	if !f.Whole().Contains(sp) {
		t.Fatalf("whole-file span must contain every span")
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 4, End: 8}
	b := Span{File: 1, Start: 2, End: 6}
	if got := a.Cover(b); got.Start != 2 || got.End != 8 {
		t.Fatalf("Cover = %v", got)
	}
	other := Span{File: 2, Start: 0, End: 100}
	if got := a.Cover(other); got != a {
		t.Fatalf("cover across files must be a no-op")
	}
}
