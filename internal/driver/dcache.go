package driver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"irasm/internal/fileformat"
	"irasm/internal/project"
	"irasm/internal/sourcemap"
	"irasm/internal/unit"
)

// Current schema version - increment when DiskPayload format changes
const diskCacheSchemaVersion uint16 = 1

// DiskCache хранит собранные юниты по UnitHash на диске.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// DiskPayload is one assembled unit as stored on disk.
type DiskPayload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Path  string
	Ident string

	ContentHash project.Digest // unit file only
	UnitHash    project.Digest // unit file plus everything it was assembled against

	// Encoded with the fileformat and sourcemap codecs so their own schema
	// checks apply on the way back.
	Module    []byte
	SourceMap []byte
}

// OpenDiskCache initializes and returns a disk cache at the standard location.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDiskCacheAt(filepath.Join(base, app))
}

// OpenDiskCacheAt opens a disk cache rooted at dir.
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir is the cache root.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) pathFor(key project.Digest) string {
	hexKey := hex.EncodeToString(key[:])
	return filepath.Join(c.dir, "units", hexKey+".mp")
}

// Put serializes and writes a payload to the disk cache.
func (c *DiskCache) Put(key project.Digest, payload *DiskPayload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		// после Rename временного файла уже нет
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get reads and deserializes a payload from the disk cache. A payload of
// another schema is reported as a miss.
func (c *DiskCache) Get(key project.Digest, out *DiskPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	if out.Schema != diskCacheSchemaVersion {
		return false, nil
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

// outputToDiskPayload encodes an assembled unit for caching.
func outputToDiskPayload(out *Output, content, unitHash project.Digest) (*DiskPayload, error) {
	mod, err := fileformat.Marshal(out.Module)
	if err != nil {
		return nil, err
	}
	sm, err := sourcemap.Marshal(out.SourceMap)
	if err != nil {
		return nil, err
	}
	return &DiskPayload{
		Schema:      diskCacheSchemaVersion,
		Path:        out.Unit.Path,
		Ident:       out.Ident.String(),
		ContentHash: content,
		UnitHash:    unitHash,
		Module:      mod,
		SourceMap:   sm,
	}, nil
}

// diskPayloadToOutput decodes a cached unit; out.Unit is left for the caller.
func diskPayloadToOutput(p *DiskPayload) (*Output, error) {
	if p == nil || p.Schema != diskCacheSchemaVersion {
		return nil, fmt.Errorf("disk cache: unsupported payload")
	}
	m, err := fileformat.Unmarshal(p.Module)
	if err != nil {
		return nil, fmt.Errorf("disk cache: %w", err)
	}
	sm, err := sourcemap.Unmarshal(p.SourceMap)
	if err != nil {
		return nil, fmt.Errorf("disk cache: %w", err)
	}
	return &Output{Module: m, SourceMap: sm, Cached: true}, nil
}

// LoadOutput returns the unit assembled under key, if cached.
func (c *DiskCache) LoadOutput(key project.Digest, u *unit.Unit) (*Output, bool, error) {
	var p DiskPayload
	ok, err := c.Get(key, &p)
	if err != nil || !ok {
		return nil, false, err
	}
	out, err := diskPayloadToOutput(&p)
	if err != nil {
		return nil, false, err
	}
	id, err := u.Ident()
	if err != nil {
		return nil, false, err
	}
	if id.String() != p.Ident {
		return nil, false, nil
	}
	out.Unit, out.Ident = u, id
	out.SourceMap.File = u.Path
	return out, true, nil
}

// StoreOutput caches an assembled unit under key.
func (c *DiskCache) StoreOutput(key, content project.Digest, out *Output) error {
	if c == nil {
		return nil
	}
	p, err := outputToDiskPayload(out, content, key)
	if err != nil {
		return err
	}
	return c.Put(key, p)
}
