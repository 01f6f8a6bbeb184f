package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultOutDir is used when [batch].out_dir is omitted.
const DefaultOutDir = "build"

var (
	// ErrBatchSectionMissing indicates that [batch] is missing in irasm.toml.
	ErrBatchSectionMissing = errors.New("missing [batch]")
	// ErrNoUnits indicates that irasm.toml lists no [[unit]].
	ErrNoUnits = errors.New("no [[unit]] entries")
)

// Manifest is a located and decoded irasm.toml.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

type Config struct {
	Batch        BatchConfig      `toml:"batch"`
	Dependencies []DependencySpec `toml:"dependency"`
	Units        []UnitSpec       `toml:"unit"`
}

type BatchConfig struct {
	Name   string `toml:"name"`
	OutDir string `toml:"out_dir"`
	// Lenient keeps the first handle index of a function redeclared with a
	// different signature instead of failing.
	Lenient bool `toml:"lenient"`
}

// DependencySpec points at an already compiled module file.
type DependencySpec struct {
	Path string `toml:"path"`
}

// UnitSpec points at a unit description.
type UnitSpec struct {
	Path string `toml:"path"`
}

// LoadManifest finds irasm.toml starting at startDir and decodes it.
func LoadManifest(startDir string) (*Manifest, bool, error) {
	manifestPath, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := LoadConfig(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return &Manifest{
		Path:   manifestPath,
		Root:   filepath.Dir(manifestPath),
		Config: cfg,
	}, true, nil
}

// LoadConfig decodes and validates the manifest at path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("batch") {
		return Config{}, fmt.Errorf("%s: %w", path, ErrBatchSectionMissing)
	}
	if !meta.IsDefined("batch", "name") || strings.TrimSpace(cfg.Batch.Name) == "" {
		return Config{}, fmt.Errorf("%s: missing [batch].name", path)
	}
	if !meta.IsDefined("batch", "out_dir") || strings.TrimSpace(cfg.Batch.OutDir) == "" {
		cfg.Batch.OutDir = DefaultOutDir
	}
	if len(cfg.Units) == 0 {
		return Config{}, fmt.Errorf("%s: %w", path, ErrNoUnits)
	}
	for i, d := range cfg.Dependencies {
		if strings.TrimSpace(d.Path) == "" {
			return Config{}, fmt.Errorf("%s: [[dependency]] #%d missing path", path, i+1)
		}
	}
	for i, u := range cfg.Units {
		if strings.TrimSpace(u.Path) == "" {
			return Config{}, fmt.Errorf("%s: [[unit]] #%d missing path", path, i+1)
		}
	}
	return cfg, nil
}

// Resolve turns a manifest-relative path into an absolute one that must stay
// inside the project root.
func (m *Manifest) Resolve(rel string) (string, error) {
	return ResolvePath(m.Root, rel)
}

// OutDir is the resolved output directory.
func (m *Manifest) OutDir() (string, error) {
	return m.Resolve(m.Config.Batch.OutDir)
}

// DependencyPaths resolves every [[dependency]] path.
func (m *Manifest) DependencyPaths() ([]string, error) {
	out := make([]string, 0, len(m.Config.Dependencies))
	for _, d := range m.Config.Dependencies {
		p, err := m.Resolve(d.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: dependency: %w", m.Path, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// UnitPaths resolves every [[unit]] path and checks the files exist.
func (m *Manifest) UnitPaths() ([]string, error) {
	out := make([]string, 0, len(m.Config.Units))
	for _, u := range m.Config.Units {
		p, err := m.Resolve(u.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: unit: %w", m.Path, err)
		}
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%s: unit path does not exist: %s", m.Path, p)
			}
			return nil, fmt.Errorf("%s: failed to stat unit: %w", m.Path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s: unit %s is a directory", m.Path, u.Path)
		}
		out = append(out, p)
	}
	return out, nil
}

// ResolvePath validates a relative path against root.
func ResolvePath(root, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("invalid path %q: must be relative", rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	full := filepath.Join(root, clean)
	if !pathWithin(root, full) {
		return "", fmt.Errorf("invalid path %q: escapes project root", rel)
	}
	return full, nil
}

func pathWithin(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return !strings.HasPrefix(rel, "..") && rel != ".."
}
