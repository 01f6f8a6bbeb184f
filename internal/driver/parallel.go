package driver

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"irasm/internal/fileformat"
	"irasm/internal/project"
)

// LoadResult is one dependency file read by LoadModules.
type LoadResult struct {
	Path   string
	Digest project.Digest
	Module *fileformat.CompiledModule
	Cached bool  // served from the module cache
	Err    error // read or decode failure of this file
}

// LoadModules reads and decodes compiled dependency modules in parallel.
// Per-file failures are reported in the results; the returned error is only
// set when ctx is cancelled. Results keep the order of paths.
func LoadModules(ctx context.Context, paths []string, jobs int, cache *ModuleCache) ([]LoadResult, error) {
	results := make([]LoadResult, len(paths))
	if len(paths) == 0 {
		return results, nil
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))

	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			// индекс i уникален для горутины, мьютекс не нужен
			results[i] = loadModule(path, cache)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func loadModule(path string, cache *ModuleCache) LoadResult {
	res := LoadResult{Path: path}
	// #nosec G304 -- dependency paths come from the manifest or the command line
	data, err := os.ReadFile(path)
	if err != nil {
		res.Err = fmt.Errorf("failed to read dependency: %w", err)
		return res
	}
	res.Digest = project.Hash(data)
	if m, ok := cache.Get(path, res.Digest); ok {
		res.Module, res.Cached = m, true
		return res
	}
	m, err := fileformat.Unmarshal(data)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", path, err)
		return res
	}
	cache.Put(path, res.Digest, m)
	res.Module = m
	return res
}
