// Package buildpipeline orchestrates a batch: it loads compiled dependencies,
// orders the units by their imports, assembles each one against everything
// built before it and writes the results.
package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"irasm/internal/deps"
	"irasm/internal/driver"
	"irasm/internal/fileformat"
	"irasm/internal/project"
	"irasm/internal/sourcemap"
	"irasm/internal/trace"
)

const (
	// ModuleExt is the extension of written modules.
	ModuleExt = ".mv"
	// SourceMapExt is the extension of written source maps.
	SourceMapExt = ".srcmap"
)

// BuildRequest configures one batch.
type BuildRequest struct {
	Units        []string // unit files
	Dependencies []string // compiled module files
	BaseDir      string   // progress names are relative to it
	OutDir       string   // empty: nothing is written
	Jobs         int
	Lenient      bool
	Progress     ProgressSink
	ModuleCache  *driver.ModuleCache
	DiskCache    *driver.DiskCache
}

// UnitResult is the outcome of one unit.
type UnitResult struct {
	Name    string
	Path    string
	Output  *driver.Output
	OutPath string
	MapPath string
	Err     error
	Elapsed time.Duration
}

// BuildResult captures the batch artefacts and stage timings.
type BuildResult struct {
	Units   []UnitResult // assembly order
	Loaded  []driver.LoadResult
	Store   *deps.Store // dependencies plus every assembled module
	Timings Timings
}

// Failed reports how many units did not assemble.
func (r BuildResult) Failed() int {
	n := 0
	for _, u := range r.Units {
		if u.Err != nil {
			n++
		}
	}
	return n
}

// Build runs a batch. Unit failures do not stop the batch; units importing
// a failed unit are skipped. The returned error joins every failure.
func Build(ctx context.Context, req *BuildRequest) (BuildResult, error) {
	var result BuildResult
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return result, fmt.Errorf("missing build request")
	}
	if len(req.Units) == 0 {
		return result, project.ErrNoUnits
	}

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "build", trace.CurrentSpan(ctx)).
		WithExtra("units", fmt.Sprint(len(req.Units)))
	defer span.End("")

	files := ProgressFiles(req.Units, req.BaseDir)
	emitQueued(req.Progress, files)

	// load
	loadStart := time.Now()
	emitStage(req.Progress, nil, StageLoad, StatusWorking, nil, 0)
	store, loaded, err := loadDependencies(ctx, req)
	result.Loaded = loaded
	result.Timings.Set(StageLoad, time.Since(loadStart))
	if err != nil {
		emitStage(req.Progress, files, StageLoad, StatusError, err, 0)
		return result, err
	}
	emitStage(req.Progress, nil, StageLoad, StatusDone, nil, result.Timings.Duration(StageLoad))
	trace.Point(tracer, trace.ScopeDriver, "dependencies", span.ID(), fmt.Sprintf("%d modules", store.Len()))

	// plan
	planStart := time.Now()
	plan, err := PlanUnits(req.Units, req.BaseDir, batchDigest(loaded, req.Lenient))
	result.Timings.Set(StagePlan, time.Since(planStart))
	if err != nil {
		emitStage(req.Progress, files, StagePlan, StatusError, err, 0)
		return result, err
	}
	if req.OutDir != "" {
		if err := checkOutputNames(plan); err != nil {
			emitStage(req.Progress, files, StagePlan, StatusError, err, 0)
			return result, err
		}
		if err := os.MkdirAll(req.OutDir, 0o750); err != nil {
			err = fmt.Errorf("failed to create output dir: %w", err)
			emitStage(req.Progress, files, StagePlan, StatusError, err, 0)
			return result, err
		}
	}

	// assemble + write, one unit at a time: each unit sees the store the
	// previous one handed back
	failed := make(map[string]string)
	var errs []error
	for _, pu := range plan.Units {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res := UnitResult{Name: pu.Name, Path: pu.Meta.Path}
		start := time.Now()

		if dep, ok := failedImport(pu, failed); ok {
			res.Err = fmt.Errorf("%s: skipped, imported unit %s failed", pu.Meta.Path, dep)
		} else {
			emitFile(req.Progress, pu.Name, StageAssemble, StatusWorking, nil, 0)
			var out *driver.Output
			out, store, res.Err = assembleOne(req, pu, store, tracer, span.ID())
			res.Output = out
			result.Timings.Add(StageAssemble, time.Since(start))
		}
		if res.Err != nil {
			failed[pu.Meta.Ident] = pu.Meta.Path
			res.Elapsed = time.Since(start)
			emitFile(req.Progress, pu.Name, StageAssemble, StatusError, res.Err, res.Elapsed)
			errs = append(errs, res.Err)
			result.Units = append(result.Units, res)
			continue
		}

		if !pu.Meta.Script {
			if err := store.AddOwned(res.Output.Module); err != nil {
				res.Err = fmt.Errorf("%s: %w", pu.Meta.Path, err)
			}
		}
		if res.Err == nil && req.OutDir != "" {
			writeStart := time.Now()
			emitFile(req.Progress, pu.Name, StageWrite, StatusWorking, nil, 0)
			res.OutPath, res.MapPath, res.Err = writeOutput(req.OutDir, res.Output)
			result.Timings.Add(StageWrite, time.Since(writeStart))
		}
		res.Elapsed = time.Since(start)
		if res.Err != nil {
			failed[pu.Meta.Ident] = pu.Meta.Path
			emitFile(req.Progress, pu.Name, StageWrite, StatusError, res.Err, res.Elapsed)
			errs = append(errs, res.Err)
		} else {
			emitFile(req.Progress, pu.Name, StageWrite, StatusDone, nil, res.Elapsed)
		}
		result.Units = append(result.Units, res)
	}

	result.Store = store
	return result, errors.Join(errs...)
}

func loadDependencies(ctx context.Context, req *BuildRequest) (*deps.Store, []driver.LoadResult, error) {
	loaded, err := driver.LoadModules(ctx, req.Dependencies, req.Jobs, req.ModuleCache)
	if err != nil {
		return nil, loaded, err
	}
	store := deps.NewStore()
	var errs []error
	for _, r := range loaded {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		// loaded stays alive in the result, so the store can view it in place
		if err := store.AddBorrowed(r.Module); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, err))
		}
	}
	return store, loaded, errors.Join(errs...)
}

// batchDigest folds the dependency files and the flags that change output
// into one digest, so a cached unit is only reused against the same inputs.
func batchDigest(loaded []driver.LoadResult, lenient bool) project.Digest {
	flags := "strict"
	if lenient {
		flags = "lenient"
	}
	digests := make([]project.Digest, 0, len(loaded))
	for _, r := range loaded {
		digests = append(digests, r.Digest)
	}
	return project.Combine(project.Hash([]byte(flags)), digests...)
}

func failedImport(pu PlannedUnit, failed map[string]string) (string, bool) {
	for _, imp := range pu.Meta.Imports {
		if path, ok := failed[imp.Ident]; ok {
			return path, true
		}
	}
	return "", false
}

func assembleOne(req *BuildRequest, pu PlannedUnit, store *deps.Store, tracer trace.Tracer, parent uint64) (*driver.Output, *deps.Store, error) {
	if req.DiskCache != nil {
		out, ok, err := req.DiskCache.LoadOutput(pu.Meta.UnitHash, pu.Unit)
		if err == nil && ok {
			return out, store, nil
		}
	}
	out, store, err := driver.AssembleUnit(pu.Unit, store, driver.AssembleOptions{
		Tracer:  tracer,
		Parent:  parent,
		Lenient: req.Lenient,
	})
	if err != nil {
		return nil, store, err
	}
	if req.DiskCache != nil {
		// кэш лишь ускоряет, его сбой не ломает сборку
		_ = req.DiskCache.StoreOutput(pu.Meta.UnitHash, pu.Meta.ContentHash, out)
	}
	return out, store, nil
}

func outputBase(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func checkOutputNames(plan *Plan) error {
	seen := make(map[string]string, len(plan.Units))
	for _, pu := range plan.Units {
		name := outputBase(pu.Meta.Path)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("units %s and %s would both write %s%s", prev, pu.Meta.Path, name, ModuleExt)
		}
		seen[name] = pu.Meta.Path
	}
	return nil
}

func writeOutput(dir string, out *driver.Output) (string, string, error) {
	base := filepath.Join(dir, outputBase(out.Unit.Path))
	modPath, mapPath := base+ModuleExt, base+SourceMapExt

	mod, err := fileformat.Marshal(out.Module)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", out.Unit.Path, err)
	}
	if err := os.WriteFile(modPath, mod, 0o600); err != nil {
		return "", "", fmt.Errorf("failed to write module %q: %w", modPath, err)
	}
	sm, err := sourcemap.Marshal(out.SourceMap)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", out.Unit.Path, err)
	}
	if err := os.WriteFile(mapPath, sm, 0o600); err != nil {
		return "", "", fmt.Errorf("failed to write source map %q: %w", mapPath, err)
	}
	return modPath, mapPath, nil
}
