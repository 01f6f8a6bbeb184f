package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"irasm/internal/buildpipeline"
	"irasm/internal/driver"
	"irasm/internal/project"
)

const noManifestMessage = "no irasm.toml found\nplease list the units explicitly, e.g.:\n  irasm assemble --dep deps/Coin.mv units/wallet.toml"

var assembleCmd = &cobra.Command{
	Use:   "assemble [flags] [unit.toml...]",
	Short: "Assemble units into compiled modules",
	Long: `Assemble units into compiled modules and source maps.

Without arguments the batch is read from irasm.toml in the current directory
or one of its parents. Units are assembled in import order; a unit may use
every module assembled before it as well as the --dep files.`,
	RunE: assembleExecution,
}

func init() {
	assembleCmd.Flags().StringP("out", "o", "", "output directory (default: [batch].out_dir or ./build)")
	assembleCmd.Flags().StringSlice("dep", nil, "compiled dependency module (repeatable)")
	assembleCmd.Flags().Bool("lenient", false, "keep the first declaration of a function redeclared with another signature")
	assembleCmd.Flags().Int("jobs", 0, "max parallel dependency loads (0=auto)")
	assembleCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	assembleCmd.Flags().Bool("disk-cache", false, "reuse assembled units from the persistent disk cache")
	assembleCmd.Flags().Bool("dry-run", false, "assemble without writing outputs")
}

// batchInputs is what the command line or the manifest resolved to.
type batchInputs struct {
	title   string
	baseDir string
	units   []string
	deps    []string
	outDir  string
	lenient bool
}

func resolveBatch(cmd *cobra.Command, args []string) (batchInputs, error) {
	outFlag, err := cmd.Flags().GetString("out")
	if err != nil {
		return batchInputs{}, err
	}
	depFlags, err := cmd.Flags().GetStringSlice("dep")
	if err != nil {
		return batchInputs{}, err
	}
	lenient, err := cmd.Flags().GetBool("lenient")
	if err != nil {
		return batchInputs{}, err
	}

	if len(args) > 0 {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		base := cwd
		if root, ok, rootErr := project.FindProjectRoot(cwd); rootErr == nil && ok {
			base = root
		}
		in := batchInputs{title: "irasm assemble", baseDir: base, units: args, deps: depFlags, outDir: outFlag, lenient: lenient}
		if in.outDir == "" {
			in.outDir = filepath.Join(cwd, project.DefaultOutDir)
		}
		return in, nil
	}

	manifest, found, err := project.LoadManifest(".")
	if err != nil {
		return batchInputs{}, err
	}
	if !found {
		return batchInputs{}, errors.New(noManifestMessage)
	}
	units, err := manifest.UnitPaths()
	if err != nil {
		return batchInputs{}, err
	}
	deps, err := manifest.DependencyPaths()
	if err != nil {
		return batchInputs{}, err
	}
	outDir := outFlag
	if outDir == "" {
		if outDir, err = manifest.OutDir(); err != nil {
			return batchInputs{}, err
		}
	}
	return batchInputs{
		title:   "irasm assemble " + manifest.Config.Batch.Name,
		baseDir: manifest.Root,
		units:   units,
		deps:    append(deps, depFlags...),
		outDir:  outDir,
		lenient: lenient || manifest.Config.Batch.Lenient,
	}, nil
}

func assembleExecution(cmd *cobra.Command, args []string) error {
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	useDiskCache, err := cmd.Flags().GetBool("disk-cache")
	if err != nil {
		return err
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	in, err := resolveBatch(cmd, args)
	if err != nil {
		return err
	}

	req := buildpipeline.BuildRequest{
		Units:        in.units,
		Dependencies: in.deps,
		BaseDir:      in.baseDir,
		OutDir:       in.outDir,
		Jobs:         jobs,
		Lenient:      in.lenient,
		ModuleCache:  driver.NewModuleCache(len(in.deps)),
	}
	if dryRun {
		req.OutDir = ""
	}
	if useDiskCache {
		dc, err := driver.OpenDiskCache("irasm")
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "disk cache disabled: %v\n", err)
		} else {
			req.DiskCache = dc
		}
	}

	files := buildpipeline.ProgressFiles(in.units, in.baseDir)
	var res buildpipeline.BuildResult
	if shouldUseTUI(mode, quiet) && len(files) > 0 {
		res, err = runBuildWithUI(cmd.Context(), in.title, files, &req)
	} else {
		res, err = buildpipeline.Build(cmd.Context(), &req)
	}

	out := cmd.OutOrStdout()
	if !quiet {
		if perr := printUnitResults(out, in.baseDir, res); perr != nil {
			return perr
		}
	}
	if showTimings {
		if perr := printStageTimings(out, res.Timings); perr != nil {
			return perr
		}
	}
	if err != nil {
		printBatchErrors(cmd.ErrOrStderr(), err)
		dumpTraceRing(cmd, cmd.ErrOrStderr())
		cmd.SilenceErrors = true
		return fmt.Errorf("assemble failed: %d of %d units", res.Failed(), len(in.units))
	}
	return nil
}

func printUnitResults(out io.Writer, root string, res buildpipeline.BuildResult) error {
	ok := color.New(color.FgGreen)
	cached := color.New(color.FgCyan)
	failed := color.New(color.FgRed, color.Bold)
	for _, u := range res.Units {
		var err error
		switch {
		case u.Err != nil:
			_, err = fmt.Fprintf(out, "%s %s\n", failed.Sprint("failed"), u.Name)
		case u.OutPath == "":
			_, err = fmt.Fprintf(out, "%s %s\n", ok.Sprint("checked"), u.Name)
		default:
			verb := ok.Sprint("assembled")
			if u.Output != nil && u.Output.Cached {
				verb = cached.Sprint("cached")
			}
			_, err = fmt.Fprintf(out, "%s %s -> %s\n", verb, u.Name, formatPathForOutput(root, u.OutPath))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// printBatchErrors lists every joined failure on its own line.
func printBatchErrors(w io.Writer, err error) {
	red := color.New(color.FgRed)
	var joined interface{ Unwrap() []error }
	errs := []error{err}
	if errors.As(err, &joined) {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		fmt.Fprintf(w, "%s %v\n", red.Sprint("error:"), e)
	}
}

func formatPathForOutput(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	if strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
