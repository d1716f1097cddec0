package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/cpplab/internal/codes"
	"github.com/Norgate-AV/cpplab/internal/compiler"
	"github.com/Norgate-AV/cpplab/internal/config"
	"github.com/Norgate-AV/cpplab/internal/diagnostics"
	"github.com/Norgate-AV/cpplab/internal/history"
	"github.com/Norgate-AV/cpplab/internal/logging"
	"github.com/Norgate-AV/cpplab/internal/orchestrator"
	"github.com/Norgate-AV/cpplab/internal/profiling"
	"github.com/Norgate-AV/cpplab/internal/project"
	"github.com/Norgate-AV/cpplab/internal/toolchain"
)

// Replaced in tests
var (
	newExecutor = func() compiler.Executor { return compiler.NewRunner() }
	newLauncher = func() orchestrator.Launcher { return compiler.NewRunner() }
)

// app holds everything a command needs
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *toolchain.Registry
	history  *history.Store
	orch     *orchestrator.Orchestrator
}

func newApp(cmd *cobra.Command, args []string) (*app, error) {
	cfg, err := config.NewLoader().LoadForBuild(cmd, args)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{
		cfg:      cfg,
		log:      logging.New(cmd.ErrOrStderr(), cfg.Verbose),
		registry: toolchain.NewRegistry(cfg.CompilersDir),
	}

	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		// history is optional; builds still work without it
		a.log.Warn().Err(err).Msg("Build history disabled")
	} else {
		a.history = store
	}

	a.orch = orchestrator.New(orchestrator.Options{
		Registry: a.registry,
		Jobs:     cfg.Jobs,
		Executor: newExecutor(),
		Launcher: newLauncher(),
		Profiler: profiling.New(cfg.ProfileLog, cfg.Profile),
		History:  a.history,
		Logger:   a.log,
	})

	a.log.Debug().
		Str("compilers", cfg.CompilersDir).
		Int("jobs", cfg.Jobs).
		Str("toolchain", cfg.Toolchain).
		Msg("Configuration loaded")

	return a, nil
}

func (a *app) Close() {
	if a.history != nil {
		a.history.Close()
	}
}

// loadSpec resolves the command's target: a project directory, a project file, or a single
// source file. No argument means the current directory.
func (a *app) loadSpec(args []string, std string) (*project.BuildSpec, error) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", target, err)
	}

	var spec *project.BuildSpec
	switch {
	case info.IsDir():
		spec, err = project.Load(target)
	case strings.HasPrefix(filepath.Base(target), project.FileBaseName+"."):
		spec, err = project.Load(filepath.Dir(target))
	default:
		spec, err = project.ForSingleFile(target, std, "")
	}

	if err != nil {
		return nil, err
	}

	if std != "" {
		spec.Standard = std
	}

	if a.cfg.Toolchain != "" && a.cfg.Toolchain != config.DefaultToolchain {
		spec.ToolchainPreference = a.cfg.Toolchain
	}

	return spec, nil
}

var (
	okColor   = color.New(color.FgHiGreen, color.Bold)
	skipColor = color.New(color.FgHiCyan)
	failColor = color.New(color.FgHiRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

// printResult writes diagnostics to errOut and a one line summary to out
func printResult(out, errOut io.Writer, res *orchestrator.BuildResult) {
	if len(res.Diagnostics) > 0 {
		diagnostics.Render(errOut, res.Diagnostics)
	} else if res.Stderr != "" {
		fmt.Fprint(errOut, res.Stderr)
	}

	tc := dimColor.Sprintf("[%s]", res.Toolchain)

	switch {
	case res.Skipped:
		fmt.Fprintf(out, "%s %s is up to date %s\n", skipColor.Sprint("-"), res.Project, tc)
	case res.Success && res.CheckOnly:
		fmt.Fprintf(out, "%s %s checked in %d ms (%s) %s\n", okColor.Sprint("✓"), res.Project, res.ElapsedMillis(), diagnostics.Summary(res.Diagnostics), tc)
	case res.Success:
		fmt.Fprintf(out, "%s %s built in %d ms %s\n", okColor.Sprint("✓"), res.Project, res.ElapsedMillis(), tc)
	default:
		fmt.Fprintf(out, "%s %s: %s (%s) %s\n", failColor.Sprint("✗"), res.Project, codes.Describe(res.Failure), diagnostics.Summary(res.Diagnostics), tc)
	}
}

// buildError turns a failed result into the command's error
func buildError(res *orchestrator.BuildResult) error {
	if res.Success {
		return nil
	}

	return fmt.Errorf("build failed: %s", strings.ToLower(codes.Describe(res.Failure)))
}
