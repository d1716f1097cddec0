// Package orchestrator runs a complete build of a project: toolchain selection, the incremental
// rebuild decision, compilation, diagnostics, profiling and history.
//
// An Orchestrator allows one build per project root at a time, and a lock file in the project's
// build directory keeps other processes out while a build runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Norgate-AV/cpplab/internal/buildcache"
	"github.com/Norgate-AV/cpplab/internal/codes"
	"github.com/Norgate-AV/cpplab/internal/compiler"
	"github.com/Norgate-AV/cpplab/internal/diagnostics"
	"github.com/Norgate-AV/cpplab/internal/fscache"
	"github.com/Norgate-AV/cpplab/internal/history"
	"github.com/Norgate-AV/cpplab/internal/profiling"
	"github.com/Norgate-AV/cpplab/internal/project"
	"github.com/Norgate-AV/cpplab/internal/scheduler"
	"github.com/Norgate-AV/cpplab/internal/toolchain"
	"github.com/Norgate-AV/cpplab/internal/utils"
)

// ErrBuildInProgress is returned when the project already has a build running
var ErrBuildInProgress = errors.New("build already in progress")

const (
	// DefaultTerminateTimeout bounds the wait for a terminated build to stop
	DefaultTerminateTimeout = 5 * time.Second

	// LockFileName is the cross-process lock inside the build directory
	LockFileName = ".cpplab.lock"

	lockRetryDelay = 50 * time.Millisecond
)

// Launcher runs a program attached to the caller's terminal
type Launcher interface {
	Interactive(ctx context.Context, cmd *compiler.ShellCommand, stdin io.Reader, stdout, stderr io.Writer) (int, error)
}

// Options configures an Orchestrator. Only Registry is required.
type Options struct {
	Registry *toolchain.Registry

	// Jobs caps parallel compiles; zero selects the scheduler default
	Jobs int

	// Executor runs compiler invocations, defaulting to subprocesses
	Executor compiler.Executor

	// Launcher runs built programs, defaulting to subprocesses
	Launcher Launcher

	// Existence is shared across builds; a default one is created when nil
	Existence *fscache.Cache

	Profiler *profiling.Profiler
	History  *history.Store
	Logger   zerolog.Logger

	TerminateTimeout time.Duration
}

// BuildOptions controls a single build
type BuildOptions struct {
	// Force rebuilds even when nothing changed
	Force bool

	// CheckOnly runs a syntax check; the cache is neither consulted nor updated
	CheckOnly bool

	// Terminate cancels a build already running for the project instead of failing
	Terminate bool
}

// Orchestrator runs builds
type Orchestrator struct {
	registry         *toolchain.Registry
	exec             compiler.Executor
	launcher         Launcher
	sched            *scheduler.Scheduler
	existence        *fscache.Cache
	profiler         *profiling.Profiler
	history          *history.Store
	log              zerolog.Logger
	terminateTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]*inflight
}

// New creates an orchestrator
func New(opts Options) *Orchestrator {
	runner := compiler.NewRunner()

	o := &Orchestrator{
		registry:         opts.Registry,
		exec:             opts.Executor,
		launcher:         opts.Launcher,
		existence:        opts.Existence,
		profiler:         opts.Profiler,
		history:          opts.History,
		log:              opts.Logger,
		terminateTimeout: opts.TerminateTimeout,
		inflight:         make(map[string]*inflight),
	}

	if o.exec == nil {
		o.exec = runner
	}

	if o.launcher == nil {
		o.launcher = runner
	}

	if o.existence == nil {
		o.existence = fscache.NewDefault()
	}

	if o.terminateTimeout <= 0 {
		o.terminateTimeout = DefaultTerminateTimeout
	}

	o.sched = scheduler.New(o.exec, opts.Jobs, o.log)

	return o
}

// Registry returns the toolchain registry builds select from
func (o *Orchestrator) Registry() *toolchain.Registry {
	return o.registry
}

// ArtifactPath is where a spec's executable is linked
func ArtifactPath(spec *project.BuildSpec) string {
	return filepath.Join(spec.BuildDir(), utils.ExecutableName(spec.Name))
}

func cleanRoot(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}

	return filepath.Clean(root)
}

// Build builds spec. Toolchain, spec and concurrency problems are returned as errors before any
// compiler runs; compile, link and launch failures are reported in the result.
func (o *Orchestrator) Build(ctx context.Context, spec *project.BuildSpec, opts BuildOptions) (*BuildResult, error) {
	spec = spec.Clone()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	tc, err := toolchain.Select(spec, o.registry)
	if err != nil {
		return nil, err
	}

	slot, buildCtx, release, err := o.acquire(ctx, spec.Root, opts.Terminate)
	if err != nil {
		return nil, err
	}
	defer release()

	unlock, err := o.lockProject(buildCtx, spec, slot, opts.Terminate)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res := &BuildResult{
		ID:        uuid.NewString(),
		Project:   spec.Name,
		Toolchain: tc.Name,
		CheckOnly: opts.CheckOnly,
	}

	log := o.log.With().Str("project", spec.Name).Str("build", res.ID).Logger()
	log.Debug().Str("toolchain", tc.Name).Str("root", spec.Root).Msg("Starting build")

	if opts.CheckOnly {
		o.check(buildCtx, spec, tc, res)
	} else {
		o.build(buildCtx, spec, tc, opts.Force, res, log)
	}

	if res.Stderr != "" {
		res.Diagnostics = diagnostics.Parse(res.Stderr)
	}

	o.record(spec, res, log)

	return res, nil
}

func (o *Orchestrator) check(ctx context.Context, spec *project.BuildSpec, tc toolchain.Descriptor, res *BuildResult) {
	start := time.Now()
	cmd := compiler.SyntaxCheckCommand(spec, tc)

	out := o.exec.Execute(ctx, cmd)

	res.Command = cmd.Argv()
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	res.Elapsed = time.Since(start)
	res.Success = out.Success()

	switch {
	case res.Success:
	case out.Cancelled:
		res.Failure = codes.Cancelled
	case out.Err != nil:
		res.Failure = codes.SpawnFailure
		res.Stderr += fmt.Sprintf("failed to launch %s: %v\n", filepath.Base(cmd.Path), out.Err)
	default:
		res.Failure = codes.CompileFailure
	}
}

func (o *Orchestrator) build(ctx context.Context, spec *project.BuildSpec, tc toolchain.Descriptor, force bool, res *BuildResult, log zerolog.Logger) {
	start := time.Now()
	artifact := ArtifactPath(spec)

	cache := buildcache.Load(buildcache.Path(spec), o.existence, log)
	if err := cache.SetSpecDependencies(spec); err != nil {
		log.Warn().Err(err).Msg("Ignoring invalid dependencies")
	}

	if !force && !cache.NeedsRebuild(spec, artifact) {
		log.Debug().Msg("Up to date")

		res.Success = true
		res.Skipped = true
		res.ArtifactPath = artifact
		res.Elapsed = time.Since(start)

		return
	}

	out := o.sched.Build(ctx, spec, tc, artifact)

	res.Success = out.Success
	res.Failure = out.Failure
	res.Command = out.Command
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	res.ArtifactPath = out.Artifact
	res.Elapsed = out.Elapsed

	if !out.Success {
		return
	}

	if err := cache.Record(spec); err != nil {
		log.Warn().Err(err).Msg("Failed to record file digests")
	}

	if err := cache.Save(); err != nil {
		log.Warn().Err(err).Msg("Failed to save build cache")
	}
}

// lockProject takes the cross-process lock for the project's build directory. A build that
// replaced an abandoned one takes over the abandoned build's lock instead of waiting for it.
func (o *Orchestrator) lockProject(ctx context.Context, spec *project.BuildSpec, slot *inflight, wait bool) (func(), error) {
	if pl := slot.inherited; pl != nil {
		pl.takeOver(slot)

		o.mu.Lock()
		slot.lock = pl
		o.mu.Unlock()

		o.log.Debug().Str("lock", pl.fl.Path()).Msg("Took over build lock of abandoned build")

		return o.unlocker(pl, slot), nil
	}

	if err := os.MkdirAll(spec.BuildDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create build directory: %w", err)
	}

	fl := flock.New(filepath.Join(spec.BuildDir(), LockFileName))

	var (
		locked bool
		err    error
	)

	if wait {
		lockCtx, cancel := context.WithTimeout(ctx, o.terminateTimeout)
		locked, err = fl.TryLockContext(lockCtx, lockRetryDelay)
		cancel()

		if err != nil && lockCtx.Err() != nil && ctx.Err() == nil {
			err = nil
		}
	} else {
		locked, err = fl.TryLock()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to lock build directory: %w", err)
	}

	if !locked {
		return nil, fmt.Errorf("%w: %s is locked by another process", ErrBuildInProgress, spec.Root)
	}

	pl := &projectLock{fl: fl, owner: slot}

	o.mu.Lock()
	abandoned := slot.abandoned
	if !abandoned {
		slot.lock = pl
	}
	o.mu.Unlock()

	// abandoned before the lock was published; the replacing build may be waiting for it
	if abandoned {
		_ = pl.release(slot)
		return nil, fmt.Errorf("%w: build was replaced", context.Canceled)
	}

	return o.unlocker(pl, slot), nil
}

func (o *Orchestrator) unlocker(pl *projectLock, slot *inflight) func() {
	return func() {
		if err := pl.release(slot); err != nil {
			o.log.Warn().Err(err).Str("lock", pl.fl.Path()).Msg("Failed to release build lock")
		}
	}
}

// record writes the profiling line and history entry for a finished build
func (o *Orchestrator) record(spec *project.BuildSpec, res *BuildResult, log zerolog.Logger) {
	errs, warns, _ := diagnostics.Count(res.Diagnostics)

	log.Debug().
		Bool("success", res.Success).
		Str("failure", res.Failure.String()).
		Bool("skipped", res.Skipped).
		Int64("elapsed_ms", res.ElapsedMillis()).
		Int("errors", errs).
		Int("warnings", warns).
		Msg("Build finished")

	o.profiler.Record(profiling.Record{
		BuildID:       res.ID,
		Project:       res.Project,
		Toolchain:     res.Toolchain,
		Success:       res.Success,
		Skipped:       res.Skipped,
		CheckOnly:     res.CheckOnly,
		ElapsedMillis: res.ElapsedMillis(),
		Files:         len(spec.Files),
	})

	if o.history == nil {
		return
	}

	rec := history.Record{
		ID:            res.ID,
		Project:       res.Project,
		Root:          spec.Root,
		Toolchain:     res.Toolchain,
		Success:       res.Success,
		Skipped:       res.Skipped,
		CheckOnly:     res.CheckOnly,
		ElapsedMillis: res.ElapsedMillis(),
		Errors:        errs,
		Warnings:      warns,
		Timestamp:     time.Now(),
	}
	if !res.Success {
		rec.Failure = res.Failure.String()
	}

	if err := o.history.Add(rec); err != nil {
		log.Warn().Err(err).Msg("Failed to record build history")
	}
}
