// Package scheduler compiles a project's translation units in parallel and links them.
//
// Small projects are built with a single compile-and-link invocation. Larger ones get one
// "-c" invocation per source on a bounded worker pool, followed by one sequential link. The
// first failing unit cancels the rest; running compilers are killed through their context and
// the link step never runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/cpplab/internal/codes"
	"github.com/Norgate-AV/cpplab/internal/compiler"
	"github.com/Norgate-AV/cpplab/internal/project"
	"github.com/Norgate-AV/cpplab/internal/toolchain"
)

const (
	// DefaultJobs caps the worker pool when no job count is configured
	DefaultJobs = 4

	// SingleInvocationThreshold is the largest file count built with one compiler call
	SingleInvocationThreshold = 2
)

var errUnitFailed = errors.New("translation unit failed")

// Result is the outcome of compiling and linking a project
type Result struct {
	Success bool
	Failure codes.Kind

	// Command is the last invocation that ran: the link, the single build, or the failing compile
	Command []string

	// Stdout and Stderr concatenate every invocation in declaration order, link last
	Stdout string
	Stderr string

	Artifact string
	Elapsed  time.Duration

	// Invocations counts the subprocesses started
	Invocations int
}

// Scheduler runs builds through an executor
type Scheduler struct {
	exec compiler.Executor
	jobs int
	log  zerolog.Logger
}

// New creates a scheduler. jobs <= 0 selects DefaultJobs.
func New(exec compiler.Executor, jobs int, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		exec: exec,
		jobs: jobs,
		log:  logger,
	}
}

// Workers is the pool size: the configured job count bounded by the CPU count
func (s *Scheduler) Workers() int {
	jobs := s.jobs
	if jobs <= 0 {
		jobs = DefaultJobs
	}

	return max(1, min(jobs, runtime.NumCPU()))
}

// Build compiles spec with tc into artifact
func (s *Scheduler) Build(ctx context.Context, spec *project.BuildSpec, tc toolchain.Descriptor, artifact string) Result {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(artifact), 0o755); err != nil {
		return Result{
			Failure: codes.SpawnFailure,
			Stderr:  fmt.Sprintf("failed to create output directory: %v\n", err),
			Elapsed: time.Since(start),
		}
	}

	var res Result
	if len(spec.Files) <= SingleInvocationThreshold {
		res = s.buildSingle(ctx, spec, tc, artifact)
	} else {
		res = s.buildParallel(ctx, spec, tc, artifact)
	}

	res.Elapsed = time.Since(start)
	if res.Success {
		res.Artifact = artifact
	}

	return res
}

func (s *Scheduler) buildSingle(ctx context.Context, spec *project.BuildSpec, tc toolchain.Descriptor, artifact string) Result {
	cmd := compiler.BuildCommand(spec, tc, artifact)
	s.log.Debug().Str("command", cmd.String()).Msg("Building")

	out := s.exec.Execute(ctx, cmd)

	res := Result{
		Command:     cmd.Argv(),
		Stdout:      out.Stdout,
		Stderr:      out.Stderr,
		Invocations: 1,
	}

	if out.Success() {
		res.Success = true
		return res
	}

	res.Failure = classify(out, codes.CompileFailure)
	if res.Failure == codes.CompileFailure && isLinkError(out.Stderr) {
		res.Failure = codes.LinkFailure
	}
	res.Stderr += spawnMessage(cmd, out)

	return res
}

func (s *Scheduler) buildParallel(ctx context.Context, spec *project.BuildSpec, tc toolchain.Descriptor, artifact string) Result {
	if err := os.MkdirAll(spec.ObjectDir(), 0o755); err != nil {
		return Result{
			Failure: codes.SpawnFailure,
			Stderr:  fmt.Sprintf("failed to create object directory: %v\n", err),
		}
	}

	sources := spec.SourcePaths()
	objects := make([]string, len(sources))
	cmds := make([]*compiler.ShellCommand, len(sources))
	slots := make([]*compiler.Result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(s.Workers(), len(sources)))

	s.log.Debug().Int("units", len(sources)).Int("workers", s.Workers()).Msg("Compiling in parallel")

	for i, src := range sources {
		if gctx.Err() != nil {
			break
		}

		objects[i] = compiler.ObjectPath(spec, src)
		cmds[i] = compiler.CompileCommand(spec, tc, src, objects[i])
		cmd := cmds[i]

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			s.log.Debug().Str("command", cmd.String()).Msg("Compiling")

			out := s.exec.Execute(gctx, cmd)
			slots[i] = &out

			if !out.Success() {
				return errUnitFailed
			}

			return nil
		})
	}

	// Tasks only report failure through their slots
	_ = g.Wait()

	res := Result{}
	var stdout, stderr strings.Builder
	failed := -1

	for i, out := range slots {
		if out == nil {
			continue
		}

		res.Invocations++
		stdout.WriteString(out.Stdout)
		stderr.WriteString(out.Stderr)

		// Units killed because another one failed are not the cause
		if failed < 0 && !out.Success() && !out.Cancelled {
			failed = i
		}
	}

	switch {
	case ctx.Err() != nil:
		res.Failure = codes.Cancelled
	case failed >= 0:
		res.Failure = classify(*slots[failed], codes.CompileFailure)
		res.Command = cmds[failed].Argv()
		stderr.WriteString(spawnMessage(cmds[failed], *slots[failed]))
	case res.Invocations < len(sources):
		// Nothing failed but not every unit ran
		res.Failure = codes.Cancelled
	}

	if res.Failure != codes.None {
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
		return res
	}

	link := compiler.LinkCommand(spec, tc, objects, artifact)
	s.log.Debug().Str("command", link.String()).Msg("Linking")

	out := s.exec.Execute(ctx, link)
	res.Invocations++
	res.Command = link.Argv()
	stdout.WriteString(out.Stdout)
	stderr.WriteString(out.Stderr)

	if out.Success() {
		res.Success = true
	} else {
		res.Failure = classify(out, codes.LinkFailure)
		stderr.WriteString(spawnMessage(link, out))
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	return res
}

// classify maps a failed invocation to a failure kind, using def for a nonzero exit
func classify(out compiler.Result, def codes.Kind) codes.Kind {
	switch {
	case out.Cancelled:
		return codes.Cancelled
	case out.Err != nil:
		return codes.SpawnFailure
	default:
		return def
	}
}

func spawnMessage(cmd *compiler.ShellCommand, out compiler.Result) string {
	if out.Err == nil {
		return ""
	}

	return fmt.Sprintf("failed to launch %s: %v\n", filepath.Base(cmd.Path), out.Err)
}

// isLinkError recognizes linker output in a combined compile-and-link run
func isLinkError(stderr string) bool {
	return strings.Contains(stderr, "undefined reference to") ||
		strings.Contains(stderr, "ld returned") ||
		strings.Contains(stderr, "cannot find -l")
}
