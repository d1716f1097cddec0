package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/cpplab/internal/buildcache"
	"github.com/Norgate-AV/cpplab/internal/codes"
	"github.com/Norgate-AV/cpplab/internal/compiler"
	"github.com/Norgate-AV/cpplab/internal/diagnostics"
	"github.com/Norgate-AV/cpplab/internal/history"
	"github.com/Norgate-AV/cpplab/internal/profiling"
	"github.com/Norgate-AV/cpplab/internal/project"
	"github.com/Norgate-AV/cpplab/internal/toolchain"
)

// fakeCompiler writes every "-o" output and counts invocations
type fakeCompiler struct {
	mu    sync.Mutex
	calls []*compiler.ShellCommand

	// fail, when set, decides the result instead of succeeding
	fail func(ctx context.Context, cmd *compiler.ShellCommand) (compiler.Result, bool)
}

func (f *fakeCompiler) Execute(ctx context.Context, cmd *compiler.ShellCommand) compiler.Result {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.fail != nil {
		if res, failed := f.fail(ctx, cmd); failed {
			res.Command = cmd
			return res
		}
	}

	if i := slices.Index(cmd.Args, "-o"); i >= 0 && i+1 < len(cmd.Args) {
		out := cmd.Args[i+1]
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err == nil {
			os.WriteFile(out, []byte("built"), 0o755)
		}
	}

	return compiler.Result{Command: cmd}
}

func (f *fakeCompiler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCompiler) last() *compiler.ShellCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeLauncher struct {
	cmd  *compiler.ShellCommand
	code int
}

func (l *fakeLauncher) Interactive(ctx context.Context, cmd *compiler.ShellCommand, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	l.cmd = cmd
	io.WriteString(stdout, "hello from program\n")
	return l.code, nil
}

func installedRegistry(t *testing.T) *toolchain.Registry {
	t.Helper()

	r := toolchain.NewRegistry(t.TempDir())
	for _, d := range r.All() {
		require.NoError(t, os.MkdirAll(d.BinDir(), 0o755))
		require.NoError(t, os.WriteFile(d.CXXCompiler(), nil, 0o755))
		require.NoError(t, os.WriteFile(d.CCompiler(), nil, 0o755))
	}

	return r
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newProject(t *testing.T, files ...string) *project.BuildSpec {
	t.Helper()
	root := t.TempDir()

	for _, f := range files {
		writeFile(t, filepath.Join(root, f), "// "+f)
	}
	writeFile(t, filepath.Join(root, "util.h"), "#pragma once")

	return &project.BuildSpec{
		Name:     "demo",
		Root:     root,
		Language: project.LangCPP,
		Files:    files,
		Deps:     map[string][]string{files[0]: {"util.h"}},
	}
}

func newOrchestrator(t *testing.T, exec compiler.Executor) *Orchestrator {
	t.Helper()
	return New(Options{
		Registry: installedRegistry(t),
		Executor: exec,
		Jobs:     2,
		Logger:   zerolog.Nop(),
	})
}

func TestBuild_SecondBuildIsSkipped(t *testing.T) {
	for _, files := range [][]string{{"main.cpp"}, {"main.cpp", "a.cpp", "b.cpp", "c.cpp"}} {
		spec := newProject(t, files...)
		fake := &fakeCompiler{}
		o := newOrchestrator(t, fake)

		first, err := o.Build(context.Background(), spec, BuildOptions{})
		require.NoError(t, err)
		require.True(t, first.Success, first.Stderr)
		assert.False(t, first.Skipped)
		assert.Equal(t, ArtifactPath(spec), first.ArtifactPath)
		assert.NotEmpty(t, first.ID)
		assert.Equal(t, toolchain.MinGW64, first.Toolchain)
		assert.FileExists(t, buildcache.Path(spec))

		calls := fake.count()

		second, err := o.Build(context.Background(), spec, BuildOptions{})
		require.NoError(t, err)
		assert.True(t, second.Success)
		assert.True(t, second.Skipped)
		assert.Nil(t, second.Command)
		assert.Equal(t, ArtifactPath(spec), second.ArtifactPath)
		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, calls, fake.count(), "no compiler runs for an unchanged project")
	}
}

func TestBuild_ChangesForceRebuild(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, spec *project.BuildSpec)
	}{
		{"source edited", func(t *testing.T, spec *project.BuildSpec) {
			writeFile(t, spec.Resolve("main.cpp"), "int main() { return 2; }")
		}},
		{"reachable header edited", func(t *testing.T, spec *project.BuildSpec) {
			writeFile(t, spec.Resolve("util.h"), "#define CHANGED")
		}},
		{"artifact removed", func(t *testing.T, spec *project.BuildSpec) {
			require.NoError(t, os.Remove(ArtifactPath(spec)))
		}},
		{"cache file corrupted", func(t *testing.T, spec *project.BuildSpec) {
			writeFile(t, buildcache.Path(spec), "garbage")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := newProject(t, "main.cpp")
			fake := &fakeCompiler{}
			o := newOrchestrator(t, fake)

			_, err := o.Build(context.Background(), spec, BuildOptions{})
			require.NoError(t, err)

			tt.change(t, spec)
			before := fake.count()

			res, err := o.Build(context.Background(), spec, BuildOptions{})
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.False(t, res.Skipped)
			assert.Greater(t, fake.count(), before)
		})
	}
}

func TestBuild_Force(t *testing.T) {
	spec := newProject(t, "main.cpp")
	fake := &fakeCompiler{}
	o := newOrchestrator(t, fake)

	_, err := o.Build(context.Background(), spec, BuildOptions{})
	require.NoError(t, err)

	res, err := o.Build(context.Background(), spec, BuildOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, fake.count())
}

func TestBuild_DroppedDependencyNoLongerForcesRebuild(t *testing.T) {
	spec := newProject(t, "main.cpp")
	fake := &fakeCompiler{}
	o := newOrchestrator(t, fake)

	_, err := o.Build(context.Background(), spec, BuildOptions{})
	require.NoError(t, err)

	spec.Deps = nil
	require.NoError(t, os.Remove(spec.Resolve("util.h")))

	for i := range 2 {
		res, err := o.Build(context.Background(), spec, BuildOptions{})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.True(t, res.Skipped, "build %d", i+2)
	}

	assert.Equal(t, 1, fake.count())
}

func TestBuild_DeletedHeaderIsForgottenAfterRebuild(t *testing.T) {
	spec := newProject(t, "main.cpp")
	fake := &fakeCompiler{}
	o := newOrchestrator(t, fake)

	_, err := o.Build(context.Background(), spec, BuildOptions{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(spec.Resolve("util.h")))
	spec.Deps = nil

	// the edge is still in the cache file until a build replaces it
	res, err := o.Build(context.Background(), spec, BuildOptions{Force: true})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = o.Build(context.Background(), spec, BuildOptions{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	data, err := os.ReadFile(buildcache.Path(spec))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "util.h")
}

func TestBuild_CheckOnlyLeavesCacheAlone(t *testing.T) {
	spec := newProject(t, "main.cpp", "util.cpp")
	fake := &fakeCompiler{}
	o := newOrchestrator(t, fake)

	for i := 0; i < 2; i++ {
		res, err := o.Build(context.Background(), spec, BuildOptions{CheckOnly: true})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.True(t, res.CheckOnly)
		assert.False(t, res.Skipped, "checks always run")
		assert.Contains(t, res.Command, "-fsyntax-only")
		assert.NotContains(t, res.Command, "-o")
		assert.Empty(t, res.ArtifactPath)
	}

	assert.Equal(t, 2, fake.count())
	assert.NoFileExists(t, buildcache.Path(spec))
	assert.NoFileExists(t, ArtifactPath(spec))

	// A prior check never makes a real build look up to date
	res, err := o.Build(context.Background(), spec, BuildOptions{})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestBuild_CompileErrorsProduceDiagnostics(t *testing.T) {
	spec := newProject(t, "a.cpp", "b.cpp", "c.cpp", "d.cpp", "e.cpp")
	fake := &fakeCompiler{fail: func(ctx context.Context, cmd *compiler.ShellCommand) (compiler.Result, bool) {
		if filepath.Base(cmd.Args[0]) == "c.cpp" {
			return compiler.Result{ExitCode: 1, Stderr: "c.cpp:4:2: error: expected ';' before 'return'\nc.cpp:2:1: warning: unused variable 'x'\n"}, true
		}
		return compiler.Result{}, false
	}}
	o := newOrchestrator(t, fake)

	res, err := o.Build(context.Background(), spec, BuildOptions{})
	require.NoError(t, err, "compile failures are results, not errors")

	assert.False(t, res.Success)
	assert.Equal(t, codes.CompileFailure, res.Failure)
	assert.Empty(t, res.ArtifactPath)
	assert.NoFileExists(t, ArtifactPath(spec))
	assert.NoFileExists(t, buildcache.Path(spec), "failed builds are not recorded")

	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, diagnostics.Diagnostic{File: "c.cpp", Line: 4, Column: 2, Severity: diagnostics.SeverityError, Message: "expected ';' before 'return'"}, res.Diagnostics[0])
	assert.Equal(t, diagnostics.SeverityWarning, res.Diagnostics[1].Severity)
}

func TestBuild_ToolchainUnavailable(t *testing.T) {
	spec := newProject(t, "main.cpp")
	fake := &fakeCompiler{}
	o := New(Options{Registry: toolchain.NewRegistry(t.TempDir()), Executor: fake})

	res, err := o.Build(context.Background(), spec, BuildOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, toolchain.ErrToolchainUnavailable))
	assert.Nil(t, res)
	assert.Zero(t, fake.count())
}

func TestBuild_InvalidSpec(t *testing.T) {
	spec := newProject(t, "main.cpp")
	spec.Files = nil

	_, err := newOrchestrator(t, &fakeCompiler{}).Build(context.Background(), spec, BuildOptions{})
	assert.True(t, errors.Is(err, project.ErrInvalidSpec))
}

func TestBuild_GraphicsUsesThirtyTwoBit(t *testing.T) {
	spec := newProject(t, "main.cpp")
	spec.Features.Graphics = true
	spec.ToolchainPreference = toolchain.Alias64

	fake := &fakeCompiler{}
	res, err := newOrchestrator(t, fake).Build(context.Background(), spec, BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, toolchain.MinGW32, res.Toolchain)
	assert.Subset(t, fake.last().Args, compiler.GraphicsLibs)
}

// blockingCompiler holds every invocation until released or cancelled
func blockingCompiler(started chan<- struct{}, release <-chan struct{}) *fakeCompiler {
	return &fakeCompiler{fail: func(ctx context.Context, cmd *compiler.ShellCommand) (compiler.Result, bool) {
		select {
		case started <- struct{}{}:
		default:
		}

		select {
		case <-ctx.Done():
			return compiler.Result{Cancelled: true, ExitCode: -1}, true
		case <-release:
			return compiler.Result{}, false
		}
	}}
}

func TestBuild_OneBuildPerProject(t *testing.T) {
	spec := newProject(t, "main.cpp")
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	o := newOrchestrator(t, blockingCompiler(started, release))

	done := make(chan *BuildResult, 1)
	go func() {
		res, _ := o.Build(context.Background(), spec, BuildOptions{})
		done <- res
	}()

	<-started
	assert.True(t, o.Building(spec.Root))

	_, err := o.Build(context.Background(), spec, BuildOptions{})
	assert.True(t, errors.Is(err, ErrBuildInProgress))

	close(release)
	res := <-done
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.False(t, o.Building(spec.Root))
}

func TestBuild_TerminateReplacesInFlightBuild(t *testing.T) {
	spec := newProject(t, "main.cpp")
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	o := newOrchestrator(t, blockingCompiler(started, release))

	done := make(chan *BuildResult, 1)
	go func() {
		res, _ := o.Build(context.Background(), spec, BuildOptions{})
		done <- res
	}()

	<-started
	close(release)

	res, err := o.Build(context.Background(), spec, BuildOptions{Terminate: true, Force: true})
	require.NoError(t, err)
	assert.True(t, res.Success)

	old := <-done
	require.NotNil(t, old)
	if !old.Success {
		assert.Equal(t, codes.Cancelled, old.Failure)
	}
}

func TestBuild_TerminateTakesOverAbandonedBuild(t *testing.T) {
	spec := newProject(t, "main.cpp")
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	var calls atomic.Int32
	fake := &fakeCompiler{fail: func(ctx context.Context, cmd *compiler.ShellCommand) (compiler.Result, bool) {
		if calls.Add(1) > 1 {
			return compiler.Result{}, false
		}

		// ignores cancellation
		started <- struct{}{}
		<-release
		return compiler.Result{}, false
	}}

	o := New(Options{
		Registry:         installedRegistry(t),
		Executor:         fake,
		Logger:           zerolog.Nop(),
		TerminateTimeout: 200 * time.Millisecond,
	})

	done := make(chan *BuildResult, 1)
	go func() {
		res, _ := o.Build(context.Background(), spec, BuildOptions{})
		done <- res
	}()

	<-started

	begin := time.Now()
	res, err := o.Build(context.Background(), spec, BuildOptions{Terminate: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Less(t, time.Since(begin), 2*time.Second)

	close(release)
	require.NotNil(t, <-done)

	// the lock file was released by whichever build owned it last
	res, err = o.Build(context.Background(), spec, BuildOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestCancel(t *testing.T) {
	spec := newProject(t, "main.cpp")
	started := make(chan struct{}, 1)
	o := newOrchestrator(t, blockingCompiler(started, make(chan struct{})))

	assert.False(t, o.Cancel(spec.Root), "nothing to cancel")

	done := make(chan *BuildResult, 1)
	go func() {
		res, _ := o.Build(context.Background(), spec, BuildOptions{})
		done <- res
	}()

	<-started
	assert.True(t, o.Cancel(spec.Root))

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.Equal(t, codes.Cancelled, res.Failure)
	case <-time.After(5 * time.Second):
		t.Fatal("build did not stop")
	}
}

func TestBuild_RecordsProfileAndHistory(t *testing.T) {
	spec := newProject(t, "main.cpp")
	dir := t.TempDir()

	store, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	defer store.Close()

	profilePath := filepath.Join(dir, "profile.jsonl")
	o := New(Options{
		Registry: installedRegistry(t),
		Executor: &fakeCompiler{},
		Profiler: profiling.New(profilePath, true),
		History:  store,
	})

	first, err := o.Build(context.Background(), spec, BuildOptions{})
	require.NoError(t, err)
	_, err = o.Build(context.Background(), spec, BuildOptions{})
	require.NoError(t, err)

	records, err := profiling.ReadAll(profilePath)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].BuildID)
	assert.Equal(t, 1, records[0].Files)
	assert.True(t, records[1].Skipped)

	builds, err := store.List(spec.Root, 0)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, first.ID, builds[1].ID)
	assert.Equal(t, "demo", builds[1].Project)
	assert.True(t, builds[0].Skipped)
}

func TestRun(t *testing.T) {
	spec := newProject(t, "main.cpp")
	launcher := &fakeLauncher{code: 7}
	r := installedRegistry(t)

	o := New(Options{Registry: r, Executor: &fakeCompiler{}, Launcher: launcher})

	var out bytes.Buffer
	code, res, err := o.Run(context.Background(), spec, []string{"--flag"}, Stdio{Out: &out})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, 7, code)
	assert.Equal(t, "hello from program\n", out.String())

	tc, _ := r.Get(toolchain.MinGW64)
	require.NotNil(t, launcher.cmd)
	assert.Equal(t, ArtifactPath(spec), launcher.cmd.Path)
	assert.Equal(t, []string{"--flag"}, launcher.cmd.Args)
	assert.Equal(t, tc.BinDir(), launcher.cmd.BinDir)
	assert.Equal(t, spec.Root, launcher.cmd.Dir)
}

func TestRun_FailedBuildDoesNotLaunch(t *testing.T) {
	spec := newProject(t, "main.cpp")
	launcher := &fakeLauncher{}
	fake := &fakeCompiler{fail: func(ctx context.Context, cmd *compiler.ShellCommand) (compiler.Result, bool) {
		return compiler.Result{ExitCode: 1, Stderr: "main.cpp:1:1: error: nope\n"}, true
	}}

	o := New(Options{Registry: installedRegistry(t), Executor: fake, Launcher: launcher})

	code, res, err := o.Run(context.Background(), spec, nil, Stdio{})
	require.NoError(t, err)
	assert.Equal(t, -1, code)
	assert.False(t, res.Success)
	assert.Nil(t, launcher.cmd)
}
