package compiler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/Norgate-AV/cpplab/internal/codes"
)

// waitDelay bounds how long output pipes are drained after the process is killed
const waitDelay = 2 * time.Second

// Commander interface for testing
type Commander interface {
	Run() error
}

// Result is the outcome of one invocation
type Result struct {
	Command  *ShellCommand
	Stdout   string
	Stderr   string
	ExitCode int

	// Err is set when the process could not be started
	Err error

	// Cancelled is set when the context ended the process
	Cancelled bool
}

// Success reports whether the process ran and exited cleanly
func (r Result) Success() bool {
	return r.Err == nil && !r.Cancelled && codes.IsSuccess(r.ExitCode)
}

// Executor runs compiler invocations. The scheduler and orchestrator depend on this,
// so tests can substitute a fake.
type Executor interface {
	Execute(ctx context.Context, cmd *ShellCommand) Result
}

// Runner executes commands as subprocesses
type Runner struct {
	execCommand func(ctx context.Context, name string, args ...string) Commander
}

// NewRunner creates a runner backed by os/exec
func NewRunner() *Runner {
	return &Runner{
		execCommand: func(ctx context.Context, name string, args ...string) Commander {
			return exec.CommandContext(ctx, name, args...)
		},
	}
}

// Execute runs cmd to completion, capturing its output.
// A nonzero exit is reported through ExitCode, not Err.
func (r *Runner) Execute(ctx context.Context, cmd *ShellCommand) Result {
	var stdout, stderr bytes.Buffer

	c := r.execCommand(ctx, cmd.Path, cmd.Args...)
	if ec, ok := c.(*exec.Cmd); ok {
		ec.Dir = cmd.Dir
		ec.Env = Environ(cmd.BinDir)
		ec.Stdout = &stdout
		ec.Stderr = &stderr
		ec.WaitDelay = waitDelay
	}

	res := Result{Command: cmd}

	err := c.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	switch {
	case ctx.Err() != nil:
		res.Cancelled = true
		res.ExitCode = -1
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		// A grandchild holding the output pipes open does not fail the invocation
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.Err = err
			res.ExitCode = -1
		}
	}

	return res
}

// Interactive runs cmd attached to the given streams and returns its exit code.
// The error is non-nil only when the process could not be started.
func (r *Runner) Interactive(ctx context.Context, cmd *ShellCommand, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	c := r.execCommand(ctx, cmd.Path, cmd.Args...)
	if ec, ok := c.(*exec.Cmd); ok {
		ec.Dir = cmd.Dir
		ec.Env = Environ(cmd.BinDir)
		ec.Stdin = stdin
		ec.Stdout = stdout
		ec.Stderr = stderr
	}

	err := c.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	return -1, err
}

// Environ returns the current environment with binDir prepended to PATH
func Environ(binDir string) []string {
	return prependPath(os.Environ(), binDir)
}

func prependPath(env []string, dir string) []string {
	out := make([]string, 0, len(env)+1)
	found := false

	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if ok && isPathKey(key) && !found {
			found = true
			if dir != "" {
				kv = key + "=" + dir + string(os.PathListSeparator) + value
			}
		}

		out = append(out, kv)
	}

	if !found && dir != "" {
		out = append(out, "PATH="+dir)
	}

	return out
}

func isPathKey(key string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(key, "PATH")
	}

	return key == "PATH"
}
