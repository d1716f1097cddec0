package orchestrator

import (
	"context"
	"fmt"
	"io"

	"github.com/Norgate-AV/cpplab/internal/compiler"
	"github.com/Norgate-AV/cpplab/internal/project"
	"github.com/Norgate-AV/cpplab/internal/toolchain"
)

// Stdio are the streams a launched program is attached to
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run builds spec if needed and then runs the artifact with args, with the toolchain's bin
// directory first on PATH so its runtime DLLs are found. When the build fails the result is
// returned with exit code -1 and the program is not started.
func (o *Orchestrator) Run(ctx context.Context, spec *project.BuildSpec, args []string, stdio Stdio) (int, *BuildResult, error) {
	res, err := o.Build(ctx, spec, BuildOptions{})
	if err != nil {
		return -1, nil, err
	}

	if !res.Success {
		return -1, res, nil
	}

	spec = spec.Clone()
	if err := spec.Validate(); err != nil {
		return -1, res, err
	}

	tc, err := toolchain.Select(spec, o.registry)
	if err != nil {
		return -1, res, err
	}

	cmd := &compiler.ShellCommand{
		Path:   res.ArtifactPath,
		Args:   args,
		Dir:    spec.Root,
		BinDir: tc.BinDir(),
	}

	o.log.Debug().Str("command", cmd.String()).Msg("Running")

	code, err := o.launcher.Interactive(ctx, cmd, stdio.In, stdio.Out, stdio.Err)
	if err != nil {
		return -1, res, fmt.Errorf("failed to run %s: %w", res.ArtifactPath, err)
	}

	return code, res, nil
}
