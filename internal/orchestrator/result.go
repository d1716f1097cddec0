package orchestrator

import (
	"time"

	"github.com/Norgate-AV/cpplab/internal/codes"
	"github.com/Norgate-AV/cpplab/internal/diagnostics"
)

// BuildResult describes one build attempt. It is not modified after Build returns.
type BuildResult struct {
	ID        string
	Project   string
	Toolchain string

	Success   bool
	Skipped   bool
	CheckOnly bool

	// Command is nil when the build was skipped
	Command []string
	Stdout  string
	Stderr  string

	// ArtifactPath is set when a linked artifact is available
	ArtifactPath string

	Elapsed time.Duration
	Failure codes.Kind

	Diagnostics []diagnostics.Diagnostic
}

// ElapsedMillis returns Elapsed in whole milliseconds
func (r *BuildResult) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}
