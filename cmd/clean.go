package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/cpplab/internal/buildcache"
	"github.com/Norgate-AV/cpplab/internal/orchestrator"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "clean [project-dir | source-file]",
		Short:        "Remove build outputs and the build cache",
		RunE:         runClean,
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
	}
}

func runClean(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.Close()

	spec, err := a.loadSpec(args, "")
	if err != nil {
		return err
	}

	removed, err := buildcache.Clean(spec, orchestrator.ArtifactPath(spec))
	for _, p := range removed {
		a.log.Debug().Str("path", p).Msg("Removed")
	}

	if err != nil {
		return fmt.Errorf("failed to clean %s: %w", spec.Name, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d files from %s\n", len(removed), spec.BuildDir())

	return nil
}
