package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/cpplab/internal/orchestrator"
)

func newBuildCmd() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:          "build [project-dir | source-file]",
		Short:        "Build a project or single source file",
		Long:         `Compile and link a project, skipping the build when no source or header has changed.`,
		RunE:         runBuild(false),
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
	}

	buildCmd.Flags().BoolP("force", "f", false, "Rebuild even if nothing changed")
	buildCmd.Flags().String("std", "", "Language standard override (e.g. c++20)")

	return buildCmd
}

func newCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:          "check [project-dir | source-file]",
		Short:        "Check syntax without building",
		Long:         `Run the compiler in syntax-only mode. Nothing is written and the build cache is not used.`,
		RunE:         runBuild(true),
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
	}

	checkCmd.Flags().String("std", "", "Language standard override (e.g. c++20)")

	return checkCmd
}

func runBuild(checkOnly bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, args)
		if err != nil {
			return err
		}
		defer a.Close()

		std, _ := cmd.Flags().GetString("std")
		force, _ := cmd.Flags().GetBool("force")

		spec, err := a.loadSpec(args, std)
		if err != nil {
			return err
		}

		res, err := a.orch.Build(cmd.Context(), spec, orchestrator.BuildOptions{
			Force:     force || a.cfg.NoCache,
			CheckOnly: checkOnly,
		})
		if err != nil {
			return err
		}

		printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)

		return buildError(res)
	}
}
