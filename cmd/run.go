package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Norgate-AV/cpplab/internal/orchestrator"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [project-dir | source-file] [-- program-args...]",
		Short: "Build if needed, then run the program",
		Long: `Build the target when anything changed and run the resulting executable in the
project directory. Arguments after -- are passed to the program. The program's exit
code becomes cpplab's exit code.`,
		RunE:         runRun,
		SilenceUsage: true,
	}

	runCmd.Flags().String("std", "", "Language standard override (e.g. c++20)")

	return runCmd
}

func runRun(cmd *cobra.Command, args []string) error {
	target, progArgs := splitProgramArgs(args, cmd.ArgsLenAtDash())
	if len(target) > 1 {
		return cobra.MaximumNArgs(1)(cmd, target)
	}

	a, err := newApp(cmd, target)
	if err != nil {
		return err
	}
	defer a.Close()

	std, _ := cmd.Flags().GetString("std")

	spec, err := a.loadSpec(target, std)
	if err != nil {
		return err
	}

	code, res, err := a.orch.Run(cmd.Context(), spec, progArgs, orchestrator.Stdio{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
		Err: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	if !res.Success {
		printResult(cmd.ErrOrStderr(), cmd.ErrOrStderr(), res)
		return buildError(res)
	}

	a.log.Debug().Int("exitCode", code).Str("artifact", res.ArtifactPath).Msg("Program exited")

	if code != 0 {
		return &exitCodeError{code: code}
	}

	return nil
}

// splitProgramArgs separates the build target from the arguments after "--"
func splitProgramArgs(args []string, dash int) ([]string, []string) {
	if dash < 0 {
		return args, nil
	}

	return args[:dash], args[dash:]
}
