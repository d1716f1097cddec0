package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/cpplab/internal/version"
)

// exitCodeError carries a program's exit status through cobra
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("program exited with code %d", e.code)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cpplab [project-dir | source-file]",
		Short:         "C/C++ build orchestrator",
		Long:          `Incremental, parallel builds of small C/C++ projects with bundled MinGW toolchains.`,
		RunE:          runBuild(false),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().IntP("jobs", "j", 0, "Maximum parallel compiles (default 4, capped at CPU count)")
	rootCmd.PersistentFlags().String("compilers", "", "Directory containing the mingw64/ and mingw32/ toolchains")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Rebuild even if nothing changed")
	rootCmd.PersistentFlags().Bool("profile", false, "Append a profiling record per build")
	rootCmd.PersistentFlags().StringP("toolchain", "t", "", "Toolchain: auto, 64bit, 32bit or a toolchain name")
	rootCmd.Flags().String("std", "", "Language standard override for single files (e.g. c++20)")

	rootCmd.AddCommand(
		newBuildCmd(),
		newCheckCmd(),
		newRunCmd(),
		newWatchCmd(),
		newBenchCmd(),
		newToolchainsCmd(),
		newHistoryCmd(),
		newCleanCmd(),
	)

	return rootCmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
