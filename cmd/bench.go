package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/cpplab/internal/orchestrator"
)

func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:          "bench [project-dir | source-file]",
		Short:        "Time repeated full builds",
		Long:         `Run one warm-up build followed by N forced builds and report the timings.`,
		RunE:         runBench,
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
	}

	benchCmd.Flags().IntP("iterations", "n", 5, "Number of timed builds")
	benchCmd.Flags().String("std", "", "Language standard override (e.g. c++20)")

	return benchCmd
}

// benchStats summarises a series of build timings
type benchStats struct {
	Min, Max, Avg time.Duration
}

func summarize(samples []time.Duration) benchStats {
	if len(samples) == 0 {
		return benchStats{}
	}

	s := benchStats{Min: samples[0], Max: samples[0]}

	var total time.Duration
	for _, d := range samples {
		s.Min = min(s.Min, d)
		s.Max = max(s.Max, d)
		total += d
	}

	s.Avg = total / time.Duration(len(samples))

	return s
}

func runBench(cmd *cobra.Command, args []string) error {
	n, _ := cmd.Flags().GetInt("iterations")
	if n < 1 {
		return errors.New("iterations must be at least 1")
	}

	a, err := newApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.Close()

	std, _ := cmd.Flags().GetString("std")

	spec, err := a.loadSpec(args, std)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	samples := make([]time.Duration, 0, n)

	for i := 0; i <= n; i++ {
		res, err := a.orch.Build(cmd.Context(), spec, orchestrator.BuildOptions{Force: true})
		if err != nil {
			return err
		}

		if !res.Success {
			printResult(out, cmd.ErrOrStderr(), res)
			return buildError(res)
		}

		if i == 0 {
			fmt.Fprintf(out, "warm-up: %d ms\n", res.ElapsedMillis())
			continue
		}

		samples = append(samples, res.Elapsed)
		fmt.Fprintf(out, "run %d: %d ms\n", i, res.ElapsedMillis())
	}

	s := summarize(samples)
	fmt.Fprintf(out, "%s %d builds [%s]: min %d ms, max %d ms, avg %d ms\n",
		okColor.Sprint(spec.Name), n, dimColor.Sprint(len(spec.Files), " files"),
		s.Min.Milliseconds(), s.Max.Milliseconds(), s.Avg.Milliseconds())

	return nil
}
