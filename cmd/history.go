package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/cpplab/internal/history"
)

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:          "history [project-dir | source-file]",
		Short:        "Show recent builds",
		RunE:         runHistory,
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
	}

	historyCmd.Flags().IntP("limit", "n", 10, "Maximum number of builds to show (0 for all)")
	historyCmd.Flags().Bool("all", false, "Show builds of every project")
	historyCmd.Flags().Bool("clear", false, "Delete the recorded builds instead of listing them")

	return historyCmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.history == nil {
		return errors.New("build history is unavailable")
	}

	limit, _ := cmd.Flags().GetInt("limit")
	all, _ := cmd.Flags().GetBool("all")
	clearFlag, _ := cmd.Flags().GetBool("clear")

	root := ""
	if !all {
		spec, err := a.loadSpec(args, "")
		if err != nil {
			return err
		}

		root = spec.Root
	}

	out := cmd.OutOrStdout()

	if clearFlag {
		if err := a.history.Clear(root); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}

		fmt.Fprintln(out, "History cleared")
		return nil
	}

	records, err := a.history.List(root, limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No builds recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tPROJECT\tTOOLCHAIN\tRESULT\tTIME\tERRORS\tWARNINGS")

	for _, r := range records {
		project := r.Project
		if all {
			project = filepath.Join(r.Root, r.Project)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d ms\t%d\t%d\n",
			r.Timestamp.Local().Format(time.DateTime), project, r.Toolchain, outcome(r),
			r.ElapsedMillis, r.Errors, r.Warnings)
	}

	return tw.Flush()
}

func outcome(r history.Record) string {
	switch {
	case r.Skipped:
		return "up to date"
	case r.Success && r.CheckOnly:
		return "checked"
	case r.Success:
		return "built"
	default:
		return r.Failure
	}
}
