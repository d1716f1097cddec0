package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/cpplab/internal/config"
	"github.com/Norgate-AV/cpplab/internal/toolchain"
)

func newToolchainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "toolchains",
		Short:        "List the bundled toolchains",
		RunE:         runToolchains,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
}

func runToolchains(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader().LoadForBuild(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	registry := toolchain.NewRegistry(cfg.CompilersDir)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBITS\tOPENMP\tSTATUS\tPATH")

	for _, d := range registry.All() {
		bits := "64"
		if d.Is32Bit {
			bits = "32"
		}

		status := okColor.Sprint("installed")
		if !d.Available() {
			status = failColor.Sprint("missing")
		}

		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", d.Name, bits, d.SupportsOpenMP, status, d.Root)
	}

	return tw.Flush()
}
