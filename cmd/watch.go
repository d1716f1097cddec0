package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/cpplab/internal/orchestrator"
	"github.com/Norgate-AV/cpplab/internal/project"
	"github.com/Norgate-AV/cpplab/internal/watch"
)

func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch [project-dir | source-file]",
		Short: "Rebuild whenever a source or header changes",
		Long: `Build once, then watch the project's sources, declared headers and project file.
A change cancels any build still running and starts a new one.`,
		RunE:         runWatch,
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),
	}

	watchCmd.Flags().String("std", "", "Language standard override (e.g. c++20)")
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before rebuilding")

	return watchCmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args)
	if err != nil {
		return err
	}
	defer a.Close()

	std, _ := cmd.Flags().GetString("std")
	debounce, _ := cmd.Flags().GetDuration("debounce")

	spec, err := a.loadSpec(args, std)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rebuild := func(spec *project.BuildSpec) {
		res, err := a.orch.Build(ctx, spec, orchestrator.BuildOptions{
			Force:     a.cfg.NoCache,
			Terminate: true,
		})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Msg("Build failed to start")
			}

			return
		}

		printResult(out, cmd.ErrOrStderr(), res)
	}

	rebuild(spec)

	for {
		files := watchedFiles(spec)
		projectFile := project.FindFile(spec.Root)
		fmt.Fprintf(out, "Watching %d files, press Ctrl+C to stop\n", len(files))

		// a project file edit restarts the watcher with the reloaded file set
		runCtx, stop := context.WithCancel(ctx)
		reload := false
		current := spec

		err = watch.New(files, debounce, a.log).Run(runCtx, func(_ context.Context, changed []string) {
			fmt.Fprintf(out, "%s changed\n", dimColor.Sprint(changed))

			if projectFile != "" && slices.Contains(changed, projectFile) {
				reload = true
				stop()
				return
			}

			// each rebuild runs on its own goroutine so a newer change can terminate it
			go rebuild(current)
		})
		stop()

		if err != nil || !reload || ctx.Err() != nil {
			break
		}

		next, loadErr := a.loadSpec(args, std)
		if loadErr != nil {
			a.log.Error().Err(loadErr).Msg("Keeping previous project settings")
		} else {
			spec = next
		}

		go rebuild(spec)
	}

	a.orch.Cancel(spec.Root)
	waitIdle(a.orch, spec.Root, orchestrator.DefaultTerminateTimeout)

	return err
}

// watchedFiles returns the sources, declared headers and project file of spec
func watchedFiles(spec *project.BuildSpec) []string {
	seen := make(map[string]bool)
	var files []string

	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, src := range spec.SourcePaths() {
		add(src)
	}

	for _, headers := range spec.Deps {
		for _, h := range headers {
			add(spec.Resolve(h))
		}
	}

	add(project.FindFile(spec.Root))

	return files
}

func waitIdle(o *orchestrator.Orchestrator, root string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)

	for o.Building(root) && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}
