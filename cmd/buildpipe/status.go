// status.go prints a snapshot of a pipeline run: condition, task runs in
// start order, declared results, and resolved platforms.
package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/buildpipe/internal/config"
	"github.com/example/buildpipe/internal/pipeline"
)

func newStatusCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status NAME",
		Short: "Show the current state of a pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			snap, err := rt.run(args[0]).Get(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd, snap)
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, snap *pipeline.RunSnapshot) {
	out := cmd.OutOrStdout()
	cond, ok := snap.Condition()
	state := "no status yet"
	if ok {
		state = fmt.Sprintf("%s (%s)", cond.Reason, cond.Status)
	}
	fmt.Fprintf(out, "%s: %s\n", snap.Metadata.Name, colorizeState(snap, state))

	taskRuns := snap.SortedTaskRuns()
	if len(taskRuns) > 0 {
		w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tTASKRUN\tREASON\tPOD")
		for _, tr := range taskRuns {
			reason := "-"
			if c, ok := tr.Status.Condition(); ok {
				reason = c.Reason
			}
			pod := tr.Status.PodName
			if pod == "" {
				pod = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tr.PipelineTaskName, tr.Name, reason, pod)
		}
		w.Flush()
	}

	for _, result := range snap.Status.PipelineResults {
		fmt.Fprintf(out, "result %s=%s\n", result.Name, strings.TrimSpace(result.Value))
	}
	if platforms := snap.FinalPlatforms(); len(platforms) > 0 {
		fmt.Fprintf(out, "platforms: %s\n", strings.Join(platforms, ", "))
	}
}

func colorizeState(snap *pipeline.RunSnapshot, state string) string {
	switch {
	case snap.Succeeded():
		return color.GreenString(state)
	case snap.NotFinished():
		return color.YellowString(state)
	default:
		return color.RedString(state)
	}
}
