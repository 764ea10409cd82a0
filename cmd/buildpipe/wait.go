// wait.go blocks until a run finishes and reports its outcome.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/buildpipe/internal/config"
	"github.com/example/buildpipe/internal/pipeline"
)

func newWaitCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "wait NAME",
		Short: "Wait for a pipeline run to finish and report its outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			run := rt.run(args[0])
			if err := run.WaitForFinish(cmd.Context()); err != nil {
				return err
			}
			return reportOutcome(cmd, run)
		},
	}
}

// reportOutcome prints the run's terminal state; a failed or cancelled run
// also prints the aggregated error digest and yields a non-zero exit.
func reportOutcome(cmd *cobra.Command, run *pipeline.Run) error {
	ctx := cmd.Context()
	succeeded, err := run.HasSucceeded(ctx)
	if err != nil {
		return err
	}
	if succeeded {
		fmt.Fprintf(cmd.OutOrStdout(), "%s pipeline run %s succeeded\n",
			color.GreenString("ok:"), run.Name())
		return nil
	}

	cancelled, err := run.WasCancelled(ctx)
	if err != nil {
		return err
	}
	if cancelled {
		return fmt.Errorf("pipeline run %q was cancelled", run.Name())
	}

	message, err := run.ErrorMessage(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.ErrOrStderr(), color.RedString(message))
	return fmt.Errorf("pipeline run %q failed", run.Name())
}
