// cancel.go requests final cancellation of a running pipeline.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/buildpipe/internal/config"
)

func newCancelCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel NAME",
		Short: "Cancel a running pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			snap, err := rt.run(args[0]).Cancel(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline run %s cancellation requested\n", snap.Metadata.Name)
			return nil
		},
	}
}
