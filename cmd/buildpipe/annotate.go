// annotate.go merge-patches metadata annotations onto a pipeline run.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/buildpipe/internal/config"
)

func newAnnotateCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "annotate NAME KEY=VALUE [KEY=VALUE...]",
		Short: "Set annotations on a pipeline run",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			annotations := make(map[string]string, len(args)-1)
			for _, arg := range args[1:] {
				parts := strings.SplitN(arg, "=", 2)
				if len(parts) != 2 || parts[0] == "" {
					return fmt.Errorf("invalid annotation %q (expected KEY=VALUE)", arg)
				}
				annotations[parts[0]] = parts[1]
			}
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			if _, err := rt.run(args[0]).Annotate(cmd.Context(), annotations); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline run %s annotated\n", args[0])
			return nil
		},
	}
}
