// start.go submits a PipelineRun manifest and optionally follows it to
// completion.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/example/buildpipe/internal/config"
	"github.com/example/buildpipe/internal/pipeline"
)

func newStartCommand(opts *config.Options) *cobra.Command {
	var manifestPath string
	var follow bool
	cmd := &cobra.Command{
		Use:   "start NAME",
		Short: "Submit a PipelineRun manifest to the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			manifest, err := loadManifest(manifestPath)
			if err != nil {
				return err
			}
			run := rt.run(args[0], pipeline.WithManifest(manifest))

			snap, err := run.Start(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline run %s created\n", snap.Metadata.Name)
			if !follow {
				return nil
			}
			if err := followRun(cmd, run); err != nil {
				return err
			}
			return reportOutcome(cmd, run)
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "Path to the PipelineRun manifest (YAML or JSON)")
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream task logs and wait for the run to finish")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// loadManifest reads a YAML or JSON manifest and normalizes it to JSON, the
// form the API accepts.
func loadManifest(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %q: %w", path, err)
	}
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %q: %w", path, err)
	}
	return jsonData, nil
}
