// logs.go prints or follows a run's task logs, one color per task.
package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/buildpipe/internal/config"
	"github.com/example/buildpipe/internal/pipeline"
)

var taskPalette = []color.Attribute{
	color.FgCyan,
	color.FgGreen,
	color.FgYellow,
	color.FgMagenta,
	color.FgBlue,
	color.FgRed,
}

func newLogsCommand(opts *config.Options) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs NAME",
		Short: "Print or stream the logs of a pipeline run's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			run := rt.run(args[0])
			if follow {
				return followRun(cmd, run)
			}
			return printLogs(cmd, run)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow logs as tasks execute")
	return cmd
}

// followRun merges the live task streams onto stdout, each line prefixed
// with its task name.
func followRun(cmd *cobra.Command, run *pipeline.Run) error {
	stream, err := run.StreamLogs(cmd.Context())
	if err != nil {
		return err
	}
	colors := make(map[string]*color.Color)
	next := 0
	for line := range stream.Lines() {
		prefix, ok := colors[line.Task]
		if !ok {
			prefix = color.New(taskPalette[next%len(taskPalette)])
			colors[line.Task] = prefix
			next++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", prefix.Sprintf("[%s]", line.Task), line.Line)
	}
	return stream.Err()
}

// printLogs dumps the finished logs, tasks in start order, containers
// grouped under their task.
func printLogs(cmd *cobra.Command, run *pipeline.Run) error {
	logs, err := run.Logs(cmd.Context())
	if err != nil {
		return err
	}
	for _, task := range logs {
		containers := make([]string, 0, len(task.Containers))
		for container := range task.Containers {
			containers = append(containers, container)
		}
		sort.Strings(containers)
		for _, container := range containers {
			fmt.Fprintf(cmd.OutOrStdout(), "--- %s/%s ---\n%s", task.Task, container, task.Containers[container])
		}
	}
	return nil
}
