// main.go bootstraps buildpipe: it builds the root Cobra command, wires the
// Viper config layer, and executes with a signal-aware context.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/buildpipe/internal/config"
	"github.com/example/buildpipe/internal/openshift"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := config.NewOptions()
	cmd := &cobra.Command{
		Use:           "buildpipe",
		Short:         "Drive and observe Tekton build pipelines on an OpenShift cluster",
		Long:          "buildpipe submits, cancels, and follows PipelineRuns through the cluster API, streaming merged task logs as builds execute.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.Validate()
		},
	}
	opts.AddFlags(cmd)
	cmd.AddCommand(
		newStartCommand(opts),
		newCancelCommand(opts),
		newAnnotateCommand(opts),
		newLogsCommand(opts),
		newWaitCommand(opts),
		newStatusCommand(opts),
	)
	bindViper(cmd)
	return cmd
}

// bindViper layers a config file and BUILDPIPE_* environment variables under
// the command flags. Flags the user set explicitly always win.
func bindViper(root *cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("BUILDPIPE")
	v.AutomaticEnv()
	configFile := os.Getenv("BUILDPIPE_CONFIG")
	configureConfigFile(v, configFile)

	cobra.OnInitialize(func() {
		if err := v.BindPFlags(root.PersistentFlags()); err != nil {
			cobra.CheckErr(err)
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			cobra.CheckErr(err)
		}
		root.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				return
			}
			if !v.IsSet(f.Name) {
				return
			}
			val := fmt.Sprintf("%v", v.Get(f.Name))
			if val != "" {
				_ = f.Value.Set(val)
			}
		})
	})
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func configSearchDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "buildpipe"))
	}
	if home, err := homedir.Dir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "buildpipe"))
	}
	return dirs
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	var authErr *openshift.AuthError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = fmt.Sprintf("%s\nHint: the cluster did not respond in time; verify network connectivity and --cluster-url.", err)
	case errors.As(err, &authErr):
		message = fmt.Sprintf("%s\nHint: the OAuth exchange was rejected. Check --username/--password or supply --token.", err)
	case errors.Is(err, openshift.ErrWatchExhausted):
		message = fmt.Sprintf("%s\nHint: the resource produced no events across the watch budget; the run may be stuck or mislabeled.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
