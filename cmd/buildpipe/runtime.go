// runtime.go assembles the shared client, watch engine, and run controller
// subcommands operate on.
package main

import (
	"github.com/go-logr/logr"

	"github.com/example/buildpipe/internal/config"
	"github.com/example/buildpipe/internal/logging"
	"github.com/example/buildpipe/internal/openshift"
	"github.com/example/buildpipe/internal/pipeline"
	"github.com/example/buildpipe/internal/podlogs"
)

type runtime struct {
	log     logr.Logger
	client  *openshift.Client
	watcher *openshift.WatchEngine
	opts    *config.Options
}

func newRuntime(opts *config.Options) (*runtime, error) {
	log, err := logging.New(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	client, err := openshift.NewClient(opts.ClientConfig(), log)
	if err != nil {
		return nil, err
	}
	watcher := openshift.NewWatchEngine(client, log,
		openshift.WithWatchBounds(opts.WatchAttempts, opts.WatchDelay))
	return &runtime{log: log, client: client, watcher: watcher, opts: opts}, nil
}

func (rt *runtime) run(name string, runOpts ...pipeline.RunOption) *pipeline.Run {
	runOpts = append(runOpts,
		pipeline.WithPodLogOptions(podlogs.WithIdleThreshold(rt.opts.IdleThreshold)))
	return pipeline.NewRun(rt.client, rt.watcher, name, rt.log, runOpts...)
}
