// File: internal/pipeline/taskrun.go
// Brief: State tracking and log access for one TaskRun.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/example/buildpipe/internal/openshift"
	"github.com/example/buildpipe/internal/podlogs"
)

// TaskRun tracks one task run and resolves its pod for log access.
type TaskRun struct {
	client  *openshift.Client
	watcher *openshift.WatchEngine
	log     logr.Logger

	name      string
	url       string
	podOption []podlogs.Option
}

// NewTaskRun builds a controller for the named TaskRun. Pod log options are
// forwarded to the streamers it creates.
func NewTaskRun(client *openshift.Client, watcher *openshift.WatchEngine, name string, log logr.Logger, podOpts ...podlogs.Option) *TaskRun {
	return &TaskRun{
		client:  client,
		watcher: watcher,
		log:     log,
		name:    name,
		url: client.URL.Resource(openshift.GroupAPIRoot, openshift.TektonAPIVersion,
			"taskruns/"+name, nil),
		podOption: podOpts,
	}
}

// Name returns the task run's resource name.
func (t *TaskRun) Name() string { return t.name }

// Get fetches a fresh snapshot of the task run.
func (t *TaskRun) Get(ctx context.Context) (*TaskRunSnapshot, error) {
	var snap TaskRunSnapshot
	if err := t.client.GetJSON(ctx, t.url, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// WaitForStart consumes the task run watch until the condition list is
// non-empty and either resolved or actively running.
func (t *TaskRun) WaitForStart(ctx context.Context) (*TaskRunSnapshot, error) {
	t.log.Info("waiting for task run to start", "taskrun", t.name)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream := t.watcher.Watch(ctx, openshift.GroupAPIRoot, openshift.TektonAPIVersion, "taskruns", t.name)
	for raw := range stream.Snapshots() {
		var snap TaskRunSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			t.log.V(1).Info("cannot decode task run snapshot", "error", err.Error())
			continue
		}
		cond, ok := snap.Status.Condition()
		if !ok {
			t.log.V(1).Info("task run does not have any status yet", "taskrun", t.name)
			continue
		}
		if cond.Status == ConditionTrue || cond.Status == ConditionFalse ||
			(cond.Status == ConditionUnknown && cond.Reason == ReasonRunning) {
			return &snap, nil
		}
		// (Unknown, Started) and (Unknown, Pending) while scheduling.
		t.log.V(1).Info("waiting for task run", "status", cond.Status, "reason", cond.Reason)
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("waiting for task run %q to start: %w", t.name, err)
	}
	return nil, fmt.Errorf("waiting for task run %q to start: %w", t.name, openshift.ErrWatchExhausted)
}

// streamerFrom builds a pod log streamer over the snapshot's pod and its
// step containers in declared order.
func (t *TaskRun) streamerFrom(snap *TaskRunSnapshot) (*podlogs.Streamer, error) {
	if snap.Status.PodName == "" {
		return nil, &openshift.ProtocolError{
			Op:     "resolve pod for task run " + t.name,
			Detail: "task run reports no pod name",
		}
	}
	containers := make([]string, 0, len(snap.Status.Steps))
	for _, step := range snap.Status.Steps {
		containers = append(containers, step.Container)
	}
	return podlogs.NewStreamer(t.client, t.watcher, snap.Status.PodName, containers, t.log, t.podOption...), nil
}

// Logs fetches the task's logs once, keyed by step container. The pod is
// resolved with a plain GET; the task run must already have one. Nothing
// here waits, so a finished run's logs come back immediately.
func (t *TaskRun) Logs(ctx context.Context) (map[string]string, error) {
	snap, err := t.Get(ctx)
	if err != nil {
		return nil, err
	}
	s, err := t.streamerFrom(snap)
	if err != nil {
		return nil, err
	}
	return s.Logs(ctx)
}

// StreamLogs waits for the task run to start, then follows its pod logs,
// step containers in order. The returned func reports the stream's terminal
// error once the channel closes.
func (t *TaskRun) StreamLogs(ctx context.Context) (<-chan string, func() error, error) {
	snap, err := t.WaitForStart(ctx)
	if err != nil {
		return nil, nil, err
	}
	s, err := t.streamerFrom(snap)
	if err != nil {
		return nil, nil, err
	}
	return s.Stream(ctx)
}
