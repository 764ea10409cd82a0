// File: internal/pipeline/pipelinerun.go
// Brief: Lifecycle operations and state interpretation for one PipelineRun.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/example/buildpipe/internal/openshift"
	"github.com/example/buildpipe/internal/podlogs"
)

// Finish polling bounds: check every 5 seconds for up to 5 hours. Log
// streams usually end slightly before the run's status flips, so callers
// poll the status out rather than trusting the stream's end.
const (
	finishPollInterval = 5 * time.Second
	finishPollTimeout  = 5 * time.Hour
)

// Annotation carrying structured plugin error reports.
const pluginsMetadataAnnotation = "plugins-metadata"

// Run drives one PipelineRun: submission, cancellation, annotation, state
// classification, task-run discovery, and log aggregation. All reads fetch a
// fresh snapshot; nothing is cached between calls.
type Run struct {
	client  *openshift.Client
	watcher *openshift.WatchEngine
	log     logr.Logger

	name     string
	manifest []byte

	retry openshift.ConflictRetry

	runURL    string
	podOption []podlogs.Option
}

// RunOption adjusts Run construction.
type RunOption func(*Run)

// WithManifest supplies the PipelineRun manifest Start submits. JSON form;
// its metadata.name must match the run name.
func WithManifest(manifest []byte) RunOption {
	return func(r *Run) { r.manifest = manifest }
}

// WithConflictRetry overrides the write conflict policy.
func WithConflictRetry(policy openshift.ConflictRetry) RunOption {
	return func(r *Run) { r.retry = policy }
}

// WithPodLogOptions forwards options to the pod log streamers this run
// creates, e.g. a different idle threshold.
func WithPodLogOptions(opts ...podlogs.Option) RunOption {
	return func(r *Run) { r.podOption = opts }
}

// NewRun builds a controller for the named PipelineRun.
func NewRun(client *openshift.Client, watcher *openshift.WatchEngine, name string, log logr.Logger, opts ...RunOption) *Run {
	r := &Run{
		client:  client,
		watcher: watcher,
		log:     log,
		name:    name,
		retry:   openshift.DefaultConflictRetry(),
	}
	r.runURL = client.URL.Resource(openshift.GroupAPIRoot, openshift.TektonAPIVersion,
		"pipelineruns/"+name, nil)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the run's resource name.
func (r *Run) Name() string { return r.name }

// minimalPatch is the merge-patch skeleton shared by Cancel and Annotate.
func (r *Run) minimalPatch() map[string]any {
	return map[string]any{
		"apiVersion": "tekton.dev/v1beta1",
		"kind":       "PipelineRun",
		"metadata":   map[string]any{"name": r.name},
		"spec":       map[string]any{},
	}
}

// Start submits the run's manifest. The manifest's declared name must agree
// with the controller's target name; both checks fail before any network
// call.
func (r *Run) Start(ctx context.Context) (*RunSnapshot, error) {
	if len(r.manifest) == 0 {
		return nil, &openshift.ConfigError{Reason: "no input data provided for pipeline run to start"}
	}
	var declared struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(r.manifest, &declared); err != nil {
		return nil, &openshift.ConfigError{Reason: fmt.Sprintf("pipeline run manifest is not valid JSON: %v", err)}
	}
	if declared.Metadata.Name != r.name {
		return nil, &openshift.ConfigError{Reason: fmt.Sprintf(
			"pipeline run name provided %q is different than in input data %q",
			r.name, declared.Metadata.Name)}
	}

	url := r.client.URL.Resource(openshift.GroupAPIRoot, openshift.TektonAPIVersion, "pipelineruns", nil)
	var snap RunSnapshot
	if err := r.client.PostJSON(ctx, url, r.manifest, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Cancel requests final cancellation of the run via an idempotent merge
// patch, retrying write conflicts up to the policy bound. Cancelling a run
// that does not exist is an error.
func (r *Run) Cancel(ctx context.Context) (*RunSnapshot, error) {
	patch := r.minimalPatch()
	patch["spec"].(map[string]any)["status"] = cancelStatus

	var snap RunSnapshot
	err := r.retry.Do(ctx, r.log, "cancel pipeline run "+r.name, func() error {
		return r.client.PatchJSON(ctx, r.runURL, patch, &snap)
	})
	if err != nil {
		if openshift.IsNotFound(err) {
			return nil, &openshift.NotFoundError{Kind: "pipelinerun", Name: r.name}
		}
		return nil, fmt.Errorf("cancel pipeline run %q: %w", r.name, err)
	}
	return &snap, nil
}

// Annotate merge-patches metadata annotations onto the run, under the same
// conflict-retry and not-found policy as Cancel.
func (r *Run) Annotate(ctx context.Context, annotations map[string]string) (*RunSnapshot, error) {
	patch := r.minimalPatch()
	patch["metadata"].(map[string]any)["annotations"] = annotations

	var snap RunSnapshot
	err := r.retry.Do(ctx, r.log, "annotate pipeline run "+r.name, func() error {
		return r.client.PatchJSON(ctx, r.runURL, patch, &snap)
	})
	if err != nil {
		if openshift.IsNotFound(err) {
			return nil, &openshift.NotFoundError{Kind: "pipelinerun", Name: r.name}
		}
		return nil, fmt.Errorf("update annotations on pipeline run %q: %w", r.name, err)
	}
	return &snap, nil
}

// Remove deletes the run.
func (r *Run) Remove(ctx context.Context) error {
	if err := r.client.Delete(ctx, r.runURL, nil); err != nil {
		return fmt.Errorf("remove pipeline run %q: %w", r.name, err)
	}
	return nil
}

// Get fetches a fresh snapshot of the run.
func (r *Run) Get(ctx context.Context) (*RunSnapshot, error) {
	var snap RunSnapshot
	if err := r.client.GetJSON(ctx, r.runURL, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// HasSucceeded fetches a fresh snapshot and reports success.
func (r *Run) HasSucceeded(ctx context.Context) (bool, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return false, err
	}
	return snap.Succeeded(), nil
}

// HasNotFinished fetches a fresh snapshot and reports whether the run is
// still in flight.
func (r *Run) HasNotFinished(ctx context.Context) (bool, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return false, err
	}
	return snap.NotFinished(), nil
}

// WasCancelled fetches a fresh snapshot and reports cancellation.
func (r *Run) WasCancelled(ctx context.Context) (bool, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return false, err
	}
	return snap.Cancelled(), nil
}

// AnyTaskFailed fetches a fresh snapshot and reports whether any task run
// genuinely failed.
func (r *Run) AnyTaskFailed(ctx context.Context) (bool, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return false, err
	}
	return snap.AnyTaskFailed(), nil
}

// AnyTaskCancelled fetches a fresh snapshot and reports whether any task run
// was cancelled.
func (r *Run) AnyTaskCancelled(ctx context.Context) (bool, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return false, err
	}
	return snap.AnyTaskCancelled(), nil
}

// PipelineResults fetches a fresh snapshot and returns the run's declared
// results.
func (r *Run) PipelineResults(ctx context.Context) ([]Result, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Status.PipelineResults, nil
}

// Annotations fetches a fresh snapshot and returns the run's annotations.
func (r *Run) Annotations(ctx context.Context) (map[string]string, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Metadata.Annotations, nil
}

// ErrorMessage aggregates everything actionable about a failed run: plugin
// errors reported via the plugins-metadata annotation, plus per-task
// task_result messages from steps terminated with a nonzero exit, tasks in
// start order. Always non-empty; a run with nothing to report gets the
// generic fallback.
func (r *Run) ErrorMessage(ctx context.Context) (string, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return "", err
	}
	return errorMessage(snap, r.log), nil
}

func errorMessage(snap *RunSnapshot, log logr.Logger) string {
	var b strings.Builder

	if raw := snap.Metadata.Annotations[pluginsMetadataAnnotation]; raw != "" {
		var meta struct {
			Errors map[string]string `json:"errors"`
		}
		if err := json.Unmarshal([]byte(raw), &meta); err == nil {
			for _, plugin := range sortedKeys(meta.Errors) {
				fmt.Fprintf(&b, "Error in plugin %s: %s;\n", plugin, meta.Errors[plugin])
			}
		}
	}

	for _, tr := range snap.SortedTaskRuns() {
		cond, ok := tr.Status.Condition()
		if ok && cond.Reason == ReasonSucceeded {
			continue
		}
		for _, step := range tr.Status.Steps {
			if step.Terminated == nil || step.Terminated.ExitCode == 0 {
				continue
			}
			if step.Terminated.Message == "" {
				continue
			}
			var results []struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := json.Unmarshal([]byte(step.Terminated.Message), &results); err != nil {
				log.Info("failed to get error message", "error", err.Error())
				continue
			}
			for _, result := range results {
				if result.Key == "task_result" {
					fmt.Fprintf(&b, "Error in %s: %s;\n", tr.PipelineTaskName, result.Value)
				}
			}
		}
	}

	if b.Len() == 0 {
		return "pipeline run failed;"
	}
	return b.String()
}

// FinalPlatforms fetches a fresh snapshot and returns the platform list
// declared by the succeeded prebuild task, or nil.
func (r *Run) FinalPlatforms(ctx context.Context) ([]string, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	return snap.FinalPlatforms(), nil
}

// WaitForStart consumes the run watch until the condition list is non-empty
// and either resolved or actively running; transient states pass silently.
func (r *Run) WaitForStart(ctx context.Context) (*RunSnapshot, error) {
	r.log.Info("waiting for pipeline run to start", "pipelinerun", r.name)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream := r.watcher.Watch(ctx, openshift.GroupAPIRoot, openshift.TektonAPIVersion, "pipelineruns", r.name)
	for raw := range stream.Snapshots() {
		var snap RunSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			r.log.V(1).Info("cannot decode pipeline run snapshot", "error", err.Error())
			continue
		}
		cond, ok := snap.Condition()
		if !ok {
			r.log.V(1).Info("pipeline run does not have any status yet", "pipelinerun", r.name)
			continue
		}
		if cond.Status == ConditionTrue || cond.Status == ConditionFalse ||
			(cond.Status == ConditionUnknown && cond.Reason == ReasonRunning) {
			r.log.Info("pipeline run started", "pipelinerun", r.name)
			return &snap, nil
		}
		// (Unknown, Started), (Unknown, PipelineRunCancelled) while starting.
		r.log.V(1).Info("waiting for pipeline run", "status", cond.Status, "reason", cond.Reason)
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("waiting for pipeline run %q to start: %w", r.name, err)
	}
	return nil, fmt.Errorf("waiting for pipeline run %q to start: %w", r.name, openshift.ErrWatchExhausted)
}

// WaitForFinish polls the run until it is no longer in flight. Use after log
// streaming ends; the status flip can lag the stream slightly.
func (r *Run) WaitForFinish(ctx context.Context) error {
	err := wait.PollUntilContextTimeout(ctx, finishPollInterval, finishPollTimeout, true,
		func(ctx context.Context) (bool, error) {
			notFinished, err := r.HasNotFinished(ctx)
			if err != nil {
				return false, err
			}
			if notFinished {
				r.log.Info("waiting for pipeline run to finish", "pipelinerun", r.name)
				return false, nil
			}
			return true, nil
		})
	if err != nil {
		return fmt.Errorf("waiting for pipeline run %q to finish: %w", r.name, err)
	}
	r.log.Info("pipeline run finished", "pipelinerun", r.name)
	return nil
}

// TaskRunRef names one task run discovered inside a pipeline run.
type TaskRunRef struct {
	PipelineTask string
	Name         string
}

// TaskRunStream is a lazy sequence of batches of newly discovered task runs.
// Each call to WatchTaskRuns starts a fresh stream with its own dedup set;
// streams are not resumable mid-flight.
type TaskRunStream struct {
	ch  chan []TaskRunRef
	err error
}

// Batches yields newly discovered (pipelineTask, taskRun) pairs. The channel
// closes once the pipeline's own condition resolves, its status disappears
// after task runs were seen, or the watch ends.
func (s *TaskRunStream) Batches() <-chan []TaskRunRef { return s.ch }

// Err reports a terminal watch failure after Batches closes.
func (s *TaskRunStream) Err() error { return s.err }

// WatchTaskRuns discovers task runs as the cluster records them. The
// pipeline run does not know all of its task runs up front, especially with
// sequential tasks, so discovery has to ride the watch.
func (r *Run) WatchTaskRuns(ctx context.Context) *TaskRunStream {
	stream := &TaskRunStream{ch: make(chan []TaskRunRef)}
	ctx, cancel := context.WithCancel(ctx)
	watch := r.watcher.Watch(ctx, openshift.GroupAPIRoot, openshift.TektonAPIVersion, "pipelineruns", r.name)

	go func() {
		defer close(stream.ch)
		defer cancel()
		seen := make(map[string]struct{})
		for raw := range watch.Snapshots() {
			var snap RunSnapshot
			if err := json.Unmarshal(raw, &snap); err != nil {
				r.log.V(1).Info("cannot decode pipeline run snapshot", "error", err.Error())
				continue
			}
			if len(snap.Status.TaskRuns) == 0 {
				r.log.V(1).Info("pipeline run does not have any task runs yet", "pipelinerun", r.name)
				continue
			}

			var batch []TaskRunRef
			for _, tr := range snap.SortedTaskRuns() {
				if _, ok := seen[tr.Name]; ok {
					continue
				}
				seen[tr.Name] = struct{}{}
				batch = append(batch, TaskRunRef{PipelineTask: tr.PipelineTaskName, Name: tr.Name})
			}
			if len(batch) > 0 {
				select {
				case stream.ch <- batch:
				case <-ctx.Done():
					return
				}
			}

			cond, ok := snap.Condition()
			if !ok {
				// The status block disappeared; nothing further to discover.
				r.log.V(1).Info("pipeline run lost its status", "pipelinerun", r.name)
				return
			}
			if cond.Status == ConditionTrue || cond.Status == ConditionFalse {
				return
			}
		}
		stream.err = watch.Err()
	}()
	return stream
}

// LogLine is one line of a task's log, tagged with its pipeline task name.
type LogLine struct {
	Task string
	Line string
}

// TaskLogs holds one task's finished logs, keyed by step container.
type TaskLogs struct {
	Task       string
	Containers map[string]string
}

// Logs fetches every task's logs once, tasks in start order. Resolution is
// all plain GETs; a finished run's logs come back without waiting.
func (r *Run) Logs(ctx context.Context) ([]TaskLogs, error) {
	snap, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	var logs []TaskLogs
	for _, tr := range snap.SortedTaskRuns() {
		taskRun := NewTaskRun(r.client, r.watcher, tr.Name, r.log, r.podOption...)
		containerLogs, err := taskRun.Logs(ctx)
		if err != nil {
			return nil, err
		}
		logs = append(logs, TaskLogs{Task: tr.PipelineTaskName, Containers: containerLogs})
	}
	return logs, nil
}

// LogStream is the merged multi-task live log: per-task streams joined into
// one channel. Line order within one task is preserved; no ordering holds
// across tasks.
type LogStream struct {
	ch   chan LogLine
	wait func() error
}

// Lines yields (task, line) pairs until discovery and every task stream end.
func (s *LogStream) Lines() <-chan LogLine { return s.ch }

// Err blocks until the stream has fully drained and reports the first
// failure, if any. Call after Lines closes.
func (s *LogStream) Err() error { return s.wait() }

// StreamLogs blocks until the run has started, then follows all task logs:
// task runs discovered incrementally join the merge as their streams come
// up, and the merge ends when discovery and every stream are exhausted.
func (r *Run) StreamLogs(ctx context.Context) (*LogStream, error) {
	if _, err := r.WaitForStart(ctx); err != nil {
		return nil, err
	}

	out := make(chan LogLine)
	group, ctx := errgroup.WithContext(ctx)
	discovery := r.WatchTaskRuns(ctx)

	group.Go(func() error {
		for batch := range discovery.Batches() {
			for _, ref := range batch {
				ref := ref
				group.Go(func() error {
					return r.streamTask(ctx, ref, out)
				})
			}
		}
		return discovery.Err()
	})

	stream := &LogStream{ch: out}
	done := make(chan error, 1)
	go func() {
		err := group.Wait()
		close(out)
		done <- err
	}()
	stream.wait = func() error { return <-done }
	return stream, nil
}

func (r *Run) streamTask(ctx context.Context, ref TaskRunRef, out chan<- LogLine) error {
	taskRun := NewTaskRun(r.client, r.watcher, ref.Name, r.log, r.podOption...)
	lines, errFn, err := taskRun.StreamLogs(ctx)
	if err != nil {
		return fmt.Errorf("stream logs of task %q: %w", ref.PipelineTask, err)
	}
	for line := range lines {
		select {
		case out <- LogLine{Task: ref.PipelineTask, Line: line}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := errFn(); err != nil {
		return fmt.Errorf("stream logs of task %q: %w", ref.PipelineTask, err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
