// File: internal/pipeline/types.go
// Brief: Snapshot documents for PipelineRun and TaskRun resources.

// Package pipeline drives and observes Tekton pipeline executions: lifecycle
// operations, state classification, task-run discovery, and aggregated log
// retrieval. Snapshots are always fetched fresh; the cluster is the single
// source of truth and nothing here caches resource state.
package pipeline

import (
	"encoding/json"
	"sort"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Condition reasons and statuses the controllers interpret. The first
// condition in a run's condition list is authoritative for its phase.
const (
	ConditionTrue    = "True"
	ConditionFalse   = "False"
	ConditionUnknown = "Unknown"

	ReasonSucceeded            = "Succeeded"
	ReasonRunning              = "Running"
	ReasonPipelineRunCancelled = "PipelineRunCancelled"
	ReasonTaskRunCancelled     = "TaskRunCancelled"

	// Spec status written by Cancel.
	cancelStatus = "CancelledRunFinally"
)

// Condition is one structured status entry on a run.
type Condition struct {
	Type    string `json:"type,omitempty"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// ObjectMeta is the slice of resource metadata the engine reads.
type ObjectMeta struct {
	Name        string            `json:"name"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Result is a named pipeline or task result.
type Result struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StepState describes one step container and, once it exited, its
// termination record.
type StepState struct {
	Container  string       `json:"container"`
	Terminated *Termination `json:"terminated,omitempty"`
}

// Termination carries the step exit code and the optional structured message
// Tekton serializes into it.
type Termination struct {
	ExitCode int32  `json:"exitCode"`
	Message  string `json:"message,omitempty"`
}

// TaskRunStatus is the status block of a task run, whether embedded in a
// pipeline run or fetched directly.
type TaskRunStatus struct {
	Conditions     []Condition  `json:"conditions,omitempty"`
	PodName        string       `json:"podName,omitempty"`
	Steps          []StepState  `json:"steps,omitempty"`
	TaskResults    []Result     `json:"taskResults,omitempty"`
	StartTime      *metav1.Time `json:"startTime,omitempty"`
	CompletionTime *metav1.Time `json:"completionTime,omitempty"`
}

// Condition returns the authoritative (first) condition. ok is false while
// the cluster has not yet recorded any status.
func (s TaskRunStatus) Condition() (Condition, bool) {
	if len(s.Conditions) == 0 {
		return Condition{}, false
	}
	return s.Conditions[0], true
}

// EmbeddedTaskRun is one entry of a pipeline run's status.taskRuns map.
type EmbeddedTaskRun struct {
	PipelineTaskName string        `json:"pipelineTaskName"`
	Status           TaskRunStatus `json:"status"`
}

// TaskRunSnapshot is a directly fetched TaskRun document.
type TaskRunSnapshot struct {
	Metadata ObjectMeta    `json:"metadata"`
	Status   TaskRunStatus `json:"status"`
}

// RunStatus is the status block of a pipeline run.
type RunStatus struct {
	Conditions      []Condition                `json:"conditions,omitempty"`
	TaskRuns        map[string]EmbeddedTaskRun `json:"taskRuns,omitempty"`
	PipelineResults []Result                   `json:"pipelineResults,omitempty"`
}

// RunSnapshot is one fresh read of a PipelineRun. Constructed per call and
// discarded after use; every read is a full replace, never a merge.
type RunSnapshot struct {
	Metadata ObjectMeta `json:"metadata"`
	Status   RunStatus  `json:"status"`
}

// Condition returns the authoritative (first) condition of the run. An
// absent condition list means "not yet observed", not "failed".
func (s *RunSnapshot) Condition() (Condition, bool) {
	if len(s.Status.Conditions) == 0 {
		return Condition{}, false
	}
	return s.Status.Conditions[0], true
}

// Succeeded reports whether the run finished successfully.
func (s *RunSnapshot) Succeeded() bool {
	cond, ok := s.Condition()
	return ok && cond.Reason == ReasonSucceeded
}

// NotFinished reports whether the run is still in flight: status Unknown and
// not in the middle of a cancellation.
func (s *RunSnapshot) NotFinished() bool {
	cond, ok := s.Condition()
	if !ok {
		return false
	}
	return cond.Status == ConditionUnknown && cond.Reason != ReasonPipelineRunCancelled
}

// Cancelled reports whether the run was cancelled.
func (s *RunSnapshot) Cancelled() bool {
	cond, ok := s.Condition()
	return ok && cond.Reason == ReasonPipelineRunCancelled
}

// AnyTaskFailed reports whether at least one task run genuinely failed:
// condition status explicitly negative, reason other than cancellation, and
// a recorded completion time. The completion-time guard keeps an in-flight
// task from being classified as failed.
func (s *RunSnapshot) AnyTaskFailed() bool {
	return s.anyTaskRun(func(cond Condition, completed bool) bool {
		return cond.Status == ConditionFalse && cond.Reason != ReasonTaskRunCancelled && completed
	})
}

// AnyTaskCancelled reports whether at least one task run was cancelled or is
// being cancelled right now.
func (s *RunSnapshot) AnyTaskCancelled() bool {
	return s.anyTaskRun(func(cond Condition, completed bool) bool {
		return cond.Reason == ReasonTaskRunCancelled
	})
}

func (s *RunSnapshot) anyTaskRun(match func(cond Condition, completed bool) bool) bool {
	for _, tr := range s.Status.TaskRuns {
		cond, ok := tr.Status.Condition()
		if !ok {
			continue
		}
		if match(cond, tr.Status.CompletionTime != nil) {
			return true
		}
	}
	return false
}

// FinalPlatforms scans task runs in start order for the first succeeded
// prebuild task and returns its declared platform list, or nil when absent.
func (s *RunSnapshot) FinalPlatforms() []string {
	for _, tr := range s.SortedTaskRuns() {
		if tr.PipelineTaskName != prebuildTaskName {
			continue
		}
		cond, ok := tr.Status.Condition()
		if !ok || cond.Reason != ReasonSucceeded {
			continue
		}
		for _, result := range tr.Status.TaskResults {
			if result.Name != platformsResultName {
				continue
			}
			var platforms []string
			if err := json.Unmarshal([]byte(result.Value), &platforms); err != nil {
				return nil
			}
			return platforms
		}
	}
	return nil
}

const (
	prebuildTaskName    = "binary-container-prebuild"
	platformsResultName = "platforms_result"
)

// NamedTaskRun pairs a task run with its resource name for ordered scans.
type NamedTaskRun struct {
	Name string
	EmbeddedTaskRun
}

// SortedTaskRuns returns the run's task runs ordered by ascending start
// time. Ties break by resource name so ordering is stable within one
// snapshot.
func (s *RunSnapshot) SortedTaskRuns() []NamedTaskRun {
	out := make([]NamedTaskRun, 0, len(s.Status.TaskRuns))
	for name, tr := range s.Status.TaskRuns {
		out = append(out, NamedTaskRun{Name: name, EmbeddedTaskRun: tr})
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Status.StartTime, out[j].Status.StartTime
		switch {
		case ti == nil && tj == nil:
			return out[i].Name < out[j].Name
		case ti == nil:
			return true
		case tj == nil:
			return false
		case ti.Time.Equal(tj.Time):
			return out[i].Name < out[j].Name
		default:
			return ti.Time.Before(tj.Time)
		}
	})
	return out
}
