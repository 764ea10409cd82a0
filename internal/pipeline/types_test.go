// types_test.go covers snapshot state classification and task-run ordering.
package pipeline

import (
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func runWith(cond ...Condition) *RunSnapshot {
	return &RunSnapshot{Status: RunStatus{Conditions: cond}}
}

func metaTime(offset time.Duration) *metav1.Time {
	t := metav1.NewTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(offset))
	return &t
}

func TestRunClassification(t *testing.T) {
	cases := []struct {
		name        string
		snap        *RunSnapshot
		succeeded   bool
		notFinished bool
		cancelled   bool
	}{
		{
			name:        "no status yet",
			snap:        runWith(),
			notFinished: false,
		},
		{
			name:        "running",
			snap:        runWith(Condition{Status: ConditionUnknown, Reason: ReasonRunning}),
			notFinished: true,
		},
		{
			name:      "succeeded",
			snap:      runWith(Condition{Status: ConditionTrue, Reason: ReasonSucceeded}),
			succeeded: true,
		},
		{
			name: "failed",
			snap: runWith(Condition{Status: ConditionFalse, Reason: "Failed"}),
		},
		{
			name:      "cancellation in progress",
			snap:      runWith(Condition{Status: ConditionUnknown, Reason: ReasonPipelineRunCancelled}),
			cancelled: true,
		},
		{
			name:      "cancelled terminal",
			snap:      runWith(Condition{Status: ConditionFalse, Reason: ReasonPipelineRunCancelled}),
			cancelled: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.snap.Succeeded(); got != tc.succeeded {
				t.Fatalf("Succeeded() = %v, want %v", got, tc.succeeded)
			}
			if got := tc.snap.NotFinished(); got != tc.notFinished {
				t.Fatalf("NotFinished() = %v, want %v", got, tc.notFinished)
			}
			if got := tc.snap.Cancelled(); got != tc.cancelled {
				t.Fatalf("Cancelled() = %v, want %v", got, tc.cancelled)
			}
		})
	}
}

func TestAnyTaskFailedRequiresCompletion(t *testing.T) {
	failed := EmbeddedTaskRun{
		PipelineTaskName: "build",
		Status: TaskRunStatus{
			Conditions:     []Condition{{Status: ConditionFalse, Reason: "Failed"}},
			CompletionTime: metaTime(time.Minute),
		},
	}
	inFlight := failed
	inFlight.Status.CompletionTime = nil
	cancelled := EmbeddedTaskRun{
		PipelineTaskName: "build",
		Status: TaskRunStatus{
			Conditions:     []Condition{{Status: ConditionFalse, Reason: ReasonTaskRunCancelled}},
			CompletionTime: metaTime(time.Minute),
		},
	}

	cases := []struct {
		name         string
		taskRun      EmbeddedTaskRun
		anyFailed    bool
		anyCancelled bool
	}{
		{"failed and completed", failed, true, false},
		{"negative but still running", inFlight, false, false},
		{"cancelled counts separately", cancelled, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := &RunSnapshot{Status: RunStatus{
				TaskRuns: map[string]EmbeddedTaskRun{"tr": tc.taskRun},
			}}
			if got := snap.AnyTaskFailed(); got != tc.anyFailed {
				t.Fatalf("AnyTaskFailed() = %v, want %v", got, tc.anyFailed)
			}
			if got := snap.AnyTaskCancelled(); got != tc.anyCancelled {
				t.Fatalf("AnyTaskCancelled() = %v, want %v", got, tc.anyCancelled)
			}
		})
	}
}

func TestSortedTaskRunsOrdersByStartTime(t *testing.T) {
	snap := &RunSnapshot{Status: RunStatus{TaskRuns: map[string]EmbeddedTaskRun{
		"run-z": {PipelineTaskName: "first", Status: TaskRunStatus{StartTime: metaTime(0)}},
		"run-a": {PipelineTaskName: "third", Status: TaskRunStatus{StartTime: metaTime(2 * time.Minute)}},
		"run-m": {PipelineTaskName: "second", Status: TaskRunStatus{StartTime: metaTime(time.Minute)}},
		"run-b": {PipelineTaskName: "tie", Status: TaskRunStatus{StartTime: metaTime(time.Minute)}},
	}}}

	got := snap.SortedTaskRuns()
	want := []string{"run-z", "run-b", "run-m", "run-a"}
	if len(got) != len(want) {
		t.Fatalf("expected %d task runs, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("position %d: want %q, got %q", i, name, got[i].Name)
		}
	}
}

func TestFinalPlatforms(t *testing.T) {
	prebuild := func(reason, value string) EmbeddedTaskRun {
		return EmbeddedTaskRun{
			PipelineTaskName: "binary-container-prebuild",
			Status: TaskRunStatus{
				Conditions:  []Condition{{Status: ConditionTrue, Reason: reason}},
				TaskResults: []Result{{Name: "platforms_result", Value: value}},
			},
		}
	}

	t.Run("succeeded prebuild yields platforms", func(t *testing.T) {
		snap := &RunSnapshot{Status: RunStatus{TaskRuns: map[string]EmbeddedTaskRun{
			"tr": prebuild(ReasonSucceeded, `["x86_64","aarch64"]`),
		}}}
		got := snap.FinalPlatforms()
		if len(got) != 2 || got[0] != "x86_64" || got[1] != "aarch64" {
			t.Fatalf("unexpected platforms: %v", got)
		}
	})
	t.Run("unsucceeded prebuild is ignored", func(t *testing.T) {
		snap := &RunSnapshot{Status: RunStatus{TaskRuns: map[string]EmbeddedTaskRun{
			"tr": prebuild("Failed", `["x86_64"]`),
		}}}
		if got := snap.FinalPlatforms(); got != nil {
			t.Fatalf("expected nil platforms, got %v", got)
		}
	})
	t.Run("malformed result yields nil", func(t *testing.T) {
		snap := &RunSnapshot{Status: RunStatus{TaskRuns: map[string]EmbeddedTaskRun{
			"tr": prebuild(ReasonSucceeded, "not json"),
		}}}
		if got := snap.FinalPlatforms(); got != nil {
			t.Fatalf("expected nil platforms, got %v", got)
		}
	})
}
