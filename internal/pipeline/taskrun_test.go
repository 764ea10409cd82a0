// taskrun_test.go covers task run start detection and pod resolution.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr"

	"github.com/example/buildpipe/internal/openshift"
)

const (
	taskRunPath      = "/apis/tekton.dev/v1beta1/namespaces/builds/taskruns/demo-build"
	taskRunWatchPath = "/apis/tekton.dev/v1beta1/watch/namespaces/builds/taskruns/demo-build"
)

func taskRunJSON(status, reason, podName string) string {
	return fmt.Sprintf(`{"metadata":{"name":"demo-build"},"status":{"conditions":[{"status":%q,"reason":%q}],"podName":%q}}`,
		status, reason, podName)
}

func TestTaskRunWaitForStartPassesPending(t *testing.T) {
	var gets atomic.Int64
	client, watcher := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case taskRunWatchPath:
			w.Write([]byte(`{"type":"MODIFIED","object":{}}` + "\n"))
			w.Write([]byte(`{"type":"MODIFIED","object":{}}` + "\n"))
		case taskRunPath:
			if gets.Add(1) == 1 {
				fmt.Fprint(w, taskRunJSON("Unknown", "Pending", ""))
				return
			}
			fmt.Fprint(w, taskRunJSON("Unknown", "Running", "build-pod"))
		default:
			http.NotFound(w, r)
		}
	}))

	tr := NewTaskRun(client, watcher, "demo-build", logr.Discard())
	snap, err := tr.WaitForStart(context.Background())
	if err != nil {
		t.Fatalf("WaitForStart returned error: %v", err)
	}
	if snap.Status.PodName != "build-pod" {
		t.Fatalf("expected the running snapshot, got %+v", snap.Status)
	}
	if gets.Load() != 2 {
		t.Fatalf("expected the pending snapshot to be passed over, got %d fetches", gets.Load())
	}
}

func TestTaskRunWithoutPodIsProtocolError(t *testing.T) {
	client, watcher := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case taskRunWatchPath:
			t.Errorf("one-shot Logs must not open a watch")
			w.WriteHeader(http.StatusOK)
		case taskRunPath:
			fmt.Fprint(w, taskRunJSON("True", "Succeeded", ""))
		default:
			http.NotFound(w, r)
		}
	}))

	tr := NewTaskRun(client, watcher, "demo-build", logr.Discard())
	_, err := tr.Logs(context.Background())
	var protoErr *openshift.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError for a run without a pod, got %T: %v", err, err)
	}
}

func TestTaskRunGet(t *testing.T) {
	client, watcher := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != taskRunPath {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, taskRunJSON("True", "Succeeded", "build-pod"))
	}))

	tr := NewTaskRun(client, watcher, "demo-build", logr.Discard())
	snap, err := tr.Get(context.Background())
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	cond, ok := snap.Status.Condition()
	if !ok || cond.Reason != "Succeeded" {
		t.Fatalf("unexpected snapshot: %+v", snap.Status)
	}
}
