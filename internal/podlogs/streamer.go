// File: internal/podlogs/streamer.go
// Brief: Container log retrieval with the idle-timeout reconnect heuristic.

// Package podlogs fetches or streams pod container logs. The streaming path
// survives the idle-connection timeouts long-poll endpoints are prone to: a
// disconnect after a long silence is retried from shortly before the
// silence, while a disconnect right after output is a genuine end of log.
package podlogs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/example/buildpipe/internal/openshift"
)

// If a log connection closes within this window of the last received line,
// the log is considered complete rather than idle-timed-out.
const defaultIdleThreshold = 60 * time.Second

const (
	logScannerInitialBytes = 64 * 1024
	logScannerMaxBytes     = 1024 * 1024
)

// Pod phases that mean logs are (or will shortly be) available.
var startedPhases = map[string]struct{}{
	"Running":   {},
	"Succeeded": {},
	"Failed":    {},
}

// Streamer retrieves logs for one pod. Containers, when declared, are
// fetched or streamed in order; streaming is sequential per container, never
// interleaved within one pod.
type Streamer struct {
	client  *openshift.Client
	watcher *openshift.WatchEngine
	log     logr.Logger

	podName    string
	containers []string

	idleThreshold time.Duration
	now           func() time.Time
}

// Option adjusts streamer behavior.
type Option func(*Streamer)

// WithIdleThreshold overrides the reconnect heuristic window.
func WithIdleThreshold(d time.Duration) Option {
	return func(s *Streamer) { s.idleThreshold = d }
}

// withClock substitutes the time source; used by tests.
func withClock(now func() time.Time) Option {
	return func(s *Streamer) { s.now = now }
}

// NewStreamer builds a log streamer for the named pod. containers may be
// empty, in which case one-shot retrieval fetches the pod's undifferentiated
// log.
func NewStreamer(client *openshift.Client, watcher *openshift.WatchEngine, podName string, containers []string, log logr.Logger, opts ...Option) *Streamer {
	s := &Streamer{
		client:        client,
		watcher:       watcher,
		log:           log,
		podName:       podName,
		containers:    containers,
		idleThreshold: defaultIdleThreshold,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Streamer) logURL(query url.Values) string {
	return s.client.URL.Resource(openshift.CoreAPIRoot, openshift.CoreAPIVersion,
		"pods/"+s.podName+"/log", query)
}

// CombinedLogs fetches the pod's log in one shot, without selecting a
// container.
func (s *Streamer) CombinedLogs(ctx context.Context) (string, error) {
	body, err := s.client.GetBody(ctx, s.logURL(nil))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ContainerLogs fetches each declared container's log once, keyed by
// container name.
func (s *Streamer) ContainerLogs(ctx context.Context) (map[string]string, error) {
	logs := make(map[string]string, len(s.containers))
	for _, container := range s.containers {
		s.log.V(1).Info("getting log for container", "pod", s.podName, "container", container)
		query := url.Values{}
		query.Set("container", container)
		body, err := s.client.GetBody(ctx, s.logURL(query))
		if err != nil {
			return nil, err
		}
		logs[container] = string(body)
	}
	return logs, nil
}

// Logs is the one-shot entry point: per-container map when containers were
// declared, otherwise a single undifferentiated fetch under an empty key.
func (s *Streamer) Logs(ctx context.Context) (map[string]string, error) {
	if len(s.containers) > 0 {
		return s.ContainerLogs(ctx)
	}
	combined, err := s.CombinedLogs(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"": combined}, nil
}

// Stream waits for the pod to reach a started-or-terminal phase, then
// streams each container's log in declaration order. Lines within one
// container preserve source order. The channel closes when every container's
// log ends; the returned error function reports any terminal failure after
// close.
func (s *Streamer) Stream(ctx context.Context) (<-chan string, func() error, error) {
	if err := s.WaitForStart(ctx); err != nil {
		return nil, nil, err
	}

	containers := s.containers
	if len(containers) == 0 {
		containers = []string{""}
	}
	out := make(chan string)
	var streamErr error
	go func() {
		defer close(out)
		for _, container := range containers {
			if err := s.streamContainer(ctx, container, out); err != nil {
				streamErr = err
				return
			}
		}
	}()
	return out, func() error { return streamErr }, nil
}

// streamContainer follows one container's log, reconnecting per the idle
// heuristic: a disconnect after at least idleThreshold of silence is treated
// as an idle-connection timeout and retried with sinceSeconds set to about a
// second before the silence began, tolerating minor clock skew without
// re-emitting seen lines.
func (s *Streamer) streamContainer(ctx context.Context, container string, out chan<- string) error {
	query := url.Values{}
	query.Set("follow", "true")
	if container != "" {
		query.Set("container", container)
	}

	for {
		connected := s.now()
		s.log.V(1).Info("streaming logs for container", "pod", s.podName, "container", container)

		body, err := s.client.GetStream(ctx, s.logURL(query))
		if err != nil {
			if openshift.IsUpstreamStatus(err) || ctx.Err() != nil {
				return err
			}
			// Transport failure on connect: fall through to the idle check.
		} else {
			scanner := bufio.NewScanner(body)
			scanner.Buffer(make([]byte, logScannerInitialBytes), logScannerMaxBytes)
			for scanner.Scan() {
				connected = s.now()
				select {
				case out <- scanner.Text():
				case <-ctx.Done():
					body.Close()
					return ctx.Err()
				}
			}
			body.Close()
			// A scan error here is a dropped connection; both it and a clean
			// EOF go through the idle check below.
			if err := scanner.Err(); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}

		idle := s.now().Sub(connected)
		s.log.V(1).Info("connection closed", "pod", s.podName, "container", container,
			"idle", idle.String())
		if idle < s.idleThreshold {
			return nil
		}

		since := int64(idle.Seconds()) - 1
		if since < 1 {
			since = 1
		}
		s.log.V(1).Info("fetching logs from before the disconnect", "sinceSeconds", since)
		query.Set("sinceSeconds", strconv.FormatInt(since, 10))
	}
}

// WaitForStart consumes the pod watch until the pod reports a phase with
// logs available.
func (s *Streamer) WaitForStart(ctx context.Context) error {
	s.log.Info("waiting for pod to start", "pod", s.podName)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream := s.watcher.Watch(ctx, openshift.CoreAPIRoot, openshift.CoreAPIVersion, "pods", s.podName)
	for raw := range stream.Snapshots() {
		var pod struct {
			Status struct {
				Phase string `json:"phase"`
			} `json:"status"`
		}
		if err := json.Unmarshal(raw, &pod); err != nil {
			s.log.V(1).Info("cannot decode pod snapshot", "pod", s.podName, "error", err.Error())
			continue
		}
		if pod.Status.Phase == "" {
			s.log.V(1).Info("pod does not have any status yet", "pod", s.podName)
			continue
		}
		if _, ok := startedPhases[pod.Status.Phase]; ok {
			s.log.Info("pod started", "pod", s.podName)
			return nil
		}
		s.log.V(1).Info("waiting for pod", "pod", s.podName, "phase", pod.Status.Phase)
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("waiting for pod %q: %w", s.podName, err)
	}
	return fmt.Errorf("waiting for pod %q: %w", s.podName, openshift.ErrWatchExhausted)
}
