// File: internal/openshift/watch.go
// Brief: Resilient long-poll watch engine yielding fresh object snapshots.

package openshift

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Watch loop bounds, matching the historical client: reconnect every 5
// seconds for at most 20 attempts, tolerating up to 20 upstream error
// responses across the whole session.
const (
	defaultWatchAttempts     = 20
	defaultWatchRetryDelay   = 5 * time.Second
	defaultMaxBadResponses   = 20
	watchScannerInitialBytes = 64 * 1024
	watchScannerMaxBytes     = 1024 * 1024
)

// WatchEngine opens streamed watch connections against named resources and
// turns the event stream into a sequence of authoritative fresh snapshots.
// Every "wait for X" operation in the system runs through it.
type WatchEngine struct {
	client *Client
	log    logr.Logger

	attempts        int
	retryDelay      time.Duration
	maxBadResponses int
}

// WatchOption adjusts engine bounds; production code uses the defaults.
type WatchOption func(*WatchEngine)

// WithWatchBounds overrides attempt count and reconnect delay.
func WithWatchBounds(attempts int, delay time.Duration) WatchOption {
	return func(e *WatchEngine) {
		e.attempts = attempts
		e.retryDelay = delay
	}
}

// WithBadResponseTolerance overrides how many upstream error responses one
// watch session absorbs before propagating the failure.
func WithBadResponseTolerance(n int) WatchOption {
	return func(e *WatchEngine) { e.maxBadResponses = n }
}

// NewWatchEngine builds a watch engine over the given client.
func NewWatchEngine(client *Client, log logr.Logger, opts ...WatchOption) *WatchEngine {
	e := &WatchEngine{
		client:          client,
		log:             log,
		attempts:        defaultWatchAttempts,
		retryDelay:      defaultWatchRetryDelay,
		maxBadResponses: defaultMaxBadResponses,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WatchStream is a lazy, non-restartable sequence of fresh object snapshots.
// The channel closes when the watch resolves its retry budget, hits a hard
// failure, or the context is cancelled; Err is meaningful only after close.
type WatchStream struct {
	ch  chan json.RawMessage
	err error
}

// Snapshots yields one authoritative snapshot per valid watch event, in the
// order the triggering events were received.
func (s *WatchStream) Snapshots() <-chan json.RawMessage { return s.ch }

// Err reports the terminal failure after Snapshots closes: a propagated
// upstream error past the tolerance, a hard client failure, or
// ErrWatchExhausted when the reconnect budget ran out quietly. Nil when the
// context was cancelled by the caller.
func (s *WatchStream) Err() error { return s.err }

// Watch subscribes to one named resource. root/version select the API group
// (CoreAPIRoot+CoreAPIVersion for pods, GroupAPIRoot+TektonAPIVersion for
// runs); kind is the plural resource name.
func (e *WatchEngine) Watch(ctx context.Context, root, version, kind, name string) *WatchStream {
	stream := &WatchStream{ch: make(chan json.RawMessage)}
	watchURL := e.client.URL.Watch(root, version, kind, name, nil)
	getURL := e.client.URL.Resource(root, version, kind+"/"+name, nil)

	go func() {
		defer close(stream.ch)
		stream.err = e.run(ctx, watchURL, getURL, kind, name, stream.ch)
	}()
	return stream
}

func (e *WatchEngine) run(ctx context.Context, watchURL, getURL, kind, name string, out chan<- json.RawMessage) error {
	badResponses := 0
	for attempt := 0; attempt < e.attempts; attempt++ {
		e.log.V(1).Info("watching for updates", "kind", kind, "name", name, "attempt", attempt+1)

		err := e.watchOnce(ctx, watchURL, getURL, name, out)
		switch {
		case ctx.Err() != nil:
			// Caller stopped consuming; plain termination.
			return nil
		case err == nil:
			// Clean disconnect of a long-lived connection; reconnect.
		case IsUpstreamStatus(err):
			badResponses++
			if badResponses > e.maxBadResponses {
				return err
			}
			e.log.V(1).Info("upstream error response", "kind", kind, "name", name,
				"count", badResponses, "error", err.Error())
		case IsTransientNetwork(err):
			// Expected on idle streams; reconnect without counting.
			e.log.V(1).Info("watch connection dropped", "kind", kind, "name", name, "error", err.Error())
		default:
			return err
		}

		e.log.V(1).Info("connection closed, reconnecting", "delay", e.retryDelay.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.retryDelay):
		}
	}
	return ErrWatchExhausted
}

// watchOnce consumes one watch connection until it drops. For every
// structurally valid event it fetches a fresh copy of the object and emits
// that, defending against events racing with changes made before the watch
// opened or between retries.
func (e *WatchEngine) watchOnce(ctx context.Context, watchURL, getURL, name string, out chan<- json.RawMessage) error {
	body, err := e.client.GetStream(ctx, watchURL)
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, watchScannerInitialBytes), watchScannerMaxBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if !e.validEvent(line) {
			continue
		}

		e.log.V(1).Info("retrieving fresh version of object", "name", name)
		fresh, err := e.client.GetBody(ctx, getURL)
		if err != nil {
			return err
		}
		select {
		case out <- json.RawMessage(fresh):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// validEvent checks one event envelope: decodable JSON carrying both "type"
// and "object". Malformed lines are diagnostics, never fatal.
func (e *WatchEngine) validEvent(line []byte) bool {
	decoded, err := decodeWatchLine(line)
	if err != nil {
		e.log.Info("cannot decode watch event", "line", string(line))
		return false
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(decoded, &envelope); err != nil {
		e.log.Info("cannot decode watch event", "line", string(decoded))
		return false
	}
	if _, ok := envelope["object"]; !ok {
		e.log.Info("watch event has no 'object'", "event", string(decoded))
		return false
	}
	if _, ok := envelope["type"]; !ok {
		e.log.Info("watch event has no 'type'", "event", string(decoded))
		return false
	}
	return true
}

// decodeWatchLine sniffs the payload charset per line. JSON text opens with
// ASCII, so NUL-byte placement in the first two octets identifies the UTF-16
// variants; everything else passes through as UTF-8 with a leading BOM
// stripped.
func decodeWatchLine(line []byte) ([]byte, error) {
	if len(line) >= 2 {
		var enc encoding.Encoding
		switch {
		case line[0] == 0xFE && line[1] == 0xFF, line[0] == 0 && line[1] != 0:
			enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
		case line[0] == 0xFF && line[1] == 0xFE, line[0] != 0 && line[1] == 0:
			enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
		}
		if enc != nil {
			return enc.NewDecoder().Bytes(line)
		}
	}
	return bytes.TrimPrefix(line, []byte{0xEF, 0xBB, 0xBF}), nil
}
