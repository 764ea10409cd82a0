// File: internal/openshift/errors.go
// Brief: Error taxonomy shared by the cluster client, watch engine, and controllers.

package openshift

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// ErrWatchExhausted reports that a watch stream reached its reconnect budget
// without the watched condition resolving. Consumers that merely range over
// the stream observe plain termination; consumers that must distinguish a
// quiet exhaustion check for this error explicitly.
var ErrWatchExhausted = errors.New("watch retry budget exhausted")

// AuthError reports a missing or unusable credential, or a failed token
// exchange against the OAuth endpoint.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConfigError reports invalid caller-supplied configuration, detected before
// any network call is made.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config: " + e.Reason }

// ProtocolError reports a structurally malformed server response: a payload
// missing fields the protocol requires.
type ProtocolError struct {
	Op     string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %s", e.Op, e.Detail)
}

// StatusError is a non-2xx API response. NotFoundError and ConflictError are
// carved out as distinct types so callers can match them without status-code
// comparisons.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.URL, e.Body)
}

// NotFoundError reports an operation against a resource the cluster does not
// know about.
type NotFoundError struct {
	Kind string
	Name string
	URL  string
}

func (e *NotFoundError) Error() string {
	if e.Kind != "" || e.Name != "" {
		return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
	}
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// ConflictError reports a write race. The conflict retry policy absorbs these
// up to its bound; past the bound they surface as-is.
type ConflictError struct {
	URL  string
	Body string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("write conflict on %s: %s", e.URL, e.Body)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is, or wraps, a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsUpstreamStatus reports whether err is a server-reported error response
// (any of the status family), as opposed to a transport failure.
func IsUpstreamStatus(err error) bool {
	var se *StatusError
	var nf *NotFoundError
	var c *ConflictError
	return errors.As(err, &se) || errors.As(err, &nf) || errors.As(err, &c)
}

// IsTransientNetwork reports whether err looks like a dropped or timed-out
// connection. Such failures are expected on long-lived idle streams and are
// retried locally; they never reach callers unless a retry budget runs out.
func IsTransientNetwork(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return IsTransientNetwork(ue.Err)
	}
	// net/http surfaces truncated chunked bodies this way.
	if errors.Is(err, http.ErrBodyReadAfterClose) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// statusToError maps a non-2xx response code to the matching error type.
func statusToError(code int, reqURL, body string) error {
	switch code {
	case http.StatusNotFound:
		return &NotFoundError{URL: reqURL}
	case http.StatusConflict:
		return &ConflictError{URL: reqURL, Body: body}
	default:
		return &StatusError{Code: code, URL: reqURL, Body: body}
	}
}
