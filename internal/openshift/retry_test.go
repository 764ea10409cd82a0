// retry_test.go covers the write conflict retry policy.
package openshift

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
)

func fastRetry(steps int) ConflictRetry {
	return ConflictRetry{Backoff: wait.Backoff{Steps: steps, Duration: time.Millisecond, Factor: 1.0}}
}

func TestConflictRetrySucceedsAfterConflicts(t *testing.T) {
	attempts := 0
	err := fastRetry(5).Do(context.Background(), logr.Discard(), "test write", func() error {
		attempts++
		if attempts < 3 {
			return &ConflictError{URL: "u"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestConflictRetryStopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := fastRetry(5).Do(context.Background(), logr.Discard(), "test write", func() error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("non-conflict errors must not retry, got %d attempts", attempts)
	}
}

func TestConflictRetryExhaustionReturnsConflict(t *testing.T) {
	attempts := 0
	err := fastRetry(3).Do(context.Background(), logr.Discard(), "test write", func() error {
		attempts++
		return &ConflictError{URL: "u"}
	})
	if !IsConflict(err) {
		t.Fatalf("expected the surviving conflict, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected the full retry budget, got %d attempts", attempts)
	}
}

func TestDefaultConflictRetryBounds(t *testing.T) {
	policy := DefaultConflictRetry()
	if policy.Backoff.Steps != 8 {
		t.Fatalf("expected 8 steps, got %d", policy.Backoff.Steps)
	}
	if policy.Backoff.Duration != 5*time.Second {
		t.Fatalf("expected 5s between attempts, got %s", policy.Backoff.Duration)
	}
}
