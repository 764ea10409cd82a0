// File: internal/openshift/retry.go
// Brief: Conflict retry policy wrapping write operations.

package openshift

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ConflictRetry retries a write that observes a conflict response, with a
// fixed backoff, up to a bound. Any other failure surfaces immediately; a
// conflict that survives the bound surfaces as the conflict itself.
type ConflictRetry struct {
	Backoff wait.Backoff
}

// DefaultConflictRetry matches the historical policy: 8 attempts, 5 seconds
// apart.
func DefaultConflictRetry() ConflictRetry {
	return ConflictRetry{Backoff: wait.Backoff{Steps: 8, Duration: 5 * time.Second, Factor: 1.0}}
}

// Do runs fn under the policy. op names the operation for logging.
func (r ConflictRetry) Do(ctx context.Context, log logr.Logger, op string, fn func() error) error {
	var lastConflict error
	err := wait.ExponentialBackoffWithContext(ctx, r.Backoff, func(context.Context) (bool, error) {
		err := fn()
		if err == nil {
			return true, nil
		}
		if IsConflict(err) {
			lastConflict = err
			log.V(1).Info("write conflict, retrying", "op", op, "error", err.Error())
			return false, nil
		}
		return false, err
	})
	if wait.Interrupted(err) && lastConflict != nil {
		return lastConflict
	}
	return err
}
