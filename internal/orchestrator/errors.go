package orchestrator

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when a create request names an id that is already
// taken by an active or deleted tenant. Ids are reserved forever; a second
// create with the same name is an error, never a no-op.
var ErrConflict = errors.New("tenant id already in use")

// ErrNotFound is returned by delete for an unknown or already-deleted id.
var ErrNotFound = errors.New("tenant not found")

// ErrAborted is returned when an operation observed that a concurrent
// operation already progressed the tenant and abandoned its own work. The
// underlying concurrency signal is never exposed to callers.
var ErrAborted = errors.New("tenant operation superseded by a concurrent operation")

// ValidationError reports a rejected request input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProvisioningError is terminal for one create attempt: the tenant record is
// left in the Failed state for operator inspection, and the id is included
// so the caller can follow up with a delete.
type ProvisioningError struct {
	TenantID string
	Reason   string
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning of tenant %s failed: %s", e.TenantID, e.Reason)
}
