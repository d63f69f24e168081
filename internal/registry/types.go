package registry

import (
	"time"

	"tenantd/internal/credentials"
)

// LifecycleState represents where a tenant is in its provisioning lifecycle.
type LifecycleState string

const (
	StatePending      LifecycleState = "Pending"
	StateProvisioning LifecycleState = "Provisioning"
	StateReady        LifecycleState = "Ready"
	StateDeleting     LifecycleState = "Deleting"
	StateFailed       LifecycleState = "Failed"
	StateDeleted      LifecycleState = "Deleted"
)

// InProgress reports whether the state is a non-terminal, mid-operation
// state that startup recovery must resume.
func (s LifecycleState) InProgress() bool {
	return s == StateProvisioning || s == StateDeleting
}

// HasClusterResources reports whether a tenant in this state is expected to
// own cluster resources (namespace, release). Pending and Deleted tenants
// must own none; that is the cleanup guarantee the orchestrator upholds.
func (s LifecycleState) HasClusterResources() bool {
	switch s {
	case StateProvisioning, StateReady, StateDeleting, StateFailed:
		return true
	default:
		return false
	}
}

// Tenant is the durable record of one provisioned application stack.
//
// The record survives orchestrator restarts and is retained indefinitely
// once Deleted; ids are never reused. All mutation goes through
// Registry.CompareAndSwap, keyed on Generation.
type Tenant struct {
	ID               string          `json:"id"`
	OwnerContact     string          `json:"ownerContact"`
	SizingClass      string          `json:"sizingClass"`
	NamespaceRef     string          `json:"namespaceRef,omitempty"`
	ReleaseRef       string          `json:"releaseRef,omitempty"`
	Credentials      credentials.Set `json:"credentials"`
	State            LifecycleState  `json:"state"`
	FailureReason    string          `json:"failureReason,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	LastTransitionAt time.Time       `json:"lastTransitionAt"`
	Generation       int64           `json:"generation"`
}

// Clone returns a copy of the tenant so callers cannot mutate store-owned
// records in place.
func (t Tenant) Clone() Tenant {
	return t
}
