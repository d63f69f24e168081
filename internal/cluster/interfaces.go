package cluster

import (
	"context"
)

// WorkloadStatus summarizes the observed readiness of one tenant namespace.
type WorkloadStatus struct {
	Ready     bool   // All observed pods report every container ready
	ReadyPods int    // Pods with all containers ready
	TotalPods int    // Pods observed in the namespace
	Reason    string // Human-readable detail when not ready
}

// Gateway is the thin, retryable facade over the cluster resource API.
//
// All operations retry transient transport errors (connection resets, 5xx)
// with bounded exponential backoff; non-transient errors (permission denied,
// malformed names) surface immediately.
type Gateway interface {
	// NamespaceExists reports whether the namespace is present. A namespace
	// in Terminating phase still exists for the purposes of this check.
	NamespaceExists(ctx context.Context, name string) (bool, error)

	// CreateNamespace creates the namespace with the given labels and
	// annotations merged over the gateway's defaults. An already-existing
	// namespace is success, so interrupted provisioning can resume.
	CreateNamespace(ctx context.Context, name string, labels, annotations map[string]string) error

	// DeleteNamespace requests deletion of the namespace. Deleting an
	// absent namespace is success. The call returns once deletion is
	// accepted, not once finalization completes; callers needing
	// confirmation must poll NamespaceExists.
	DeleteNamespace(ctx context.Context, name string) error

	// ListWorkloadStatus inspects the pods in the namespace and reports
	// aggregate readiness.
	ListWorkloadStatus(ctx context.Context, namespace string) (WorkloadStatus, error)

	// CheckAPIHealth verifies the cluster API is reachable.
	CheckAPIHealth(ctx context.Context) error
}
