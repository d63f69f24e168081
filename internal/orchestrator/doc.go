// Package orchestrator implements the tenant lifecycle state machine.
//
// A tenant moves Pending -> Provisioning -> Ready on create and from any
// live state through Deleting -> Deleted on delete; a failed create parks
// the tenant in Failed with its cluster resources intact. Every transition
// is persisted through the registry's compare-and-swap so that concurrent
// operations on the same tenant resolve deterministically, and a per-tenant
// lock table serializes the cluster-facing work itself. Resume re-drives
// tenants a previous process left mid-operation.
package orchestrator
