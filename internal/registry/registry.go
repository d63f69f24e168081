// Package registry is the single source of truth for tenant identity and
// lifecycle state. Every record mutation flows through the compare-and-swap
// primitive so that two processes racing on the same tenant have exactly one
// winner; the loser observes ErrStaleGeneration and abandons.
package registry

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyExists is returned by Create when the tenant id is taken,
	// including ids held by Deleted tenants (ids are never reused).
	ErrAlreadyExists = errors.New("tenant already exists")

	// ErrNotFound is returned when no record exists for the id.
	ErrNotFound = errors.New("tenant not found")

	// ErrStaleGeneration is returned by CompareAndSwap when another
	// operation advanced the record first. It is an internal concurrency
	// signal, never surfaced to API callers.
	ErrStaleGeneration = errors.New("stale tenant generation")
)

// Mutation is applied to a copy of the current record under the store's
// write lock. The store itself advances Generation and LastTransitionAt
// after the mutation runs; mutations must not touch either field.
type Mutation func(*Tenant)

// Registry is the durable tenant store contract. Implementations need only
// key-value durability keyed by tenant id plus a compare-and-swap
// primitive; the backing store is a deployment detail.
type Registry interface {
	// Create persists a new tenant record. Fails with ErrAlreadyExists if
	// the id is taken, regardless of the existing record's state.
	Create(ctx context.Context, tenant Tenant) (Tenant, error)

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (Tenant, error)

	// List returns all tenant records in creation order.
	List(ctx context.Context) ([]Tenant, error)

	// CompareAndSwap applies mutate to the record for id if and only if its
	// generation still equals expectedGeneration, then increments the
	// generation. Fails with ErrStaleGeneration if another operation
	// advanced the record, or ErrNotFound if the id is unknown.
	CompareAndSwap(ctx context.Context, id string, expectedGeneration int64, mutate Mutation) (Tenant, error)
}
