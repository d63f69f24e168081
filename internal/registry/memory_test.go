package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreate(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	tenant, err := reg.Create(ctx, Tenant{ID: "alice", OwnerContact: "alice@example.com", State: StatePending})
	require.NoError(t, err)
	assert.Equal(t, int64(1), tenant.Generation)
	assert.False(t, tenant.CreatedAt.IsZero())
	assert.False(t, tenant.LastTransitionAt.IsZero())

	_, err = reg.Create(ctx, Tenant{ID: "alice", State: StatePending})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryCreateRejectsReusedDeletedID(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	tenant, err := reg.Create(ctx, Tenant{ID: "alice", State: StatePending})
	require.NoError(t, err)
	_, err = reg.CompareAndSwap(ctx, "alice", tenant.Generation, func(t *Tenant) {
		t.State = StateDeleted
	})
	require.NoError(t, err)

	_, err = reg.Create(ctx, Tenant{ID: "alice", State: StatePending})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryGet(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	_, err := reg.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Create(ctx, Tenant{ID: "alice", State: StatePending})
	require.NoError(t, err)

	tenant, err := reg.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", tenant.ID)
	assert.Equal(t, StatePending, tenant.State)
}

func TestMemoryListOrder(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		id      string
		created time.Time
	}{
		{"charlie", base.Add(2 * time.Minute)},
		{"alice", base},
		{"bravo", base.Add(time.Minute)},
		{"alpha", base}, // same instant as alice, id breaks the tie
	} {
		_, err := reg.Create(ctx, Tenant{ID: tc.id, State: StatePending, CreatedAt: tc.created})
		require.NoError(t, err)
	}

	tenants, err := reg.List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(tenants))
	for _, tenant := range tenants {
		ids = append(ids, tenant.ID)
	}
	assert.Equal(t, []string{"alpha", "alice", "bravo", "charlie"}, ids)
}

func TestMemoryCompareAndSwap(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	tenant, err := reg.Create(ctx, Tenant{ID: "alice", State: StatePending})
	require.NoError(t, err)

	updated, err := reg.CompareAndSwap(ctx, "alice", tenant.Generation, func(t *Tenant) {
		t.State = StateProvisioning
		t.NamespaceRef = "tenant-alice"
	})
	require.NoError(t, err)
	assert.Equal(t, StateProvisioning, updated.State)
	assert.Equal(t, "tenant-alice", updated.NamespaceRef)
	assert.Equal(t, tenant.Generation+1, updated.Generation)

	// The stale generation loses deterministically.
	_, err = reg.CompareAndSwap(ctx, "alice", tenant.Generation, func(t *Tenant) {
		t.State = StateFailed
	})
	assert.ErrorIs(t, err, ErrStaleGeneration)

	current, err := reg.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, StateProvisioning, current.State)

	_, err = reg.CompareAndSwap(ctx, "missing", 1, func(t *Tenant) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCloneIsolation(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	created, err := reg.Create(ctx, Tenant{ID: "alice", State: StatePending})
	require.NoError(t, err)

	// Mutating the returned copy must not leak into the store.
	created.State = StateFailed
	stored, err := reg.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatePending, stored.State)
}
