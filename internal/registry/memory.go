package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryRegistry is the in-memory Registry used for tests and single-node
// development. It honors the same CAS contract as the durable backends.
type memoryRegistry struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
}

// NewMemory creates an empty in-memory registry.
func NewMemory() Registry {
	return &memoryRegistry{
		tenants: make(map[string]Tenant),
	}
}

func (m *memoryRegistry) Create(ctx context.Context, tenant Tenant) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tenants[tenant.ID]; exists {
		return Tenant{}, ErrAlreadyExists
	}

	now := time.Now().UTC()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.LastTransitionAt = now
	tenant.Generation = 1

	m.tenants[tenant.ID] = tenant
	return tenant.Clone(), nil
}

func (m *memoryRegistry) Get(ctx context.Context, id string) (Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenant, exists := m.tenants[id]
	if !exists {
		return Tenant{}, ErrNotFound
	}
	return tenant.Clone(), nil
}

func (m *memoryRegistry) List(ctx context.Context) ([]Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Tenant, 0, len(m.tenants))
	for _, tenant := range m.tenants {
		out = append(out, tenant.Clone())
	}
	// Stable creation order; ties broken by id so the order is deterministic.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memoryRegistry) CompareAndSwap(ctx context.Context, id string, expectedGeneration int64, mutate Mutation) (Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tenant, exists := m.tenants[id]
	if !exists {
		return Tenant{}, ErrNotFound
	}
	if tenant.Generation != expectedGeneration {
		return Tenant{}, ErrStaleGeneration
	}

	updated := tenant.Clone()
	mutate(&updated)
	updated.Generation = tenant.Generation + 1
	updated.LastTransitionAt = time.Now().UTC()

	m.tenants[id] = updated
	return updated.Clone(), nil
}
