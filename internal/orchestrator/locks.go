package orchestrator

import (
	"sync"
)

// lockTable hands out one exclusive lock per tenant id so at most one
// lifecycle operation runs per tenant at a time. Entries are created lazily
// and removed once no operation references them, so the table does not grow
// with the number of tenants ever seen.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the per-tenant lock is held and returns the entry to
// pass back to release.
func (t *lockTable) acquire(id string) *lockEntry {
	t.mu.Lock()
	entry, ok := t.entries[id]
	if !ok {
		entry = &lockEntry{}
		t.entries[id] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()
	return entry
}

// release unlocks the per-tenant lock and drops the table entry when no
// other operation is waiting on it.
func (t *lockTable) release(id string, entry *lockEntry) {
	entry.mu.Unlock()

	t.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(t.entries, id)
	}
	t.mu.Unlock()
}
