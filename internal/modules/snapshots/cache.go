// Package snapshots holds the current published snapshot and its
// persistence. The cache is the only shared mutable state in the engine:
// one writer (the refresh scheduler) swaps an immutable snapshot in, any
// number of readers take it out without coordination.
package snapshots

import (
	"sync/atomic"

	"github.com/aristath/divvy/internal/domain"
)

// Cache holds the currently published snapshot behind an atomic pointer.
// Read and Publish never block each other: a read started before a publish
// completes observes either the whole old snapshot or the whole new one.
type Cache struct {
	current atomic.Pointer[domain.Snapshot]
}

// NewCache creates an empty snapshot cache.
func NewCache() *Cache {
	return &Cache{}
}

// Read returns the currently published snapshot, or nil before the first
// publish. Callers must treat the result as read-only.
func (c *Cache) Read() *domain.Snapshot {
	return c.current.Load()
}

// Publish atomically replaces the current snapshot. Only the refresh
// scheduler calls this; the previous snapshot is released once the last
// reader drops it.
func (c *Cache) Publish(snap *domain.Snapshot) {
	c.current.Store(snap)
}
