package snapshots

import "github.com/aristath/divvy/internal/domain"

// Publisher fans a finished snapshot out to the live cache and the
// warm-start store.
type Publisher struct {
	cache *Cache
	store *Store
}

// NewPublisher creates a publisher over the given cache and store.
func NewPublisher(cache *Cache, store *Store) *Publisher {
	return &Publisher{cache: cache, store: store}
}

// Publish swaps the snapshot into the live cache.
func (p *Publisher) Publish(snap *domain.Snapshot) {
	p.cache.Publish(snap)
}

// Persist writes the snapshot to the warm-start store.
func (p *Publisher) Persist(snap *domain.Snapshot) error {
	return p.store.Save(snap)
}
