// Package txindex keeps a probabilistic set of charge transaction ids issued
// by the platform, used to drop webhook deliveries for foreign payments
// before touching the database.
package txindex

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Index is a concurrency-safe bloom filter of transaction ids.
type Index struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// New creates an Index sized for capacity ids at false-positive rate fp.
func New(capacity uint, fp float64) *Index {
	return &Index{filter: bloom.NewWithEstimates(capacity, fp)}
}

// Add records a transaction id.
func (i *Index) Add(id string) {
	i.mu.Lock()
	i.filter.AddString(id)
	i.mu.Unlock()
}

// MayContain reports whether id may have been added. False means it
// definitely was not.
func (i *Index) MayContain(id string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.filter.TestString(id)
}

// Source lists every transaction id ever recorded.
type Source interface {
	ListTransactionIDs(ctx context.Context) ([]string, error)
}

// Warm loads all ids from src and returns how many were added.
func (i *Index) Warm(ctx context.Context, src Source) (int, error) {
	ids, err := src.ListTransactionIDs(ctx)
	if err != nil {
		return 0, err
	}
	i.mu.Lock()
	for _, id := range ids {
		i.filter.AddString(id)
	}
	i.mu.Unlock()
	return len(ids), nil
}
