package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ferro-labs/ferroinfer/model"
)

// DefaultCapacity is the number of distinct texts kept when none is configured.
const DefaultCapacity = 128

// LRU is a thread-safe, fixed-capacity least-recently-used prediction cache.
// It has no TTL: entries leave only by eviction.
type LRU struct {
	capacity int
	entries  *lru.Cache[string, model.Prediction]
}

// NewLRU creates an LRU holding at most capacity entries.
func NewLRU(capacity int) (*LRU, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	entries, err := lru.New[string, model.Prediction](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &LRU{capacity: capacity, entries: entries}, nil
}

// Get returns the cached prediction for key, or false if missing.
func (c *LRU) Get(key string) (model.Prediction, bool) {
	return c.entries.Get(key)
}

// Contains reports whether key is cached. Recency is left unchanged.
func (c *LRU) Contains(key string) bool {
	return c.entries.Contains(key)
}

// Set stores pred under key. Inserting into a full cache evicts the least
// recently used entry; updating an existing key never evicts.
func (c *LRU) Set(key string, pred model.Prediction) bool {
	return c.entries.Add(key, pred)
}

// Len returns the number of entries currently in the cache.
func (c *LRU) Len() int {
	return c.entries.Len()
}

// Capacity returns the configured maximum number of entries.
func (c *LRU) Capacity() int {
	return c.capacity
}
