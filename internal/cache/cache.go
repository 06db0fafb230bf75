// Package cache provides the bounded prediction store behind the inference
// engine. Keys are raw input texts, compared byte for byte; values are the
// classifier's top prediction. The default implementation is LRU.
package cache

import "github.com/ferro-labs/ferroinfer/model"

// Cache defines the interface for prediction caching.
type Cache interface {
	// Get returns the entry for key and marks it most recently used.
	Get(key string) (model.Prediction, bool)
	// Contains reports whether key is cached without touching recency.
	Contains(key string) bool
	// Set stores pred under key and reports whether an older entry was
	// evicted to make room.
	Set(key string, pred model.Prediction) (evicted bool)
	Len() int
	Capacity() int
}
