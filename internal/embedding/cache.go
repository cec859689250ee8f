package embedding

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is an LRU cache of embeddings keyed by model and text.
type Cache struct {
	lru *lru.Cache[string, []float32]
}

// NewCache creates a cache holding up to size embeddings. A non-positive size disables caching (returns nil).
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached embedding of text under model.
func (c *Cache) Get(model, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(cacheKey(model, text))
}

// Set stores the embedding of text under model.
func (c *Cache) Set(model, text string, v []float32) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey(model, text), v)
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
