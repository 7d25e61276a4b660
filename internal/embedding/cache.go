package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/dispute-triage/internal/common"
)

// Store persists vectors across processes.
type Store interface {
	GetEmbedding(ctx context.Context, model, text string) ([]float32, bool, error)
	SaveEmbedding(ctx context.Context, model, text string, vector []float32) error
}

// cacheEntry represents a cached vector.
type cacheEntry struct {
	expiry time.Time
	vector []float32
}

// vectorCache provides thread-safe in-memory caching of vectors.
type vectorCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	maxSize int
	hits    int64
	misses  int64
	mu      sync.RWMutex
}

// newVectorCache creates a new cache with the specified TTL and capacity.
func newVectorCache(ttl time.Duration, maxSize int) *vectorCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	if maxSize == 0 {
		maxSize = 10000
	}

	cache := &vectorCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get retrieves a vector if it exists and hasn't expired.
func (c *vectorCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		c.misses++
		return nil, false
	}

	c.hits++
	return entry.vector, true
}

// set stores a vector, evicting the entry closest to expiry when full.
func (c *vectorCache) set(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = cacheEntry{
		vector: vector,
		expiry: time.Now().Add(c.ttl),
	}
}

func (c *vectorCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiry.Before(oldest) {
			oldestKey = key
			oldest = entry.expiry
		}
	}
	delete(c.entries, oldestKey)
}

// cleanup periodically removes expired entries.
func (c *vectorCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// size returns the number of entries in the cache.
func (c *vectorCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *vectorCache) stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *vectorCache) close() {
	close(c.stopCh)
}

// CacheOptions configures a CachedEmbedder.
type CacheOptions struct {
	// Store is optional. When set, vectors survive across processes.
	Store   Store
	TTL     time.Duration
	MaxSize int
}

// CachedEmbedder reuses vectors for texts it has already embedded.
type CachedEmbedder struct {
	inner  Embedder
	store  Store
	cache  *vectorCache
	logger *slog.Logger
}

// NewCachedEmbedder wraps inner with an in-memory cache and an optional persistent store.
func NewCachedEmbedder(inner Embedder, opts CacheOptions) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		store:  opts.Store,
		cache:  newVectorCache(opts.TTL, opts.MaxSize),
		logger: slog.Default().With("component", "embedding_cache", "model", inner.Model()),
	}
}

// Model returns the wrapped embedder's model.
func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

// Embed returns cached vectors where available and embeds the rest in one call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var missing []string

	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			out[i] = vec
			continue
		}
		if _, queued := pending[text]; !queued {
			missing = append(missing, text)
		}
		pending[text] = append(pending[text], i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: requested %d vectors, received %d", common.ErrEmbeddingFailed, len(missing), len(vectors))
	}

	for j, text := range missing {
		vec := vectors[j]
		c.cache.set(c.key(text), vec)
		if c.store != nil {
			if err := c.store.SaveEmbedding(ctx, c.Model(), text, vec); err != nil {
				c.logger.Warn("Failed to persist embedding", "error", err)
			}
		}
		for _, i := range pending[text] {
			out[i] = vec
		}
	}

	return out, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	key := c.key(text)
	if vec, ok := c.cache.get(key); ok {
		return vec, true
	}
	if c.store == nil {
		return nil, false
	}

	vec, ok, err := c.store.GetEmbedding(ctx, c.Model(), text)
	if err != nil {
		c.logger.Warn("Failed to read persisted embedding", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	c.cache.set(key, vec)
	return vec, true
}

func (c *CachedEmbedder) key(text string) string {
	return c.Model() + "\x00" + text
}

// Stats returns in-memory cache hits and misses.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.cache.stats()
}

// Close stops the cache cleanup goroutine.
func (c *CachedEmbedder) Close() {
	c.cache.close()
}
