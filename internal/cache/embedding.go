package cache

import "time"

// EmbeddingCacheName labels the embedding cache in stats and metrics.
const EmbeddingCacheName = "embedding"

// EmbeddingCache maps (model, normalized text) to an embedding vector.
type EmbeddingCache struct {
	lru   *LRU[[]float32]
	model string
}

func NewEmbeddingCache(model string, capacity int, ttl time.Duration, opts ...Option) *EmbeddingCache {
	return &EmbeddingCache{
		lru:   NewLRU[[]float32](EmbeddingCacheName, capacity, ttl, opts...),
		model: model,
	}
}

func (c *EmbeddingCache) key(text string) string {
	return HashKey(c.model, NormalizeQuery(text))
}

func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	return c.lru.Get(c.key(text))
}

// Put stores an embedding. Chunk embeddings pass their source file so they are
// dropped when that source is removed; query embeddings pass none.
func (c *EmbeddingCache) Put(text string, embedding []float32, sources ...string) {
	c.lru.Put(c.key(text), embedding, sources...)
}

func (c *EmbeddingCache) Clear() {
	c.lru.Clear()
}

func (c *EmbeddingCache) InvalidateBySource(sourceFile string) int {
	return c.lru.RemoveIf(func(_ []float32, sources []string) bool {
		return containsSource(sources, sourceFile)
	})
}

func (c *EmbeddingCache) PurgeExpired() int {
	return c.lru.PurgeExpired()
}

func (c *EmbeddingCache) Stats() Stats {
	return c.lru.Stats()
}
