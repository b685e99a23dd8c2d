package cache

import (
	"strconv"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// QueryResultCacheName labels the query-result cache in stats and metrics.
const QueryResultCacheName = "query_result"

// QueryKey identifies one retrieval request.
type QueryKey struct {
	Query    string
	TopK     int
	Strategy domain.Strategy
	Model    string
}

func (k QueryKey) hash() string {
	return HashKey("retrieve", NormalizeQuery(k.Query), strconv.Itoa(k.TopK), string(k.Strategy), k.Model)
}

// QueryResultCache stores ranked documents per retrieval request.
type QueryResultCache struct {
	lru *LRU[[]domain.ScoredChunk]
}

func NewQueryResultCache(capacity int, ttl time.Duration, opts ...Option) *QueryResultCache {
	return &QueryResultCache{lru: NewLRU[[]domain.ScoredChunk](QueryResultCacheName, capacity, ttl, opts...)}
}

// Get returns a copy of the cached documents.
func (c *QueryResultCache) Get(key QueryKey) ([]domain.ScoredChunk, bool) {
	docs, ok := c.lru.Get(key.hash())
	if !ok {
		return nil, false
	}
	return append([]domain.ScoredChunk(nil), docs...), true
}

func (c *QueryResultCache) Put(key QueryKey, docs []domain.ScoredChunk) {
	stored := append([]domain.ScoredChunk(nil), docs...)
	c.lru.Put(key.hash(), stored, sourcesOf(stored)...)
}

// Generation is read before querying the store and handed back to
// PutIfGeneration.
func (c *QueryResultCache) Generation() uint64 {
	return c.lru.Generation()
}

// PutIfGeneration stores docs unless a source was invalidated after gen was
// read, in which case docs may reference deleted chunks and are dropped.
func (c *QueryResultCache) PutIfGeneration(key QueryKey, docs []domain.ScoredChunk, gen uint64) bool {
	stored := append([]domain.ScoredChunk(nil), docs...)
	return c.lru.PutIfGeneration(key.hash(), stored, gen, sourcesOf(stored)...)
}

func (c *QueryResultCache) Clear() {
	c.lru.Clear()
}

// InvalidateBySource drops every result list containing a chunk from sourceFile.
func (c *QueryResultCache) InvalidateBySource(sourceFile string) int {
	return c.lru.RemoveIf(func(docs []domain.ScoredChunk, _ []string) bool {
		return domain.ReferencesSource(docs, sourceFile)
	})
}

func (c *QueryResultCache) PurgeExpired() int {
	return c.lru.PurgeExpired()
}

func (c *QueryResultCache) Stats() Stats {
	return c.lru.Stats()
}

func sourcesOf(docs []domain.ScoredChunk) []string {
	seen := make(map[string]struct{}, len(docs))
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.SourceFile == "" {
			continue
		}
		if _, ok := seen[d.SourceFile]; ok {
			continue
		}
		seen[d.SourceFile] = struct{}{}
		out = append(out, d.SourceFile)
	}
	return out
}
