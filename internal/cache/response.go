package cache

import (
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// ResponseCacheName labels the response cache in stats and metrics.
const ResponseCacheName = "response"

// Response is a generated answer together with the sources it cites.
type Response struct {
	Answer   string             `json:"answer"`
	Sources  []domain.SourceRef `json:"sources"`
	Strategy domain.Strategy    `json:"strategy"`
	CachedAt time.Time          `json:"cached_at"`
}

// ResponseCache maps (normalized query, model) to a generated answer.
type ResponseCache struct {
	lru   *LRU[Response]
	model string
}

func NewResponseCache(model string, capacity int, ttl time.Duration, opts ...Option) *ResponseCache {
	return &ResponseCache{
		lru:   NewLRU[Response](ResponseCacheName, capacity, ttl, opts...),
		model: model,
	}
}

func (c *ResponseCache) key(query string) string {
	return HashKey("answer", NormalizeQuery(query), c.model)
}

func (c *ResponseCache) Get(query string) (Response, bool) {
	return c.lru.Get(c.key(query))
}

func (c *ResponseCache) Put(query string, resp Response) {
	c.lru.Put(c.key(query), resp, responseSources(resp)...)
}

func (c *ResponseCache) Generation() uint64 {
	return c.lru.Generation()
}

// PutIfGeneration stores resp unless a source was invalidated after gen was
// read.
func (c *ResponseCache) PutIfGeneration(query string, resp Response, gen uint64) bool {
	return c.lru.PutIfGeneration(c.key(query), resp, gen, responseSources(resp)...)
}

func responseSources(resp Response) []string {
	sources := make([]string, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		if s.SourceFile != "" {
			sources = append(sources, s.SourceFile)
		}
	}
	return sources
}

func (c *ResponseCache) Clear() {
	c.lru.Clear()
}

// InvalidateBySource drops every answer that cites sourceFile.
func (c *ResponseCache) InvalidateBySource(sourceFile string) int {
	return c.lru.RemoveIf(func(resp Response, _ []string) bool {
		for _, s := range resp.Sources {
			if s.SourceFile != "" && s.SourceFile == sourceFile {
				return true
			}
		}
		return false
	})
}

func (c *ResponseCache) PurgeExpired() int {
	return c.lru.PurgeExpired()
}

func (c *ResponseCache) Stats() Stats {
	return c.lru.Stats()
}
