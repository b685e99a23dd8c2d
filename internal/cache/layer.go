package cache

import (
	"log"
	"time"
)

// LayerConfig sizes the three caches. A disabled cache is left nil.
type LayerConfig struct {
	Model string

	EmbeddingEnabled bool
	EmbeddingSize    int
	EmbeddingTTL     time.Duration

	QueryEnabled bool
	QuerySize    int
	QueryTTL     time.Duration

	ResponseEnabled bool
	ResponseSize    int
	ResponseTTL     time.Duration
}

// DefaultLayerConfig mirrors the daemon's default cache settings.
func DefaultLayerConfig(model string) LayerConfig {
	return LayerConfig{
		Model:            model,
		EmbeddingEnabled: true,
		EmbeddingSize:    2000,
		EmbeddingTTL:     time.Hour,
		QueryEnabled:     true,
		QuerySize:        1000,
		QueryTTL:         10 * time.Minute,
		ResponseEnabled:  true,
		ResponseSize:     10000,
		ResponseTTL:      2 * time.Hour,
	}
}

// Layer groups the embedding, query-result and response caches.
type Layer struct {
	Embeddings   *EmbeddingCache
	QueryResults *QueryResultCache
	Responses    *ResponseCache
}

func NewLayer(cfg LayerConfig, opts ...Option) *Layer {
	l := &Layer{}
	if cfg.EmbeddingEnabled {
		l.Embeddings = NewEmbeddingCache(cfg.Model, cfg.EmbeddingSize, cfg.EmbeddingTTL, opts...)
	}
	if cfg.QueryEnabled {
		l.QueryResults = NewQueryResultCache(cfg.QuerySize, cfg.QueryTTL, opts...)
	}
	if cfg.ResponseEnabled {
		l.Responses = NewResponseCache(cfg.Model, cfg.ResponseSize, cfg.ResponseTTL, opts...)
	}
	return l
}

// Invalidation counts entries removed per cache.
type Invalidation struct {
	Embeddings   int `json:"embeddings"`
	QueryResults int `json:"query_results"`
	Responses    int `json:"responses"`
}

func (i Invalidation) Total() int {
	return i.Embeddings + i.QueryResults + i.Responses
}

// InvalidateBySource removes every entry derived from sourceFile from all
// caches before returning.
func (l *Layer) InvalidateBySource(sourceFile string) Invalidation {
	var inv Invalidation
	if l == nil {
		return inv
	}
	if l.Embeddings != nil {
		inv.Embeddings = l.Embeddings.InvalidateBySource(sourceFile)
	}
	if l.QueryResults != nil {
		inv.QueryResults = l.QueryResults.InvalidateBySource(sourceFile)
	}
	if l.Responses != nil {
		inv.Responses = l.Responses.InvalidateBySource(sourceFile)
	}
	if inv.Total() > 0 {
		log.Printf("cache: invalidated %d entries for %s (embeddings=%d query_results=%d responses=%d)",
			inv.Total(), sourceFile, inv.Embeddings, inv.QueryResults, inv.Responses)
	}
	return inv
}

func (l *Layer) Clear() {
	if l == nil {
		return
	}
	if l.Embeddings != nil {
		l.Embeddings.Clear()
	}
	if l.QueryResults != nil {
		l.QueryResults.Clear()
	}
	if l.Responses != nil {
		l.Responses.Clear()
	}
}

// PurgeExpired sweeps all caches and returns the total removed.
func (l *Layer) PurgeExpired() int {
	if l == nil {
		return 0
	}
	n := 0
	if l.Embeddings != nil {
		n += l.Embeddings.PurgeExpired()
	}
	if l.QueryResults != nil {
		n += l.QueryResults.PurgeExpired()
	}
	if l.Responses != nil {
		n += l.Responses.PurgeExpired()
	}
	return n
}

// Stats returns one snapshot per enabled cache.
func (l *Layer) Stats() []Stats {
	if l == nil {
		return nil
	}
	var out []Stats
	if l.Embeddings != nil {
		out = append(out, l.Embeddings.Stats())
	}
	if l.QueryResults != nil {
		out = append(out, l.QueryResults.Stats())
	}
	if l.Responses != nil {
		out = append(out, l.Responses.Stats())
	}
	return out
}
