package cache

import (
	"testing"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docs(sources ...string) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(sources))
	for i, s := range sources {
		out = append(out, domain.ScoredChunk{ID: int64(i + 1), SourceFile: s, Content: "c"})
	}
	return out
}

func TestEmbeddingCache_KeyIgnoresCaseAndSpacing(t *testing.T) {
	c := NewEmbeddingCache("nomic-embed-text", 10, time.Hour)
	c.Put("Vacation  Policy", []float32{1, 2})

	v, ok := c.Get("vacation policy")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, v)

	other := NewEmbeddingCache("other-model", 10, time.Hour)
	_, ok = other.Get("vacation policy")
	assert.False(t, ok)
}

func TestQueryResultCache_KeyIncludesStrategyAndTopK(t *testing.T) {
	c := NewQueryResultCache(10, time.Hour)
	key := QueryKey{Query: "leave", TopK: 5, Strategy: domain.StrategySemantic, Model: "m"}
	c.Put(key, docs("/a.txt"))

	_, ok := c.Get(key)
	assert.True(t, ok)

	_, ok = c.Get(QueryKey{Query: "leave", TopK: 3, Strategy: domain.StrategySemantic, Model: "m"})
	assert.False(t, ok)
	_, ok = c.Get(QueryKey{Query: "leave", TopK: 5, Strategy: domain.StrategyKeyword, Model: "m"})
	assert.False(t, ok)
}

func TestQueryResultCache_ReturnsCopy(t *testing.T) {
	c := NewQueryResultCache(10, time.Hour)
	key := QueryKey{Query: "leave", TopK: 5}
	c.Put(key, docs("/a.txt"))

	got, _ := c.Get(key)
	got[0].Score = 99

	again, _ := c.Get(key)
	assert.Equal(t, 0.0, again[0].Score)
}

func TestLayer_InvalidateBySource(t *testing.T) {
	layer := NewLayer(DefaultLayerConfig("m"))

	layer.Embeddings.Put("chunk text a", []float32{1}, "/docs/a.txt")
	layer.Embeddings.Put("user query", []float32{2})

	keyA := QueryKey{Query: "q1", TopK: 5}
	keyB := QueryKey{Query: "q2", TopK: 5}
	layer.QueryResults.Put(keyA, docs("/docs/b.txt", "/docs/a.txt"))
	layer.QueryResults.Put(keyB, docs("/docs/b.txt"))

	layer.Responses.Put("q1", Response{Answer: "x", Sources: []domain.SourceRef{{SourceFile: "/docs/a.txt"}}})
	layer.Responses.Put("q2", Response{Answer: "y", Sources: []domain.SourceRef{{SourceFile: "/docs/b.txt"}}})

	inv := layer.InvalidateBySource("/docs/a.txt")
	assert.Equal(t, Invalidation{Embeddings: 1, QueryResults: 1, Responses: 1}, inv)
	assert.Equal(t, 3, inv.Total())

	_, ok := layer.Embeddings.Get("chunk text a")
	assert.False(t, ok)
	_, ok = layer.Embeddings.Get("user query")
	assert.True(t, ok)
	_, ok = layer.QueryResults.Get(keyA)
	assert.False(t, ok)
	_, ok = layer.QueryResults.Get(keyB)
	assert.True(t, ok)
	_, ok = layer.Responses.Get("q1")
	assert.False(t, ok)
	_, ok = layer.Responses.Get("q2")
	assert.True(t, ok)
}

func TestLayer_InvalidateBySource_ExactPathOnly(t *testing.T) {
	layer := NewLayer(DefaultLayerConfig("m"))
	layer.QueryResults.Put(QueryKey{Query: "q"}, docs("/docs/data.txt"))

	inv := layer.InvalidateBySource("a.txt")
	assert.Equal(t, 0, inv.Total())

	inv = layer.InvalidateBySource("")
	assert.Equal(t, 0, inv.Total())
}

func TestLayer_Disabled(t *testing.T) {
	layer := NewLayer(LayerConfig{Model: "m"})
	assert.Nil(t, layer.Embeddings)
	assert.Nil(t, layer.QueryResults)
	assert.Nil(t, layer.Responses)

	assert.Equal(t, 0, layer.InvalidateBySource("/a").Total())
	assert.Equal(t, 0, layer.PurgeExpired())
	assert.Empty(t, layer.Stats())
	layer.Clear()

	var nilLayer *Layer
	assert.Equal(t, 0, nilLayer.InvalidateBySource("/a").Total())
}

func TestLayer_StatsAndPurge(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultLayerConfig("m")
	layer := NewLayer(cfg, WithClock(clock.Now))

	layer.QueryResults.Put(QueryKey{Query: "q"}, docs("/a"))
	layer.Responses.Put("q", Response{Answer: "a"})
	clock.Advance(cfg.QueryTTL + time.Second)

	assert.Equal(t, 1, layer.PurgeExpired())

	stats := layer.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, EmbeddingCacheName, stats[0].Name)
	assert.Equal(t, QueryResultCacheName, stats[1].Name)
	assert.Equal(t, 0, stats[1].Size)
	assert.Equal(t, 1, stats[2].Size)
}

func TestLayer_InvalidationRejectsInFlightWrites(t *testing.T) {
	l := NewLayer(DefaultLayerConfig("m"))
	key := QueryKey{Query: "pto", TopK: 5, Strategy: domain.StrategySemantic, Model: "m"}

	queryGen := l.QueryResults.Generation()
	responseGen := l.Responses.Generation()

	l.InvalidateBySource("/docs/gone.txt")

	assert.False(t, l.QueryResults.PutIfGeneration(key, docs("/docs/gone.txt"), queryGen))
	assert.False(t, l.Responses.PutIfGeneration("pto", Response{
		Answer:  "stale",
		Sources: []domain.SourceRef{{SourceFile: "/docs/gone.txt"}},
	}, responseGen))

	_, ok := l.QueryResults.Get(key)
	assert.False(t, ok)
	_, ok = l.Responses.Get("pto")
	assert.False(t, ok)

	require.True(t, l.QueryResults.PutIfGeneration(key, docs("/docs/a.txt"), l.QueryResults.Generation()))
}
