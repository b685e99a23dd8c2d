package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Cache(t *testing.T) {
	r := NewRecorder()

	r.CacheHit("embedding")
	r.CacheHit("embedding")
	r.CacheMiss("embedding")
	r.CacheEviction("response", "capacity")
	r.CacheSize("response", 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheRequests.WithLabelValues("embedding", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheRequests.WithLabelValues("embedding", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheEvictions.WithLabelValues("response", "capacity")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.cacheSize.WithLabelValues("response")))
}

func TestRecorder_RetrievalAndIngest(t *testing.T) {
	r := NewRecorder()

	r.ObserveRetrieval("semantic", 30*time.Millisecond, 4, OutcomeOK)
	r.ObserveEmbedding(10*time.Millisecond, errors.New("boom"))
	r.IngestedFile(IngestIngested)
	r.IngestedChunks(12)
	r.IngestedChunks(0)
	r.WatcherEvent("create")
	r.FileAbandoned()
	r.CleanupRemoved(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.retrievalTotal.WithLabelValues("semantic", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.embeddingErrors))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.ingestChunks))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.watcherAbandon))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cleanupRemoved))
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	r.CacheHit("x")
	r.ObserveRetrieval("keyword", time.Second, 0, OutcomeEmpty)
	r.IngestedFile(IngestFailed)
	assert.Nil(t, r.Registry())
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.CacheHit("embedding")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chatbot_cache_requests_total{cache="embedding",result="hit"} 1`)
}
