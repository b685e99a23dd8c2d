// Package metrics exports Prometheus metrics for caches, retrieval, ingestion
// and the file watcher. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot"

// Recorder owns a private registry so tests can create as many as they like.
type Recorder struct {
	registry *prometheus.Registry

	cacheRequests  *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	cacheSize      *prometheus.GaugeVec

	retrievalDuration *prometheus.HistogramVec
	retrievalResults  *prometheus.HistogramVec
	retrievalTotal    *prometheus.CounterVec

	embeddingDuration prometheus.Histogram
	embeddingErrors   prometheus.Counter

	ingestFiles  *prometheus.CounterVec
	ingestChunks prometheus.Counter

	watcherEvents  *prometheus.CounterVec
	watcherAbandon prometheus.Counter
	cleanupRemoved prometheus.Counter
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "requests_total",
			Help: "Cache lookups by cache and result (hit or miss).",
		}, []string{"cache", "result"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Cache entries removed by cache and reason.",
		}, []string{"cache", "reason"}),
		cacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "entries",
			Help: "Current number of cache entries.",
		}, []string{"cache"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "duration_seconds",
			Help:    "Retrieval latency by strategy.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"strategy"}),
		retrievalResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "results",
			Help:    "Documents returned after filtering, by strategy.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 20},
		}, []string{"strategy"}),
		retrievalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retrieval", Name: "requests_total",
			Help: "Retrievals by strategy and outcome (ok, cached, degraded, empty).",
		}, []string{"strategy", "outcome"}),
		embeddingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "embedding", Name: "duration_seconds",
			Help:    "Embedding provider call latency.",
			Buckets: prometheus.DefBuckets,
		}),
		embeddingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "embedding", Name: "errors_total",
			Help: "Failed embedding provider calls.",
		}),
		ingestFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "files_total",
			Help: "Files processed by outcome (ingested, skipped, failed).",
		}, []string{"outcome"}),
		ingestChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ingest", Name: "chunks_total",
			Help: "Chunks written to the document store.",
		}),
		watcherEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "watcher", Name: "events_total",
			Help: "Filesystem events handled by operation.",
		}, []string{"op"}),
		watcherAbandon: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "watcher", Name: "abandoned_files_total",
			Help: "Files given up on after exhausting retries.",
		}),
		cleanupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cleanup", Name: "removed_sources_total",
			Help: "Orphaned sources removed by cleanup.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.cacheRequests, r.cacheEvictions, r.cacheSize,
		r.retrievalDuration, r.retrievalResults, r.retrievalTotal,
		r.embeddingDuration, r.embeddingErrors,
		r.ingestFiles, r.ingestChunks,
		r.watcherEvents, r.watcherAbandon, r.cleanupRemoved,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) CacheHit(cache string) {
	if r == nil {
		return
	}
	r.cacheRequests.WithLabelValues(cache, "hit").Inc()
}

func (r *Recorder) CacheMiss(cache string) {
	if r == nil {
		return
	}
	r.cacheRequests.WithLabelValues(cache, "miss").Inc()
}

func (r *Recorder) CacheEviction(cache string, reason string) {
	if r == nil {
		return
	}
	r.cacheEvictions.WithLabelValues(cache, reason).Inc()
}

func (r *Recorder) CacheSize(cache string, size int) {
	if r == nil {
		return
	}
	r.cacheSize.WithLabelValues(cache).Set(float64(size))
}

// Retrieval outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeCached   = "cached"
	OutcomeDegraded = "degraded"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
)

func (r *Recorder) ObserveRetrieval(strategy string, d time.Duration, results int, outcome string) {
	if r == nil {
		return
	}
	r.retrievalDuration.WithLabelValues(strategy).Observe(d.Seconds())
	r.retrievalResults.WithLabelValues(strategy).Observe(float64(results))
	r.retrievalTotal.WithLabelValues(strategy, outcome).Inc()
}

func (r *Recorder) ObserveEmbedding(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.embeddingDuration.Observe(d.Seconds())
	if err != nil {
		r.embeddingErrors.Inc()
	}
}

// Ingest outcomes.
const (
	IngestIngested = "ingested"
	IngestSkipped  = "skipped"
	IngestFailed   = "failed"
	IngestRemoved  = "removed"
)

func (r *Recorder) IngestedFile(outcome string) {
	if r == nil {
		return
	}
	r.ingestFiles.WithLabelValues(outcome).Inc()
}

func (r *Recorder) IngestedChunks(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.ingestChunks.Add(float64(n))
}

func (r *Recorder) WatcherEvent(op string) {
	if r == nil {
		return
	}
	r.watcherEvents.WithLabelValues(op).Inc()
}

func (r *Recorder) FileAbandoned() {
	if r == nil {
		return
	}
	r.watcherAbandon.Inc()
}

func (r *Recorder) CleanupRemoved(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.cleanupRemoved.Add(float64(n))
}
