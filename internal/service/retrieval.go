package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/cache"
	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/metrics"
	"github.com/jpark8215/internal-chatbot/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// SearchRepositoryInterface defines the ranking primitives of the document store
type SearchRepositoryInterface interface {
	SearchSemantic(ctx context.Context, embedding []float32, limit int) ([]domain.ScoredChunk, error)
	SearchKeyword(ctx context.Context, terms []string, phrase string, limit int) ([]domain.ScoredChunk, error)
	SearchHybrid(ctx context.Context, query string, embedding []float32, alpha float64, limit int) ([]domain.ScoredChunk, error)
	SearchExactPhrase(ctx context.Context, phrase string, limit int) ([]domain.ScoredChunk, error)
	SearchTermOverlap(ctx context.Context, terms []string, limit int) ([]domain.ScoredChunk, error)
	SearchEnumeratedList(ctx context.Context, filterTerms []string, limit int) ([]domain.ScoredChunk, error)
}

// DocumentCounter reports the corpus size.
type DocumentCounter interface {
	CountDocuments(ctx context.Context) (int, error)
}

// RetrievalConfig holds request defaults.
type RetrievalConfig struct {
	TopK  int
	Model string
}

// RetrievalDeps wires the collaborators of a RetrievalService. Only Search is
// required.
type RetrievalDeps struct {
	Search      SearchRepositoryInterface
	Embedder    EmbeddingClient
	Counter     DocumentCounter
	Preferences SourcePreferenceProvider
	Log         RetrievalLogRepository
	Rewriter    *QueryRewriter
	Caches      *cache.Layer
	Metrics     *metrics.Recorder
}

// RetrievalService ranks chunks against a query with one of several strategies.
type RetrievalService struct {
	search   SearchRepositoryInterface
	embedder EmbeddingClient
	counter  DocumentCounter
	prefs    SourcePreferenceProvider
	logRepo  RetrievalLogRepository
	rewriter *QueryRewriter
	caches   *cache.Layer
	metrics  *metrics.Recorder
	policy   RetrievalPolicy
	cfg      RetrievalConfig
}

func NewRetrievalService(deps RetrievalDeps, policy RetrievalPolicy, cfg RetrievalConfig) *RetrievalService {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if policy.CandidateMultiplier <= 0 {
		policy.CandidateMultiplier = 1
	}
	return &RetrievalService{
		search:   deps.Search,
		embedder: deps.Embedder,
		counter:  deps.Counter,
		prefs:    deps.Preferences,
		logRepo:  deps.Log,
		rewriter: deps.Rewriter,
		caches:   deps.Caches,
		metrics:  deps.Metrics,
		policy:   policy,
		cfg:      cfg,
	}
}

func (s *RetrievalService) Policy() RetrievalPolicy {
	return s.policy
}

// SelectStrategy picks the strategy used when the caller does not name one.
func (s *RetrievalService) SelectStrategy(query string) domain.Strategy {
	return s.policy.SelectStrategy(query)
}

// Retrieve ranks chunks for query. strategy may be nil to let the heuristic
// choose. Only invalid input is returned as an error; strategy failures come
// back as an empty result with Err set, and an unavailable embedding provider
// degrades to keyword search.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, topK int, strategy *domain.Strategy) (*domain.RetrievalResult, error) {
	started := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	chosen := s.policy.SelectStrategy(query)
	if strategy != nil {
		if !strategy.IsValid() {
			return nil, domain.ErrInvalidStrategy
		}
		chosen = *strategy
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		Query:     query,
		Strategy:  string(chosen),
		Operation: "retrieve",
	})
	defer span.End()

	result := &domain.RetrievalResult{Query: query, StrategyUsed: chosen}

	key := cache.QueryKey{Query: cache.NormalizeQuery(query), TopK: topK, Strategy: chosen, Model: s.cfg.Model}
	var gen uint64
	if qc := s.queryCache(); qc != nil {
		gen = qc.Generation()
		if docs, ok := qc.Get(key); ok {
			result.Documents = docs
			result.CacheHit = true
			result.RetrievalTime = time.Since(started)
			s.metrics.ObserveRetrieval(string(chosen), result.RetrievalTime, len(docs), metrics.OutcomeCached)
			s.logRetrieval(ctx, result)
			return result, nil
		}
	}

	if s.counter != nil {
		if n, err := s.counter.CountDocuments(ctx); err == nil {
			result.TotalDocumentsSearched = n
		} else {
			log.Printf("retrieval: failed to count documents: %v", err)
		}
	}

	run := &strategyRun{svc: s, query: query, limit: topK * s.policy.CandidateMultiplier, result: result}
	docs, err := run.execute(ctx, chosen)
	if err != nil {
		span.SetError(err)
		result.Err = domain.ErrStoreUnavailable.WithCause(err)
		result.Documents = []domain.ScoredChunk{}
		result.RetrievalTime = time.Since(started)
		log.Printf("retrieval: %s search failed: %v", result.StrategyUsed, err)
		s.metrics.ObserveRetrieval(string(result.StrategyUsed), result.RetrievalTime, 0, metrics.OutcomeError)
		s.logRetrieval(ctx, result)
		return result, nil
	}

	docs = s.policy.filterByRelevance(docs, result.StrategyUsed)
	docs = s.policy.applyBoost(docs, query, s.preferences(ctx, query))
	if len(docs) > topK {
		docs = docs[:topK]
	}
	s.policy.normalize(docs)

	result.Documents = docs
	result.RetrievalTime = time.Since(started)

	outcome := metrics.OutcomeOK
	switch {
	case result.Degraded:
		outcome = metrics.OutcomeDegraded
	case len(docs) == 0:
		outcome = metrics.OutcomeEmpty
	}
	s.metrics.ObserveRetrieval(string(result.StrategyUsed), result.RetrievalTime, len(docs), outcome)

	if qc := s.queryCache(); qc != nil && !result.Degraded && len(docs) > 0 {
		if !qc.PutIfGeneration(key, docs, gen) {
			log.Printf("retrieval: not caching %q, a source was invalidated during the search", query)
		}
	}
	s.logRetrieval(ctx, result)
	return result, nil
}

// RetrieveDecomposed rewrites compound queries into subqueries, retrieves each
// concurrently and fuses the results. Simple queries go through Retrieve.
func (s *RetrievalService) RetrieveDecomposed(ctx context.Context, query string, topK int) (*domain.RetrievalResult, Rewrite, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, Rewrite{}, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	rw := Rewrite{Kind: RewriteSimple, Query: query}
	if s.rewriter != nil {
		rw = s.rewriter.Rewrite(ctx, query)
	}
	if rw.Kind != RewriteSubqueries || len(rw.Subqueries) < 2 {
		res, err := s.Retrieve(ctx, query, topK, nil)
		return res, rw, err
	}

	started := time.Now()
	results := make([]*domain.RetrievalResult, len(rw.Subqueries))
	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range rw.Subqueries {
		g.Go(func() error {
			res, err := s.Retrieve(gctx, sub, topK, nil)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, rw, err
	}

	merged := &domain.RetrievalResult{Query: query, StrategyUsed: results[0].StrategyUsed, CacheHit: true}
	sets := make([][]domain.ScoredChunk, 0, len(results))
	var errs []error
	for _, res := range results {
		sets = append(sets, res.Documents)
		merged.EmbeddingTime += res.EmbeddingTime
		merged.TotalDocumentsSearched = max(merged.TotalDocumentsSearched, res.TotalDocumentsSearched)
		merged.Degraded = merged.Degraded || res.Degraded
		merged.CacheHit = merged.CacheHit && res.CacheHit
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	if len(errs) == len(results) {
		merged.Err = errors.Join(errs...)
	}

	docs := MergeResults(sets)
	if len(docs) > topK {
		docs = docs[:topK]
	}
	merged.Documents = docs
	merged.RetrievalTime = time.Since(started)
	return merged, rw, nil
}

func (s *RetrievalService) queryCache() *cache.QueryResultCache {
	if s.caches == nil {
		return nil
	}
	return s.caches.QueryResults
}

func (s *RetrievalService) preferences(ctx context.Context, query string) map[string]float64 {
	if s.prefs == nil {
		return nil
	}
	prefs, err := s.prefs.SourcePreferences(ctx, query)
	if err != nil {
		log.Printf("retrieval: source preferences unavailable: %v", err)
		return nil
	}
	return prefs
}

// embedQuery returns the query embedding, consulting the embedding cache
// first.
func (s *RetrievalService) embedQuery(ctx context.Context, query string) ([]float32, time.Duration, error) {
	var embCache *cache.EmbeddingCache
	if s.caches != nil {
		embCache = s.caches.Embeddings
	}
	if embCache != nil {
		if v, ok := embCache.Get(query); ok {
			return v, 0, nil
		}
	}
	if s.embedder == nil {
		return nil, 0, domain.ErrEmbeddingUnavailable
	}

	started := time.Now()
	v, err := s.embedder.GenerateEmbedding(ctx, query)
	elapsed := time.Since(started)
	s.metrics.ObserveEmbedding(elapsed, err)
	if err != nil {
		return nil, elapsed, err
	}
	if embCache != nil {
		embCache.Put(query, v)
	}
	return v, elapsed, nil
}
