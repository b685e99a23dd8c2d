package service

import (
	"context"
	"log"
	"strings"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/telemetry"
)

// strategyRun executes one strategy for one query. The query embedding is
// requested lazily so lexical paths never touch the provider.
type strategyRun struct {
	svc    *RetrievalService
	query  string
	limit  int
	result *domain.RetrievalResult

	embedding []float32
	embedErr  error
	embedded  bool
}

func (r *strategyRun) embed(ctx context.Context) ([]float32, error) {
	if !r.embedded {
		r.embedded = true
		emb, d, err := r.svc.embedQuery(ctx, r.query)
		r.embedding, r.embedErr = emb, err
		r.result.EmbeddingTime += d
	}
	return r.embedding, r.embedErr
}

// degrade switches the run to keyword search after an embedding failure.
func (r *strategyRun) degrade(ctx context.Context, from domain.Strategy, cause error) ([]domain.ScoredChunk, error) {
	log.Printf("retrieval: embedding unavailable for %s search, falling back to keyword: %v", from, cause)
	r.result.Degraded = true
	r.result.StrategyUsed = domain.StrategyKeyword
	return r.keyword(ctx)
}

func (r *strategyRun) execute(ctx context.Context, strategy domain.Strategy) ([]domain.ScoredChunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.execute", telemetry.SpanAttributes{
		Strategy:  string(strategy),
		Operation: "search",
	})
	defer span.End()

	switch strategy {
	case domain.StrategyKeyword:
		return r.keyword(ctx)
	case domain.StrategyHybrid:
		return r.hybrid(ctx)
	case domain.StrategyEnhanced:
		return r.enhanced(ctx)
	case domain.StrategyCombined:
		return r.combined(ctx)
	default:
		return r.semantic(ctx, strategy)
	}
}

func (r *strategyRun) semantic(ctx context.Context, requested domain.Strategy) ([]domain.ScoredChunk, error) {
	emb, err := r.embed(ctx)
	if err != nil {
		return r.degrade(ctx, requested, err)
	}
	return r.svc.search.SearchSemantic(ctx, emb, r.limit)
}

func (r *strategyRun) keyword(ctx context.Context) ([]domain.ScoredChunk, error) {
	terms := queryTerms(r.query)
	return r.svc.search.SearchKeyword(ctx, terms, strings.Join(terms, " "), r.limit)
}

// hybrid converts the fused similarity into a distance-like score and keeps
// the fusion value in RawScore.
func (r *strategyRun) hybrid(ctx context.Context) ([]domain.ScoredChunk, error) {
	emb, err := r.embed(ctx)
	if err != nil {
		return r.degrade(ctx, domain.StrategyHybrid, err)
	}
	docs, err := r.svc.search.SearchHybrid(ctx, r.query, emb, r.svc.policy.HybridAlpha, r.limit)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].RawScore = docs[i].Score
		docs[i].Score = max(1-docs[i].Score, 0)
	}
	return docs, nil
}

// enhanced tries, in order: enumerated lists for domain queries, exact
// phrase matches, term overlap, and finally semantic search.
func (r *strategyRun) enhanced(ctx context.Context) ([]domain.ScoredChunk, error) {
	p := r.svc.policy
	lower := strings.ToLower(r.query)
	terms := queryTerms(r.query)

	if containsAnyTerm(lower, strings.Fields(lower), p.DomainKeywords) {
		docs, err := r.svc.search.SearchEnumeratedList(ctx, p.EnumeratedListFilter, r.limit)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			return docs, nil
		}
	}

	if len(terms) > 1 {
		docs, err := r.svc.search.SearchExactPhrase(ctx, strings.Join(terms, " "), r.limit)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			return docs, nil
		}
	}

	docs, err := r.svc.search.SearchTermOverlap(ctx, terms, r.limit)
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 {
		return docs, nil
	}

	return r.semantic(ctx, domain.StrategyEnhanced)
}

// combined runs semantic search and, when its best hit is a poor fit, merges
// in keyword hits scored so that every keyword hit ranks above every semantic
// one.
func (r *strategyRun) combined(ctx context.Context) ([]domain.ScoredChunk, error) {
	p := r.svc.policy
	emb, err := r.embed(ctx)
	if err != nil {
		return r.degrade(ctx, domain.StrategyCombined, err)
	}

	semantic, err := r.svc.search.SearchSemantic(ctx, emb, r.limit)
	if err != nil {
		return nil, err
	}
	if len(semantic) > 0 && semantic[0].Score <= p.CombinedFallbackDistance {
		return semantic, nil
	}

	keyword, err := r.keyword(ctx)
	if err != nil {
		return nil, err
	}
	if len(keyword) == 0 {
		return semantic, nil
	}

	best := -1.0
	if len(semantic) > 0 {
		best = semantic[0].Score
	}
	for i := range keyword {
		score := keyword[i].Score * p.CombinedKeywordWeight
		if best >= 0 && score >= best {
			score = best * 0.5
		}
		keyword[i].Score = score
	}

	merged := MergeResults([][]domain.ScoredChunk{keyword, semantic})
	if len(merged) > r.limit {
		merged = merged[:r.limit]
	}
	return merged, nil
}
