package service

import (
	"context"
	"log"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/domain"
)

// RetrievalLogRepository persists one entry per retrieval.
type RetrievalLogRepository interface {
	CreateRetrievalLog(ctx context.Context, entry domain.RetrievalLogEntry) (string, error)
}

// SourcePreferenceProvider returns feedback-derived weights in [0, 1] per
// source file for a query.
type SourcePreferenceProvider interface {
	SourcePreferences(ctx context.Context, query string) (map[string]float64, error)
}

func (s *RetrievalService) logRetrieval(ctx context.Context, result *domain.RetrievalResult) {
	if s.logRepo == nil || result == nil {
		return
	}

	entry := domain.RetrievalLogEntry{
		Query:       result.Query,
		Strategy:    result.StrategyUsed,
		ResultCount: len(result.Documents),
		DurationMs:  int(result.RetrievalTime.Milliseconds()),
		CacheHit:    result.CacheHit,
		Degraded:    result.Degraded,
		CreatedAt:   time.Now().UTC(),
	}
	if len(result.Documents) > 0 {
		entry.TopSource = result.Documents[0].SourceFile
	}

	if _, err := s.logRepo.CreateRetrievalLog(ctx, entry); err != nil {
		log.Printf("retrieval: failed to record retrieval log: %v", err)
	}
}
