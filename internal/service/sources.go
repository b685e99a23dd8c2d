package service

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/jpark8215/internal-chatbot/internal/cache"
	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/metrics"
	"github.com/jpark8215/internal-chatbot/internal/telemetry"
)

// SourceService manages the lifecycle of ingested sources.
type SourceService struct {
	chunkRepo ChunkRepositoryInterface
	srcRepo   SourceRepositoryInterface
	txRunner  TxRunner
	caches    *cache.Layer
	metrics   *metrics.Recorder
}

func NewSourceService(
	chunkRepo ChunkRepositoryInterface,
	srcRepo SourceRepositoryInterface,
	txRunner TxRunner,
	caches *cache.Layer,
	recorder *metrics.Recorder,
) *SourceService {
	return &SourceService{
		chunkRepo: chunkRepo,
		srcRepo:   srcRepo,
		txRunner:  txRunner,
		caches:    caches,
		metrics:   recorder,
	}
}

// RemoveSource deletes every chunk and the registry row for path. Caches are
// invalidated both before and after the delete, and the second pass completes
// before RemoveSource returns.
func (s *SourceService) RemoveSource(ctx context.Context, path string) (int64, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	ctx, span := telemetry.StartSpan(ctx, "SourceService.RemoveSource", telemetry.SpanAttributes{
		SourceFile: path,
		Operation:  "remove",
	})
	defer span.End()

	s.caches.InvalidateBySource(path)

	var removed int64
	var existed bool
	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		var err error
		removed, err = repos.Chunks().DeleteBySource(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		existed, err = repos.Sources().Delete(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to delete source: %w", err)
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return 0, domain.ErrStoreUnavailable.WithCause(err)
	}

	inv := s.caches.InvalidateBySource(path)
	if removed == 0 && !existed {
		return 0, domain.ErrSourceNotFound
	}

	s.metrics.IngestedFile(metrics.IngestRemoved)
	log.Printf("sources: removed %s (%d chunks, %d cache entries)", path, removed, inv.Total())
	return removed, nil
}

// SourceStats summarizes the corpus.
type SourceStats struct {
	TotalChunks int                  `json:"total_chunks"`
	Sources     []domain.SourceCount `json:"sources"`
}

func (s *SourceService) Stats(ctx context.Context) (*SourceStats, error) {
	total, err := s.chunkRepo.CountDocuments(ctx)
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	}
	counts, err := s.chunkRepo.CountBySource(ctx)
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	}
	return &SourceStats{TotalChunks: total, Sources: counts}, nil
}

// List returns the source registry.
func (s *SourceService) List(ctx context.Context) ([]*domain.DocumentSource, error) {
	sources, err := s.srcRepo.List(ctx)
	if err != nil {
		return nil, domain.ErrStoreUnavailable.WithCause(err)
	}
	return sources, nil
}
