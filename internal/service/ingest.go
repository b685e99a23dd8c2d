package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jpark8215/internal-chatbot/internal/cache"
	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/metrics"
	"github.com/jpark8215/internal-chatbot/internal/telemetry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ChunkRepositoryInterface defines the repository interface for chunk persistence
type ChunkRepositoryInterface interface {
	InsertBatch(ctx context.Context, chunks []domain.Chunk) error
	DeleteBySource(ctx context.Context, sourceFile string) (int64, error)
	HasChunks(ctx context.Context, sourceFile string) (bool, error)
	CountDocuments(ctx context.Context) (int, error)
	CountBySource(ctx context.Context) ([]domain.SourceCount, error)
	ListSourceFiles(ctx context.Context) ([]string, error)
}

// SourceRepositoryInterface defines the repository interface for the source registry
type SourceRepositoryInterface interface {
	Upsert(ctx context.Context, s *domain.DocumentSource) (int64, error)
	GetByPath(ctx context.Context, path string) (*domain.DocumentSource, error)
	List(ctx context.Context) ([]*domain.DocumentSource, error)
	Delete(ctx context.Context, path string) (bool, error)
}

// TextExtractor converts a file into text plus optional page positions.
type TextExtractor interface {
	Supports(path string) bool
	Extract(ctx context.Context, path string) (*domain.ExtractedText, error)
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestMode selects how already-ingested sources are treated.
type IngestMode int

const (
	// IngestModeFull skips any source that already has chunks.
	IngestModeFull IngestMode = iota
	// IngestModeIncremental re-ingests sources whose mtime moved forward.
	IngestModeIncremental
)

func (m IngestMode) String() string {
	if m == IngestModeIncremental {
		return "incremental"
	}
	return "full"
}

// IngestConfig bounds embedding fan-out during ingestion.
type IngestConfig struct {
	BatchSize     int
	MaxConcurrent int
}

func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		BatchSize:     50,
		MaxConcurrent: 20,
	}
}

// FileError records a file that could not be ingested.
type FileError struct {
	Path string
	Err  error
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Mode           IngestMode
	FilesSeen      int
	FilesIngested  int
	FilesSkipped   int
	ChunksIngested int
	ChunksRemoved  int
	Errors         []FileError
	Duration       time.Duration
}

func (r *IngestReport) FilesFailed() int {
	return len(r.Errors)
}

type fileOutcome struct {
	skipped bool
	chunks  int
	removed int
}

// IngestionService turns files into stored, embedded chunks.
type IngestionService struct {
	extractor TextExtractor
	embedder  EmbeddingClient
	chunker   *Chunker
	chunkRepo ChunkRepositoryInterface
	srcRepo   SourceRepositoryInterface
	txRunner  TxRunner
	caches    *cache.Layer
	metrics   *metrics.Recorder
	cfg       IngestConfig
}

// NewIngestionService creates a new IngestionService instance. caches and
// recorder may be nil.
func NewIngestionService(
	extractor TextExtractor,
	embedder EmbeddingClient,
	chunker *Chunker,
	chunkRepo ChunkRepositoryInterface,
	srcRepo SourceRepositoryInterface,
	txRunner TxRunner,
	caches *cache.Layer,
	recorder *metrics.Recorder,
	cfg IngestConfig,
) *IngestionService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultIngestConfig().BatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultIngestConfig().MaxConcurrent
	}
	return &IngestionService{
		extractor: extractor,
		embedder:  embedder,
		chunker:   chunker,
		chunkRepo: chunkRepo,
		srcRepo:   srcRepo,
		txRunner:  txRunner,
		caches:    caches,
		metrics:   recorder,
		cfg:       cfg,
	}
}

// Ingest ingests every supported file under path, skipping sources that
// already have chunks.
func (s *IngestionService) Ingest(ctx context.Context, path string) (*IngestReport, error) {
	return s.run(ctx, path, IngestModeFull)
}

// IngestIncremental re-ingests files whose modification time is newer than the
// one recorded at their last ingest.
func (s *IngestionService) IngestIncremental(ctx context.Context, path string) (*IngestReport, error) {
	return s.run(ctx, path, IngestModeIncremental)
}

func (s *IngestionService) run(ctx context.Context, path string, mode IngestMode) (*IngestReport, error) {
	started := time.Now()
	files, err := listSupportedFiles(path, s.Supports)
	if err != nil {
		return nil, err
	}

	report := &IngestReport{Mode: mode, FilesSeen: len(files)}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, err := s.ingestFile(ctx, file, mode)
		if err != nil {
			log.Printf("ingest: failed %s: %v", file, err)
			report.Errors = append(report.Errors, FileError{Path: file, Err: err})
			continue
		}
		if outcome.skipped {
			report.FilesSkipped++
			continue
		}
		report.FilesIngested++
		report.ChunksIngested += outcome.chunks
		report.ChunksRemoved += outcome.removed
	}

	report.Duration = time.Since(started)
	log.Printf("ingest: %s run over %s finished: files=%d ingested=%d skipped=%d failed=%d chunks=%d in %s",
		mode, path, report.FilesSeen, report.FilesIngested, report.FilesSkipped, report.FilesFailed(),
		report.ChunksIngested, report.Duration.Round(time.Millisecond))
	return report, nil
}

// IngestFile ingests a single file and returns the number of chunks written.
// A skipped file returns zero chunks and no error.
func (s *IngestionService) IngestFile(ctx context.Context, path string, mode IngestMode) (int, error) {
	outcome, err := s.ingestFile(ctx, path, mode)
	if err != nil {
		return 0, err
	}
	return outcome.chunks, nil
}

// Supports reports whether path is a file type the pipeline can read.
func (s *IngestionService) Supports(path string) bool {
	return domain.IsSupportedFile(path) && s.extractor.Supports(path)
}

// listSupportedFiles returns the absolute paths of supported files under root,
// skipping hidden entries. A file root yields itself.
func listSupportedFiles(root string, supports func(string) bool) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, domain.ErrPathNotFound.WithCause(err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrPathNotFound.WithCause(errors.New(abs))
		}
		return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return []string{abs}, nil
	}

	var files []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("ingest: cannot read %s: %v", p, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != abs && isHidden(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if isHidden(d.Name()) || !supports(p) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", abs, err)
	}
	sort.Strings(files)
	return files, nil
}

func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.'
}

func (s *IngestionService) ingestFile(ctx context.Context, path string, mode IngestMode) (outcome fileOutcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.IngestFile", telemetry.SpanAttributes{
		SourceFile: path,
		Operation:  mode.String(),
	})
	defer func() {
		switch {
		case err != nil:
			span.SetError(err)
			s.metrics.IngestedFile(metrics.IngestFailed)
		case outcome.skipped:
			s.metrics.IngestedFile(metrics.IngestSkipped)
		default:
			s.metrics.IngestedFile(metrics.IngestIngested)
			s.metrics.IngestedChunks(outcome.chunks)
		}
		span.End()
	}()

	path, err = filepath.Abs(path)
	if err != nil {
		return outcome, domain.ErrPathNotFound.WithCause(err)
	}
	if !s.Supports(path) {
		return outcome, domain.ErrUnsupportedFormat.WithCause(errors.New(filepath.Ext(path)))
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return outcome, domain.ErrPathNotFound.WithCause(errors.New(path))
		}
		return outcome, domain.ErrCorruptFile.WithCause(err)
	}
	modTime := info.ModTime().UTC().Truncate(time.Microsecond)

	skip, err := s.shouldSkip(ctx, path, modTime, mode)
	if err != nil {
		return outcome, err
	}
	if skip {
		outcome.skipped = true
		return outcome, nil
	}

	extracted, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return outcome, err
	}

	pieces := s.chunker.Chunk(extracted.Text, extracted.Pages)
	if len(pieces) == 0 {
		log.Printf("ingest: %s has no text", path)
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}
	embeddings, err := s.embed(ctx, path, texts)
	if err != nil {
		return outcome, err
	}

	fileType := extracted.FileType
	if fileType == "" {
		fileType = domain.FileTypeFor(path)
	}
	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = domain.Chunk{
			SourceFile:    path,
			FileType:      fileType,
			ChunkIndex:    p.Metadata.ChunkIndex,
			Content:       p.Content,
			Embedding:     embeddings[i],
			StartPosition: p.Metadata.StartPosition,
			EndPosition:   p.Metadata.EndPosition,
			PageNumber:    p.Metadata.PageNumber,
		}
	}
	if err := domain.ValidateChunkSequence(chunks); err != nil {
		return outcome, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "chunk sequence is invalid", err)
	}

	source := &domain.DocumentSource{
		SourcePath:     path,
		FileType:       fileType,
		FileModifiedAt: modTime,
	}

	var removed int64
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		sourceID, err := repos.Sources().Upsert(ctx, source)
		if err != nil {
			return fmt.Errorf("failed to upsert source: %w", err)
		}
		for i := range chunks {
			chunks[i].SourceID = sourceID
		}

		removed, err = repos.Chunks().DeleteBySource(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to delete stale chunks: %w", err)
		}

		if len(chunks) == 0 {
			return nil
		}
		if err := repos.Chunks().InsertBatch(ctx, chunks); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return outcome, domain.ErrStoreUnavailable.WithCause(err)
	}

	if removed > 0 {
		s.caches.InvalidateBySource(path)
	}

	if len(chunks) == 0 {
		outcome.skipped = true
		return outcome, nil
	}

	outcome.chunks = len(chunks)
	outcome.removed = int(removed)
	log.Printf("ingest: %s -> %d chunks (replaced %d)", path, len(chunks), removed)
	return outcome, nil
}

func (s *IngestionService) shouldSkip(ctx context.Context, path string, modTime time.Time, mode IngestMode) (bool, error) {
	if mode == IngestModeIncremental {
		src, err := s.srcRepo.GetByPath(ctx, path)
		switch {
		case errors.Is(err, domain.ErrSourceNotFound):
			return false, nil
		case err != nil:
			return false, domain.ErrStoreUnavailable.WithCause(err)
		}
		if modTime.After(src.FileModifiedAt) {
			return false, nil
		}
	}

	has, err := s.chunkRepo.HasChunks(ctx, path)
	if err != nil {
		return false, domain.ErrStoreUnavailable.WithCause(err)
	}
	return has, nil
}

// embed returns one embedding per text. Cached vectors are reused; the rest are
// requested in batches that run concurrently up to MaxConcurrent.
func (s *IngestionService) embed(ctx context.Context, sourceFile string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	embCache := s.embeddingCache()

	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if embCache != nil {
			if v, ok := embCache.Get(text); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	started := time.Now()
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrent))
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(missing); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(missing))
		batch := missing[start:end]

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			batchTexts := make([]string, len(batch))
			for j, idx := range batch {
				batchTexts[j] = texts[idx]
			}
			vecs, err := s.embedder.GenerateEmbeddings(gctx, batchTexts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return domain.ErrEmbeddingMalformed.WithCause(fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vecs)))
			}
			for j, idx := range batch {
				out[idx] = vecs[j]
				if embCache != nil {
					embCache.Put(texts[idx], vecs[j], sourceFile)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	s.metrics.ObserveEmbedding(time.Since(started), err)
	if err != nil {
		if domain.HasCode(err, domain.ErrCodeEmbedding) {
			return nil, err
		}
		return nil, domain.ErrEmbeddingUnavailable.WithCause(err)
	}
	return out, nil
}

func (s *IngestionService) embeddingCache() *cache.EmbeddingCache {
	if s.caches == nil {
		return nil
	}
	return s.caches.Embeddings
}
