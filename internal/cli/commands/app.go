// Package commands implements the chatbotd command tree.
package commands

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpark8215/internal-chatbot/internal/cache"
	"github.com/jpark8215/internal-chatbot/internal/config"
	"github.com/jpark8215/internal-chatbot/internal/database"
	"github.com/jpark8215/internal-chatbot/internal/extract"
	"github.com/jpark8215/internal-chatbot/internal/metrics"
	"github.com/jpark8215/internal-chatbot/internal/openai"
	"github.com/jpark8215/internal-chatbot/internal/repository"
	"github.com/jpark8215/internal-chatbot/internal/service"
	"github.com/jpark8215/internal-chatbot/internal/storage"
	"github.com/jpark8215/internal-chatbot/internal/telemetry"
)

// app holds the wired services shared by every command.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	recorder *metrics.Recorder
	caches   *cache.Layer
	llm      *openai.Client

	chunks   *repository.ChunkRepository
	sources  *repository.SourceRepository
	feedback *repository.FeedbackRepository
	logs     *repository.RetrievalLogRepository

	ingest    *service.IngestionService
	retrieval *service.RetrievalService
	answers   *service.AnswerService
	registry  *service.SourceService
	cleanup   *service.CleanupService

	shutdownTelemetry func()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newApp connects to the database and wires the services.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate(),
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		shutdown = func() {}
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:              cfg.DatabaseURL,
		MaxConns:         cfg.DBMaxConns,
		MinConns:         cfg.DBMinConns,
		StatementTimeout: cfg.DBStatementTimeout,
		ConnectTimeout:   cfg.DBConnectTimeout,
	})
	if err != nil {
		shutdown()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &app{
		cfg:               cfg,
		pool:              pool,
		recorder:          metrics.NewRecorder(),
		chunks:            repository.NewChunkRepository(pool),
		sources:           repository.NewSourceRepository(pool),
		feedback:          repository.NewFeedbackRepository(pool),
		logs:              repository.NewRetrievalLogRepository(pool),
		shutdownTelemetry: shutdown,
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg

	a.caches = cache.NewLayer(cacheConfig(cfg), cache.WithObserver(a.recorder))

	a.llm = openai.NewClientWithConfig(openai.Config{
		BaseURL:             cfg.LLMBaseURL,
		APIKey:              cfg.LLMAPIKey,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDim,
		ChatModel:           cfg.ChatModel,
		EmbedTimeout:        cfg.EmbedTimeout,
		GenerationTimeout:   cfg.GenerationTimeout,
		RequestsPerSecond:   cfg.EmbedRPS,
	})

	chunker, err := service.NewChunker(service.ChunkConfig{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
	})
	if err != nil {
		return fmt.Errorf("invalid chunk config: %w", err)
	}

	policy := service.DefaultRetrievalPolicy()
	if cfg.PolicyFile != "" {
		policy, err = service.LoadRetrievalPolicy(cfg.PolicyFile)
		if err != nil {
			return fmt.Errorf("failed to load retrieval policy: %w", err)
		}
	}
	if cfg.EnableHybridSearch {
		policy.HybridEnabled = true
	}

	tx := repository.NewTxRunner(a.pool)

	a.ingest = service.NewIngestionService(
		extract.NewRegistry(),
		a.llm,
		chunker,
		a.chunks,
		a.sources,
		tx,
		a.caches,
		a.recorder,
		service.IngestConfig{
			BatchSize:     cfg.EmbedBatchSize,
			MaxConcurrent: cfg.EmbedConcurrency,
		},
	)

	a.retrieval = service.NewRetrievalService(service.RetrievalDeps{
		Search:      repository.NewSearchRepository(a.pool),
		Embedder:    a.llm,
		Counter:     a.chunks,
		Preferences: a.feedback,
		Log:         a.logs,
		Rewriter:    service.NewQueryRewriter(a.llm, service.DefaultRewriterConfig()),
		Caches:      a.caches,
		Metrics:     a.recorder,
	}, policy, service.RetrievalConfig{
		TopK:  cfg.TopK,
		Model: cfg.EmbeddingModel,
	})

	a.answers = service.NewAnswerService(a.retrieval, a.llm, a.caches, service.DefaultAnswerConfig())
	a.registry = service.NewSourceService(a.chunks, a.sources, tx, a.caches, a.recorder)
	a.cleanup = service.NewCleanupService(a.chunks, a.sources, a.registry, a.ingest.Supports, a.recorder)
	return nil
}

func cacheConfig(cfg *config.Config) cache.LayerConfig {
	return cache.LayerConfig{
		Model:            cfg.EmbeddingModel,
		EmbeddingEnabled: cfg.EmbeddingCacheEnabled,
		EmbeddingSize:    cfg.EmbeddingCacheSize,
		EmbeddingTTL:     cfg.EmbeddingCacheTTL,
		QueryEnabled:     cfg.QueryCacheEnabled,
		QuerySize:        cfg.QueryCacheSize,
		QueryTTL:         cfg.QueryCacheTTL,
		ResponseEnabled:  cfg.ResponseCacheEnabled,
		ResponseSize:     cfg.ResponseCacheSize,
		ResponseTTL:      cfg.ResponseCacheTTL,
	}
}

// s3Mirror returns nil when S3 is not configured.
func (a *app) s3Mirror(ctx context.Context) (*storage.S3Mirror, error) {
	if !a.cfg.HasS3() {
		return nil, nil
	}
	if !a.cfg.HasIngestPath() {
		return nil, fmt.Errorf("S3 mirroring requires CHATBOT_INGEST_PATH")
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        a.cfg.S3Endpoint,
		Region:          a.cfg.S3Region,
		AccessKeyID:     a.cfg.S3AccessKey,
		SecretAccessKey: a.cfg.S3SecretKey,
		Bucket:          a.cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Printf("storage: bucket '%s' ready", a.cfg.S3Bucket)

	return storage.NewS3Mirror(client, a.cfg.S3Prefix, a.cfg.IngestPath, a.ingest.Supports), nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.shutdownTelemetry != nil {
		a.shutdownTelemetry()
	}
}
