package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL        string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"20"`
	DBMinConns         int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	DBStatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"5s"`
	DBConnectTimeout   time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s"`

	// LLM provider. Any OpenAI-compatible endpoint works; the default points at
	// a local Ollama instance.
	LLMBaseURL        string        `envconfig:"LLM_BASE_URL" default:"http://localhost:11434/v1"`
	LLMAPIKey         string        `envconfig:"LLM_API_KEY" default:"ollama"`
	EmbeddingModel    string        `envconfig:"EMBEDDING_MODEL" default:"nomic-embed-text"`
	EmbeddingDim      int           `envconfig:"EMBEDDING_DIM" default:"768"`
	ChatModel         string        `envconfig:"CHAT_MODEL" default:"mistral:7b"`
	EmbedTimeout      time.Duration `envconfig:"EMBED_TIMEOUT" default:"10s"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"15s"`
	EmbedBatchSize    int           `envconfig:"EMBED_BATCH_SIZE" default:"50"`
	EmbedConcurrency  int           `envconfig:"EMBED_MAX_CONCURRENT" default:"20"`
	EmbedRPS          float64       `envconfig:"EMBED_RPS" default:"0"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"400"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"0"`

	IngestPath    string `envconfig:"INGEST_PATH"`
	IngestOnStart bool   `envconfig:"INGEST_ON_START" default:"true"`

	WatchEnabled      bool          `envconfig:"WATCH_ENABLED" default:"false"`
	WatchForcePolling bool          `envconfig:"WATCH_FORCE_POLLING" default:"false"`
	WatchInterval     time.Duration `envconfig:"WATCH_INTERVAL" default:"10m"`
	WatchWorkers      int           `envconfig:"WATCH_WORKERS" default:"2"`
	WatchMaxRetries   int           `envconfig:"WATCH_MAX_RETRIES" default:"5"`
	WatchRetryInitial time.Duration `envconfig:"WATCH_RETRY_INITIAL" default:"2s"`
	WatchRetryMax     time.Duration `envconfig:"WATCH_RETRY_MAX" default:"30s"`
	FileReadyTimeout  time.Duration `envconfig:"FILE_READY_TIMEOUT" default:"60s"`
	FileReadyPoll     time.Duration `envconfig:"FILE_READY_POLL" default:"1s"`
	FileReadyChecks   int           `envconfig:"FILE_READY_CHECKS" default:"2"`

	CleanupEnabled  bool          `envconfig:"CLEANUP_ENABLED" default:"true"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`

	// CleanupSchedule is a cron expression; when set it overrides CleanupInterval.
	CleanupSchedule string `envconfig:"CLEANUP_SCHEDULE"`

	EmbeddingCacheEnabled bool          `envconfig:"EMBEDDING_CACHE_ENABLED" default:"true"`
	EmbeddingCacheSize    int           `envconfig:"EMBEDDING_CACHE_SIZE" default:"2000"`
	EmbeddingCacheTTL     time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"1h"`
	QueryCacheEnabled     bool          `envconfig:"QUERY_CACHE_ENABLED" default:"true"`
	QueryCacheSize        int           `envconfig:"QUERY_CACHE_SIZE" default:"1000"`
	QueryCacheTTL         time.Duration `envconfig:"QUERY_CACHE_TTL" default:"10m"`
	ResponseCacheEnabled  bool          `envconfig:"RESPONSE_CACHE_ENABLED" default:"true"`
	ResponseCacheSize     int           `envconfig:"RESPONSE_CACHE_SIZE" default:"10000"`
	ResponseCacheTTL      time.Duration `envconfig:"RESPONSE_CACHE_TTL" default:"2h"`

	EnableHybridSearch bool   `envconfig:"ENABLE_HYBRID_SEARCH" default:"false"`
	TopK               int    `envconfig:"TOP_K" default:"5"`
	PolicyFile         string `envconfig:"POLICY_FILE"`

	SentryDSN        string  `envconfig:"SENTRY_DSN"`
	SentrySampleRate float64 `envconfig:"SENTRY_SAMPLE_RATE" default:"0"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"chatbot-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Prefix    string `envconfig:"S3_PREFIX"`

	// S3SyncInterval is how often serve mirrors the bucket into IngestPath.
	S3SyncInterval time.Duration `envconfig:"S3_SYNC_INTERVAL" default:"5m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CHATBOT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects combinations that would make the pipeline misbehave.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHATBOT_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHATBOT_CHUNK_OVERLAP must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("CHATBOT_EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.FileReadyChecks < 1 {
		return fmt.Errorf("CHATBOT_FILE_READY_CHECKS must be at least 1, got %d", c.FileReadyChecks)
	}
	return nil
}

func (c *Config) HasLLM() bool {
	return c.LLMBaseURL != "" && c.EmbeddingModel != ""
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

func (c *Config) HasIngestPath() bool {
	return c.IngestPath != ""
}

// TracesSampleRate defaults to full sampling in development and 10% elsewhere.
func (c *Config) TracesSampleRate() float64 {
	if c.SentrySampleRate > 0 {
		return c.SentrySampleRate
	}
	if c.Environment == "development" {
		return 1.0
	}
	return 0.1
}
