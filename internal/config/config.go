package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrOutOfRange      = errors.New("configuration value out of range")
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"askdoc"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"askdoc"`

	// VectorBackend picks the index implementation: "weaviate" or
	// "memory". The memory backend keeps vectors in-process and loses
	// them on restart.
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiModel      string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	GeminiEmbedModel string `envconfig:"GEMINI_EMBED_MODEL" default:"gemini-embedding-001"`
	EmbeddingDim     int    `envconfig:"EMBEDDING_DIM" default:"768"`

	// Ingestion
	ChunkMaxChars      int   `envconfig:"CHUNK_MAX_CHARS" default:"1000"`
	ChunkOverlap       int   `envconfig:"CHUNK_OVERLAP" default:"100"`
	EmbedBatchSize     int   `envconfig:"EMBED_BATCH_SIZE" default:"16"`
	EnableIngestWorker bool  `envconfig:"ENABLE_INGEST_WORKER" default:"false"`
	NSQMaxMsgSize      int64 `envconfig:"NSQ_MAX_MSG_SIZE" default:"10485760"` // 10MB

	// Question answering
	SearchTopK            int     `envconfig:"SEARCH_TOP_K" default:"5"`
	LLMWeight             float64 `envconfig:"LLM_WEIGHT" default:"0.7"`
	RerankFailureFraction float64 `envconfig:"RERANK_FAILURE_FRACTION" default:"0.5"`
	RerankConcurrency     int     `envconfig:"RERANK_CONCURRENCY" default:"4"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.ChunkMaxChars <= 0 {
		return fmt.Errorf("%w: CHUNK_MAX_CHARS must be positive", ErrOutOfRange)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxChars {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_MAX_CHARS)", ErrOutOfRange)
	}
	if c.SearchTopK < 1 {
		return fmt.Errorf("%w: SEARCH_TOP_K must be at least 1", ErrOutOfRange)
	}
	if c.LLMWeight < 0 || c.LLMWeight > 1 {
		return fmt.Errorf("%w: LLM_WEIGHT must be in [0, 1]", ErrOutOfRange)
	}
	if c.RerankFailureFraction < 0 || c.RerankFailureFraction > 1 {
		return fmt.Errorf("%w: RERANK_FAILURE_FRACTION must be in [0, 1]", ErrOutOfRange)
	}
	if c.EmbeddingDim < 0 {
		return fmt.Errorf("%w: EMBEDDING_DIM must not be negative", ErrOutOfRange)
	}
	switch c.VectorBackend {
	case "", "weaviate", "memory":
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND must be weaviate or memory", ErrOutOfRange)
	}
	return nil
}
