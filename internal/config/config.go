package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration shared by all services.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Upload intake
	MaxUploadSize int64  `env:"MAX_UPLOAD_SIZE" envDefault:"20971520"` // 20MB in bytes
	SpoolDir      string `env:"SPOOL_DIR" envDefault:"/tmp/studykb/uploads"`

	// Store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"postgres"`
	DBURL         string `env:"DB_URL"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"nats"`
	QueueURL      string `env:"QUEUE_URL"`

	// Cache. CACHE_PROVIDER=none disables caching entirely; every read
	// path regenerates on miss, so running without Redis is always safe.
	CacheProvider string        `env:"CACHE_PROVIDER" envDefault:"redis"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	TTLEmbedding  time.Duration `env:"CACHE_TTL_EMBEDDING" envDefault:"168h"`
	TTLChunkSet   time.Duration `env:"CACHE_TTL_CHUNK_SET" envDefault:"24h"`
	TTLQuery      time.Duration `env:"CACHE_TTL_QUERY" envDefault:"15m"`
	TTLStats      time.Duration `env:"CACHE_TTL_STATS" envDefault:"1m"`

	// LLM & Embeddings
	LLMProvider    string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIKey      string `env:"OPENAI_API_KEY"`
	LLMModel       string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDims  int    `env:"EMBEDDING_DIMS" envDefault:"1536"`

	// Ingestion pipeline
	IngestMaxRetries int           `env:"INGEST_MAX_RETRIES" envDefault:"3"`
	IndexBatchSize   int           `env:"INDEX_BATCH_SIZE" envDefault:"32"`
	EmbedConcurrency int           `env:"EMBED_CONCURRENCY" envDefault:"4"`
	EmbedTimeout     time.Duration `env:"EMBED_TIMEOUT" envDefault:"30s"`
	StallTimeout     time.Duration `env:"JOB_STALL_TIMEOUT" envDefault:"3m"`
	JobRetention     time.Duration `env:"JOB_RETENTION" envDefault:"1h"`

	// Chunking. Targets are characters; overlap is the fraction of the
	// target carried across chunk boundaries.
	ChunkTargetDefault   int     `env:"CHUNK_TARGET_DEFAULT" envDefault:"900"`
	ChunkTargetEducation int     `env:"CHUNK_TARGET_EDUCATION" envDefault:"1100"`
	ChunkTargetFinancial int     `env:"CHUNK_TARGET_FINANCIAL" envDefault:"1400"`
	ChunkOverlap         float64 `env:"CHUNK_OVERLAP" envDefault:"0.15"`
	ChunkMinChars        int     `env:"CHUNK_MIN_CHARS" envDefault:"100"`
	ChunkMinWords        int     `env:"CHUNK_MIN_WORDS" envDefault:"15"`
	ChunkMinPerPage      int     `env:"CHUNK_MIN_PER_PAGE" envDefault:"2"`
	ChunkMaxPerDoc       int     `env:"CHUNK_MAX_PER_DOC" envDefault:"300"`

	// Retrieval & ranking. Floors are hand-tuned per corpus; the open
	// floor applies to queries classified as explanatory or open-ended.
	RetrievalTopK      int           `env:"RETRIEVAL_TOP_K" envDefault:"8"`
	RetrievalFanout    int           `env:"RETRIEVAL_FANOUT" envDefault:"20"`
	RelevanceFloor     float64       `env:"RELEVANCE_FLOOR" envDefault:"0.30"`
	RelevanceFloorOpen float64       `env:"RELEVANCE_FLOOR_OPEN" envDefault:"0.18"`
	RetrievalTimeout   time.Duration `env:"RETRIEVAL_TIMEOUT" envDefault:"20s"`

	// Synthesis
	SynthesisTimeout time.Duration `env:"SYNTHESIS_TIMEOUT" envDefault:"40s"`
	MaxContextChars  int           `env:"MAX_CONTEXT_CHARS" envDefault:"12000"`
	IntentRulesPath  string        `env:"INTENT_RULES_PATH"`
	QueryServiceURL  string        `env:"QUERY_SERVICE_URL" envDefault:"http://query:8081/api/query"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
