// Package app wires runtime dependencies from configuration. Each
// service builds only what it needs.
package app

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"studykb/internal/cache"
	"studykb/internal/chunker"
	"studykb/internal/config"
	"studykb/internal/embeddings"
	"studykb/internal/intent"
	"studykb/internal/llm"
	"studykb/internal/logger"
	"studykb/internal/metrics"
	"studykb/internal/pipeline"
	"studykb/internal/queue"
	"studykb/internal/retrieval"
	"studykb/internal/store"
	"studykb/internal/synthesis"
)

// Deps bundles common runtime dependencies for services.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Store    store.Store
	Queue    queue.Queue
	Cache    cache.Cache
	Embedder embeddings.BatchEmbedder
	LLM      llm.Client
	Tracker  *metrics.Tracker
	Pipeline *pipeline.Pipeline
}

// Build loads env, config, and the shared components every service
// uses: store, queue, cache, embedder, and the ingestion pipeline.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil {
		// A missing .env file is normal outside local development.
		slog.Debug("no .env file loaded", "err", err)
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	st, err := buildStore(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	q, err := buildQueue(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	c, err := buildCache(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}
	embedder, err := buildEmbedder(cfg, c, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	llmClient, err := buildLLM(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	tracker := &metrics.Tracker{}
	pipe := pipeline.New(
		st, q, c, embedder,
		chunker.New(chunker.OptionsFromConfig(cfg)),
		tracker, cfg, log,
	)

	return Deps{
		Config:   cfg,
		Log:      log,
		Store:    st,
		Queue:    q,
		Cache:    c,
		Embedder: embedder,
		LLM:      llmClient,
		Tracker:  tracker,
		Pipeline: pipe,
	}, nil
}

// BuildQueryEngine assembles the retrieval engine and synthesizer on
// top of already-built deps.
func BuildQueryEngine(deps Deps) (*retrieval.Engine, *synthesis.Synthesizer, error) {
	classifier, err := intent.Load(deps.Config.IntentRulesPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load intent rules: %w", err)
	}
	engine := retrieval.NewEngine(deps.Store, deps.Embedder, deps.Cache, classifier, deps.Config, deps.Log)
	synth := synthesis.New(deps.LLM, deps.Config.MaxContextChars, deps.Log)
	return engine, synth, nil
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL, cfg.EmbeddingDims)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	case "memory":
		log.Warn("using in-memory store; data does not survive restarts")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid options: postgres, memory)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid option: nats)", cfg.QueueProvider)
	}
}

func buildCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheProvider {
	case "redis":
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("using Redis cache", "addr", cfg.RedisAddr)
		return c, nil
	case "memory":
		log.Info("using in-memory cache")
		return cache.NewMemoryCache(), nil
	case "none":
		log.Warn("caching disabled")
		return cache.NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: redis, memory, none)", cfg.CacheProvider)
	}
}

func buildEmbedder(cfg config.Config, c cache.Cache, log *slog.Logger) (embeddings.BatchEmbedder, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		inner, err := embeddings.NewOpenAIEmbedder(cfg.OpenAIKey, openai.EmbeddingModel(cfg.EmbeddingModel), cfg.EmbedTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		log.Info("using OpenAI embedder", "model", cfg.EmbeddingModel, "dims", cfg.EmbeddingDims)
		return embeddings.NewCached(inner, c, cfg.EmbeddingDims, cfg.TTLEmbedding, log), nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", cfg.LLMProvider)
	}
}

func buildLLM(cfg config.Config, log *slog.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIClient(cfg.OpenAIKey, openai.ChatModel(cfg.LLMModel), cfg.SynthesisTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel)
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", cfg.LLMProvider)
	}
}
