package app

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"studykb/internal/config"
)

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBuildStoreProviders(t *testing.T) {
	if _, err := buildStore(config.Config{StoreProvider: "memory"}, testLog()); err != nil {
		t.Errorf("memory store: %v", err)
	}
	if _, err := buildStore(config.Config{StoreProvider: "postgres"}, testLog()); err == nil {
		t.Error("postgres without DB_URL should fail")
	}
	if _, err := buildStore(config.Config{StoreProvider: "sqlite"}, testLog()); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestBuildCacheProviders(t *testing.T) {
	if _, err := buildCache(config.Config{CacheProvider: "memory"}, testLog()); err != nil {
		t.Errorf("memory cache: %v", err)
	}
	if _, err := buildCache(config.Config{CacheProvider: "none"}, testLog()); err != nil {
		t.Errorf("noop cache: %v", err)
	}
	if _, err := buildCache(config.Config{CacheProvider: "memcached"}, testLog()); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestBuildQueueRequiresURL(t *testing.T) {
	_, err := buildQueue(config.Config{QueueProvider: "nats"}, testLog())
	if err == nil || !strings.Contains(err.Error(), "QUEUE_URL") {
		t.Errorf("want QUEUE_URL error, got %v", err)
	}
	if _, err := buildQueue(config.Config{QueueProvider: "sqs"}, testLog()); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestBuildLLMRequiresKey(t *testing.T) {
	_, err := buildLLM(config.Config{LLMProvider: "openai"}, testLog())
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("want OPENAI_API_KEY error, got %v", err)
	}
	if _, err := buildLLM(config.Config{LLMProvider: "anthropic"}, testLog()); err == nil {
		t.Error("unknown provider should fail")
	}
}
