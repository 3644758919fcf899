package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"studykb/internal/config"
	"studykb/internal/metrics"
)

// Class identifies a cached data class. Each class carries its own TTL so
// expensive stable artifacts (embeddings, chunk sets) outlive cheap
// volatile ones (query results).
type Class string

const (
	ClassEmbedding   Class = "embedding"
	ClassQueryResult Class = "query"
	ClassChunkSet    Class = "chunkset"
	ClassStatistics  Class = "stats"
)

// Classes lists every known cache class, in invalidation order.
var Classes = []Class{ClassEmbedding, ClassQueryResult, ClassChunkSet, ClassStatistics}

// Cache is a content-addressed key-value store with per-class TTLs.
// It is a performance optimization, never a correctness dependency:
// every caller must regenerate on miss.
type Cache interface {
	// Get returns the payload for key, or found=false on miss.
	Get(ctx context.Context, class Class, key string) ([]byte, bool, error)

	// Put stores payload under key with the given TTL. Writes are
	// idempotent overwrites; concurrent Puts of the same content-addressed
	// key are harmless.
	Put(ctx context.Context, class Class, key string, payload []byte, ttl time.Duration) error

	// Invalidate drops every entry of the given class.
	Invalidate(ctx context.Context, class Class) error

	// Stats reports hit/miss counters per class since process start.
	Stats() map[Class]ClassStats

	// Close closes the cache connection.
	Close() error
}

// ClassStats holds hit/miss counters for one cache class.
type ClassStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// HitRatio returns hits / (hits + misses), or 0 when the class is cold.
func (s ClassStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Key derives a content-addressed key from its input parts. Identical
// inputs always resolve to the same entry regardless of when they were
// produced.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// TTLs carries the per-class TTL table.
type TTLs struct {
	Embedding   time.Duration
	ChunkSet    time.Duration
	QueryResult time.Duration
	Stats       time.Duration
}

// TTLsFromConfig builds the TTL table from runtime config.
func TTLsFromConfig(cfg config.Config) TTLs {
	return TTLs{
		Embedding:   cfg.TTLEmbedding,
		ChunkSet:    cfg.TTLChunkSet,
		QueryResult: cfg.TTLQuery,
		Stats:       cfg.TTLStats,
	}
}

// For returns the TTL for a class.
func (t TTLs) For(class Class) time.Duration {
	switch class {
	case ClassEmbedding:
		return t.Embedding
	case ClassChunkSet:
		return t.ChunkSet
	case ClassQueryResult:
		return t.QueryResult
	default:
		return t.Stats
	}
}

// counters tracks per-class hit/miss counts with atomics; shared by the
// concrete cache implementations.
type counters struct {
	hits   [4]atomic.Int64
	misses [4]atomic.Int64
}

func classIndex(class Class) int {
	for i, c := range Classes {
		if c == class {
			return i
		}
	}
	return len(Classes) - 1
}

func (c *counters) hit(class Class) {
	c.hits[classIndex(class)].Add(1)
	metrics.CacheOpsTotal.WithLabelValues(string(class), "hit").Inc()
}

func (c *counters) miss(class Class) {
	c.misses[classIndex(class)].Add(1)
	metrics.CacheOpsTotal.WithLabelValues(string(class), "miss").Inc()
}

func (c *counters) snapshot() map[Class]ClassStats {
	out := make(map[Class]ClassStats, len(Classes))
	for i, class := range Classes {
		out[class] = ClassStats{
			Hits:   c.hits[i].Load(),
			Misses: c.misses[i].Load(),
		}
	}
	return out
}
