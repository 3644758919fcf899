package embeddings

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"studykb/internal/cache"
)

// BatchStats reports cache effectiveness for one batch.
type BatchStats struct {
	Hits    int
	Lookups int
}

// HitRatio returns hits / lookups, or 0 for an empty batch.
func (s BatchStats) HitRatio() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// BatchEmbedder is an Embedder that also reports per-batch cache stats;
// the ingestion pipeline records them as job processing metrics.
type BatchEmbedder interface {
	Embedder
	EmbedBatchStats(ctx context.Context, texts []string) ([]Vector, BatchStats, error)
}

// CachedEmbedder wraps an Embedder with content-addressed caching.
// A cached vector of the wrong dimensionality is treated as a miss and
// regenerated; the cache never becomes a correctness dependency.
type CachedEmbedder struct {
	inner Embedder
	cache cache.Cache
	dims  int
	ttl   time.Duration
	log   *slog.Logger
}

// NewCached wraps inner with the cache layer. dims is the expected
// vector dimensionality used for payload validation.
func NewCached(inner Embedder, c cache.Cache, dims int, ttl time.Duration, log *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c, dims: dims, ttl: ttl, log: log}
}

// Embed consults the cache first and writes through on miss.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch resolves each text against the cache and embeds only the
// misses, preserving input order.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	vectors, _, err := e.EmbedBatchStats(ctx, texts)
	return vectors, err
}

// EmbedBatchStats is EmbedBatch plus cache hit accounting.
func (e *CachedEmbedder) EmbedBatchStats(ctx context.Context, texts []string) ([]Vector, BatchStats, error) {
	out := make([]Vector, len(texts))
	stats := BatchStats{Lookups: len(texts)}
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := cache.Key(text)
		payload, found, err := e.cache.Get(ctx, cache.ClassEmbedding, key)
		if err != nil {
			e.log.Warn("embedding cache read failed", "err", err)
		}
		if found {
			var vec Vector
			if err := json.Unmarshal(payload, &vec); err == nil && e.valid(vec) {
				out[i] = vec
				stats.Hits++
				continue
			}
			// Corrupt or wrong-dimension payload: regenerate.
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, stats, nil
	}

	vectors, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, stats, err
	}
	for j, vec := range vectors {
		out[missIdx[j]] = vec
		payload, err := json.Marshal(vec)
		if err != nil {
			continue
		}
		if err := e.cache.Put(ctx, cache.ClassEmbedding, cache.Key(missTexts[j]), payload, e.ttl); err != nil {
			e.log.Warn("embedding cache write failed", "err", err)
		}
	}
	return out, stats, nil
}

func (e *CachedEmbedder) valid(vec Vector) bool {
	if len(vec) == 0 {
		return false
	}
	return e.dims <= 0 || len(vec) == e.dims
}
