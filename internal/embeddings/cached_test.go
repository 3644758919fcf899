package embeddings

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"studykb/internal/cache"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCachedEmbedderWritesThrough(t *testing.T) {
	inner := new(MockEmbedder)
	inner.On("EmbedBatch", mock.Anything, []string{"hello"}).
		Return([]Vector{{0.1, 0.2}}, nil).Once()

	c := cache.NewMemoryCache()
	e := NewCached(inner, c, 2, time.Minute, discardLog())
	ctx := context.Background()

	// First call misses and generates.
	vecs, stats, err := e.EmbedBatchStats(ctx, []string{"hello"})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 0 || stats.Lookups != 1 {
		t.Errorf("first call: %+v", stats)
	}

	// Second call must come from cache: inner is .Once().
	vecs2, stats2, err := e.EmbedBatchStats(ctx, []string{"hello"})
	if err != nil {
		t.Fatal(err)
	}
	if stats2.Hits != 1 {
		t.Errorf("second call expected hit: %+v", stats2)
	}
	if len(vecs2[0]) != len(vecs[0]) {
		t.Error("cached vector differs")
	}
	inner.AssertExpectations(t)
}

func TestCachedEmbedderRejectsWrongDimensions(t *testing.T) {
	c := cache.NewMemoryCache()
	ctx := context.Background()

	// Poison the cache with a 3-dim vector where 2 dims are expected.
	payload, _ := json.Marshal(Vector{0.1, 0.2, 0.3})
	_ = c.Put(ctx, cache.ClassEmbedding, cache.Key("text"), payload, time.Minute)

	inner := new(MockEmbedder)
	inner.On("EmbedBatch", mock.Anything, []string{"text"}).
		Return([]Vector{{0.5, 0.6}}, nil).Once()

	e := NewCached(inner, c, 2, time.Minute, discardLog())
	vecs, stats, err := e.EmbedBatchStats(ctx, []string{"text"})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 0 {
		t.Error("invalid payload must count as miss")
	}
	if len(vecs[0]) != 2 {
		t.Errorf("expected regenerated 2-dim vector, got %d dims", len(vecs[0]))
	}
	inner.AssertExpectations(t)
}

func TestCachedEmbedderPartialBatch(t *testing.T) {
	c := cache.NewMemoryCache()
	ctx := context.Background()
	payload, _ := json.Marshal(Vector{1, 1})
	_ = c.Put(ctx, cache.ClassEmbedding, cache.Key("known"), payload, time.Minute)

	inner := new(MockEmbedder)
	inner.On("EmbedBatch", mock.Anything, []string{"new"}).
		Return([]Vector{{2, 2}}, nil).Once()

	e := NewCached(inner, c, 2, time.Minute, discardLog())
	vecs, stats, err := e.EmbedBatchStats(ctx, []string{"known", "new"})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 1 || stats.Lookups != 2 {
		t.Errorf("expected 1/2 hit ratio, got %+v", stats)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Error("batch order not preserved")
	}
	inner.AssertExpectations(t)
}
