package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"studykb/internal/metrics"
)

func TestKeyIsDeterministic(t *testing.T) {
	a := Key("what is section 3 about?", "notes.pdf")
	b := Key("what is section 3 about?", "notes.pdf")
	if a != b {
		t.Fatalf("identical inputs produced different keys: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestKeySeparatesParts(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc".
	if Key("ab", "c") == Key("a", "bc") {
		t.Fatal("part boundary collision")
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	key := Key("some chunk text")
	payload := []byte(`{"vector":[0.1,0.2]}`)
	if err := c.Put(ctx, ClassEmbedding, key, payload, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, found, err := c.Get(ctx, ClassEmbedding, key)
		if err != nil || !found {
			t.Fatalf("get %d: found=%v err=%v", i, found, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("get %d: payload not byte-identical", i)
		}
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Put(ctx, ClassQueryResult, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, found, _ := c.Get(ctx, ClassQueryResult, "k"); found {
		t.Fatal("expected expired entry to miss")
	}
}

func TestMemoryCacheInvalidateIsClassScoped(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Put(ctx, ClassEmbedding, "k", []byte("emb"), 0)
	_ = c.Put(ctx, ClassQueryResult, "k", []byte("res"), 0)

	if err := c.Invalidate(ctx, ClassQueryResult); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, ClassQueryResult, "k"); found {
		t.Error("query class should have been invalidated")
	}
	if _, found, _ := c.Get(ctx, ClassEmbedding, "k"); !found {
		t.Error("embedding class should have survived")
	}
}

func TestStatsCountHitsAndMisses(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, _, _ = c.Get(ctx, ClassEmbedding, "missing")
	_ = c.Put(ctx, ClassEmbedding, "k", []byte("v"), 0)
	_, _, _ = c.Get(ctx, ClassEmbedding, "k")

	stats := c.Stats()[ClassEmbedding]
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit / 1 miss, got %+v", stats)
	}
	if ratio := stats.HitRatio(); ratio != 0.5 {
		t.Errorf("expected hit ratio 0.5, got %f", ratio)
	}
}

func TestLookupsFeedPrometheusCounter(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	hits := metrics.CacheOpsTotal.WithLabelValues(string(ClassEmbedding), "hit")
	misses := metrics.CacheOpsTotal.WithLabelValues(string(ClassEmbedding), "miss")
	hitsBefore := testutil.ToFloat64(hits)
	missesBefore := testutil.ToFloat64(misses)

	_, _, _ = c.Get(ctx, ClassEmbedding, "missing")
	_ = c.Put(ctx, ClassEmbedding, "k", []byte("v"), 0)
	_, _, _ = c.Get(ctx, ClassEmbedding, "k")

	if got := testutil.ToFloat64(hits) - hitsBefore; got != 1 {
		t.Errorf("hit counter moved by %v, want 1", got)
	}
	if got := testutil.ToFloat64(misses) - missesBefore; got != 1 {
		t.Errorf("miss counter moved by %v, want 1", got)
	}
}

func TestClassesCoverEveryStatsBucket(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	for _, class := range Classes {
		_, _, _ = c.Get(ctx, class, "missing")
	}
	stats := c.Stats()
	if len(stats) != len(Classes) {
		t.Fatalf("expected %d stat buckets, got %d", len(Classes), len(stats))
	}
	if got := stats[ClassStatistics]; got.Misses != 1 {
		t.Errorf("statistics class should track its own misses, got %+v", got)
	}
}

func TestNoOpCacheAlwaysMisses(t *testing.T) {
	c := NewNoOpCache()
	ctx := context.Background()

	if err := c.Put(ctx, ClassChunkSet, "k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, found, err := c.Get(ctx, ClassChunkSet, "k"); found || err != nil {
		t.Fatalf("noop cache must always miss, found=%v err=%v", found, err)
	}
}
