// Package retrieval turns a user query into a ranked, page-balanced
// set of chunks by fanning out across search strategies and scoring
// the merged candidates deterministically.
package retrieval

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"studykb/internal/cache"
	"studykb/internal/config"
	"studykb/internal/embeddings"
	"studykb/internal/intent"
	"studykb/internal/store"
)

// Options narrows one retrieval call.
type Options struct {
	// TopK overrides the configured result count when positive.
	TopK int
	// Document restricts results to one source file by name.
	Document string
}

// Results is the ranked outcome of one retrieval.
type Results struct {
	Query  string   `json:"query"`
	Intent string   `json:"intent"`
	Items  []Result `json:"items"`
	Cached bool     `json:"cached"`
}

// Engine coordinates strategies, scoring, and the query-result cache.
type Engine struct {
	strategies []Strategy
	classifier *intent.Classifier
	cache      cache.Cache
	ttls       cache.TTLs
	log        *slog.Logger

	topK      int
	fanout    int
	floor     float64
	floorOpen float64
	timeout   time.Duration
}

// NewEngine builds the engine with the default strategy set.
func NewEngine(
	st store.Store,
	emb embeddings.Embedder,
	c cache.Cache,
	classifier *intent.Classifier,
	cfg config.Config,
	log *slog.Logger,
) *Engine {
	return &Engine{
		strategies: []Strategy{
			&similarityStrategy{embedder: emb, store: st},
			&keywordStrategy{embedder: emb, store: st},
			&variationStrategy{embedder: emb, store: st},
		},
		classifier: classifier,
		cache:      c,
		ttls:       cache.TTLsFromConfig(cfg),
		log:        log,
		topK:       cfg.RetrievalTopK,
		fanout:     cfg.RetrievalFanout,
		floor:      cfg.RelevanceFloor,
		floorOpen:  cfg.RelevanceFloorOpen,
		timeout:    cfg.RetrievalTimeout,
	}
}

// Classify exposes the engine's intent classification.
func (e *Engine) Classify(query string) string {
	return e.classifier.Classify(query)
}

// Retrieve runs the full pipeline: cache check, strategy fan-out,
// dedup, document filter, scoring, relevance floor, page balancing.
// An unreachable index yields empty results, not an error; the caller
// decides how to phrase "nothing found".
func (e *Engine) Retrieve(ctx context.Context, query string, opts Options) (Results, error) {
	topK := e.topK
	if opts.TopK > 0 {
		topK = opts.TopK
	}
	queryIntent := e.classifier.Classify(query)
	out := Results{Query: query, Intent: queryIntent}

	key := cache.Key(strings.ToLower(strings.TrimSpace(query)), opts.Document, strconv.Itoa(topK))
	if cached, ok := e.cachedResults(ctx, key); ok {
		cached.Cached = true
		cached.Intent = queryIntent
		return cached, nil
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	candidates := e.fanOut(ctx, query)
	// Filter before dedup: boilerplate shared across documents must not
	// let a non-filtered copy shadow the one the caller asked for.
	candidates = filterByDocument(candidates, opts.Document)
	candidates = dedupe(candidates)
	if len(candidates) == 0 {
		return out, nil
	}

	terms := queryTermSet(query)
	queryLower := strings.ToLower(strings.TrimSpace(query))
	floor := e.floor
	if intent.IsOpenEnded(queryIntent) {
		floor = e.floorOpen
	}

	var ranked []Result
	for _, c := range candidates {
		s := score(c, terms, queryLower, queryIntent)
		if s < floor {
			continue
		}
		ranked = append(ranked, Result{
			Chunk:      c.Chunk,
			Filename:   c.Filename,
			Similarity: c.Similarity,
			Score:      s,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Chunk.Page != ranked[j].Chunk.Page {
			return ranked[i].Chunk.Page < ranked[j].Chunk.Page
		}
		return ranked[i].Chunk.Index < ranked[j].Chunk.Index
	})

	out.Items = balanceByPage(ranked, topK)
	e.storeResults(ctx, key, out)
	return out, nil
}

// fanOut runs every strategy concurrently and merges what survives.
// A failing strategy is logged and skipped; retrieval degrades rather
// than breaks.
func (e *Engine) fanOut(ctx context.Context, query string) []store.SearchResult {
	var mu sync.Mutex
	var merged []store.SearchResult
	var wg sync.WaitGroup

	for _, strat := range e.strategies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := strat.Search(ctx, query, e.fanout)
			if err != nil {
				e.log.Warn("search strategy failed", "strategy", strat.Name(), "err", err)
				return
			}
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return merged
}

// cachedResults returns a prior result set if present and sound. A
// payload with no items or blank chunk text is treated as a miss.
func (e *Engine) cachedResults(ctx context.Context, key string) (Results, bool) {
	payload, found, err := e.cache.Get(ctx, cache.ClassQueryResult, key)
	if err != nil || !found {
		return Results{}, false
	}
	var r Results
	if err := json.Unmarshal(payload, &r); err != nil {
		return Results{}, false
	}
	if len(r.Items) == 0 {
		return Results{}, false
	}
	for _, item := range r.Items {
		if strings.TrimSpace(item.Chunk.Text) == "" {
			return Results{}, false
		}
	}
	return r, true
}

func (e *Engine) storeResults(ctx context.Context, key string, r Results) {
	if len(r.Items) == 0 {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := e.cache.Put(ctx, cache.ClassQueryResult, key, payload, e.ttls.QueryResult); err != nil {
		e.log.Warn("query cache write failed", "err", err)
	}
}
