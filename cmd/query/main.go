package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studykb/internal/app"
	"studykb/internal/httputil"
	"studykb/internal/intent"
	"studykb/internal/llm"
	"studykb/internal/metrics"
	"studykb/internal/retrieval"
	"studykb/internal/synthesis"
)

type queryRequest struct {
	Question string `json:"question" validate:"required,min=2,max=500"`
	Document string `json:"document,omitempty" validate:"omitempty,max=255"`
	TopK     int    `json:"top_k,omitempty" validate:"omitempty,min=1,max=20"`
}

type source struct {
	Filename string  `json:"filename"`
	Page     int     `json:"page"`
	Score    float64 `json:"score"`
	Preview  string  `json:"preview"`
}

type handlerDeps struct {
	app.Deps
	engine *retrieval.Engine
	synth  *synthesis.Synthesizer
}

func main() {
	base, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	engine, synth, err := app.BuildQueryEngine(base)
	if err != nil {
		base.Log.Error("failed to build query engine", "err", err)
		os.Exit(1)
	}
	metrics.Register(prometheus.DefaultRegisterer)
	deps := handlerDeps{Deps: base, engine: engine, synth: synth}

	r := httputil.NewRouter(deps.Log)
	r.Post("/api/query", queryHandler(deps))
	r.Get("/healthz", httputil.Health(deps.Log))
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("query service listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server error", "err", err)
	}
}

func queryHandler(deps handlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validate.Struct(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request: "+err.Error(), err, http.StatusBadRequest)
			return
		}

		ctx := r.Context()

		// Greetings never touch the index or the LLM.
		if deps.engine.Classify(req.Question) == intent.Greeting {
			ans := synthesis.GreetingReply()
			writeAnswer(w, deps, started, req.Question, intent.Greeting, ans, nil, false)
			return
		}

		results, err := deps.engine.Retrieve(ctx, req.Question, retrieval.Options{
			TopK:     req.TopK,
			Document: req.Document,
		})
		if err != nil {
			deps.Tracker.Query(time.Since(started), false, true)
			httputil.Fail(deps.Log, w, "retrieval failed", err, http.StatusInternalServerError)
			return
		}

		availableDocs := documentNames(ctx, deps)
		answer, err := deps.synth.Synthesize(ctx, req.Question, results.Intent, results.Items, availableDocs)
		if err != nil {
			deps.Tracker.Query(time.Since(started), results.Cached, true)
			switch {
			case errors.Is(err, llm.ErrTimeout):
				httputil.Fail(deps.Log, w, "the answer took too long to generate; please retry", err, http.StatusGatewayTimeout)
			case errors.Is(err, llm.ErrQuota):
				httputil.Fail(deps.Log, w, "the language model is rate limited; please retry shortly", err, http.StatusTooManyRequests)
			default:
				httputil.Fail(deps.Log, w, "failed to generate answer", err, http.StatusInternalServerError)
			}
			return
		}

		writeAnswer(w, deps, started, req.Question, results.Intent, answer, results.Items, results.Cached)
	}
}

func writeAnswer(w http.ResponseWriter, deps handlerDeps, started time.Time, question, queryIntent string, answer synthesis.Answer, items []retrieval.Result, cached bool) {
	latency := time.Since(started)
	deps.Tracker.Query(latency, cached, false)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"answer":     answer.Text,
		"references": answer.References,
		"sources":    buildSources(items),
		"intent":     queryIntent,
		"grounded":   answer.Grounded,
		"cached":     cached,
		"latency_ms": latency.Milliseconds(),
	})
}

func documentNames(ctx context.Context, deps handlerDeps) []string {
	docs, err := deps.Store.ListDocuments(ctx)
	if err != nil {
		deps.Log.Warn("failed to list documents for fallback answer", "err", err)
		return nil
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Processed {
			names = append(names, d.Filename)
		}
	}
	return names
}

func buildSources(items []retrieval.Result) []source {
	sources := make([]source, len(items))
	for i, item := range items {
		sources[i] = source{
			Filename: item.Filename,
			Page:     item.Chunk.Page,
			Score:    item.Score,
			Preview:  truncate(item.Chunk.Text, 150),
		}
	}
	return sources
}

// truncate limits text to maxLen characters, cutting at a word boundary.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if idx := strings.LastIndex(s[:maxLen], " "); idx > 0 {
		return s[:idx] + "..."
	}
	return s[:maxLen] + "..."
}
