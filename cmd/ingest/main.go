package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"studykb/internal/app"
	"studykb/internal/httputil"
	"studykb/internal/metrics"
	"studykb/internal/queue"
)

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	metrics.Register(prometheus.DefaultRegisterer)
	deps.Log.Info("ingest worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeIngest, deps.Pipeline.Handle)
	})

	g.Go(func() error {
		return deps.Pipeline.Janitor(ctx)
	})

	g.Go(func() error {
		r := httputil.NewRouter(deps.Log)
		r.Get("/healthz", httputil.Health(deps.Log))
		r.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", deps.Config.Port)
		deps.Log.Info("ingest health server listening", "addr", addr)
		return http.ListenAndServe(addr, r)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		deps.Log.Error("ingest worker stopped", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("ingest worker shut down")
}
