package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studykb/internal/app"
	"studykb/internal/cache"
	"studykb/internal/httputil"
	"studykb/internal/loader"
	"studykb/internal/metrics"
	"studykb/internal/store"
)

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	metrics.Register(prometheus.DefaultRegisterer)

	r := httputil.NewRouter(deps.Log)

	r.Post("/api/documents/upload", uploadHandler(deps))
	r.Get("/api/documents", listDocumentsHandler(deps))
	r.Delete("/api/documents/{id}", deleteDocumentHandler(deps))
	r.Get("/api/jobs/{id}", jobStatusHandler(deps))
	r.Post("/api/query", queryProxyHandler(deps))

	r.Get("/api/admin/cache/stats", cacheStatsHandler(deps))
	r.Post("/api/admin/cache/invalidate", cacheInvalidateHandler(deps))
	r.Get("/api/admin/queue", queueDepthHandler(deps))
	r.Get("/api/admin/health-report", healthReportHandler(deps))

	r.Get("/healthz", httputil.Health(deps.Log))
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), loader.ErrFileTooLarge, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), loader.ErrFileTooLarge, http.StatusBadRequest)
			return
		}
		if !loader.Supported(header.Filename) {
			httputil.Fail(deps.Log, w, "unsupported file type (pdf, docx, doc, txt, md, rtf, csv)", nil, http.StatusBadRequest)
			return
		}

		format, err := loader.DetectFormat(header.Filename)
		if err != nil {
			httputil.Fail(deps.Log, w, "unsupported file type", err, http.StatusBadRequest)
			return
		}

		var courseID *uuid.UUID
		if raw := r.FormValue("course_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				httputil.Fail(deps.Log, w, "invalid course_id", err, http.StatusBadRequest)
				return
			}
			courseID = &id
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}

		spoolPath, err := spool(deps.Config.SpoolDir, header.Filename, content)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to stage file", err, http.StatusInternalServerError)
			return
		}

		doc, err := deps.Store.CreateDocument(ctx, header.Filename, string(format), header.Size, courseID)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to persist document", err, http.StatusInternalServerError)
			return
		}

		job, err := deps.Pipeline.Enqueue(ctx, doc, spoolPath)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to enqueue document; please retry", err, http.StatusInternalServerError)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"document_id": doc.ID.String(),
			"job_id":      job.ID.String(),
			"status":      job.Status,
		})
	}
}

// spool writes the upload to the shared spool directory under a
// timestamped name so identical filenames never collide.
func spool(dir, filename string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(filename))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// removeSpooled clears any staged copies of a deleted document. Spool
// files for completed ingestions are already gone; this catches uploads
// whose jobs failed before cleanup. Best effort.
func removeSpooled(dir, filename string) {
	if filename == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*_"+filepath.Base(filename)))
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

func jobStatusHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid job id", err, http.StatusBadRequest)
			return
		}
		status, err := deps.Pipeline.Status(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrJobNotFound) {
				httputil.Fail(deps.Log, w, "job not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to load job", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	}
}

func listDocumentsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments(r.Context())
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list documents", err, http.StatusInternalServerError)
			return
		}
		out := make([]map[string]any, 0, len(docs))
		for _, d := range docs {
			out = append(out, map[string]any{
				"id":         d.ID.String(),
				"filename":   d.Filename,
				"format":     d.Format,
				"size_bytes": d.SizeBytes,
				"processed":  d.Processed,
				"created_at": d.CreatedAt,
			})
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": out})
	}
}

func deleteDocumentHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid document id", err, http.StatusBadRequest)
			return
		}
		doc, _ := deps.Store.GetDocument(r.Context(), id)
		if err := deps.Store.DeleteDocument(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrDocumentNotFound) {
				httputil.Fail(deps.Log, w, "document not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to delete document", err, http.StatusInternalServerError)
			return
		}
		// Stale cached answers may still cite the deleted document.
		for _, class := range []cache.Class{cache.ClassQueryResult, cache.ClassChunkSet} {
			if err := deps.Cache.Invalidate(r.Context(), class); err != nil {
				deps.Log.Warn("cache invalidation failed after delete", "class", class, "err", err)
			}
		}
		removeSpooled(deps.Config.SpoolDir, doc.Filename)
		w.WriteHeader(http.StatusNoContent)
	}
}

func queryProxyHandler(deps app.Deps) http.HandlerFunc {
	queryURL := deps.Config.QueryServiceURL
	client := &http.Client{Timeout: 60 * time.Second}

	return func(w http.ResponseWriter, r *http.Request) {
		req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, queryURL, r.Body)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to create request", err, http.StatusInternalServerError)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			httputil.Fail(deps.Log, w, "query service unavailable", err, http.StatusServiceUnavailable)
			return
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			deps.Log.Error("failed to copy response", "err", err)
		}
	}
}

func cacheStatsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, deps.Cache.Stats())
	}
}

func cacheInvalidateHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classes := cache.Classes
		if raw := r.URL.Query().Get("class"); raw != "" {
			classes = []cache.Class{cache.Class(raw)}
		}
		for _, class := range classes {
			if err := deps.Cache.Invalidate(r.Context(), class); err != nil {
				httputil.Fail(deps.Log, w, "invalidation failed", err, http.StatusInternalServerError)
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"invalidated": classes})
	}
}

func queueDepthHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		queued, processing, err := deps.Store.QueueDepth(r.Context())
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read queue depth", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"queued":     queued,
			"processing": processing,
			"total":      queued + processing,
		})
	}
}

func healthReportHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, deps.Tracker.Snapshot())
	}
}
