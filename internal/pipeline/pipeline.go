// Package pipeline drives documents from uploaded bytes to indexed,
// searchable chunks: load, chunk, embed, persist, with durable job
// tracking along the way.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"studykb/internal/cache"
	"studykb/internal/chunker"
	"studykb/internal/config"
	"studykb/internal/embeddings"
	"studykb/internal/loader"
	"studykb/internal/metrics"
	"studykb/internal/queue"
	"studykb/internal/retry"
	"studykb/internal/store"
)

// Progress milestones reported while a job moves through the stages.
const (
	progressLoading  = 5
	progressChunked  = 30
	progressEmbedded = 80
	progressIndexed  = 95
	progressDone     = 100
)

// Index writes retry in place before the whole attempt goes back to the
// queue; a single flaky batch should not restart the pipeline.
const (
	indexWriteAttempts = 3
	indexWriteBackoff  = 100 * time.Millisecond
)

// ErrNoUsableContent marks a document whose text yielded no chunk that
// clears the quality floor. It is terminal; retrying cannot help.
var ErrNoUsableContent = errors.New("document produced no usable content")

type task struct {
	JobID      uuid.UUID `json:"job_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Path       string    `json:"path"`
	Filename   string    `json:"filename"`
}

// Pipeline owns the ingestion stages and their job bookkeeping.
type Pipeline struct {
	store    store.Store
	queue    queue.Queue
	cache    cache.Cache
	ttls     cache.TTLs
	embedder embeddings.BatchEmbedder
	chunker  *chunker.Chunker
	tracker  *metrics.Tracker
	log      *slog.Logger

	model        string
	maxRetries   int
	batchSize    int
	concurrency  int
	stallTimeout time.Duration
	retention    time.Duration
}

// New wires a pipeline from its collaborators and runtime config.
func New(
	st store.Store,
	q queue.Queue,
	c cache.Cache,
	emb embeddings.BatchEmbedder,
	ch *chunker.Chunker,
	tracker *metrics.Tracker,
	cfg config.Config,
	log *slog.Logger,
) *Pipeline {
	return &Pipeline{
		store:        st,
		queue:        q,
		cache:        c,
		ttls:         cache.TTLsFromConfig(cfg),
		embedder:     emb,
		chunker:      ch,
		tracker:      tracker,
		log:          log,
		model:        cfg.EmbeddingModel,
		maxRetries:   cfg.IngestMaxRetries,
		batchSize:    cfg.IndexBatchSize,
		concurrency:  cfg.EmbedConcurrency,
		stallTimeout: cfg.StallTimeout,
		retention:    cfg.JobRetention,
	}
}

// Enqueue creates a trackable job for the document and publishes the
// ingestion task. The caller gets the job back immediately; processing
// happens on a worker.
func (p *Pipeline) Enqueue(ctx context.Context, doc store.Document, sourcePath string) (store.Job, error) {
	job, err := p.store.CreateJob(ctx, doc.ID, sourcePath)
	if err != nil {
		return store.Job{}, fmt.Errorf("create job: %w", err)
	}

	payload, err := json.Marshal(task{
		JobID:      job.ID,
		DocumentID: doc.ID,
		Path:       sourcePath,
		Filename:   doc.Filename,
	})
	if err != nil {
		return store.Job{}, fmt.Errorf("marshal task: %w", err)
	}

	t := queue.Task{
		ID:          uuid.New(),
		Type:        queue.TaskTypeIngest,
		Payload:     payload,
		MaxAttempts: p.maxRetries + 1,
	}
	if err := queue.EnqueueWithRetry(ctx, p.queue, t, 3, 200*time.Millisecond); err != nil {
		if failErr := p.store.FailJob(ctx, job.ID, "enqueue failed: "+err.Error()); failErr != nil {
			p.log.Error("failed to mark job failed", "job_id", job.ID, "err", failErr)
		}
		return store.Job{}, fmt.Errorf("enqueue ingest task: %w", err)
	}
	return job, nil
}

// Handle processes one ingestion task. A nil return acknowledges the
// task; an error hands it back to the queue for redelivery. Terminal
// failures (bad format, empty content) fail the job and acknowledge, so
// the queue never burns retries on them.
func (p *Pipeline) Handle(ctx context.Context, t queue.Task) error {
	var tk task
	if err := json.Unmarshal(t.Payload, &tk); err != nil {
		p.log.Error("undecodable ingest task dropped", "task_id", t.ID, "err", err)
		return nil
	}

	started := time.Now()
	log := p.log.With("job_id", tk.JobID, "document_id", tk.DocumentID, "filename", tk.Filename)
	log.Info("ingestion started", "attempt", t.Attempts+1)

	if err := p.store.UpdateJobProgress(ctx, tk.JobID, store.StatusProcessing, progressLoading); err != nil {
		return p.transient(ctx, t, tk, fmt.Errorf("update progress: %w", err), log)
	}

	chunks, fromCache, err := p.chunkDocument(ctx, tk)
	if err != nil {
		if terminal(err) {
			return p.terminal(ctx, tk, err, log)
		}
		return p.transient(ctx, t, tk, err, log)
	}
	if len(chunks) == 0 {
		return p.terminal(ctx, tk, ErrNoUsableContent, log)
	}
	if err := p.store.UpdateJobProgress(ctx, tk.JobID, store.StatusProcessing, progressChunked); err != nil {
		return p.transient(ctx, t, tk, fmt.Errorf("update progress: %w", err), log)
	}

	vectors, stats, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return p.transient(ctx, t, tk, fmt.Errorf("embed chunks: %w", err), log)
	}
	if err := p.store.UpdateJobProgress(ctx, tk.JobID, store.StatusProcessing, progressEmbedded); err != nil {
		return p.transient(ctx, t, tk, fmt.Errorf("update progress: %w", err), log)
	}

	if err := p.index(ctx, tk.DocumentID, chunks, vectors); err != nil {
		return p.transient(ctx, t, tk, fmt.Errorf("index chunks: %w", err), log)
	}
	if err := p.store.UpdateJobProgress(ctx, tk.JobID, store.StatusProcessing, progressIndexed); err != nil {
		return p.transient(ctx, t, tk, fmt.Errorf("update progress: %w", err), log)
	}

	if err := p.store.MarkProcessed(ctx, tk.DocumentID); err != nil {
		return p.transient(ctx, t, tk, fmt.Errorf("mark processed: %w", err), log)
	}
	duration := time.Since(started)
	if err := p.store.CompleteJob(ctx, tk.JobID, store.JobMetrics{
		ChunkCount:    len(chunks),
		CacheHitRatio: stats.HitRatio(),
		Duration:      duration,
	}); err != nil {
		return p.transient(ctx, t, tk, fmt.Errorf("complete job: %w", err), log)
	}

	if err := os.Remove(tk.Path); err != nil && !os.IsNotExist(err) {
		log.Warn("spool file cleanup failed", "path", tk.Path, "err", err)
	}
	// New content changes what every query should see.
	if err := p.cache.Invalidate(ctx, cache.ClassQueryResult); err != nil {
		log.Warn("query cache invalidation failed", "err", err)
	}

	p.tracker.JobCompleted(duration)
	log.Info("ingestion completed",
		"chunks", len(chunks),
		"embedding_cache_hit_ratio", stats.HitRatio(),
		"from_chunk_cache", fromCache,
		"duration", duration,
	)
	return nil
}

// chunkDocument resolves the chunk set, preferring the content-addressed
// chunk-set cache over re-parsing the spool file.
func (p *Pipeline) chunkDocument(ctx context.Context, tk task) ([]chunker.Chunk, bool, error) {
	key := cache.Key(tk.DocumentID.String(), tk.Filename)
	if payload, found, err := p.cache.Get(ctx, cache.ClassChunkSet, key); err == nil && found {
		var chunks []chunker.Chunk
		if err := json.Unmarshal(payload, &chunks); err == nil && len(chunks) > 0 {
			return chunks, true, nil
		}
	}

	content, err := os.ReadFile(tk.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// Source bytes are gone; no retry can recover them.
			return nil, false, fmt.Errorf("%w: source file missing", ErrNoUsableContent)
		}
		return nil, false, fmt.Errorf("read source: %w", err)
	}

	sections, err := loader.Load(tk.Filename, content)
	if err != nil {
		return nil, false, err
	}
	chunks := p.chunker.Chunk(sections)
	if len(chunks) == 0 {
		return nil, false, nil
	}

	if payload, err := json.Marshal(chunks); err == nil {
		if err := p.cache.Put(ctx, cache.ClassChunkSet, key, payload, p.ttls.ChunkSet); err != nil {
			p.log.Warn("chunk-set cache write failed", "err", err)
		}
	}
	return chunks, false, nil
}

// embedChunks resolves vectors for all chunks, batched and bounded by
// the configured embedding concurrency. Batch order is preserved.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([]embeddings.Vector, embeddings.BatchStats, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	type window struct{ lo, hi int }
	var windows []window
	for lo := 0; lo < len(texts); lo += p.batchSize {
		hi := lo + p.batchSize
		if hi > len(texts) {
			hi = len(texts)
		}
		windows = append(windows, window{lo, hi})
	}

	out := make([]embeddings.Vector, len(texts))
	perBatch := make([]embeddings.BatchStats, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, w := range windows {
		g.Go(func() error {
			vectors, stats, err := p.embedder.EmbedBatchStats(gctx, texts[w.lo:w.hi])
			if err != nil {
				return err
			}
			copy(out[w.lo:w.hi], vectors)
			perBatch[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, embeddings.BatchStats{}, err
	}

	var total embeddings.BatchStats
	for _, s := range perBatch {
		total.Hits += s.Hits
		total.Lookups += s.Lookups
	}
	return out, total, nil
}

// index persists chunks and their vectors in batches, retrying each
// batch write before giving up.
func (p *Pipeline) index(ctx context.Context, docID uuid.UUID, chunks []chunker.Chunk, vectors []embeddings.Vector) error {
	records := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		records[i] = store.Chunk{
			DocumentID:  docID,
			Index:       c.Index,
			Page:        c.Page,
			Text:        c.Text,
			WordCount:   c.WordCount,
			Structural:  c.Structural,
			Density:     c.Density,
			Readability: c.Readability,
			ContentType: c.ContentType,
			Terms:       c.Terms,
			Phrases:     c.Phrases,
			Relevance:   c.Relevance,
		}
	}

	var saved []store.Chunk
	err := retry.Do(ctx, indexWriteAttempts, indexWriteBackoff, func() error {
		var saveErr error
		saved, saveErr = p.store.SaveChunks(ctx, docID, records)
		return saveErr
	})
	if err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	embs := make([]store.Embedding, len(saved))
	for i, c := range saved {
		embs[i] = store.Embedding{ChunkID: c.ID, Vector: vectors[i], Model: p.model}
	}
	for lo := 0; lo < len(embs); lo += p.batchSize {
		hi := lo + p.batchSize
		if hi > len(embs) {
			hi = len(embs)
		}
		batch := embs[lo:hi]
		err := retry.Do(ctx, indexWriteAttempts, indexWriteBackoff, func() error {
			return p.store.SaveEmbeddings(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("save embeddings: %w", err)
		}
	}
	return nil
}

// terminal fails the job with the cause and acknowledges the task.
func (p *Pipeline) terminal(ctx context.Context, tk task, cause error, log *slog.Logger) error {
	log.Warn("ingestion failed permanently", "err", cause)
	if err := p.store.FailJob(ctx, tk.JobID, cause.Error()); err != nil {
		log.Error("failed to record job failure", "err", err)
	}
	p.tracker.JobFailed()
	return nil
}

// transient hands the task back for redelivery. On the last delivery the
// job is failed first, preserving the underlying error text verbatim so
// the status endpoint can surface the real cause.
func (p *Pipeline) transient(ctx context.Context, t queue.Task, tk task, cause error, log *slog.Logger) error {
	if t.FinalAttempt() {
		log.Error("ingestion failed after final attempt", "err", cause)
		if err := p.store.FailJob(ctx, tk.JobID, cause.Error()); err != nil {
			log.Error("failed to record job failure", "err", err)
		}
		p.tracker.JobFailed()
		return cause
	}
	log.Warn("ingestion attempt failed, will retry", "attempt", t.Attempts+1, "err", cause)
	return cause
}

func terminal(err error) bool {
	return errors.Is(err, loader.ErrUnsupportedFormat) ||
		errors.Is(err, loader.ErrEmptyDocument) ||
		errors.Is(err, ErrNoUsableContent)
}
