package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studykb/internal/embeddings"
)

// MemoryStore is an in-memory Store with brute-force cosine search.
// It backs tests and local development without Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	documents  map[uuid.UUID]Document
	jobs       map[uuid.UUID]Job
	chunks     map[uuid.UUID][]Chunk // by document id
	embeddings map[uuid.UUID]Embedding
	now        func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		documents:  make(map[uuid.UUID]Document),
		jobs:       make(map[uuid.UUID]Job),
		chunks:     make(map[uuid.UUID][]Chunk),
		embeddings: make(map[uuid.UUID]Embedding),
		now:        time.Now,
	}
}

func (s *MemoryStore) CreateDocument(ctx context.Context, filename, format string, sizeBytes int64, courseID *uuid.UUID) (Document, error) {
	doc := Document{
		ID: uuid.New(), Filename: filename, Format: format,
		SizeBytes: sizeBytes, CourseID: courseID, CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.documents[doc.ID] = doc
	s.mu.Unlock()
	return doc, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Processed = true
	s.documents[id] = doc
	return nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(s.documents, id)
	for _, c := range s.chunks[id] {
		delete(s.embeddings, c.ID)
	}
	delete(s.chunks, id)
	for jid, j := range s.jobs {
		if j.DocumentID == id {
			delete(s.jobs, jid)
		}
	}
	return nil
}

func (s *MemoryStore) CreateJob(ctx context.Context, docID uuid.UUID, sourcePath string) (Job, error) {
	now := s.now()
	job := Job{
		ID: uuid.New(), DocumentID: docID, Status: StatusQueued,
		SourcePath: sourcePath, StartedAt: now, UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job, nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *MemoryStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, status JobStatus, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	if progress > job.Progress {
		job.Progress = progress
	}
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusFailed
	job.Error = message
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) CompleteJob(ctx context.Context, id uuid.UUID, metrics JobMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusCompleted
	job.Progress = 100
	job.ChunkCount = metrics.ChunkCount
	job.CacheHitRatio = metrics.CacheHitRatio
	job.DurationMS = metrics.Duration.Milliseconds()
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) StalledJobs(ctx context.Context, timeout time.Duration) ([]Job, error) {
	cutoff := s.now().Add(-timeout)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Job
	for _, j := range s.jobs {
		if j.Status == StatusProcessing && !j.Requeued && j.UpdatedAt.Before(cutoff) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkRequeued(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Requeued {
		return false, nil
	}
	job.Requeued = true
	job.Status = StatusQueued
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return true, nil
}

func (s *MemoryStore) EvictJobs(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted int64
	for id, j := range s.jobs {
		if (j.Status == StatusCompleted || j.Status == StatusFailed) && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			evicted++
		}
	}
	return evicted, nil
}

func (s *MemoryStore) QueueDepth(ctx context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var queued, processing int
	for _, j := range s.jobs {
		switch j.Status {
		case StatusQueued:
			queued++
		case StatusProcessing:
			processing++
		}
	}
	return queued, processing, nil
}

func (s *MemoryStore) SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	out := make([]Chunk, 0, len(chunks))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		c.ID = uuid.New()
		c.DocumentID = docID
		s.chunks[docID] = append(s.chunks[docID], c)
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range embs {
		s.embeddings[e.ChunkID] = e
	}
	return nil
}

func (s *MemoryStore) TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []SearchResult
	for docID, chunks := range s.chunks {
		doc := s.documents[docID]
		for _, c := range chunks {
			emb, ok := s.embeddings[c.ID]
			if !ok {
				continue
			}
			results = append(results, SearchResult{
				Chunk:      c,
				Filename:   doc.Filename,
				Similarity: cosine(vector, emb.Vector),
			})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) SearchText(ctx context.Context, query string, k int) ([]SearchResult, error) {
	needle := strings.ToLower(query)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []SearchResult
	for docID, chunks := range s.chunks {
		doc := s.documents[docID]
		for _, c := range chunks {
			if strings.Contains(strings.ToLower(c.Text), needle) {
				results = append(results, SearchResult{Chunk: c, Filename: doc.Filename})
			}
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Chunk.Relevance > results[j].Chunk.Relevance })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosine(a, b embeddings.Vector) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
