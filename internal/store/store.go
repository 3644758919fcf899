package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"studykb/internal/embeddings"
)

// JobStatus is the ingestion job lifecycle state.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrJobNotFound      = errors.New("job not found")
)

// Document is an uploaded artifact.
type Document struct {
	ID        uuid.UUID
	Filename  string
	Format    string
	SizeBytes int64
	Processed bool
	CourseID  *uuid.UUID
	CreatedAt time.Time
}

// Job is a durable, trackable unit of ingestion work for one document.
// Each job is written by exactly one worker; status pollers only read.
type Job struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Status     JobStatus
	Progress   int
	Error      string
	SourcePath string
	Requeued   bool

	ChunkCount    int
	CacheHitRatio float64
	DurationMS    int64

	StartedAt time.Time
	UpdatedAt time.Time
}

// JobMetrics captures per-job processing measurements recorded at
// completion.
type JobMetrics struct {
	ChunkCount    int
	CacheHitRatio float64
	Duration      time.Duration
}

// Chunk is an indexed text segment with its enrichment bundle.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int
	Page       int
	Text       string

	WordCount   int
	Structural  float64
	Density     float64
	Readability float64
	ContentType string
	Terms       []string
	Phrases     []string
	Relevance   float64
}

// Embedding associates a chunk with its vector.
type Embedding struct {
	ChunkID uuid.UUID
	Vector  embeddings.Vector
	Model   string
}

// SearchResult is one similarity-search candidate. Filename carries the
// source document's name for filter matching.
type SearchResult struct {
	Chunk      Chunk
	Filename   string
	Similarity float32
}

// Store defines the persistence contract for documents, jobs, and the
// vector index.
type Store interface {
	CreateDocument(ctx context.Context, filename, format string, sizeBytes int64, courseID *uuid.UUID) (Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, docID uuid.UUID, sourcePath string) (Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (Job, error)
	// UpdateJobProgress is idempotent and never decreases progress.
	UpdateJobProgress(ctx context.Context, id uuid.UUID, status JobStatus, progress int) error
	FailJob(ctx context.Context, id uuid.UUID, message string) error
	CompleteJob(ctx context.Context, id uuid.UUID, metrics JobMetrics) error
	// StalledJobs returns processing jobs with no heartbeat within the
	// timeout that have not been requeued yet.
	StalledJobs(ctx context.Context, timeout time.Duration) ([]Job, error)
	// MarkRequeued flips the requeue flag; false means the job already
	// used its one requeue.
	MarkRequeued(ctx context.Context, id uuid.UUID) (bool, error)
	// EvictJobs removes finished jobs past the retention window.
	EvictJobs(ctx context.Context, retention time.Duration) (int64, error)
	QueueDepth(ctx context.Context) (queued, processing int, err error)

	SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error)
	SaveEmbeddings(ctx context.Context, embs []Embedding) error
	TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error)
	// SearchText matches chunk text lexically, case-insensitive.
	// Similarity is left zero; lexical callers assign their own base.
	SearchText(ctx context.Context, query string, k int) ([]SearchResult, error)
}
