package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"studykb/internal/embeddings"
)

type PostgresStore struct {
	db   *sql.DB
	dims int
}

// NewPostgres opens a connection pool and runs migrations.
func NewPostgres(dsn string, dims int) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if dims <= 0 {
		dims = 1536
	}
	s := &PostgresStore{db: db, dims: dims}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	// Advisory lock prevents concurrent migrations from multiple services.
	const lockID = 874011552

	var acquired bool
	if err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !acquired {
		// Another service is migrating; wait briefly and skip.
		time.Sleep(2 * time.Second)
		return nil
	}
	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			filename TEXT NOT NULL,
			format TEXT NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			course_id UUID,
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id UUID PRIMARY KEY,
			document_id UUID REFERENCES documents(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			progress INT NOT NULL DEFAULT 0,
			error TEXT,
			source_path TEXT,
			requeued BOOLEAN NOT NULL DEFAULT FALSE,
			chunk_count INT NOT NULL DEFAULT 0,
			cache_hit_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ DEFAULT now(),
			updated_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID REFERENCES documents(id) ON DELETE CASCADE,
			ord INT NOT NULL,
			page INT NOT NULL DEFAULT 1,
			text TEXT NOT NULL,
			word_count INT NOT NULL DEFAULT 0,
			structural REAL NOT NULL DEFAULT 0,
			density REAL NOT NULL DEFAULT 0,
			readability REAL NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT 'general',
			terms TEXT[] NOT NULL DEFAULT '{}',
			phrases TEXT[] NOT NULL DEFAULT '{}',
			relevance REAL NOT NULL DEFAULT 0
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id UUID PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			vector vector(%d),
			model TEXT
		);`, s.dims),
		`CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs(status, updated_at);`,
		`CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks(document_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS embeddings_vector_idx
		ON embeddings USING ivfflat (vector vector_cosine_ops)
		WITH (lists = 100)
	`)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, filename, format string, sizeBytes int64, courseID *uuid.UUID) (Document, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(id, filename, format, size_bytes, course_id) VALUES($1,$2,$3,$4,$5)`,
		id, filename, format, sizeBytes, courseID)
	if err != nil {
		return Document{}, err
	}
	return Document{
		ID: id, Filename: filename, Format: format,
		SizeBytes: sizeBytes, CourseID: courseID, CreatedAt: time.Now(),
	}, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, format, size_bytes, processed, course_id, created_at FROM documents WHERE id=$1`, id)
	return scanDocument(row)
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, format, size_bytes, processed, course_id, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var courseID uuid.NullUUID
	err := row.Scan(&doc.ID, &doc.Filename, &doc.Format, &doc.SizeBytes, &doc.Processed, &courseID, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if courseID.Valid {
		doc.CourseID = &courseID.UUID
	}
	return doc, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET processed=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	// Chunks, embeddings, and jobs cascade.
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, docID uuid.UUID, sourcePath string) (Job, error) {
	id := uuid.New()
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, document_id, status, progress, source_path) VALUES($1,$2,$3,0,$4)`,
		id, docID, StatusQueued, sourcePath)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID: id, DocumentID: docID, Status: StatusQueued,
		SourcePath: sourcePath, StartedAt: now, UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, status, progress, COALESCE(error, ''), COALESCE(source_path, ''),
		       requeued, chunk_count, cache_hit_ratio, duration_ms, started_at, updated_at
		FROM jobs WHERE id=$1`, id)
	return scanJob(row)
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.DocumentID, &j.Status, &j.Progress, &j.Error, &j.SourcePath,
		&j.Requeued, &j.ChunkCount, &j.CacheHitRatio, &j.DurationMS, &j.StartedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

// UpdateJobProgress is a per-row atomic update; GREATEST keeps progress
// monotonic so a retried update can never move a job backwards.
func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, status JobStatus, progress int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status=$2, progress=GREATEST(progress,$3), updated_at=now() WHERE id=$1`,
		id, status, progress)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status=$2, error=$3, updated_at=now() WHERE id=$1`,
		id, StatusFailed, message)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id uuid.UUID, metrics JobMetrics) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status=$2, progress=100, chunk_count=$3, cache_hit_ratio=$4,
		       duration_ms=$5, updated_at=now()
		WHERE id=$1`,
		id, StatusCompleted, metrics.ChunkCount, metrics.CacheHitRatio, metrics.Duration.Milliseconds())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) StalledJobs(ctx context.Context, timeout time.Duration) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, status, progress, COALESCE(error, ''), COALESCE(source_path, ''),
		       requeued, chunk_count, cache_hit_ratio, duration_ms, started_at, updated_at
		FROM jobs
		WHERE status=$1 AND requeued=FALSE AND updated_at < now() - $2::interval`,
		StatusProcessing, fmt.Sprintf("%d milliseconds", timeout.Milliseconds()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRequeued(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET requeued=TRUE, status=$2, updated_at=now() WHERE id=$1 AND requeued=FALSE`,
		id, StatusQueued)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (s *PostgresStore) EvictJobs(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN ($1,$2) AND updated_at < now() - $3::interval`,
		StatusCompleted, StatusFailed, fmt.Sprintf("%d milliseconds", retention.Milliseconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) QueueDepth(ctx context.Context) (int, int, error) {
	var queued, processing int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status=$1),
		       COUNT(*) FILTER (WHERE status=$2)
		FROM jobs`, StatusQueued, StatusProcessing).Scan(&queued, &processing)
	return queued, processing, err
}

func (s *PostgresStore) SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		cid := uuid.New()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks(id, document_id, ord, page, text, word_count, structural,
			                   density, readability, content_type, terms, phrases, relevance)
			VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			cid, docID, c.Index, c.Page, c.Text, c.WordCount, c.Structural,
			c.Density, c.Readability, c.ContentType, pq.Array(c.Terms), pq.Array(c.Phrases), c.Relevance)
		if err != nil {
			return nil, err
		}
		c.ID = cid
		c.DocumentID = docID
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, emb := range embs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embeddings(chunk_id, vector, model)
			VALUES($1,$2::vector,$3)
			ON CONFLICT (chunk_id) DO UPDATE SET vector=excluded.vector, model=excluded.model`,
			emb.ChunkID, vectorToString(emb.Vector), emb.Model)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) TopK(ctx context.Context, vector embeddings.Vector, k int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.ord, c.page, c.text, c.word_count, c.structural,
		       c.density, c.readability, c.content_type, c.terms, c.phrases, c.relevance,
		       d.filename,
		       1 - (e.vector <=> $1::vector) AS similarity
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		ORDER BY e.vector <=> $1::vector
		LIMIT $2`, vectorToString(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var terms, phrases []string
		err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Index, &r.Chunk.Page,
			&r.Chunk.Text, &r.Chunk.WordCount, &r.Chunk.Structural, &r.Chunk.Density,
			&r.Chunk.Readability, &r.Chunk.ContentType, pq.Array(&terms), pq.Array(&phrases),
			&r.Chunk.Relevance, &r.Filename, &r.Similarity)
		if err != nil {
			return nil, err
		}
		r.Chunk.Terms = terms
		r.Chunk.Phrases = phrases
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) SearchText(ctx context.Context, query string, k int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.ord, c.page, c.text, c.word_count, c.structural,
		       c.density, c.readability, c.content_type, c.terms, c.phrases, c.relevance,
		       d.filename
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.text ILIKE '%' || $1 || '%'
		ORDER BY c.relevance DESC
		LIMIT $2`, query, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var terms, phrases []string
		err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Index, &r.Chunk.Page,
			&r.Chunk.Text, &r.Chunk.WordCount, &r.Chunk.Structural, &r.Chunk.Density,
			&r.Chunk.Readability, &r.Chunk.ContentType, pq.Array(&terms), pq.Array(&phrases),
			&r.Chunk.Relevance, &r.Filename)
		if err != nil {
			return nil, err
		}
		r.Chunk.Terms = terms
		r.Chunk.Phrases = phrases
		results = append(results, r)
	}
	return results, rows.Err()
}

// vectorToString converts a Vector to pgvector text format: "[0.1,0.2,...]".
func vectorToString(v embeddings.Vector) string {
	if len(v) == 0 {
		return "[]"
	}
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
