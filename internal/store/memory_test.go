package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"studykb/internal/embeddings"
)

func TestVectorToString(t *testing.T) {
	got := vectorToString(embeddings.Vector{0.5, -1, 2})
	if got != "[0.5,-1,2]" {
		t.Errorf("got %s", got)
	}
	if vectorToString(nil) != "[]" {
		t.Error("empty vector should format as []")
	}
}

func TestJobProgressMonotonic(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	doc, _ := s.CreateDocument(ctx, "a.txt", "text", 10, nil)
	job, _ := s.CreateJob(ctx, doc.ID, "/tmp/a.txt")

	steps := []int{5, 30, 80, 30, 95} // the second 30 is a retried update
	for _, p := range steps {
		if err := s.UpdateJobProgress(ctx, job.ID, StatusProcessing, p); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.Progress != 95 {
		t.Errorf("progress went backwards: %d", got.Progress)
	}
}

func TestMarkRequeuedOnlyOnce(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	doc, _ := s.CreateDocument(ctx, "a.txt", "text", 10, nil)
	job, _ := s.CreateJob(ctx, doc.ID, "/tmp/a.txt")
	_ = s.UpdateJobProgress(ctx, job.ID, StatusProcessing, 10)

	ok, err := s.MarkRequeued(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("first requeue should succeed: ok=%v err=%v", ok, err)
	}
	ok, err = s.MarkRequeued(ctx, job.ID)
	if err != nil || ok {
		t.Fatalf("second requeue must be refused: ok=%v err=%v", ok, err)
	}
}

func TestStalledJobs(t *testing.T) {
	s := NewMemory()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	doc, _ := s.CreateDocument(ctx, "a.txt", "text", 10, nil)
	job, _ := s.CreateJob(ctx, doc.ID, "/tmp/a.txt")
	_ = s.UpdateJobProgress(ctx, job.ID, StatusProcessing, 10)

	now = now.Add(5 * time.Minute)
	stalled, err := s.StalledJobs(ctx, 3*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(stalled) != 1 || stalled[0].ID != job.ID {
		t.Fatalf("expected the stalled job, got %v", stalled)
	}

	// A fresh heartbeat clears the stall.
	_ = s.UpdateJobProgress(ctx, job.ID, StatusProcessing, 20)
	stalled, _ = s.StalledJobs(ctx, 3*time.Minute)
	if len(stalled) != 0 {
		t.Errorf("heartbeat should clear stall, got %d", len(stalled))
	}
}

func TestEvictJobsRespectsRetention(t *testing.T) {
	s := NewMemory()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	doc, _ := s.CreateDocument(ctx, "a.txt", "text", 10, nil)
	done, _ := s.CreateJob(ctx, doc.ID, "")
	_ = s.CompleteJob(ctx, done.ID, JobMetrics{})
	active, _ := s.CreateJob(ctx, doc.ID, "")
	_ = s.UpdateJobProgress(ctx, active.ID, StatusProcessing, 50)

	now = now.Add(2 * time.Hour)
	n, err := s.EvictJobs(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := s.GetJob(ctx, done.ID); err != ErrJobNotFound {
		t.Error("completed job should be evicted")
	}
	if _, err := s.GetJob(ctx, active.ID); err != nil {
		t.Error("in-flight job must never be evicted")
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	doc, _ := s.CreateDocument(ctx, "a.txt", "text", 10, nil)
	chunks, _ := s.SaveChunks(ctx, doc.ID, []Chunk{{Index: 0, Page: 1, Text: "hello world"}})
	_ = s.SaveEmbeddings(ctx, []Embedding{{ChunkID: chunks[0].ID, Vector: embeddings.Vector{1, 0}}})

	if err := s.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}
	results, _ := s.TopK(ctx, embeddings.Vector{1, 0}, 10)
	if len(results) != 0 {
		t.Errorf("chunks should cascade on delete, got %d results", len(results))
	}
	if err := s.DeleteDocument(ctx, uuid.New()); err != ErrDocumentNotFound {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestSearchTextMatchesCaseInsensitive(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	doc, _ := s.CreateDocument(ctx, "notes.txt", "text", 10, nil)
	_, _ = s.SaveChunks(ctx, doc.ID, []Chunk{
		{Index: 0, Page: 1, Text: "The Midterm 2 exam covers chapters four through six.", Relevance: 0.3},
		{Index: 1, Page: 2, Text: "Office hours are on Thursdays.", Relevance: 0.9},
		{Index: 2, Page: 3, Text: "midterm 2 solutions will be posted afterwards.", Relevance: 0.7},
	})

	results, err := s.SearchText(ctx, "Midterm 2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].Chunk.Page != 3 {
		t.Errorf("expected the higher-relevance chunk first, got page %d", results[0].Chunk.Page)
	}
	if results[0].Similarity != 0 {
		t.Errorf("lexical matches carry no similarity, got %f", results[0].Similarity)
	}

	results, _ = s.SearchText(ctx, "midterm", 1)
	if len(results) != 1 {
		t.Errorf("k should cap results, got %d", len(results))
	}
}

func TestTopKOrdersBySimilarity(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	doc, _ := s.CreateDocument(ctx, "notes.txt", "text", 10, nil)
	chunks, _ := s.SaveChunks(ctx, doc.ID, []Chunk{
		{Index: 0, Page: 1, Text: "close match"},
		{Index: 1, Page: 1, Text: "far match"},
	})
	_ = s.SaveEmbeddings(ctx, []Embedding{
		{ChunkID: chunks[0].ID, Vector: embeddings.Vector{1, 0}},
		{ChunkID: chunks[1].ID, Vector: embeddings.Vector{0, 1}},
	})

	results, err := s.TopK(ctx, embeddings.Vector{1, 0.1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.Text != "close match" {
		t.Errorf("expected closest first, got %q", results[0].Chunk.Text)
	}
	if results[0].Filename != "notes.txt" {
		t.Errorf("filename not carried: %q", results[0].Filename)
	}
}
