package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studykb/internal/store"
)

// Status is the poller-facing view of a job, including a coarse
// completion estimate while the job is in flight.
type Status struct {
	JobID      uuid.UUID       `json:"job_id"`
	DocumentID uuid.UUID       `json:"document_id"`
	Status     store.JobStatus `json:"status"`
	Progress   int             `json:"progress"`
	Error      string          `json:"error,omitempty"`

	ChunkCount    int     `json:"chunk_count,omitempty"`
	CacheHitRatio float64 `json:"cache_hit_ratio,omitempty"`
	DurationMS    int64   `json:"duration_ms,omitempty"`
	ElapsedMS     int64   `json:"elapsed_ms,omitempty"`
	ETASeconds    int     `json:"eta_seconds,omitempty"`
	ChunksPerSec  float64 `json:"chunks_per_sec,omitempty"`
}

// Status reports the current state of a job.
func (p *Pipeline) Status(ctx context.Context, jobID uuid.UUID) (Status, error) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return Status{}, err
	}
	return statusFromJob(job, time.Now()), nil
}

func statusFromJob(job store.Job, now time.Time) Status {
	s := Status{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Status:     job.Status,
		Progress:   job.Progress,
		Error:      job.Error,
	}
	switch job.Status {
	case store.StatusCompleted:
		s.ChunkCount = job.ChunkCount
		s.CacheHitRatio = job.CacheHitRatio
		s.DurationMS = job.DurationMS
		if job.DurationMS > 0 {
			s.ChunksPerSec = float64(job.ChunkCount) / (float64(job.DurationMS) / 1000)
		}
	case store.StatusProcessing:
		// Linear extrapolation from progress so far. Rough, but enough
		// for a polling client to pick an interval.
		if job.Progress > 0 && now.After(job.StartedAt) {
			elapsed := now.Sub(job.StartedAt)
			s.ElapsedMS = elapsed.Milliseconds()
			remaining := elapsed * time.Duration(100-job.Progress) / time.Duration(job.Progress)
			s.ETASeconds = int(remaining.Round(time.Second) / time.Second)
		}
	}
	return s
}
