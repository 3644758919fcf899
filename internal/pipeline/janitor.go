package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"studykb/internal/queue"
	"studykb/internal/store"
)

// Janitor periodically requeues stalled jobs and evicts finished ones
// past the retention window. It blocks until ctx is done.
func (p *Pipeline) Janitor(ctx context.Context) error {
	interval := p.stallTimeout / 2
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Pipeline) sweep(ctx context.Context) {
	stalled, err := p.store.StalledJobs(ctx, p.stallTimeout)
	if err != nil {
		p.log.Error("stalled job scan failed", "err", err)
	}
	for _, job := range stalled {
		p.rescue(ctx, job)
	}

	evicted, err := p.store.EvictJobs(ctx, p.retention)
	if err != nil {
		p.log.Error("job eviction failed", "err", err)
	} else if evicted > 0 {
		p.log.Info("evicted finished jobs", "count", evicted)
	}
}

// rescue requeues a stalled job once; a job that stalls again after its
// one rescue is failed rather than recycled forever.
func (p *Pipeline) rescue(ctx context.Context, job store.Job) {
	ok, err := p.store.MarkRequeued(ctx, job.ID)
	if err != nil {
		p.log.Error("mark requeued failed", "job_id", job.ID, "err", err)
		return
	}
	if !ok {
		p.log.Warn("job stalled twice, failing", "job_id", job.ID)
		if err := p.store.FailJob(ctx, job.ID, "job stalled and exceeded its requeue allowance"); err != nil {
			p.log.Error("failed to record stall failure", "job_id", job.ID, "err", err)
		}
		p.tracker.JobFailed()
		return
	}

	doc, err := p.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		p.log.Error("stalled job document lookup failed", "job_id", job.ID, "err", err)
		return
	}
	payload, err := json.Marshal(task{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Path:       job.SourcePath,
		Filename:   doc.Filename,
	})
	if err != nil {
		p.log.Error("stalled job payload marshal failed", "job_id", job.ID, "err", err)
		return
	}
	t := queue.Task{
		ID:          uuid.New(),
		Type:        queue.TaskTypeIngest,
		Payload:     payload,
		MaxAttempts: p.maxRetries + 1,
	}
	if err := p.queue.Enqueue(ctx, t); err != nil {
		p.log.Error("stalled job requeue failed", "job_id", job.ID, "err", err)
		return
	}
	p.log.Info("requeued stalled job", "job_id", job.ID, "document_id", job.DocumentID)
}
