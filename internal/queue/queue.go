package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studykb/internal/retry"
)

// TaskType enumerates supported task categories.
type TaskType string

// TaskTypeIngest drives one document through the ingestion pipeline.
const TaskTypeIngest TaskType = "ingest"

// Task represents a unit of queued work. Delivery is at-least-once;
// handlers must be idempotent.
type Task struct {
	ID          uuid.UUID
	Type        TaskType
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NotBefore   time.Time
}

// FinalAttempt reports whether this delivery is the task's last one
// before the queue gives up.
func (t Task) FinalAttempt() bool {
	max := t.MaxAttempts
	if max == 0 {
		max = DefaultMaxAttempts
	}
	return t.Attempts >= max-1
}

// DefaultMaxAttempts bounds redelivery when a task does not set its own
// ceiling.
const DefaultMaxAttempts = 4

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Worker(ctx context.Context, taskType TaskType, handler Handler) error
}

// EnqueueWithRetry attempts to enqueue with retries and exponential backoff.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	return retry.Do(ctx, attempts, base, func() error {
		return q.Enqueue(ctx, task)
	})
}
