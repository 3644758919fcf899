package llm

import (
	"context"
	"errors"
)

var (
	// ErrTimeout means the model call exceeded its deadline. Callers
	// surface this as a distinct timeout outcome, not a generic failure.
	ErrTimeout = errors.New("llm request timed out")

	// ErrQuota means the provider rejected the call for rate or quota
	// reasons; the user-facing message suggests retrying later.
	ErrQuota = errors.New("llm quota exceeded")
)

// Client is a minimal LLM interface to allow pluggable providers.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
