package completion

import (
	"context"
	"errors"
	"time"

	"treatment-review/internal/conversation"
)

// Retry retries Complete up to maxAttempts times with exponential backoff
// starting at baseDelay. API errors that are not temporary and context
// cancellation stop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	var last error
	for attempt := 0; attempt < r.max; attempt++ {
		if attempt > 0 {
			backoff := r.base << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		reply, err := r.next.Complete(ctx, messages)
		if err == nil {
			return reply, nil
		}
		last = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return "", err
		}
		if ctx.Err() != nil {
			return "", err
		}
	}
	return "", last
}
