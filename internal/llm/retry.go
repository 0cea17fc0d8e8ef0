package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

// RetryPolicy is a bounded retry loop with a fixed backoff. The engine
// retries transient provider failures exactly once by default; anything
// unbounded or recursive is deliberately avoided so termination is
// guaranteed.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy retries once after ten seconds, matching the
// provider's recommended cool-down for rate limiting.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, Backoff: 10 * time.Second}
}

// isTransient reports whether err is a rate-limit or overload signal
// worth one retry. Timeouts and malformed responses are not retried here;
// they propagate to the caller of the specific remote call.
func isTransient(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch apierr.StatusCode {
		case 429, 503, 529:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(strings.ToLower(msg), "rate") ||
		strings.Contains(strings.ToLower(msg), "overloaded")
}

// retryTransient runs fn, retrying per policy only on transient failures.
func retryTransient[T any](ctx context.Context, policy RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	result, err := fn()
	for attempt := 0; err != nil && attempt < policy.MaxRetries; attempt++ {
		if !isTransient(err) || ctx.Err() != nil {
			return zero, err
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(policy.Backoff):
		}
		result, err = fn()
	}
	if err != nil {
		return zero, err
	}
	return result, nil
}
