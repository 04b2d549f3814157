package llm

import (
	"context"
	"time"
)

// RetryPolicy holds the linear-backoff retry configuration shared by every
// provider adapter. Grounded on the teacher's providers.BaseProvider.
type RetryPolicy struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewRetryPolicy applies sane defaults for zero-valued fields.
func NewRetryPolicy(name string, maxRetries int, retryDelay time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return RetryPolicy{name: name, maxRetries: maxRetries, retryDelay: retryDelay}
}

// Name returns the provider name this policy was built for.
func (p RetryPolicy) Name() string { return p.name }

// Retry runs op, retrying with linear backoff (delay * attempt) while
// isRetryable(err) holds, up to maxRetries attempts.
func (p RetryPolicy) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt >= p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}
