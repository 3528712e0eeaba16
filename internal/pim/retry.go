package pim

import (
	"context"
	"errors"
	"time"
)

// RetryResult contains the result of a retry operation
type RetryResult struct {
	Attempts  int
	LastError error
	Duration  time.Duration
	Stopped   bool
}

// Retrier runs an operation up to maxAttempts times without delay between attempts.
type Retrier struct {
	maxAttempts int
}

// NewRetrier creates a retrier. maxAttempts below 1 means a single attempt.
func NewRetrier(maxAttempts int) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{maxAttempts: maxAttempts}
}

type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as not worth retrying.
func Stop(err error) error {
	return &stopError{err: err}
}

// Do calls fn until it succeeds, returns a Stop error, the context is done or
// the attempts are exhausted. A nil LastError means success.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) *RetryResult {
	result := &RetryResult{}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result.Attempts = attempt
		err := fn(ctx, attempt)
		if err == nil {
			result.LastError = nil
			return result
		}
		result.LastError = err

		var stop *stopError
		if errors.As(err, &stop) {
			result.LastError = stop.err
			result.Stopped = true
			return result
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.LastError = ctxErr
			result.Stopped = true
			return result
		}
	}
	return result
}
