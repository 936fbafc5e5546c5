package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryOptions contains configuration for retry behavior.
type RetryOptions struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// GetStoreRetryOptions returns retry options suited to point lookups against a backing store.
func GetStoreRetryOptions() RetryOptions {
	return RetryOptions{
		MaxElapsedTime:  2 * time.Second,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		MaxRetries:      2,
	}
}

// WithRetry executes the given operation with exponential backoff using provided options.
func WithRetry[T any](ctx context.Context, operation func() (T, error), opts RetryOptions) (T, error) {
	var result T

	// Configure exponential backoff
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(opts.MaxElapsedTime),
		backoff.WithInitialInterval(opts.InitialInterval),
		backoff.WithMaxInterval(opts.MaxInterval),
	), opts.MaxRetries)

	// Create backoff operation with context
	backoffOperation := func() error {
		var err error
		result, err = operation()
		return err
	}

	err := backoff.Retry(backoffOperation, backoff.WithContext(b, ctx))
	return result, err
}

// WithRetryIf is WithRetry that gives up immediately on errors retryable rejects.
func WithRetryIf[T any](
	ctx context.Context, operation func() (T, error), retryable func(error) bool, opts RetryOptions,
) (T, error) {
	return WithRetry(ctx, func() (T, error) {
		result, err := operation()
		if err != nil && !retryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}, opts)
}
