// Package upstream protects calls to the backing stores with a circuit breaker,
// bounded retries and a concurrency cap.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/timeline/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/robalyx/timeline/internal/upstream"

// BreakerSettings controls when a store is considered unavailable.
type BreakerSettings struct {
	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32
	// Interval clears the failure counts while closed (0 never clears).
	Interval time.Duration
	// Timeout is how long the breaker stays open before trying again.
	Timeout time.Duration
	// MinRequests is the number of calls observed before the breaker may trip.
	MinRequests uint32
	// FailureRatio trips the breaker once reached.
	FailureRatio float64
}

// Settings configures a Guard.
type Settings struct {
	Name          string
	MaxConcurrent int64
	Breaker       BreakerSettings
	Retry         utils.RetryOptions
	// Retryable reports whether a store error is transient. Nil retries nothing.
	Retryable func(error) bool
}

// Guard wraps every call to one backing store.
type Guard struct {
	name      string
	breaker   *gobreaker.CircuitBreaker
	semaphore *semaphore.Weighted
	retry     utils.RetryOptions
	retryable func(error) bool
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewGuard creates a Guard for the store named in settings.
func NewGuard(settings Settings, logger *zap.Logger) *Guard {
	logger = logger.Named("upstream").With(zap.String("store", settings.Name))

	maxConcurrent := settings.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1 << 20
	}

	retryable := settings.Retryable
	if retryable == nil {
		retryable = func(error) bool { return false }
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.Breaker.MaxRequests,
		Interval:    settings.Breaker.Interval,
		Timeout:     settings.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.Breaker.MinRequests || counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.Breaker.FailureRatio
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// A caller giving up says nothing about the store's health
		IsSuccessful: func(err error) bool {
			return err == nil || isCancellation(err)
		},
	})

	return &Guard{
		name:      settings.Name,
		breaker:   breaker,
		semaphore: semaphore.NewWeighted(maxConcurrent),
		retry:     settings.Retry,
		retryable: retryable,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Name returns the guarded store's name.
func (g *Guard) Name() string {
	return g.name
}

// State returns the current circuit breaker state.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

// Do runs fn against the guarded store.
func Do[T any](ctx context.Context, g *Guard, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	ctx, span := g.tracer.Start(ctx, g.name+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("upstream.store", g.name)))
	defer span.End()

	if err := g.semaphore.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("failed to acquire %s slot: %w", g.name, err)
	}
	defer g.semaphore.Release(1)

	attempts := 0
	result, err := utils.WithRetryIf(ctx, func() (T, error) {
		attempts++

		res, err := g.breaker.Execute(func() (any, error) {
			return fn(ctx)
		})
		if err != nil {
			return zero, err
		}

		value, _ := res.(T)
		return value, nil
	}, g.shouldRetry, g.retry)

	span.SetAttributes(attribute.Int("upstream.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if attempts > 1 {
			g.logger.Debug("Store call failed after retries",
				zap.String("operation", operation),
				zap.Int("attempts", attempts),
				zap.Error(err))
		}
		return zero, fmt.Errorf("%s %s: %w", g.name, operation, err)
	}

	return result, nil
}

// shouldRetry reports whether another attempt may succeed.
func (g *Guard) shouldRetry(err error) bool {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	case isCancellation(err):
		return false
	default:
		return g.retryable(err)
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
