package timeline

import (
	"context"
	"errors"
)

// Status classifies the outcome of a single collaborator call.
//
//go:generate go tool enumer -type=Status -trimprefix=Status -transform=snake
type Status int

const (
	// StatusOK means the collaborator returned data.
	StatusOK Status = iota
	// StatusEmpty means the collaborator had nothing for the key.
	StatusEmpty
	// StatusFailed means the collaborator call returned an error.
	StatusFailed
)

// Result is the outcome of one collaborator call made while assembling a timeline.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

// Cancelled reports whether the call failed because the caller's context ended.
func (r Result[T]) Cancelled() bool {
	return r.Status == StatusFailed && isCancellation(r.Err)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// OK wraps a successful value.
func OK[T any](value T) Result[T] {
	return Result[T]{Value: value, Status: StatusOK}
}

// Empty is the result of a lookup that found nothing.
func Empty[T any]() Result[T] {
	return Result[T]{Status: StatusEmpty}
}

// Failed wraps a collaborator error.
func Failed[T any](err error) Result[T] {
	return Result[T]{Status: StatusFailed, Err: err}
}

// Collect turns a (value, found, err) lookup into a Result.
func Collect[T any](value T, found bool, err error) Result[T] {
	switch {
	case err != nil:
		return Failed[T](err)
	case !found:
		return Empty[T]()
	default:
		return OK(value)
	}
}

// CollectSlice turns a slice lookup into a Result, treating an empty slice as Empty.
func CollectSlice[T any](values []T, err error) Result[[]T] {
	return Collect(values, len(values) > 0, err)
}
