package timeline

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Response is an encoded timeline and whether it was served from the cache.
type Response struct {
	Payload  []byte
	CacheHit bool
}

// Service serves timelines, consulting the result cache before assembling.
type Service struct {
	aggregator *Aggregator
	cache      ResultCache
	coalesce   bool
	logger     *zap.Logger
	tracer     trace.Tracer

	group   singleflight.Group
	mu      sync.Mutex
	flights map[UserID]*flight
}

// flight is an assembly shared by the callers waiting on the same user.
// It is cancelled once every waiter has left.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewService creates a Service. When coalesce is set, concurrent misses for the
// same user share a single assembly.
func NewService(aggregator *Aggregator, cache ResultCache, coalesce bool, logger *zap.Logger) *Service {
	return &Service{
		aggregator: aggregator,
		cache:      cache,
		coalesce:   coalesce,
		logger:     logger.Named("timeline_service"),
		tracer:     otel.Tracer(tracerName),
		flights:    make(map[UserID]*flight),
	}
}

// GetTimeline returns the encoded timeline of user.
func (s *Service) GetTimeline(ctx context.Context, user UserID) (*Response, error) {
	ctx, span := s.tracer.Start(ctx, "timeline.GetTimeline",
		trace.WithAttributes(attribute.String("user.id", string(user))))
	defer span.End()

	if cached, ok := s.cache.Get(ctx, user); ok {
		span.SetAttributes(attribute.Bool("timeline.cache_hit", true))
		s.logger.Debug("Timeline cache hit", zap.String("userID", string(user)))
		return &Response{Payload: cached, CacheHit: true}, nil
	}
	span.SetAttributes(attribute.Bool("timeline.cache_hit", false))

	var (
		payload []byte
		err     error
	)
	if s.coalesce {
		payload, err = s.assembleShared(ctx, user)
	} else {
		payload, err = s.assemble(ctx, user)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &Response{Payload: payload, CacheHit: false}, nil
}

// assembleShared runs assemble through the singleflight group. A caller that gives
// up waiting gets ErrCancelled; the shared assembly keeps running only while some
// caller still waits for it.
func (s *Service) assembleShared(ctx context.Context, user UserID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	f, ch := s.join(ctx, user)

	select {
	case res := <-ch:
		s.leave(user, f)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		s.leave(user, f)
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// join registers the caller as a waiter on the flight for user, starting one if needed.
func (s *Service) join(ctx context.Context, user UserID) (*flight, <-chan singleflight.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(user)
	f, ok := s.flights[user]
	if !ok {
		// A finishing or abandoned call may still hold the key
		s.group.Forget(key)

		// Detach from the first caller so its cancellation alone does not fail the others
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: flightCtx, cancel: cancel}
		s.flights[user] = f
	}
	f.waiters++

	ch := s.group.DoChan(key, func() (any, error) {
		defer s.finish(user, f)
		return s.assemble(f.ctx, user)
	})

	return f, ch
}

// leave drops a waiter, cancelling the flight when nobody is left waiting for it.
func (s *Service) leave(user UserID, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.waiters--
	if f.waiters > 0 || s.flights[user] != f {
		return
	}

	delete(s.flights, user)
	s.group.Forget(string(user))
	f.cancel()

	s.logger.Debug("Abandoned shared timeline assembly", zap.String("userID", string(user)))
}

// finish retires a flight whose assembly has returned.
func (s *Service) finish(user UserID, f *flight) {
	s.mu.Lock()
	if s.flights[user] == f {
		delete(s.flights, user)
	}
	s.mu.Unlock()

	f.cancel()
}

// assemble builds, encodes and conditionally caches the timeline of user.
func (s *Service) assemble(ctx context.Context, user UserID) ([]byte, error) {
	timeline, err := s.aggregator.Assemble(ctx, user)
	if err != nil {
		return nil, err
	}

	payload, err := timeline.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode timeline: %w", err)
	}

	if s.cache.Admit(ctx, user) {
		s.cache.Put(ctx, user, payload)
	}

	return payload, nil
}
