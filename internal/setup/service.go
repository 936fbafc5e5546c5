package setup

import (
	"time"

	"github.com/robalyx/timeline/internal/setup/config"
	"github.com/robalyx/timeline/internal/timeline"
	"github.com/robalyx/timeline/internal/timeline/cache"
	"github.com/robalyx/timeline/internal/upstream"
	"github.com/robalyx/timeline/pkg/utils"
	"go.uber.org/zap"
)

// Store names used in logs, traces and guard settings.
const (
	StoreProfiles = "profile_store"
	StoreGraph    = "graph_store"
	StoreContent  = "content_store"
)

// DefaultFailureRatio trips a breaker whose config leaves the ratio unset.
const DefaultFailureRatio = 0.5

// Stores are the backing stores a timeline is assembled from. Each Retryable
// classifies the transient errors of its store; nil retries nothing.
type Stores struct {
	Profiles         timeline.ProfileLookup
	Graph            timeline.GraphLookup
	Content          timeline.ContentLookup
	ProfileRetryable func(error) bool
	GraphRetryable   func(error) bool
	ContentRetryable func(error) bool
}

// Timeline is a ready-to-serve timeline service with its guarded lookups.
type Timeline struct {
	Service  *timeline.Service
	Cache    *cache.Cache
	Profiles *upstream.ProfileLookup
	Graph    *upstream.GraphLookup
	Content  *upstream.ContentLookup
	Guards   []*upstream.Guard
}

// NewTimeline guards every store and wires the aggregator, result cache and
// service according to cfg.
func NewTimeline(cfg *config.Config, stores Stores, cacheStore cache.Store, logger *zap.Logger) *Timeline {
	profileGuard := upstream.NewGuard(guardSettings(&cfg.Common, StoreProfiles, stores.ProfileRetryable), logger)
	graphGuard := upstream.NewGuard(guardSettings(&cfg.Common, StoreGraph, stores.GraphRetryable), logger)
	contentGuard := upstream.NewGuard(guardSettings(&cfg.Common, StoreContent, stores.ContentRetryable), logger)

	profiles := upstream.NewProfileLookup(stores.Profiles, profileGuard)
	graph := upstream.NewGraphLookup(stores.Graph, graphGuard)
	content := upstream.NewContentLookup(stores.Content, contentGuard)

	aggregatorCfg := &cfg.Timeline.Aggregator
	aggregator := timeline.NewAggregator(profiles, graph, content, timeline.AggregatorConfig{
		CommentLimit:    aggregatorCfg.CommentLimit,
		MaxInFlight:     aggregatorCfg.MaxInFlight,
		AncestryTimeout: time.Duration(aggregatorCfg.AncestryTimeout) * time.Millisecond,
	}, logger)

	resultCache := cache.New(cacheStore, graph, logger)

	return &Timeline{
		Service:  timeline.NewService(aggregator, resultCache, aggregatorCfg.Coalesce, logger),
		Cache:    resultCache,
		Profiles: profiles,
		Graph:    graph,
		Content:  content,
		Guards:   []*upstream.Guard{profileGuard, graphGuard, contentGuard},
	}
}

// NewMemoryCacheStore creates the in-process result cache backend from cfg.
func NewMemoryCacheStore(cfg *config.Cache) *cache.MemoryStore {
	return cache.NewMemoryStore(cfg.Capacity, time.Duration(cfg.TTL)*time.Second)
}

// guardSettings maps the shared resilience config onto one store guard.
func guardSettings(cfg *config.CommonConfig, name string, retryable func(error) bool) upstream.Settings {
	retry := utils.GetStoreRetryOptions()
	if cfg.Retry.MaxRetries > 0 {
		retry.MaxRetries = cfg.Retry.MaxRetries
	}
	if cfg.Retry.Delay > 0 {
		retry.InitialInterval = time.Duration(cfg.Retry.Delay) * time.Millisecond
	}
	if cfg.Retry.MaxDelay > 0 {
		retry.MaxInterval = time.Duration(cfg.Retry.MaxDelay) * time.Millisecond
	}
	if cfg.Retry.MaxElapsed > 0 {
		retry.MaxElapsedTime = time.Duration(cfg.Retry.MaxElapsed) * time.Millisecond
	}

	breaker := &cfg.CircuitBreaker

	failureRatio := breaker.FailureRatio
	if failureRatio <= 0 {
		failureRatio = DefaultFailureRatio
	}

	return upstream.Settings{
		Name:          name,
		MaxConcurrent: breaker.MaxConcurrent,
		Breaker: upstream.BreakerSettings{
			MaxRequests:  breaker.MaxRequests,
			Interval:     time.Duration(breaker.Interval) * time.Millisecond,
			Timeout:      time.Duration(breaker.Timeout) * time.Millisecond,
			MinRequests:  breaker.MinRequests,
			FailureRatio: failureRatio,
		},
		Retry:     retry,
		Retryable: retryable,
	}
}
