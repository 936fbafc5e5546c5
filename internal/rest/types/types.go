// Package types holds the REST response bodies other than the timeline itself.
package types

import "github.com/robalyx/timeline/internal/timeline"

// CacheHitHeader reports whether a timeline was served from the result cache.
const CacheHitHeader = "CacheHit"

// FollowersResponse lists the followers of a user.
type FollowersResponse struct {
	Followers []timeline.FollowerEntry `json:"followers"`
}

// CommentsResponse lists every comment of a user.
type CommentsResponse struct {
	Comments []timeline.ContentItem `json:"comments"`
}

// ErrorResponse is returned for every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports the circuit breaker state of every backing store.
type HealthResponse struct {
	Status string            `json:"status"`
	Stores map[string]string `json:"stores"`
}

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)
