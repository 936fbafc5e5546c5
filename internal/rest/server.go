// Package rest exposes the timeline service over HTTP.
package rest

import (
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/robalyx/timeline/internal/rest/handler"
	"github.com/robalyx/timeline/internal/rest/middleware"
	"github.com/robalyx/timeline/internal/timeline"
	"github.com/robalyx/timeline/internal/upstream"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Dependencies are the services the REST server reads from.
type Dependencies struct {
	Service *timeline.Service
	Graph   timeline.GraphLookup
	Content timeline.ContentLookup
	Guards  []*upstream.Guard
}

// NewServer creates the REST API handler.
func NewServer(deps Dependencies, logger *zap.Logger, requestTimeout time.Duration) http.Handler {
	timelineHandler := handler.NewTimelineHandler(deps.Service, deps.Graph, deps.Content, deps.Guards, logger)
	accessLog := middleware.NewAccessLog(logger)

	router := bunrouter.New()

	router.Use(
		accessLog.AsRESTMiddleware,
		middleware.Timeout(requestTimeout),
	).WithGroup("/v1", func(g *bunrouter.Group) {
		g.GET("/timeline", timelineHandler.GetTimeline)
		g.GET("/timeline/:id", timelineHandler.GetTimeline)
		g.GET("/followers", timelineHandler.GetFollowers)
		g.GET("/homepage", timelineHandler.GetHomepage)
		g.GET("/health", timelineHandler.Health)
	})

	return gzhttp.GzipHandler(router)
}
