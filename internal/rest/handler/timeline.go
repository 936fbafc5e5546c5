// Package handler implements the REST endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	restTypes "github.com/robalyx/timeline/internal/rest/types"
	"github.com/robalyx/timeline/internal/timeline"
	"github.com/robalyx/timeline/internal/upstream"
	"github.com/sony/gobreaker"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// ErrMissingID is returned when a request names no user.
var ErrMissingID = errors.New("missing id parameter")

// TimelineHandler serves timelines and the per-store views they are built from.
type TimelineHandler struct {
	service *timeline.Service
	graph   timeline.GraphLookup
	content timeline.ContentLookup
	guards  []*upstream.Guard
	logger  *zap.Logger
}

// NewTimelineHandler creates a new timeline handler.
func NewTimelineHandler(
	service *timeline.Service, graph timeline.GraphLookup, content timeline.ContentLookup,
	guards []*upstream.Guard, logger *zap.Logger,
) *TimelineHandler {
	return &TimelineHandler{
		service: service,
		graph:   graph,
		content: content,
		guards:  guards,
		logger:  logger.Named("rest"),
	}
}

// GetTimeline writes the timeline of the requested user with the CacheHit header.
func (h *TimelineHandler) GetTimeline(w http.ResponseWriter, req bunrouter.Request) error {
	userID, ok := h.userID(w, req)
	if !ok {
		return nil
	}

	res, err := h.service.GetTimeline(req.Context(), userID)
	if err != nil {
		h.writeError(w, req, err)
		return nil
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set(restTypes.CacheHitHeader, strconv.FormatBool(res.CacheHit))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Payload)

	return nil
}

// GetFollowers writes the followers of the requested user.
func (h *TimelineHandler) GetFollowers(w http.ResponseWriter, req bunrouter.Request) error {
	userID, ok := h.userID(w, req)
	if !ok {
		return nil
	}

	followers, err := h.graph.GetFollowers(req.Context(), userID)
	if err != nil {
		h.writeError(w, req, err)
		return nil
	}
	if followers == nil {
		followers = []timeline.FollowerEntry{}
	}

	return writeJSON(w, http.StatusOK, restTypes.FollowersResponse{Followers: followers})
}

// GetHomepage writes every comment of the requested user.
func (h *TimelineHandler) GetHomepage(w http.ResponseWriter, req bunrouter.Request) error {
	userID, ok := h.userID(w, req)
	if !ok {
		return nil
	}

	comments, err := h.content.GetByAuthor(req.Context(), userID)
	if err != nil {
		h.writeError(w, req, err)
		return nil
	}
	if comments == nil {
		comments = []timeline.ContentItem{}
	}

	return writeJSON(w, http.StatusOK, restTypes.CommentsResponse{Comments: comments})
}

// Health reports the breaker state of every store. Any open breaker makes the
// service degraded but still able to answer.
func (h *TimelineHandler) Health(w http.ResponseWriter, _ bunrouter.Request) error {
	res := restTypes.HealthResponse{
		Status: restTypes.HealthOK,
		Stores: make(map[string]string, len(h.guards)),
	}

	for _, guard := range h.guards {
		state := guard.State()
		res.Stores[guard.Name()] = state.String()
		if state != gobreaker.StateClosed {
			res.Status = restTypes.HealthDegraded
		}
	}

	return writeJSON(w, http.StatusOK, res)
}

// userID reads the user from the path or the id query parameter.
func (h *TimelineHandler) userID(w http.ResponseWriter, req bunrouter.Request) (timeline.UserID, bool) {
	id := req.Param("id")
	if id == "" {
		id = req.URL.Query().Get("id")
	}

	if id == "" {
		_ = writeJSON(w, http.StatusBadRequest, restTypes.ErrorResponse{Error: ErrMissingID.Error()})
		return "", false
	}

	return timeline.UserID(id), true
}

// writeError maps a lookup error to a status code.
func (h *TimelineHandler) writeError(w http.ResponseWriter, req bunrouter.Request, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Request timed out", zap.String("path", req.URL.Path), zap.Error(err))
		_ = writeJSON(w, http.StatusGatewayTimeout, restTypes.ErrorResponse{Error: "Request timed out"})
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response
		h.logger.Debug("Request cancelled", zap.String("path", req.URL.Path))
	default:
		h.logger.Error("Failed to serve request", zap.String("path", req.URL.Path), zap.Error(err))
		_ = writeJSON(w, http.StatusServiceUnavailable, restTypes.ErrorResponse{Error: "Store unavailable"})
	}
}

// writeJSON encodes v with sonic.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}
