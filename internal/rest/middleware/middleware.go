// Package middleware holds the bunrouter middlewares of the REST server.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Timeout bounds every request by d. A non-positive d leaves requests unbounded.
func Timeout(d time.Duration) bunrouter.MiddlewareFunc {
	return func(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
		if d <= 0 {
			return next
		}

		return func(w http.ResponseWriter, req bunrouter.Request) error {
			ctx, cancel := context.WithTimeout(req.Context(), d)
			defer cancel()

			return next(w, req.WithContext(ctx))
		}
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// AccessLog logs every request at Debug and handler errors at Error.
type AccessLog struct {
	logger *zap.Logger
}

// NewAccessLog creates a new access log middleware.
func NewAccessLog(logger *zap.Logger) *AccessLog {
	return &AccessLog{
		logger: logger.Named("access"),
	}
}

// AsRESTMiddleware returns the bunrouter middleware.
func (m *AccessLog) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		err := next(rec, req)

		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("route", req.Route()),
			zap.String("query", req.URL.RawQuery),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("remoteAddr", req.RemoteAddr),
		}

		if err != nil {
			m.logger.Error("Request failed", append(fields, zap.Error(err))...)
			return err
		}

		m.logger.Debug("Request served", fields...)
		return nil
	}
}
