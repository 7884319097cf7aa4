package http

import (
	"net/http"
	"time"

	"vellum/lib/timer"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TimeoutMiddleware answers 503 to requests that take longer than timeout.
func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.TimeoutHandler(h, timeout, "server timed out")
	}
}

// RateLimitingMiddleware serves at most maxConcurrentRequests at a time. The
// others wait until a slot frees up or they are canceled.
func RateLimitingMiddleware(maxConcurrentRequests int) mux.MiddlewareFunc {
	bucket := make(chan struct{}, maxConcurrentRequests)
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case bucket <- struct{}{}:
				defer func() { <-bucket }()
				h.ServeHTTP(w, r)
			case <-r.Context().Done():
				http.Error(w, "request canceled while waiting", http.StatusServiceUnavailable)
			}
		})
	}
}

// Tracer records the timers stopped while serving a request and dumps them
// at debug level when the request took longer than slow.
func Tracer(logger *zap.Logger, slow time.Duration) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := timer.WithTracing(r.Context())
			start := time.Now()
			h.ServeHTTP(w, r.WithContext(ctx))
			if time.Since(start) < slow {
				return
			}
			if err := timer.LogTracingInfo(ctx, logger.With(zap.String("path", r.URL.Path))); err != nil {
				logger.Warn("failed to log trace", zap.Error(err))
			}
		})
	}
}
