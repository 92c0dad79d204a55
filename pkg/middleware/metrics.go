package middleware

import (
	"net/http"
	"strconv"
	"time"

	"service-marketplace/pkg/metrics"

	"github.com/go-chi/chi/v5"
)

// Metrics records request counts and latency labelled by route pattern.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(rw.statusCode), time.Since(start).Seconds())
		})
	}
}
