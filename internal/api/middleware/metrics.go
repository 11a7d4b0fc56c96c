// metrics.go — Prometheus метрики HTTP API:
// sn_http_requests_total{method,path,status}, sn_http_request_duration_seconds{method,path}.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sn_http_requests_total",
			Help: "Количество HTTP-запросов по маршруту и статусу",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sn_http_request_duration_seconds",
			Help:    "Длительность обработки HTTP-запросов, секунды",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware считает запросы и их длительность.
// Метка path берётся из normalizePath, а не из сырого URL.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			path := normalizePath(r.URL.Path)
			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(started).Seconds())
		})
	}
}

// normalizePath заменяет идентификатор конспекта в пути на {id}.
// /api/notes/0192f… → /api/notes/{id}
// /api/delete/0192f… → /api/delete/{id}
// Неизвестные пути сводятся к "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/notes", "/api/upload", "/api/users", "/api/users/sync", "/api/users/me":
		return path
	}

	for _, prefix := range []string{"/api/notes/", "/api/delete/"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return prefix + "{id}"
		}
	}
	return "other"
}
