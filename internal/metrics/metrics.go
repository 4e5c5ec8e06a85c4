// Package metrics provides Prometheus metrics for the source archive server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debsources_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debsources_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Resolver metrics
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debsources_resolutions_total",
			Help: "Logical address resolutions by outcome",
		},
		[]string{"outcome"},
	)

	resolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "debsources_resolve_duration_seconds",
			Help:    "Time to resolve a logical address",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// Checksum index metrics
	checksumLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debsources_checksum_lookups_total",
			Help: "Checksum index lookups by outcome",
		},
		[]string{"outcome"},
	)

	// Read-through cache metrics
	cacheAccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debsources_cache_access_total",
			Help: "Read-through cache accesses",
		},
		[]string{"cache", "result"},
	)

	// Raw content metrics
	contentBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debsources_content_bytes_served_total",
			Help: "Total raw content bytes served",
		},
	)

	contentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debsources_content_requests_total",
			Help: "Total raw content requests",
		},
		[]string{"status"},
	)

	// Admin auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debsources_admin_auth_attempts_total",
			Help: "Total admin authentication attempts",
		},
		[]string{"result"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debsources_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "debsources_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debsources_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debsources_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debsources_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordResolution records the outcome of a single address resolution.
func RecordResolution(outcome string, duration time.Duration) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
	resolveDuration.Observe(duration.Seconds())
}

// RecordChecksumLookup records a checksum index lookup outcome.
func RecordChecksumLookup(outcome string) {
	checksumLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheAccess records a read-through cache hit or miss.
func RecordCacheAccess(cache string, hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	cacheAccessTotal.WithLabelValues(cache, result).Inc()
}

// RecordContentServed records a raw content response.
func RecordContentServed(bytes int64, success bool) {
	contentBytesServed.Add(float64(bytes))
	status := "success"
	if !success {
		status = "error"
	}
	contentRequestsTotal.WithLabelValues(status).Inc()
}

// RecordAuthAttempt records an admin authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	s3OperationsTotal.WithLabelValues(operation, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
// The route label is the matched ServeMux pattern, which keeps label
// cardinality bounded regardless of how many archive paths are requested.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
