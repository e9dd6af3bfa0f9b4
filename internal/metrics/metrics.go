// Package metrics provides Prometheus metrics for the drivestore server.
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
			Name: "drivestore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drivestore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Tree operations, labelled with the error kind ("ok" on success)
	treeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivestore_tree_operations_total",
			Help: "Total namespace tree operations",
		},
		[]string{"operation", "result"},
	)

	treeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drivestore_tree_operation_duration_seconds",
			Help:    "Namespace tree operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	txRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivestore_tx_retries_total",
			Help: "Index transactions retried after losing a race",
		},
		[]string{"operation"},
	)

	quotaRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivestore_quota_rejections_total",
			Help: "Reservations rejected because they would exceed the owner's limit",
		},
	)

	// Content store metrics
	contentOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drivestore_content_operation_duration_seconds",
			Help:    "Content store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	contentOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivestore_content_operations_total",
			Help: "Total content store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	contentBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivestore_content_bytes_uploaded_total",
			Help: "Total bytes written to the content store",
		},
	)

	orphanedBlobsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drivestore_orphaned_blobs_total",
			Help: "Blobs whose deletion failed after their entry was removed",
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivestore_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordTreeOperation records a tree operation and its outcome kind.
func RecordTreeOperation(operation, result string, duration time.Duration) {
	treeOpsTotal.WithLabelValues(operation, result).Inc()
	treeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTxRetry counts a transaction retried after a lost race.
func RecordTxRetry(operation string) {
	txRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordQuotaRejection counts a reservation over the limit.
func RecordQuotaRejection() {
	quotaRejectionsTotal.Inc()
}

// RecordContentOperation records a content store call.
func RecordContentOperation(backend, operation string, duration time.Duration, success bool) {
	contentOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	contentOpsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

// RecordContentUpload records bytes written by a successful upload.
func RecordContentUpload(bytes int64) {
	contentBytesUploaded.Add(float64(bytes))
}

// RecordOrphanedBlob counts a blob left behind by a failed deletion.
func RecordOrphanedBlob() {
	orphanedBlobsTotal.Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	authAttemptsTotal.WithLabelValues(status(success)).Inc()
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

// Middleware returns HTTP middleware that records request metrics.
// Requests are labelled with the matched ServeMux pattern to keep
// cardinality bounded.
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
