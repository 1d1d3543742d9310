// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	registry            *prometheus.Registry
	filesTotal          *prometheus.CounterVec
	bytesTotal          prometheus.Counter
	retriesTotal        *prometheus.CounterVec
	transferDuration    prometheus.Histogram
	catalogOperations   *prometheus.CounterVec
	catalogDuration     *prometheus.HistogramVec
	sessionsTotal       *prometheus.CounterVec
	sessionDays         prometheus.Gauge
	sessionDuration     prometheus.Histogram
	lastSessionTime     prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a new Prometheus metrics collector on its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "modisfetch"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,

		filesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Files handled by outcome",
			},
			[]string{"outcome"},
		),

		bytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transferred_bytes_total",
				Help:      "Bytes written by successful transfers",
			},
		),

		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfer_retries_total",
				Help:      "Transfer retries by reason",
			},
			[]string{"reason"},
		),

		transferDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transfer_duration_seconds",
				Help:      "Duration of successful file transfers in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),

		catalogOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_operations_total",
				Help:      "Total number of remote catalog operations",
			},
			[]string{"operation", "status"},
		),

		catalogDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "catalog_duration_seconds",
				Help:      "Remote catalog operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Download sessions by status",
			},
			[]string{"status"},
		),

		sessionDays: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_days",
				Help:      "Days processed by the last session",
			},
		),

		sessionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Download session duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
			},
		),

		lastSessionTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_session_timestamp_seconds",
				Help:      "Unix time the last session finished",
			},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// IncFiles counts a file outcome.
func (c *Collector) IncFiles(outcome string) {
	c.filesTotal.WithLabelValues(outcome).Inc()
}

// AddBytes adds transferred bytes.
func (c *Collector) AddBytes(n int64) {
	c.bytesTotal.Add(float64(n))
}

// IncRetries counts a transfer retry.
func (c *Collector) IncRetries(reason string) {
	c.retriesTotal.WithLabelValues(reason).Inc()
}

// ObserveTransferDuration records the duration of a successful transfer.
func (c *Collector) ObserveTransferDuration(duration time.Duration) {
	c.transferDuration.Observe(duration.Seconds())
}

// IncCatalogOperations increments the catalog operation counter.
func (c *Collector) IncCatalogOperations(operation string, success bool) {
	c.catalogOperations.WithLabelValues(operation, successLabel(success)).Inc()
}

// ObserveCatalogDuration records catalog operation duration.
func (c *Collector) ObserveCatalogDuration(operation string, duration time.Duration) {
	c.catalogDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveSession records a finished session.
func (c *Collector) ObserveSession(success bool, days int, duration time.Duration) {
	c.sessionsTotal.WithLabelValues(successLabel(success)).Inc()
	c.sessionDays.Set(float64(days))
	c.sessionDuration.Observe(duration.Seconds())
	c.lastSessionTime.SetToCurrentTime()
}

// IncHTTPRequests increments the HTTP request counter.
func (c *Collector) IncHTTPRequests(method, path, status string) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveHTTPDuration records HTTP request duration.
func (c *Collector) ObserveHTTPDuration(method, path string, duration time.Duration) {
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Registry returns the registry the collector registers on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the Prometheus HTTP handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current metrics in the node_exporter textfile
// format. Used by one-shot CLI runs, which have no scrape endpoint.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// Middleware returns HTTP middleware for metrics collection.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := normalizePath(r.URL.Path)
		status := statusToString(wrapped.statusCode)

		c.IncHTTPRequests(r.Method, path, status)
		c.ObserveHTTPDuration(r.Method, path, duration)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func successLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// normalizePath keeps label cardinality bounded.
func normalizePath(path string) string {
	switch {
	case len(path) > 20:
		return path[:20] + "..."
	default:
		return path
	}
}

// statusToString converts HTTP status code to string category.
func statusToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
