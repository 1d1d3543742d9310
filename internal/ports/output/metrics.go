package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncFiles counts files by outcome (fetched, replaced, skipped, failed, conflict).
	IncFiles(outcome string)

	// AddBytes adds transferred bytes.
	AddBytes(n int64)

	// IncRetries counts transfer retries by reason.
	IncRetries(reason string)

	// ObserveTransferDuration records the duration of a successful transfer.
	ObserveTransferDuration(duration time.Duration)

	// IncCatalogOperations increments the catalog operation counter.
	IncCatalogOperations(operation string, success bool)

	// ObserveCatalogDuration records catalog operation duration.
	ObserveCatalogDuration(operation string, duration time.Duration)

	// ObserveSession records a finished session.
	ObserveSession(success bool, days int, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncFiles implements MetricsCollector.
func (n *NoOpMetrics) IncFiles(_ string) {}

// AddBytes implements MetricsCollector.
func (n *NoOpMetrics) AddBytes(_ int64) {}

// IncRetries implements MetricsCollector.
func (n *NoOpMetrics) IncRetries(_ string) {}

// ObserveTransferDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveTransferDuration(_ time.Duration) {}

// IncCatalogOperations implements MetricsCollector.
func (n *NoOpMetrics) IncCatalogOperations(_ string, _ bool) {}

// ObserveCatalogDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveCatalogDuration(_ string, _ time.Duration) {}

// ObserveSession implements MetricsCollector.
func (n *NoOpMetrics) ObserveSession(_ bool, _ int, _ time.Duration) {}
