package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreLatency is the duration of document store operations.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dataaccess_store_latency",
			Help: "Duration of document store operations",
		},
		[]string{"backend", "operation", "document"},
	)

	// StoreTotalRequests is the total number of document store operations.
	StoreTotalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataaccess_store_total_requests",
			Help: "Total number of document store operations",
		},
		[]string{"backend", "operation", "document"},
	)

	// StoreErrors is the total number of failed document store operations.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataaccess_store_errors",
			Help: "Total number of failed document store operations",
		},
		[]string{"backend", "operation", "document"},
	)
)

// Observe starts the metrics for an operation and returns the function that completes them.
func Observe(backend, operation, document string) func(err error) {
	StoreTotalRequests.WithLabelValues(backend, operation, document).Inc()
	t := prometheus.NewTimer(StoreLatency.WithLabelValues(backend, operation, document))
	return func(err error) {
		t.ObserveDuration()
		if err != nil {
			StoreErrors.WithLabelValues(backend, operation, document).Inc()
		}
	}
}
