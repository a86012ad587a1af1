package vectorstore

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts index operations.
	// Labels: backend (qdrant, chromem), operation, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextcore",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"backend", "operation", "result"},
	)

	// OperationDuration tracks how long index operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contextcore",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// RetriesTotal counts retried transient failures.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextcore",
			Subsystem: "vectorstore",
			Name:      "retries_total",
			Help:      "Total number of retried vector index calls",
		},
		[]string{"operation"},
	)

	// CircuitOpenTotal counts calls rejected by an open circuit breaker.
	CircuitOpenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "contextcore",
			Subsystem: "vectorstore",
			Name:      "circuit_open_rejections_total",
			Help:      "Total number of calls rejected while the circuit breaker was open",
		},
	)

	// Vectors reports the last observed vector count per backend.
	Vectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "contextcore",
			Subsystem: "vectorstore",
			Name:      "vectors",
			Help:      "Number of vectors in the index at the last count",
		},
		[]string{"backend"},
	)
)

// observe records the outcome of one operation.
func observe(backend, operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
		if errors.Is(err, ErrCircuitOpen) {
			CircuitOpenTotal.Inc()
		}
	}
	OperationsTotal.WithLabelValues(backend, operation, result).Inc()
	OperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}
