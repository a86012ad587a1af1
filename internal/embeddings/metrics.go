package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/contextcore/internal/embeddings"

// embedMetrics counts embedding calls and failures and times them, by
// model and operation (embed_document or embed_query).
type embedMetrics struct {
	latency  metric.Float64Histogram
	requests metric.Int64Counter
	failures metric.Int64Counter
}

func newEmbedMetrics(logger *zap.Logger) *embedMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter(instrumentationName)
	m := &embedMetrics{}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("embedding metric disabled", zap.String("metric", name), zap.Error(err))
		}
	}

	var err error
	m.latency, err = meter.Float64Histogram("contextcore.embedding.generation_duration_seconds",
		metric.WithDescription("Embedding generation latency by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	warn("generation_duration_seconds", err)
	m.requests, err = meter.Int64Counter("contextcore.embedding.requests_total",
		metric.WithDescription("Embedding requests by model and operation"),
		metric.WithUnit("{request}"))
	warn("requests_total", err)
	m.failures, err = meter.Int64Counter("contextcore.embedding.errors_total",
		metric.WithDescription("Failed embedding requests by model and operation"),
		metric.WithUnit("{error}"))
	warn("errors_total", err)
	return m
}

// observe starts timing one call. Defer the returned func with a pointer to
// the call's named error result.
func (m *embedMetrics) observe(ctx context.Context, model, operation string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		if m == nil {
			return
		}
		attrs := metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("operation", operation),
		)
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if m.requests != nil {
			m.requests.Add(ctx, 1, attrs)
		}
		if errp != nil && *errp != nil && m.failures != nil {
			m.failures.Add(ctx, 1, attrs)
		}
	}
}
