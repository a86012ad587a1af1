package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
)

const instrumentationName = "github.com/fyrsmithlabs/contextcore/internal/mcp"

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// toolMetrics records per-tool invocation counts, latency, failures by
// devlog error kind, and in-flight calls.
type toolMetrics struct {
	invocations metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
	active      metric.Int64UpDownCounter
}

// newToolMetrics registers the instruments on the global meter. A failed
// registration leaves that instrument as a no-op and is reported in err.
func newToolMetrics() (*toolMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &toolMetrics{}
	var errs [4]error

	m.invocations, errs[0] = meter.Int64Counter("contextcore.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool invocations"),
		metric.WithUnit("{invocation}"))
	m.failures, errs[1] = meter.Int64Counter("contextcore.mcp.tool.errors_total",
		metric.WithDescription("MCP tool invocations that returned an error, by kind"),
		metric.WithUnit("{error}"))
	m.duration, errs[2] = meter.Float64Histogram("contextcore.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	m.active, errs[3] = meter.Int64UpDownCounter("contextcore.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls in flight"),
		metric.WithUnit("{request}"))

	return m, errors.Join(errs[:]...)
}

// begin marks a call to tool as in flight. The returned func records the
// outcome and must be called exactly once.
func (m *toolMetrics) begin(ctx context.Context, tool string) func(error) {
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if m.active != nil {
		m.active.Add(ctx, 1, attrs)
	}

	return func(err error) {
		if m.active != nil {
			m.active.Add(ctx, -1, attrs)
		}
		if m.invocations != nil {
			m.invocations.Add(ctx, 1, attrs)
		}
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("kind", devlog.Kind(err)),
			))
		}
	}
}
