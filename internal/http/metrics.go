package http

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/contextcore/internal/http"

// requestMetrics records request counts, latency and response sizes by
// method, route template and status.
type requestMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	size     metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

// newRequestMetrics registers the instruments on the global meter. Failed
// registrations are reported in err and leave that instrument nil.
func newRequestMetrics() (*requestMetrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &requestMetrics{}
	var errs [4]error

	m.requests, errs[0] = meter.Int64Counter("contextcore.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status"),
		metric.WithUnit("{request}"))
	m.latency, errs[1] = meter.Float64Histogram("contextcore.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10))
	m.size, errs[2] = meter.Int64Histogram("contextcore.http.response_size_bytes",
		metric.WithDescription("HTTP response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 5000, 10000, 50000, 100000, 500000))
	m.inFlight, errs[3] = meter.Int64UpDownCounter("contextcore.http.active_requests",
		metric.WithDescription("HTTP requests in flight"),
		metric.WithUnit("{request}"))

	return m, errors.Join(errs[:]...)
}

func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.size != nil {
				m.size.Record(ctx, c.Response().Size, attrs)
			}
			return err
		}
	}
}

// normalizePath labels a request by its route template (/api/v1/logs/:id)
// so that log ids never become label values.
func normalizePath(path string) string {
	if path == "" || path == "/*" {
		return "unmatched"
	}
	return path
}
