package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"
)

// collector describes where and how OTLP data is shipped. Traces and
// metrics share one collector.
type collector struct {
	protocol string
	endpoint string
	insecure bool
	tls      *tls.Config
}

func newCollector(cfg *Config) collector {
	c := collector{
		protocol: cfg.Protocol,
		endpoint: cfg.Endpoint,
		insecure: cfg.Insecure,
	}
	if c.protocol == "" {
		c.protocol = protocolGRPC
	}
	if c.protocol == protocolHTTP {
		// The HTTP exporters take host:port only.
		c.endpoint = stripScheme(c.endpoint)
	}
	if !c.insecure && cfg.TLSSkipVerify {
		c.tls = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via tls_skip_verify
	}
	return c
}

func (c collector) spanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if c.protocol == protocolHTTP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.endpoint)}
		switch {
		case c.insecure:
			opts = append(opts, otlptracehttp.WithInsecure())
		case c.tls != nil:
			opts = append(opts, otlptracehttp.WithTLSClientConfig(c.tls))
		}
		return otlptracehttp.New(ctx, opts...)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.endpoint)}
	switch {
	case c.insecure:
		opts = append(opts, otlptracegrpc.WithInsecure())
	case c.tls != nil:
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(c.tls)))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// cumulative keeps counters monotonic for Prometheus-style backends.
func cumulative(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (c collector) metricExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	if c.protocol == protocolHTTP {
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(c.endpoint),
			otlpmetrichttp.WithTemporalitySelector(cumulative),
		}
		switch {
		case c.insecure:
			opts = append(opts, otlpmetrichttp.WithInsecure())
		case c.tls != nil:
			opts = append(opts, otlpmetrichttp.WithTLSClientConfig(c.tls))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(c.endpoint),
		otlpmetricgrpc.WithTemporalitySelector(cumulative),
	}
	switch {
	case c.insecure:
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	case c.tls != nil:
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(c.tls)))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func newResource(cfg *Config) *resource.Resource {
	// resource.Default() carries a different semconv schema URL, so build
	// a standalone one.
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
}

func buildTracerProvider(ctx context.Context, cfg *Config, c collector, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := c.spanExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("trace exporter (%s): %w", c.protocol, err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(newSampler(cfg.Sampling.Rate))),
	), nil
}

func buildMeterProvider(ctx context.Context, cfg *Config, c collector, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := c.metricExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("metric exporter (%s): %w", c.protocol, err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.Metrics.ExportInterval))
	return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader)), nil
}

func stripScheme(endpoint string) string {
	for _, scheme := range []string{"https://", "http://"} {
		endpoint = strings.TrimPrefix(endpoint, scheme)
	}
	return endpoint
}

func newSampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}
