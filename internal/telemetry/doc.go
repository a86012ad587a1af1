// Package telemetry provides OpenTelemetry instrumentation for contextcore.
//
// New installs OTLP trace and metric providers as the otel globals, so the
// devlog service, embedders and HTTP layer pick them up through otel.Tracer
// and otel.Meter without further wiring. Exporters speak gRPC (default) or
// HTTP/protobuf.
//
//	tel, err := telemetry.New(ctx, cfg.Telemetry)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Telemetry is disabled by default. Failures while building providers do
// not fail startup; the instance reports itself degraded and the otel no-op
// providers stay in place.
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sampling:
//	    rate: 1.0
//	  metrics:
//	    enabled: true
//	    export_interval: 15s
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	restore := tt.InstallGlobal()
//	defer restore()
//	// ... exercise code that uses otel.Tracer / otel.Meter
//	tt.AssertSpanExists(t, "devlog.SearchLogs")
//	assert.EqualValues(t, 1, tt.CounterValue(t, "contextcore.search.orphans_total"))
package telemetry
