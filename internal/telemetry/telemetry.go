package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// HealthStatus reports whether telemetry is running and why it degraded.
type HealthStatus struct {
	Healthy  bool   `json:"healthy"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// Telemetry owns the process tracer and meter providers.
type Telemetry struct {
	cfg *Config
	tp  *sdktrace.TracerProvider
	mp  *sdkmetric.MeterProvider

	mu     sync.RWMutex
	status HealthStatus
}

// New builds the providers described by cfg and installs them as the otel
// globals. A disabled config yields a no-op instance. Exporter failures
// leave the instance degraded rather than failing startup.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{cfg: cfg, status: HealthStatus{Healthy: true}}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)
	c := newCollector(cfg)

	if tp, err := buildTracerProvider(ctx, cfg, c, res); err != nil {
		t.setDegraded("tracing disabled: %v", err)
	} else {
		t.tp = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.Metrics.Enabled {
		if mp, err := buildMeterProvider(ctx, cfg, c, res); err != nil {
			t.setDegraded("metrics disabled: %v", err)
		} else {
			t.mp = mp
			otel.SetMeterProvider(mp)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Tracer returns a tracer from this instance, or from the global provider
// when tracing is not running.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if t == nil || t.tp == nil {
		return otel.Tracer(name, opts...)
	}
	return t.tp.Tracer(name, opts...)
}

// Meter returns a meter from this instance, or from the global provider.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.mp == nil {
		return otel.Meter(name, opts...)
	}
	return t.mp.Meter(name, opts...)
}

// LoggerProvider returns the global OTEL log provider for the otelzap
// bridge when telemetry is enabled, and nil otherwise.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if !t.IsEnabled() {
		return nil
	}
	return global.GetLoggerProvider()
}

// provider is the lifecycle shared by the SDK tracer and meter providers.
type provider interface {
	ForceFlush(context.Context) error
	Shutdown(context.Context) error
}

// each runs fn against every running provider and joins the errors.
func (t *Telemetry) each(fn func(name string, p provider) error) error {
	var errs []error
	if t.tp != nil {
		errs = append(errs, fn("trace", t.tp))
	}
	if t.mp != nil {
		errs = append(errs, fn("meter", t.mp))
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops the providers. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.cfg != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Shutdown.Timeout)
		defer cancel()
	}

	err := t.each(func(name string, p provider) error {
		if err := p.Shutdown(ctx); err != nil {
			return fmt.Errorf("%s provider shutdown: %w", name, err)
		}
		return nil
	})

	t.mu.Lock()
	t.status.Healthy = false
	t.mu.Unlock()
	return err
}

// ForceFlush exports all pending spans and metrics.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.each(func(name string, p provider) error {
		if err := p.ForceFlush(ctx); err != nil {
			return fmt.Errorf("%s flush: %w", name, err)
		}
		return nil
	})
}

// Health returns the current telemetry status.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsEnabled reports whether telemetry is configured on and not shut down.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.cfg == nil || !t.cfg.Enabled {
		return false
	}
	return t.Health().Healthy
}

func (t *Telemetry) setDegraded(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Degraded = true
	t.status.Reason = fmt.Sprintf(format, args...)
}
