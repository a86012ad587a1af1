package telemetry

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool           `koanf:"enabled"`
	Endpoint       string         `koanf:"endpoint"`
	ServiceName    string         `koanf:"service_name"`
	ServiceVersion string         `koanf:"service_version"`
	Protocol       string         `koanf:"protocol"` // grpc or http/protobuf
	Insecure       bool           `koanf:"insecure"` // plaintext, loopback endpoints only
	TLSSkipVerify  bool           `koanf:"tls_skip_verify"`
	Sampling       SamplingConfig `koanf:"sampling"`
	Metrics        MetricsConfig  `koanf:"metrics"`
	Shutdown       ShutdownConfig `koanf:"shutdown"`
}

// SamplingConfig controls trace sampling behavior.
type SamplingConfig struct {
	Rate float64 `koanf:"rate"`
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Enabled        bool          `koanf:"enabled"`
	ExportInterval time.Duration `koanf:"export_interval"`
}

// ShutdownConfig controls graceful shutdown behavior.
type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// NewDefaultConfig returns production-ready telemetry defaults.
// Telemetry is disabled by default; enable it with CONTEXTCORE_TELEMETRY_ENABLED=true
// or in the config file.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		ServiceName:    "contextcore",
		ServiceVersion: "0.1.0",
		Protocol:       "grpc",
		Insecure:       true,
		Sampling:       SamplingConfig{Rate: 1.0},
		Metrics:        MetricsConfig{Enabled: true, ExportInterval: 15 * time.Second},
		Shutdown:       ShutdownConfig{Timeout: 5 * time.Second},
	}
}

// Validate checks an enabled configuration. A disabled one is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	checks := []struct {
		failed bool
		err    string
	}{
		{c.Endpoint == "", "endpoint is required when telemetry is enabled"},
		{c.ServiceName == "", "service_name is required when telemetry is enabled"},
		{c.ServiceVersion == "", "service_version is required when telemetry is enabled"},
		{c.Protocol != "" && c.Protocol != protocolGRPC && c.Protocol != protocolHTTP,
			fmt.Sprintf("protocol must be grpc or http/protobuf, got %q", c.Protocol)},
		{c.Insecure && !c.isLocalEndpoint(),
			"insecure connections are only allowed to loopback endpoints; set insecure=false to use TLS"},
		{c.Sampling.Rate < 0 || c.Sampling.Rate > 1,
			fmt.Sprintf("sampling.rate must be between 0 and 1, got %g", c.Sampling.Rate)},
		{c.Metrics.Enabled && c.Metrics.ExportInterval <= 0,
			"metrics.export_interval must be positive when metrics are enabled"},
		{c.Shutdown.Timeout <= 0, "shutdown.timeout must be positive"},
	}
	for _, check := range checks {
		if check.failed {
			return errors.New(check.err)
		}
	}
	return nil
}

// isLocalEndpoint reports whether the endpoint resolves to a loopback host.
func (c *Config) isLocalEndpoint() bool {
	host := stripScheme(c.Endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	return err == nil && ip.IsLoopback()
}
