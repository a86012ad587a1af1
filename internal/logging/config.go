package logging

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      Level             `koanf:"level"`
	Format     string            `koanf:"format"`
	Output     OutputConfig      `koanf:"output"`
	Sampling   SamplingConfig    `koanf:"sampling"`
	Caller     CallerConfig      `koanf:"caller"`
	Stacktrace StacktraceConfig  `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"`
	Redaction  RedactionConfig   `koanf:"redaction"`
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool `koanf:"stdout"`
	// Stderr replaces stdout, e.g. when stdout carries the MCP stdio transport.
	Stderr bool `koanf:"stderr"`
	OTEL   bool `koanf:"otel"`
}

// SamplingConfig controls log volume reduction below error level.
type SamplingConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Tick       time.Duration `koanf:"tick"`
	Initial    int           `koanf:"initial"`
	Thereafter int           `koanf:"thereafter"`
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level zapcore.Level `koanf:"level"`
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Fields   []string `koanf:"fields"`
	Patterns []string `koanf:"patterns"`
}

// NewDefaultConfig returns JSON logging at info level on stdout, with
// sampling, caller info and redaction of common credential keys.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Level:      Level(zapcore.InfoLevel),
		Format:     "json",
		Output:     OutputConfig{Stdout: true},
		Sampling:   SamplingConfig{Enabled: true, Tick: time.Second, Initial: 100, Thereafter: 10},
		Caller:     CallerConfig{Enabled: true, Skip: 1},
		Stacktrace: StacktraceConfig{Level: zapcore.ErrorLevel},
		Fields:     map[string]string{"service": "contextcore"},
	}
	cfg.Redaction.Enabled = true
	cfg.Redaction.Fields = slices.Clone(sensitiveKeys)
	for _, re := range leakPatterns {
		cfg.Redaction.Patterns = append(cfg.Redaction.Patterns, re.String())
	}
	return cfg
}

// Validate checks the format, outputs, sampling and caller settings, the
// redaction patterns and the static fields.
func (c *Config) Validate() error {
	switch {
	case c.Format != "json" && c.Format != "console":
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	case !c.Output.Stdout && !c.Output.Stderr && !c.Output.OTEL:
		return errors.New("at least one output must be enabled (stdout, stderr or otel)")
	case c.Sampling.Enabled && c.Sampling.Tick <= 0:
		return errors.New("sampling tick must be > 0 when sampling enabled")
	case c.Sampling.Enabled && (c.Sampling.Initial <= 0 || c.Sampling.Thereafter < 0):
		return errors.New("sampling initial must be > 0 and thereafter >= 0")
	case c.Caller.Enabled && c.Caller.Skip < 0:
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}

	if _, err := compileRules(c.Redaction); err != nil {
		return err
	}

	for k, v := range c.Fields {
		if k == "" {
			return errors.New("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}
