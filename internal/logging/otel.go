package logging

import (
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

const bridgeScope = "github.com/fyrsmithlabs/contextcore"

// newDualCore tees the console core and the OTEL bridge core, whichever are
// enabled, and applies sampling on top.
func newDualCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Output.Stdout || cfg.Output.Stderr {
		enc, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		sink := zapcore.Lock(os.Stdout)
		if cfg.Output.Stderr {
			sink = zapcore.Lock(os.Stderr)
		}
		cores = append(cores, zapcore.NewCore(enc, sink, cfg.Level.Zap()))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(bridgeScope, otelzap.WithLoggerProvider(otelProvider)))
	}

	if len(cores) == 0 {
		return nil, errors.New("at least one output must be enabled and available")
	}
	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}
