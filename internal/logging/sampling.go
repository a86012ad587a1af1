package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples entries below error level. Errors always pass.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	errorsOnly := gate(core, func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })
	belowError := gate(core, func(l zapcore.Level) bool { return l < zapcore.ErrorLevel })
	return zapcore.NewTee(
		errorsOnly,
		zapcore.NewSamplerWithOptions(belowError, cfg.Tick, cfg.Initial, cfg.Thereafter),
	)
}

// gatedCore passes only the levels allowed by its enabler.
type gatedCore struct {
	zapcore.Core
	allow zapcore.LevelEnabler
}

func gate(core zapcore.Core, allow zap.LevelEnablerFunc) *gatedCore {
	return &gatedCore{Core: core, allow: allow}
}

func (c *gatedCore) Enabled(lvl zapcore.Level) bool {
	return c.allow.Enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *gatedCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.allow.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *gatedCore) With(fields []zapcore.Field) zapcore.Core {
	return &gatedCore{Core: c.Core.With(fields), allow: c.allow}
}
