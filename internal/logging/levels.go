package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits one step below zap's debug level.
const TraceLevel = zapcore.DebugLevel - 1

// Level is a zapcore.Level whose text form also accepts "trace". It is the
// type koanf decodes logging.level into.
type Level zapcore.Level

// ParseLevel parses a level name, case-insensitively, including "trace".
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "trace" {
		return TraceLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel, err
	}
	return lvl, nil
}

func (l *Level) UnmarshalText(text []byte) error {
	lvl, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = Level(lvl)
	return nil
}

func (l Level) MarshalText() ([]byte, error) {
	if l.Zap() == TraceLevel {
		return []byte("trace"), nil
	}
	return l.Zap().MarshalText()
}

// Zap returns the zapcore level.
func (l Level) Zap() zapcore.Level { return zapcore.Level(l) }

// encodeLevel writes "trace" for TraceLevel instead of zap's "Level(-2)".
func encodeLevel(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if lvl == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(lvl, enc)
}
