package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	maxPatternLength = 200

	redactedValue   = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
)

// Default redaction rules.
var (
	sensitiveKeys = []string{"password", "secret", "token", "api_key", "authorization", "bearer", "credential"}
	leakPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)bearer\s+\S+`),
		regexp.MustCompile(`(?i)api[_-]?key[=:]\s*\S+`),
	}
)

// SecretValue is implemented by config.Secret.
type SecretValue interface {
	Value() string
}

type lengthOnly struct{ n int }

func (l lengthOnly) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("redacted_len", l.n)
	return nil
}

// Secret logs only the length of a secret value.
func Secret(key string, val SecretValue) zap.Field {
	return zap.Object(key, lengthOnly{n: len(val.Value())})
}

// RedactedString logs "[REDACTED:<len>]" in place of val.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, fmt.Sprintf("[REDACTED:%d]", len(val)))
}

// rules is the compiled form of a RedactionConfig.
type rules struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

func compileRules(cfg RedactionConfig) (*rules, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	r := &rules{keys: make(map[string]struct{}, len(cfg.Fields))}
	for _, f := range cfg.Fields {
		r.keys[strings.ToLower(f)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLength {
			return nil, fmt.Errorf("redaction pattern too long (max %d chars): %q", maxPatternLength, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *rules) hidesKey(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

func (r *rules) matchesValue(val string) bool {
	if r == nil {
		return false
	}
	for _, re := range r.patterns {
		if re.MatchString(val) {
			return true
		}
	}
	return false
}

// RedactingEncoder replaces the values of sensitive keys, and string values
// matching a redaction pattern, before they reach the wrapped encoder.
type RedactingEncoder struct {
	zapcore.Encoder
	rules *rules
}

// NewRedactingEncoder wraps base with the rules in cfg.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	r, err := compileRules(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, rules: r}, nil
}

func (e *RedactingEncoder) AddString(key, val string) {
	switch {
	case e.rules.hidesKey(key):
		val = redactedValue
	case e.rules.matchesValue(val):
		val = redactedPattern
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.rules.hidesKey(key) {
		val = []byte(redactedValue)
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddBinary(key string, val []byte) {
	if e.rules.hidesKey(key) {
		val = []byte(redactedValue)
	}
	e.Encoder.AddBinary(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.rules.hidesKey(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.rules.hidesKey(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.rules.hidesKey(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), rules: e.rules}
}

// EncodeEntry adds per-entry fields through the redacting methods; the
// wrapped encoder would otherwise add them to itself directly.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.rules == nil {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	clone := e.Clone().(*RedactingEncoder)
	for _, f := range fields {
		f.AddTo(clone)
	}
	return clone.Encoder.EncodeEntry(ent, nil)
}
