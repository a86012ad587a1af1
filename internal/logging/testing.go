package logging

import (
	"reflect"
	"regexp"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, down to TraceLevel, for assertions.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{Logger: &Logger{zap: zap.New(core)}, logs: logs}
}

func (t *TestLogger) All() []observer.LoggedEntry { return t.logs.All() }

func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.logs.FilterMessage(msg)
}

// Reset drops everything recorded so far.
func (t *TestLogger) Reset() { t.logs.TakeAll() }

func (t *TestLogger) find(level zapcore.Level, substr string) bool {
	return slices.ContainsFunc(t.logs.All(), func(e observer.LoggedEntry) bool {
		return e.Level == level && strings.Contains(e.Message, substr)
	})
}

// AssertLogged fails tb unless an entry at level contains substr.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if !t.find(level, substr) {
		tb.Errorf("no %v entry containing %q; got %+v", level, substr, t.logs.All())
	}
}

// AssertNotLogged fails tb if an entry at level contains substr.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if t.find(level, substr) {
		tb.Errorf("unexpected %v entry containing %q", level, substr)
	}
}

// AssertField fails tb unless some entry with message msg has key=want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.logs.FilterMessage(msg).All() {
		for _, f := range e.Context {
			if f.Key != key {
				continue
			}
			if f.Type == zapcore.StringType && f.String == want {
				return
			}
			if reflect.DeepEqual(f.Interface, want) {
				return
			}
			if got, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(got, want) {
				return
			}
		}
	}
	tb.Errorf("entry %q has no field %s=%v", msg, key, want)
}

// AssertTraceCorrelation fails tb unless entry msg carries a trace_id.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	for _, e := range t.logs.FilterMessage(msg).All() {
		if _, ok := e.ContextMap()["trace_id"]; ok {
			return
		}
	}
	tb.Errorf("entry %q has no trace_id", msg)
}

// AssertNoSecrets fails tb if a message or string field looks like it
// carries a credential, or a sensitive key holds an unredacted value.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	leaks := func(s string) bool {
		return slices.ContainsFunc(leakPatterns, func(re *regexp.Regexp) bool { return re.MatchString(s) })
	}

	for _, e := range t.logs.All() {
		if leaks(e.Message) {
			tb.Errorf("credential-like text in message %q", e.Message)
		}
		for _, f := range e.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			if leaks(f.String) {
				tb.Errorf("credential-like text in field %q: %q", f.Key, f.String)
			}
			key := strings.ToLower(f.Key)
			sensitive := slices.ContainsFunc(sensitiveKeys, func(s string) bool { return strings.Contains(key, s) })
			if sensitive && f.String != "" && !strings.HasPrefix(f.String, "[REDACTED") {
				tb.Errorf("sensitive field %q not redacted: %q", f.Key, f.String)
			}
		}
	}
}
