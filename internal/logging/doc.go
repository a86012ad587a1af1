// Package logging wraps zap for contextcore.
//
// A Logger takes a context on every call and adds the trace and span ids of
// the active otel span, the request id and the transport to the entry.
// Output goes to stdout, or to stderr when stdout carries the MCP stdio
// transport, and optionally to OTEL through the otelzap bridge. Entries
// below error level are sampled; errors never are. The level also accepts
// "trace", one step below debug.
//
//	logger, err := logging.NewLogger(&cfg.Logging, tel.LoggerProvider())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	logger.Info(logging.WithRequestID(ctx, "req_42"), "log added", zap.String("log_id", id))
//
// Stores, indexes and embedders take a *zap.Logger and receive
// logger.Underlying().
//
// The console encoder drops the values of keys listed in
// logging.redaction.fields and of strings matching a redaction pattern.
// Secret and RedactedString log only a value's length.
//
// Tests use NewTestLogger and assert on what was recorded:
//
//	tl := logging.NewTestLogger()
//	tl.AssertLogged(t, zapcore.WarnLevel, "orphan")
//	tl.AssertField(t, "dropping orphan vector", "log_id", id)
package logging
