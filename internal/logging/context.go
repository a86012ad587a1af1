package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	transportKey
)

const maxIDLen = 128

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ContextFields returns the correlation fields carried by ctx: trace and
// span ids from the active otel span, the request id and the transport.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if t := TransportFromContext(ctx); t != "" {
		fields = append(fields, zap.String("transport", t))
	}
	return fields
}

// WithRequestID attaches a request id. Ids that are empty, longer than 128
// bytes or not made of [A-Za-z0-9_-] are dropped.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" || len(id) > maxIDLen || !requestIDPattern.MatchString(id) {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithTransport records which surface ("http", "mcp") carried the call.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey, transport)
}

func TransportFromContext(ctx context.Context) string {
	t, _ := ctx.Value(transportKey).(string)
	return t
}
