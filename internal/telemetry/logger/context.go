package logger

import "context"

type ctxKey int

const (
	keyLogger ctxKey = iota
	keyRequestID
	keyClientIP
)

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, keyLogger, l)
}

// FromContext returns the logger stored in ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(keyLogger).(Logger); ok {
		return l
	}
	return Default()
}

// L is FromContext bound to ctx, the usual way handlers and services log.
func L(ctx context.Context) Logger {
	return FromContext(ctx).WithContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, keyRequestID)
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	return stringValue(ctx, keyClientIP)
}

func stringValue(ctx context.Context, key ctxKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}
