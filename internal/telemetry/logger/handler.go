package logger

import (
	"context"
	"log/slog"
)

// contextHandler stamps request_id and client_ip from the record's context
// onto every record, so code holding a plain *slog.Logger still produces
// correlated lines when it logs with the *Context methods.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if id := RequestIDFromContext(ctx); id != "" {
			r.AddAttrs(slog.String("request_id", id))
		}
		if ip := ClientIPFromContext(ctx); ip != "" {
			r.AddAttrs(slog.String("client_ip", ip))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}
