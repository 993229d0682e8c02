package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the logging surface handed to services and handlers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	// WithContext binds ctx so request fields stored in it reach every line.
	WithContext(ctx context.Context) Logger
	// Slog exposes the underlying logger for components that take one.
	Slog() *slog.Logger
}

// Config selects where and how much is logged.
type Config struct {
	Enabled   bool
	Level     string // debug, info, warn, error
	Format    string // json, text (console is an alias)
	Output    io.Writer
	AddSource bool
}

// DefaultConfig logs JSON at info to stderr.
func DefaultConfig() Config {
	return Config{Enabled: true, Level: "info", Format: "json", Output: os.Stderr}
}

// level is shared by every logger built with New so that a config reload
// can change verbosity without rebuilding loggers already handed out.
var level slog.LevelVar

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func parseLevel(name string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// New builds a Logger. Unknown formats fall back to JSON and unknown
// levels to info.
func New(cfg Config) (Logger, error) {
	level.Set(parseLevel(cfg.Level))
	return &boundLogger{
		sl:  slog.New(contextHandler{newHandler(cfg)}),
		ctx: context.Background(),
	}, nil
}

func newHandler(cfg Config) slog.Handler {
	w := cfg.Output
	switch {
	case !cfg.Enabled:
		w = io.Discard
	case w == nil:
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     &level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}
	if f := strings.ToLower(cfg.Format); f == "text" || f == "console" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// SetLevel adjusts the level of every logger built with New.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

// Level reports the current shared level.
func Level() slog.Level {
	return level.Level()
}

// boundLogger pairs a slog.Logger with the context its lines are logged in.
type boundLogger struct {
	sl  *slog.Logger
	ctx context.Context
}

func (l *boundLogger) Debug(msg string, args ...any) { l.sl.DebugContext(l.ctx, msg, args...) }
func (l *boundLogger) Info(msg string, args ...any)  { l.sl.InfoContext(l.ctx, msg, args...) }
func (l *boundLogger) Warn(msg string, args ...any)  { l.sl.WarnContext(l.ctx, msg, args...) }
func (l *boundLogger) Error(msg string, args ...any) { l.sl.ErrorContext(l.ctx, msg, args...) }

func (l *boundLogger) With(args ...any) Logger {
	return &boundLogger{sl: l.sl.With(args...), ctx: l.ctx}
}

func (l *boundLogger) WithContext(ctx context.Context) Logger {
	return &boundLogger{sl: l.sl, ctx: ctx}
}

func (l *boundLogger) Slog() *slog.Logger { return l.sl }

var fallback atomic.Pointer[boundLogger]

func init() {
	l, _ := New(DefaultConfig())
	fallback.Store(l.(*boundLogger))
}

// SetDefault makes l the logger returned by Default and FromContext, and
// routes the process-wide slog default through it.
func SetDefault(l Logger) {
	bl, ok := l.(*boundLogger)
	if !ok {
		return
	}
	fallback.Store(bl)
	slog.SetDefault(bl.sl)
}

// Default returns the process logger.
func Default() Logger {
	return fallback.Load()
}
