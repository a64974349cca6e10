// Package logger configures slog for the harness and carries run-scoped
// attributes (scenario, format, seed) through contexts so every component
// logging for one scenario is tagged the same way.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/config"
)

type contextKey struct{}

// Setup installs the default logger described by cfg, writing to stdout.
func Setup(cfg config.LoggingConfig) *slog.Logger {
	return SetupWriter(os.Stdout, cfg)
}

// SetupWriter is Setup with an explicit destination. Debug level also
// records the source position, which is what a mismatch hunt needs.
func SetupWriter(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

// WithAttrs returns a context whose loggers carry args in addition to any
// attributes already attached to ctx.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(contextKey{}).([]any)
	attrs := make([]any, 0, len(prev)+len(args))
	attrs = append(attrs, prev...)
	attrs = append(attrs, args...)
	return context.WithValue(ctx, contextKey{}, attrs)
}

// WithScenario tags ctx with the running scenario and the format under test.
func WithScenario(ctx context.Context, scenario, format string) context.Context {
	return WithAttrs(ctx, "scenario", scenario, "format", format)
}

func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if attrs, ok := ctx.Value(contextKey{}).([]any); ok && len(attrs) > 0 {
		l = l.With(attrs...)
	}
	return l
}

// Component is FromContext tagged with the logging component.
func Component(ctx context.Context, name string) *slog.Logger {
	return FromContext(ctx).With("component", name)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
