// Package logger provides structured logging utilities for the application.
// It wraps log/slog with JSON formatting and supports context-based logging
// with event IDs and user IDs, plus optional log shipping to Better Stack.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogbetterstack "github.com/samber/slog-betterstack"
)

// Logger is the application logger
type Logger struct {
	*slog.Logger
}

// Options configures optional logger features.
type Options struct {
	// BetterStackToken enables log shipping to Better Stack when non-empty.
	BetterStackToken string
	// BetterStackEndpoint overrides the Better Stack ingest endpoint.
	BetterStackEndpoint string
}

// New creates a new logger instance with JSON formatting
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a new logger instance with JSON formatting writing to the provided writer
func NewWithWriter(level string, w io.Writer) *Logger {
	return NewWithOptions(level, w, Options{})
}

// NewWithOptions creates a logger with the given level, writer and options.
// When a Better Stack token is configured, records are fanned out to both
// the local JSON handler and the Better Stack handler.
func NewWithOptions(level string, w io.Writer, opts Options) *Logger {
	logLevel := parseLevel(level)

	handlerOpts := &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			if a.Key == slog.LevelKey {
				a.Key = "level"
				level := a.Value.String()
				if level == "WARN" {
					level = "warning"
				} else {
					level = strings.ToLower(level)
				}
				a.Value = slog.StringValue(level)
			}
			if a.Key == slog.MessageKey {
				a.Key = "message"
			}
			return a
		},
	}

	var handler slog.Handler = slog.NewJSONHandler(w, handlerOpts)

	if opts.BetterStackToken != "" {
		bsOpt := slogbetterstack.Option{
			Token: opts.BetterStackToken,
			Level: logLevel,
		}
		if opts.BetterStackEndpoint != "" {
			bsOpt.Endpoint = opts.BetterStackEndpoint
		}
		handler = NewMultiHandler(handler, bsOpt.NewBetterstackHandler())
	}

	return &Logger{Logger: slog.New(NewContextHandler(handler))}
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

// WithModule creates a new entry with module field
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{Logger: l.With("module", module)}
}

// WithEventID creates a new entry with event ID field
func (l *Logger) WithEventID(eventID string) *Logger {
	return &Logger{Logger: l.With("event_id", eventID)}
}

// WithUserID creates a new entry with user ID field
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{Logger: l.With("user_id", userID)}
}

// WithError creates a new entry with error field
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.With("error", err)}
}

// WithField creates a new entry with a single field
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Logger: l.With(key, value)}
}

// WithFields creates a new entry with multiple fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.With(args...)}
}

// Fatal logs at error level and exits the process.
func (l *Logger) Fatal(msg string) {
	l.Error(msg)
	os.Exit(1)
}

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at warn level.
func (l *Logger) Warnf(format string, args ...any) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}
