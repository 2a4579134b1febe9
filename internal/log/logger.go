// Package log is a thin structured logger over log/slog. Coded errors are
// expanded into error_code, error_category and suggestions attributes.
package log

import (
	stderrors "errors"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog *slog.Logger
}

// New creates a new Logger with the given configuration
func New(config Config) *Logger {
	w := config.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: config.Level, AddSource: config.AddSource}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if config.Format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if config.Service != "" {
		logger = logger.With("service", config.Service)
	}
	return &Logger{slog: logger}
}

// With returns a new Logger with the given attributes added to all log entries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// WithError adds error details to the logger.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With(errorArgs(err)...)
}

func errorArgs(err error) []any {
	var se *errors.SpeckeeperError
	if !stderrors.As(err, &se) {
		return []any{"error", err.Error()}
	}

	args := []any{
		"error", se.Message,
		"error_code", string(se.Code),
		"error_category", string(se.Category()),
	}
	if len(se.Suggestions) > 0 {
		args = append(args, "suggestions", se.Suggestions)
	}
	if se.Cause != nil {
		args = append(args, "cause", se.Cause.Error())
	}
	return args
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// LogError logs err at ERROR under msg. A nil err logs nothing.
func (l *Logger) LogError(msg string, err error) {
	if err == nil {
		return
	}
	l.slog.Error(msg, errorArgs(err)...)
}
