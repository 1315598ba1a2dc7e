package logger

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	defaultLogger atomic.Pointer[slog.Logger]
	once          sync.Once
)

// Init initializes the global logger based on environment variables.
// DEBUG (any strconv.ParseBool true value) enables debug level logging,
// LOG_FORMAT=json switches to the JSON handler.
func Init() {
	debug, _ := strconv.ParseBool(os.Getenv("DEBUG"))
	Configure(debug, os.Getenv("LOG_FORMAT"))
}

// Configure initializes the global logger writing to stderr. Only the first
// call to Configure or Init takes effect.
func Configure(debug bool, format string) {
	once.Do(func() {
		l := New(os.Stderr, Level(debug), format)
		defaultLogger.Store(l)
		slog.SetDefault(l)
	})
}

// Level maps the debug switch to a slog level.
func Level(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// New builds a logger writing to w. format is "json" or anything else for text.
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		// Add source file information if in debug mode
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// SetDefault replaces the global logger. Intended for tests that capture output.
func SetDefault(l *slog.Logger) {
	once.Do(func() {})
	defaultLogger.Store(l)
}

func get() *slog.Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	Init()
	return defaultLogger.Load()
}

// Debug logs at Debug level.
func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

// Info logs at Info level.
func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

// Warn logs at Warn level.
func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// Error logs at Error level.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// Fatal logs at Error level and then exits.
func Fatal(msg string, args ...any) {
	get().Error(msg, args...)
	os.Exit(1)
}

// With returns a new logger with the given attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

