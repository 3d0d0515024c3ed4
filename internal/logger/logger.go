package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelTrace sits below slog's built-in debug level. The --log-level flag
// accepts "trace" for parity with RUST_LOG-style filters.
const LevelTrace = slog.Level(-8)

var (
	globalLogger *slog.Logger
	levelVar     slog.LevelVar
	once         sync.Once
)

// Init configures the global logger. Safe to call more than once; only the
// first call installs the handler, later calls adjust the level.
func Init(level string) {
	once.Do(func() {
		handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: &levelVar,
		})
		globalLogger = slog.New(handler)
		slog.SetDefault(globalLogger)
	})
	levelVar.Set(ParseLevel(level))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the global logger instance.
func Get() *slog.Logger {
	if globalLogger == nil {
		Init("info")
	}
	return globalLogger
}

func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func With(args ...any) *slog.Logger {
	return Get().With(args...)
}
