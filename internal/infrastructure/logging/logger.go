package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/riahtu/energy-saving/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "energysaving"

// Logger wraps slog.Logger with service-wide default fields.
//
// It satisfies the small Logger interfaces declared by the timeseries,
// metadata, ingest and mqtt packages.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the output named in cfg.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return NewWithWriter(cfg, version, output)
}

// NewWithWriter creates a Logger writing to w. Output in cfg is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	readLogger := logger.With("component", "timeseries")
//	readLogger.Info("query issued") // Includes component=timeseries
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a logger for use before configuration is loaded.
// It writes JSON at info level to stdout.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
}
