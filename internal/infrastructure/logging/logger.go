package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/whep-gateway/internal/infrastructure/config"
)

// Logger wraps slog.Logger with gateway-specific functionality.
//
// It satisfies the small Logger interfaces declared by the device, refresh,
// lifecycle, taskgroup, token, events and mqtt packages, so one instance
// can be handed to all of them.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the configured output.
//
// Parameters:
//   - cfg: Logging configuration (level, format, output)
//   - version: Application version, attached to every record
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWriter(outputFor(cfg.Output), cfg, version)
}

// NewWriter creates a Logger writing to w. cfg.Output is ignored.
func NewWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "whepgw"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a Logger that drops everything. Useful in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// Component returns a child logger tagged with component=name.
//
//	refreshLog := logger.Component("refresh")
//	refreshLog.Info("devices updated") // includes component=refresh
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel converts a level name to slog.Level. Unknown names mean info.
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

// verbosityLevels maps the -v flag count to a level name.
var verbosityLevels = []string{"warn", "info", "debug"}

// LevelForVerbosity returns the level name for a -v count.
// Counts beyond the last level are capped at debug.
func LevelForVerbosity(count int) string {
	if count < 0 {
		count = 0
	}
	if count >= len(verbosityLevels) {
		count = len(verbosityLevels) - 1
	}
	return verbosityLevels[count]
}
