package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/afmeter-core/internal/infrastructure/config"
)

const serviceName = "afmeter"

// Logger is a slog.Logger that stamps service and version on every entry.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// NewWithWriter returns a Logger writing to w in cfg.Format at cfg.Level.
// cfg.Output is not consulted; resolve it with Output first.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With("service", serviceName, "version", version)}
}

// Output maps logging.output to a writer. Anything other than "stderr"
// goes to stdout, which callers pass in so tests can capture it.
func Output(cfg config.LoggingConfig, stdout io.Writer) io.Writer {
	if strings.EqualFold(strings.TrimSpace(cfg.Output), "stderr") {
		return os.Stderr
	}
	return stdout
}

// With returns a child Logger carrying args on every entry, typically
// "component", name.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default logs JSON at info to stdout until the config is loaded.
func Default() *Logger {
	return NewWithWriter(os.Stdout, config.LoggingConfig{}, "dev")
}

// Discard drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// parseLevel accepts slog level names, including offsets such as
// "debug+2", and "warning". Unknown or empty values mean info.
func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
