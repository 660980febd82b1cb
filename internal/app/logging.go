package app

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"github.com/dshills/ark/internal/config"
)

// ParseLogLevel parses a string into a log level. Unknown values fall back
// to info.
func ParseLogLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	// Level is the minimum log level to output.
	Level string
	// Format is one of auto, text, json or logfmt.
	Format string
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Prefix is prepended to all log messages.
	Prefix string
}

// DefaultLoggerConfig returns the default logger configuration.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:  "info",
		Format: config.FormatAuto,
		Output: os.Stderr,
		Prefix: "ark",
	}
}

// NewLogger creates a logger with the given configuration.
func NewLogger(cfg LoggerConfig) *log.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	return log.NewWithOptions(cfg.Output, log.Options{
		Level:           ParseLogLevel(cfg.Level),
		Prefix:          cfg.Prefix,
		ReportTimestamp: true,
		Formatter:       formatter(cfg.Format, cfg.Output),
	})
}

// formatter maps a format name to a log formatter. Auto picks text for a
// terminal and JSON for anything else.
func formatter(format string, w io.Writer) log.Formatter {
	switch format {
	case config.FormatText:
		return log.TextFormatter
	case config.FormatJSON:
		return log.JSONFormatter
	case config.FormatLogfmt:
		return log.LogfmtFormatter
	default:
		if isTerminal(w) {
			return log.TextFormatter
		}
		return log.JSONFormatter
	}
}

// isTerminal returns true if w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
