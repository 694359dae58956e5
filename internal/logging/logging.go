// Package logging builds the slog loggers used by the command-line tools
// from the [logging] config section and the --verbose/--quiet flags.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/dbrownell/devenv-utilities/internal/config"
)

const logFilePerms = 0o600

// Flags are the command-line overrides. They always win over the config
// file; Quiet wins over Verbose.
type Flags struct {
	Verbose bool
	Quiet   bool
}

// New returns a logger for cfg. Output goes to cfg.LogFile when set,
// otherwise to fallback. A log file that cannot be opened is reported on
// fallback and logging continues there.
func New(cfg config.LoggingConfig, flags Flags, fallback io.Writer) *slog.Logger {
	level := ParseLevel(cfg.LogLevel)

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	out := fallback

	if path := config.ExpandTilde(cfg.LogFile); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFilePerms)
		if err != nil {
			fmt.Fprintf(fallback, "Warning: cannot open log file %s: %v\n", path, err)
		} else {
			// Left open for the life of the process.
			out = f
		}
	}

	return NewWithFormat(out, level, cfg.LogFormat)
}

// ParseLevel maps a log_level value to a level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch s {
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

// NewWithFormat picks the handler for format. "auto" (or empty) means text
// on a terminal and JSON everywhere else.
func NewWithFormat(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if format == "" || format == "auto" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
