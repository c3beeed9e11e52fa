// Package logger sets up the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Options selects where and how logs are written.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Dir    string // daily log file directory, empty for none
	Prefix string // log file name prefix
	Stdout bool   // also write to stdout
}

var (
	slogger *slog.Logger
	logFile *os.File
)

// Init builds the logger and installs it as slog's default. With neither a
// directory nor stdout, logs are discarded (the TUI owns the terminal).
func Init(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	var writers []io.Writer
	if opts.Stdout {
		writers = append(writers, os.Stdout)
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return errors.Wrap(err, "create log dir")
		}
		prefix := opts.Prefix
		if prefix == "" {
			prefix = "tutor"
		}
		name := prefix + "-" + time.Now().Format("2006-01-02") + ".log"
		logFile, err = os.OpenFile(filepath.Join(opts.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		writers = append(writers, logFile)
	}

	var w io.Writer = io.Discard
	if len(writers) > 0 {
		w = io.MultiWriter(writers...)
	}

	slogger = slog.New(newHandler(w, opts.Format, level))
	slog.SetDefault(slogger)
	return nil
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	ho := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

// ParseLevel maps a config string to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.Errorf("unknown log level %q", s)
	}
}

// Close closes the log file, if any.
func Close() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// Slog returns the configured logger, or slog's default before Init.
func Slog() *slog.Logger {
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}
