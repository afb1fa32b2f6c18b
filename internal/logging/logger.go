package logging

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// logFileMaxSizeMB is the size at which the log file is rotated.
	logFileMaxSizeMB = 10

	// logFileMaxBackups is the number of rotated log files kept on disk.
	logFileMaxBackups = 3

	// logFileMaxAgeDays is how long rotated log files are retained.
	logFileMaxAgeDays = 28
)

// NewLoggerTo creates a structured logger writing to out. Production
// uses JSON format, development uses human-readable text. A non-empty
// path adds a size-rotated copy of every record. The CLI logs to stderr
// so stdout stays free for command output and the MCP stdio transport.
func NewLoggerTo(env string, out io.Writer, path string) (*slog.Logger, io.Closer) {
	if path == "" {
		return newLogger(env, out), nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
		Compress:   true,
	}

	return newLogger(env, io.MultiWriter(out, rotator)), rotator
}

func newLogger(env string, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
