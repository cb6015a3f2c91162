// Package logging configures the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction. The zero value logs to stdout
// only, at info level.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// File, when set, also writes logs to this path with size rotation.
	File string

	// MaxSizeMB is the size a log file may reach before rotation. Zero means 10.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept. Zero means 3.
	MaxBackups int

	// MaxAgeDays is how long rotated files are kept. Zero means 28.
	MaxAgeDays int
}

// New builds a JSON logger writing to stdout and, when Options.File is
// set, to a size-rotated log file.
func New(opts Options) (*slog.Logger, error) {
	writer := io.Writer(os.Stdout)

	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
		}

		maxSize := opts.MaxSizeMB
		if maxSize == 0 {
			maxSize = 10
		}
		maxBackups := opts.MaxBackups
		if maxBackups == 0 {
			maxBackups = 3
		}
		maxAge := opts.MaxAgeDays
		if maxAge == 0 {
			maxAge = 28
		}

		fileWriter := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stdout, fileWriter)
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: parseLevel(opts.Level),
	})
	return slog.New(handler), nil
}

func parseLevel(level string) slog.Level {
	switch level {
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
