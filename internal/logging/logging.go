package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Rotation defaults.
const (
	DefaultMaxSizeMB = 10
	DefaultMaxFiles  = 5
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// FilePath is the log file. Empty means stderr only.
	FilePath string

	MaxSizeMB int
	MaxFiles  int

	// Stderr also writes records to Stderr when FilePath is set.
	Stderr io.Writer
}

// DefaultConfig logs warnings and errors to stderr.
func DefaultConfig() Config {
	return Config{
		Level:     "warn",
		MaxSizeMB: DefaultMaxSizeMB,
		MaxFiles:  DefaultMaxFiles,
		Stderr:    os.Stderr,
	}
}

// DebugConfig logs everything to the default log file and stderr.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.FilePath = DefaultLogPath()
	return cfg
}

// Setup builds a JSON logger for cfg. The returned cleanup closes the log
// file, if any, and is never nil.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	cleanup := func() {}

	var out io.Writer = cfg.Stderr
	if cfg.FilePath != "" {
		w, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() {
			_ = w.Sync()
			_ = w.Close()
		}
		if cfg.Stderr != nil {
			out = io.MultiWriter(w, cfg.Stderr)
		} else {
			out = w
		}
	}
	if out == nil {
		out = io.Discard
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(handler), cleanup, nil
}

// SetupDefault runs Setup and installs the logger as the slog default.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return cleanup, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// ParseLevel converts a level name to slog.Level, defaulting to warn.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
