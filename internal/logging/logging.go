// Package logging wires up the daemon's structured logger: a zerolog
// instance appending JSON lines to healer.log under the configured log
// directory, plus a human console writer when running in
// the foreground. HEALER_LOG overrides the configured level for ad-hoc
// debugging without touching the config file.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Handle owns the open log file backing the global logger; Close should run
// on shutdown.
type Handle struct {
	Logger zerolog.Logger
	file   *os.File
}

// Init creates directory if needed, opens "<directory>/healer.log" for
// append, and returns a zerolog.Logger writing to it. When foreground is
// true, logs are also duplicated to stderr in zerolog's human console
// format, matching how a supervised process is normally run under a
// terminal during development.
func Init(level, directory string, foreground bool) (*Handle, error) {
	if err := os.MkdirAll(directory, 0750); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(directory, "healer.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, err
	}

	var w zerolog.LevelWriter = zerolog.MultiLevelWriter(f)
	if foreground {
		w = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zerolog.SetGlobalLevel(parseLevel(level))

	logger := zerolog.New(w).With().Timestamp().Logger()
	return &Handle{Logger: logger, file: f}, nil
}

// Close closes the underlying log file.
func (h *Handle) Close() error {
	return h.file.Close()
}

func parseLevel(level string) zerolog.Level {
	if env := os.Getenv("HEALER_LOG"); env != "" {
		level = env
	}

	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
