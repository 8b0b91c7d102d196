// Package logging provides tracexec's process-wide diagnostic logger
// (spec.md §6.5): one JSON sink at ${TRACEXEC_DATA or data_dir}/tracexec.log,
// leveled from TRACEXEC_LOGLEVEL. Grounded on
// coder-exectrace/enterprise/cmd/exectrace/main.go's
// slog.Make(slogjson.Sink(...)).Leveled(...) pattern.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/slogjson"
)

// DataDir resolves the directory tracexec persists its log (and any other
// per-user state) under: $TRACEXEC_DATA if set, else
// $XDG_DATA_HOME/tracexec, else $HOME/.local/share/tracexec.
func DataDir() (string, error) {
	if dir := os.Getenv("TRACEXEC_DATA"); dir != "" {
		return dir, nil
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tracexec"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("logging: resolve data dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tracexec"), nil
}

// Open creates the data dir if needed and opens (creating/appending) the
// diagnostic log file within it, returning both the file (the caller
// closes it at shutdown) and a ready-to-use slog.Logger writing to it at
// the level named by TRACEXEC_LOGLEVEL (default "info").
func Open() (slog.Logger, *os.File, error) {
	dir, err := DataDir()
	if err != nil {
		return slog.Logger{}, nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return slog.Logger{}, nil, fmt.Errorf("logging: create data dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, "tracexec.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return slog.Logger{}, nil, fmt.Errorf("logging: open log file %s: %w", path, err)
	}

	log := slog.Make(slogjson.Sink(f)).Leveled(levelFromEnv())
	return log, f, nil
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("TRACEXEC_LOGLEVEL")) {
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
