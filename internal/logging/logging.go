// Package logging installs the process-wide slog.Logger, exactly as the
// node repo's cmd/init.go does: a text or JSON handler over stdout selected
// by config, set as slog.Default. Only cmd/tapesort and internal/wiring log
// — the sorting core (pkg/tape, pkg/sorter) never does.
package logging

import (
	"log/slog"
	"os"

	"github.com/maladetska/tapesorter/internal/config"
)

// Init builds and installs the default logger per cfg.
func Init(cfg config.LoggerConfig) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "warn":
		return slog.LevelWarn
	case "ERROR", "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
