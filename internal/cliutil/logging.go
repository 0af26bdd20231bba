package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/sentry_ext"
)

// LoggerParams configures NewLogger.
type LoggerParams struct {
	// Format is "text" for human-readable output or "json".
	Format string

	// Level is a level name such as "info" or "debug".
	Level string

	// Sentry, if set, receives captured errors.
	Sentry *sentry_ext.Client
}

// NewLogger returns the CLI's logger, writing to w.
func NewLogger(w io.Writer, params LoggerParams) (*observability.CoreLogger, error) {
	level, err := log.ParseLevel(params.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", params.Level)
	}

	var handler slog.Handler
	switch params.Format {
	case "text", "":
		handler = log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			Level:           level,
		})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.Level(level),
		})
	default:
		return nil, fmt.Errorf("invalid log format %q", params.Format)
	}

	return observability.NewCoreLogger(
		slog.New(handler),
		&observability.CoreLoggerParams{Sentry: params.Sentry},
	), nil
}
