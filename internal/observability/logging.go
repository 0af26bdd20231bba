// Package observability provides the logger used throughout runlens.
package observability

import (
	"io"
	"log/slog"

	"github.com/wandb/runlens/internal/sentry_ext"
)

// Tags are key-value pairs attached to reported errors.
type Tags map[string]string

// NewTags creates Tags from alternating keys and values and slog.Attrs.
//
// Incomplete pairs and values of other types are ignored.
func NewTags(args ...any) Tags {
	tags := Tags{}
	for len(args) > 0 {
		switch x := args[0].(type) {
		case slog.Attr:
			tags[x.Key] = x.Value.String()
			args = args[1:]
		case string:
			if len(args) < 2 {
				return tags
			}
			tags[x] = slog.AnyValue(args[1]).String()
			args = args[2:]
		default:
			args = args[1:]
		}
	}
	return tags
}

type CoreLoggerParams struct {
	// Sentry receives captured errors and warnings, if set.
	Sentry *sentry_ext.Client

	// Tags are attached to every message and every Sentry event.
	Tags Tags
}

// CoreLogger is a slog.Logger that can also report to Sentry.
type CoreLogger struct {
	*slog.Logger
	tags   Tags
	sentry *sentry_ext.Client
}

func NewCoreLogger(logger *slog.Logger, params *CoreLoggerParams) *CoreLogger {
	if params == nil {
		params = &CoreLoggerParams{}
	}

	tags := Tags{}
	args := make([]any, 0, len(params.Tags))
	for key, value := range params.Tags {
		args = append(args, slog.String(key, value))
		tags[key] = value
	}

	return &CoreLogger{
		Logger: logger.With(args...),
		tags:   tags,
		sentry: params.Sentry,
	}
}

// With returns a derived logger that includes the given attributes in
// each message and in Sentry tags.
func (cl *CoreLogger) With(args ...any) *CoreLogger {
	tags := cl.mergedTags(args...)
	return &CoreLogger{
		Logger: cl.Logger.With(args...),
		tags:   tags,
		sentry: cl.sentry,
	}
}

// WithRun returns a derived logger for messages about one run.
func (cl *CoreLogger) WithRun(runID string) *CoreLogger {
	return cl.With("run_id", runID)
}

// CaptureError logs an error and sends it to Sentry.
func (cl *CoreLogger) CaptureError(err error, args ...any) {
	cl.Error(err.Error(), args...)
	cl.sentry.CaptureException(err, cl.mergedTags(args...))
}

// CaptureWarn logs a warning and sends it to Sentry.
func (cl *CoreLogger) CaptureWarn(msg string, args ...any) {
	cl.Warn(msg, args...)
	cl.sentry.CaptureMessage(msg, cl.mergedTags(args...))
}

// Reraise reports a panic to Sentry and panics again.
//
// It must be deferred.
func (cl *CoreLogger) Reraise(args ...any) {
	if value := recover(); value != nil {
		if cl.sentry == nil {
			panic(value)
		}
		cl.sentry.Reraise(value, cl.mergedTags(args...))
	}
}

// Tags returns the tags attached to this logger's Sentry events.
func (cl *CoreLogger) Tags() Tags {
	return cl.tags
}

// mergedTags combines the logger's tags with args; the logger's tags win.
func (cl *CoreLogger) mergedTags(args ...any) Tags {
	tags := NewTags(args...)
	for key, value := range cl.tags {
		tags[key] = value
	}
	return tags
}

// NewNoOpLogger returns a logger that discards all messages.
func NewNoOpLogger() *CoreLogger {
	return NewCoreLogger(
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
		nil,
	)
}

// OrNoOp returns logger, or a no-op logger if it is nil.
func OrNoOp(logger *CoreLogger) *CoreLogger {
	if logger == nil {
		return NewNoOpLogger()
	}
	return logger
}
