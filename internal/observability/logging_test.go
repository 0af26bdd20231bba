package observability_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wandb/runlens/internal/observability"
	"github.com/wandb/runlens/internal/observabilitytest"
)

func TestNewTags(t *testing.T) {
	tags := observability.NewTags(
		slog.String("a", "1"),
		"b", 2,
		3.5,
		"dangling",
	)

	assert.Equal(t, observability.Tags{"a": "1", "b": "2"}, tags)
}

func TestWith_TagsPropagate(t *testing.T) {
	logger := observability.NewCoreLogger(
		slog.New(slog.DiscardHandler),
		&observability.CoreLoggerParams{Tags: observability.Tags{"app": "runlens"}},
	)

	derived := logger.WithRun("abc")

	assert.Equal(t, observability.Tags{"app": "runlens", "run_id": "abc"}, derived.Tags())
	assert.Equal(t, observability.Tags{"app": "runlens"}, logger.Tags())
}

func TestCaptureError_Logs(t *testing.T) {
	logger, logs := observabilitytest.NewRecordingTestLogger(t)

	logger.WithRun("abc").CaptureError(errors.New("runparse: bad"), "path", "/x")

	records := observabilitytest.ExtractLogs(t, logs)
	assert.Equal(t, []map[string]any{{
		"level":  "ERROR",
		"msg":    "runparse: bad",
		"run_id": "abc",
		"path":   "/x",
	}}, records)
}

func TestOrNoOp(t *testing.T) {
	assert.NotNil(t, observability.OrNoOp(nil))

	logger := observability.NewNoOpLogger()
	assert.Same(t, logger, observability.OrNoOp(logger))
}
