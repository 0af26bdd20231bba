package runparse_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wandb/runlens/internal/observabilitytest"
	"github.com/wandb/runlens/internal/runmodel"
	"github.com/wandb/runlens/internal/runparse"
	"github.com/wandb/runlens/internal/runrecord"
	"github.com/wandb/runlens/internal/runrecord/runrecordtest"
	"github.com/wandb/runlens/pkg/leveldb"
	"github.com/wandb/runlens/pkg/leveldb/leveldbtest"
)

func buildLog(branches ...runrecord.Branch) []byte {
	w := leveldbtest.NewWriter(leveldb.CRCAlgoIEEE)
	for _, branch := range branches {
		w.WriteRecord(runrecordtest.EncodeBranch(branch))
	}
	return w.Bytes()
}

func parse(t *testing.T, buf []byte) *runmodel.RunData {
	t.Helper()
	run, err := runparse.ParseBytes(buf, "default-id", runparse.Options{
		Logger: observabilitytest.NewTestLogger(t),
	})
	require.NoError(t, err)
	return run
}

func TestParseBytes_InvalidHeader(t *testing.T) {
	_, err := runparse.ParseBytes([]byte("not a log"), "x", runparse.Options{})

	assert.ErrorIs(t, err, leveldb.ErrInvalidFormat)
}

func TestParseBytes_HeaderOnly(t *testing.T) {
	run := parse(t, []byte(":W&B\xe1\xbe\x00"))

	assert.Equal(t, "default-id", run.RunID)
	assert.Empty(t, run.Metrics)
	assert.Empty(t, run.SystemMetrics)
	assert.Empty(t, run.Config)
}

func TestParseBytes_OutOfOrderDuplicateSteps(t *testing.T) {
	run := parse(t, buildLog(
		runrecordtest.History(5, "loss", "1"),
		runrecordtest.History(5, "loss", "2"),
		runrecordtest.History(3, "loss", "3"),
	))

	assert.Equal(t,
		runmodel.MetricSeries{{Step: 3, Value: 3}, {Step: 5, Value: 2}},
		run.Metrics["loss"])
}

func TestParseBytes_SingleValueMetricDropped(t *testing.T) {
	run := parse(t, buildLog(
		runrecordtest.History(0, "lr", "0.1", "loss", "1"),
		runrecordtest.History(1, "loss", "0.5"),
	))

	assert.NotContains(t, run.Metrics, "lr")
	assert.Len(t, run.Metrics["loss"], 2)
}

func TestParseBytes_ReservedAndNonNumericKeysSkipped(t *testing.T) {
	run := parse(t, buildLog(
		runrecordtest.History(0,
			"_step", "0", "_runtime", "1.5", "_timestamp", "1700000000",
			"name", `"abc"`, "nan", "NaN", "x", "1"),
		runrecordtest.History(1, "x", "2", "nan", "NaN"),
	))

	assert.Equal(t, []string{"x"}, keys(run.Metrics))
}

func TestParseBytes_NestedKeysAndMissingStep(t *testing.T) {
	run := parse(t, buildLog(
		&runrecord.HistoryRecord{Items: []runrecord.Item{
			{NestedKey: []string{"train", "loss"}, ValueJSON: "1"},
		}},
		runrecordtest.History(4, "train/loss", "0.25"),
	))

	assert.Equal(t,
		runmodel.MetricSeries{{Step: 0, Value: 1}, {Step: 4, Value: 0.25}},
		run.Metrics["train/loss"])
}

func TestParseBytes_SummaryRules(t *testing.T) {
	run := parse(t, buildLog(
		&runrecord.ConfigRecord{Update: runrecordtest.Items("lr", "0.1")},
		runrecordtest.History(0, "loss", "1"),
		runrecordtest.History(1, "loss", "0.5"),
		&runrecord.SummaryRecord{Update: runrecordtest.Items(
			"lr", "0.2",
			"loss", "0.5",
			"best_acc", "0.93",
			"tag", `"final"`,
			"hist", `{"bins": [1, 2]}`,
		)},
	))

	assert.Equal(t, runmodel.RunConfig{
		"lr":               0.1,
		"summary/best_acc": 0.93,
		"summary/tag":      "final",
	}, run.Config)
}

func TestParseBytes_NonFiniteSummaryValuesSkipped(t *testing.T) {
	run := parse(t, buildLog(
		&runrecord.SummaryRecord{Update: runrecordtest.Items(
			"best", "NaN",
			"inf", "Infinity",
			"ninf", "-Infinity",
			"ok", "1.5",
		)},
	))

	assert.Equal(t, runmodel.RunConfig{"summary/ok": 1.5}, run.Config)
}

func TestParseBytes_RecordWithSeveralBranches(t *testing.T) {
	w := leveldbtest.NewWriter(leveldb.CRCAlgoIEEE)
	config := &runrecord.ConfigRecord{Update: runrecordtest.Items("lr", "0.1")}
	w.WriteRecord(runrecordtest.EncodeBranch(
		runrecordtest.History(1, "loss", "1"), config))
	w.WriteRecord(runrecordtest.EncodeBranch(
		runrecordtest.History(2, "loss", "0.5"), config))

	run := parse(t, w.Bytes())

	assert.Equal(t,
		runmodel.MetricSeries{{Step: 1, Value: 1}, {Step: 2, Value: 0.5}},
		run.Metrics["loss"])
	assert.Equal(t, runmodel.RunConfig{"lr": 0.1}, run.Config)
}

func TestParseBytes_SummaryOfLaterDroppedMetric(t *testing.T) {
	// The metric exists when the summary arrives, so no summary entry is
	// created even though the series is later dropped.
	run := parse(t, buildLog(
		runrecordtest.History(0, "loss", "1"),
		&runrecord.SummaryRecord{Update: runrecordtest.Items("loss", "1")},
	))

	assert.Empty(t, run.Metrics)
	assert.Empty(t, run.Config)
}

func TestParseBytes_ConfigValues(t *testing.T) {
	run := parse(t, buildLog(
		&runrecord.ConfigRecord{Update: runrecordtest.Items(
			"opt", `{"value": "adam"}`,
			"raw", "not-json",
			"_wandb", `{"cli_version": "0.19.0"}`,
			"wandb_version", "1",
			"drop", "1",
			"layers", "[64, 32]",
		)},
		&runrecord.ConfigRecord{Remove: runrecordtest.Items("drop", "")},
	))

	assert.Equal(t, runmodel.RunConfig{
		"opt":    "adam",
		"raw":    "not-json",
		"layers": []any{int64(64), int64(32)},
	}, run.Config)
}

func TestParseBytes_RunIdentity(t *testing.T) {
	run := parse(t, buildLog(
		&runrecord.ConfigRecord{Update: runrecordtest.Items("lr", "0.1")},
		&runrecord.RunRecord{
			RunID:       "abc123",
			Project:     "proj",
			DisplayName: "first-name",
			Config: &runrecord.ConfigRecord{
				Update: runrecordtest.Items("lr", "0.5", "epochs", "10"),
			},
		},
		&runrecord.RunRecord{
			RunID:       "abc123",
			Project:     "other",
			DisplayName: "second-name",
		},
	))

	assert.Equal(t, "abc123", run.RunID)
	assert.Equal(t, "proj", run.Project)
	assert.Equal(t, "first-name", run.RunName)
	assert.Equal(t, runmodel.RunConfig{"lr": 0.1, "epochs": int64(10)}, run.Config)
}

func TestParseBytes_SystemMetrics(t *testing.T) {
	run := parse(t, buildLog(
		&runrecord.StatsRecord{Items: []runrecord.StatsItem{
			{Key: "gpu.0.temp", ValueJSON: "60"},
			{Key: "cpu", ValueJSON: `"busy"`},
		}},
		&runrecord.StatsRecord{Items: []runrecord.StatsItem{
			{Key: "gpu.0.temp", ValueJSON: "61.5"},
		}},
	))

	assert.Equal(t,
		runmodel.MetricSeries{{Step: 0, Value: 60}, {Step: 1, Value: 61.5}},
		run.SystemMetrics["gpu.0.temp"])
	assert.NotContains(t, run.SystemMetrics, "cpu")
}

func TestParseBytes_EnvironmentFirstWriteWins(t *testing.T) {
	run := parse(t, buildLog(
		&runrecord.EnvironmentRecord{
			OS:         "Linux",
			Host:       "box-1",
			CPUCount:   8,
			NvidiaGPUs: []runrecord.GPUInfo{{Name: "A100"}, {Name: "A100"}},
			Git:        &runrecord.GitInfo{Commit: "abc"},
		},
		&runrecord.EnvironmentRecord{
			OS:      "Darwin",
			Python:  "3.12",
			GPUType: "H100",
			Git:     &runrecord.GitInfo{RemoteURL: "origin", Commit: "def"},
		},
		&runrecord.ExitRecord{ExitCode: 1, Runtime: 42},
	))

	exitCode := int32(1)
	assert.Equal(t, runmodel.RunMetadata{
		OS:             "Linux",
		Python:         "3.12",
		Host:           "box-1",
		GPU:            "A100",
		GPUCount:       2,
		CPUCount:       8,
		Git:            &runmodel.GitInfo{Remote: "origin", Commit: "abc"},
		ExitCode:       &exitCode,
		RuntimeSeconds: 42,
	}, run.Metadata)
}

func TestParseBytes_MalformedRecordSkipped(t *testing.T) {
	w := leveldbtest.NewWriter(leveldb.CRCAlgoIEEE)
	w.WriteRecord(runrecordtest.EncodeBranch(runrecordtest.History(0, "loss", "1")))
	w.WriteRecord([]byte{0x12, 0x7f})
	w.WriteRecord(runrecordtest.EncodeBranch(runrecordtest.History(1, "loss", "2")))

	run := parse(t, w.Bytes())

	assert.Equal(t, 1, run.SkippedRecords)
	assert.Len(t, run.Metrics["loss"], 2)
}

func TestParseBytes_FragmentedRecord(t *testing.T) {
	items := make([]string, 0, 4000)
	for i := range 2000 {
		items = append(items, "metric_with_a_long_name_"+strconv.Itoa(i), "1.5")
	}
	big := runrecordtest.History(0, items...)

	run := parse(t, buildLog(big, runrecordtest.History(1, items...)))

	assert.Len(t, run.Metrics, 2000)
}

func TestParseFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/wandb/run-20250101_000000-xyz/run-xyz.wandb"
	require.NoError(t, afero.WriteFile(fs, path, buildLog(
		runrecordtest.History(0, "loss", "1"),
		runrecordtest.History(1, "loss", "0.5"),
	), 0o644))

	run, err := runparse.ParseFile(fs, path, runparse.Options{})

	require.NoError(t, err)
	assert.Equal(t, "xyz", run.RunID)
	assert.Len(t, run.Metrics["loss"], 2)
}

func TestParseFile_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.wandb", []byte("garbage"), 0o644))

	_, err := runparse.ParseFile(fs, "/bad.wandb", runparse.Options{})
	assert.ErrorIs(t, err, leveldb.ErrInvalidFormat)

	_, err = runparse.ParseFile(fs, "/missing.wandb", runparse.Options{})
	assert.Error(t, err)
}

func TestFileParser_FallsBackToScanName(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/r/run-a.wandb", buildLog(), 0o644))
	parser := &runparse.FileParser{Fs: fs, Sidecars: true}

	run, err := parser.Parse(context.Background(), runmodel.RunScanResult{
		FilePath: "/r/run-a.wandb",
		RunName:  "scan-name",
	})

	require.NoError(t, err)
	assert.Equal(t, "a", run.RunID)
	assert.Equal(t, "scan-name", run.RunName)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
