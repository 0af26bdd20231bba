package root_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wandb/runlens/cmd/runlens/root"
	"github.com/wandb/runlens/internal/runrecord"
	"github.com/wandb/runlens/internal/runrecord/runrecordtest"
	"github.com/wandb/runlens/internal/settings"
	"github.com/wandb/runlens/pkg/leveldb"
	"github.com/wandb/runlens/pkg/leveldb/leveldbtest"
)

func writeRun(t *testing.T, runDir, runID, lr string, losses ...float64) {
	t.Helper()

	w := leveldbtest.NewWriter(leveldb.CRCAlgoIEEE)
	w.WriteRecord(runrecordtest.EncodeBranch(&runrecord.RunRecord{
		RunID:       runID,
		DisplayName: "run " + runID,
		Project:     "demo",
		Config: &runrecord.ConfigRecord{
			Update: runrecordtest.Items("lr", lr, "epochs", "3"),
		},
	}))
	for step, loss := range losses {
		w.WriteRecord(runrecordtest.EncodeBranch(runrecordtest.History(
			int64(step),
			"loss", strconv.FormatFloat(loss, 'g', -1, 64),
		)))
	}

	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(runDir, "run-"+runID+".wandb"), w.Bytes(), 0o644))
}

func setupWorkspace(t *testing.T) string {
	t.Helper()
	settings.Configure(viper.GetViper())

	dir := t.TempDir()
	writeRun(t, filepath.Join(dir, "run-20250101_000000-aaa"), "aaa", "0.1", 3, 2, 1)
	writeRun(t, filepath.Join(dir, "run-20250102_000000-bbb"), "bbb", "0.01", 4, 3.5)
	return dir
}

func execute(t *testing.T, args ...string) string {
	t.Helper()

	cmd := root.NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestScan(t *testing.T) {
	dir := setupWorkspace(t)

	var runs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(execute(t, "scan", dir)), &runs))

	require.Len(t, runs, 2)
	assert.Equal(t, "bbb", runs[0]["runId"])
	assert.Equal(t, "aaa", runs[1]["runId"])
	assert.Equal(t, "run aaa", runs[1]["runName"])
	assert.Equal(t, "demo", runs[1]["project"])
	assert.Equal(t, true, runs[1]["selected"])
	assert.NotEmpty(t, runs[1]["color"])
}

func TestScan_Template(t *testing.T) {
	dir := setupWorkspace(t)

	out := execute(t, "scan", dir, "--run", "bbb",
		"--template", `{{range .}}{{.runId}}={{.selected}} {{end}}`)

	assert.Equal(t, "bbb=true aaa=false \n", out)
}

func TestParse_Summary(t *testing.T) {
	dir := setupWorkspace(t)

	var result map[string]any
	require.NoError(t, json.Unmarshal(
		[]byte(execute(t, "parse", filepath.Join(dir, "run-20250101_000000-aaa"), "--summary")),
		&result))

	assert.Equal(t, "aaa", result["runId"])
	loss := result["metrics"].(map[string]any)["loss"].(map[string]any)
	assert.InDelta(t, 3.0, loss["initial"], 1e-9)
	assert.InDelta(t, 1.0, loss["final"], 1e-9)
	assert.InDelta(t, 3.0, loss["points"], 1e-9)
}

func TestCompare(t *testing.T) {
	dir := setupWorkspace(t)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(execute(t, "compare", dir)), &result))

	metrics := result["metrics"].([]any)
	require.Len(t, metrics, 1)
	loss := metrics[0].(map[string]any)
	assert.Equal(t, "loss", loss["metricName"])
	assert.Len(t, loss["runs"], 2)

	config := result["config"].(map[string]any)
	assert.InDelta(t, 3.0, config["common"].(map[string]any)["epochs"], 1e-9)
	assert.Contains(t, config["differences"], "lr")
}

func TestExportCSV(t *testing.T) {
	dir := setupWorkspace(t)

	out := execute(t, "export", "csv", dir, "--metric", "loss")

	assert.Equal(t, strings.Join([]string{
		"step,run aaa,run bbb",
		"0,3,4",
		"1,2,3.5",
		"2,1,",
		"",
	}, "\n"), out)
}

func TestContext(t *testing.T) {
	dir := setupWorkspace(t)

	out := execute(t, "context", dir)

	assert.True(t, strings.HasPrefix(out, "# W&B Training Runs Context\n"))
	assert.Contains(t, out, "## Configuration Comparison")
	assert.Contains(t, out, "loss: 3 → 1")
}

func TestVersion(t *testing.T) {
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(execute(t, "version")), &result))

	assert.Contains(t, result, "version")
	assert.Contains(t, result, "gitCommit")
}
