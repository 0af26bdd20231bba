package rundir_test

import (
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wandb/runlens/internal/rundir"
)

func writeFile(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte("x"), 0o644))
}

func TestFindLogFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/wandb/run-20250101_120000-abc"
	writeFile(t, fs, filepath.Join(dir, "run-zzz.wandb"))
	writeFile(t, fs, filepath.Join(dir, "run-abc.wandb"))
	writeFile(t, fs, filepath.Join(dir, "notes.txt"))

	path, err := rundir.FindLogFile(fs, dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-abc.wandb"), path)
	assert.True(t, rundir.IsRunDirectory(fs, dir))
}

func TestFindLogFile_Missing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0o755))

	_, err := rundir.FindLogFile(fs, "/empty")
	assert.ErrorIs(t, err, rundir.ErrNoLogFile)
	assert.False(t, rundir.IsRunDirectory(fs, "/empty"))

	_, err = rundir.FindLogFile(fs, "/does-not-exist")
	assert.Error(t, err)
}

func TestCompanionFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/runs/run-1"
	writeFile(t, fs, filepath.Join(dir, "run-1.wandb"))
	writeFile(t, fs, filepath.Join(dir, "files", "config.yaml"))
	writeFile(t, fs, filepath.Join(dir, "files", "wandb-summary.json"))

	files := rundir.CompanionFiles(fs, dir)

	assert.Equal(t, rundir.Files{
		LogFile: filepath.Join(dir, "run-1.wandb"),
		Config:  filepath.Join(dir, "files", "config.yaml"),
		Summary: filepath.Join(dir, "files", "wandb-summary.json"),
	}, files)
}

func TestRunIDFromFileName(t *testing.T) {
	assert.Equal(t, "abc123", rundir.RunIDFromFileName("/x/run-abc123.wandb"))
	assert.Equal(t, "custom", rundir.RunIDFromFileName("custom.wandb"))
	assert.Equal(t, "my-run-1", rundir.RunIDFromFileName("my-run-1.wandb"))
}

func TestParseRunDirTimestamp(t *testing.T) {
	assert.Equal(t,
		time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		rundir.ParseRunDirTimestamp("run-20250102_030405-abc"))
	assert.Equal(t,
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		rundir.ParseRunDirTimestamp("offline-run-20241231_235959-x"))
	assert.True(t, rundir.ParseRunDirTimestamp("run-abc").IsZero())
	assert.True(t, rundir.ParseRunDirTimestamp("latest-run").IsZero())
}

func TestCompareLogPaths(t *testing.T) {
	paths := []string{
		"/w/other/x.wandb",
		"/w/run-20240101_000000-a/run-a.wandb",
		"/w/run-20250101_000000-b/run-b.wandb",
	}

	slices.SortFunc(paths, rundir.CompareLogPaths)

	assert.Equal(t, []string{
		"/w/run-20250101_000000-b/run-b.wandb",
		"/w/run-20240101_000000-a/run-a.wandb",
		"/w/other/x.wandb",
	}, paths)
}
