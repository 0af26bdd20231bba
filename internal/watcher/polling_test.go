package watcher_test

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wandb/runlens/internal/observabilitytest"
	"github.com/wandb/runlens/internal/watcher"
)

type changeRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *changeRecorder) onChange(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *changeRecorder) saw(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.paths, path)
}

func newTestWatcher(t *testing.T) watcher.Watcher {
	t.Helper()
	w := watcher.New(watcher.Params{
		Logger:        observabilitytest.NewTestLogger(t),
		PollingPeriod: 10 * time.Millisecond,
	})
	t.Cleanup(w.Finish)
	return w
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatchTree_ReportsNewFile(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t)
	rec := &changeRecorder{}
	require.NoError(t, w.WatchTree(root, rec.onChange))

	file := filepath.Join(root, "run-a", "run-a.wandb")
	mustWrite(t, file, "data")

	assert.Eventually(t, func() bool { return rec.saw(file) },
		5*time.Second, 10*time.Millisecond)
}

func TestWatchTree_ReportsWriteAndRemove(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "run.wandb")
	mustWrite(t, file, "data")

	w := newTestWatcher(t)
	rec := &changeRecorder{}
	require.NoError(t, w.WatchTree(root, rec.onChange))

	require.NoError(t, os.Remove(file))

	assert.Eventually(t, func() bool { return rec.saw(file) },
		5*time.Second, 10*time.Millisecond)
}

func TestWatchTree_AfterFinish(t *testing.T) {
	w := watcher.New(watcher.Params{PollingPeriod: 10 * time.Millisecond})
	w.Finish()

	assert.Error(t, w.WatchTree(t.TempDir(), func(string) {}))
}

func TestFinish_WithoutWatching(t *testing.T) {
	w := watcher.New(watcher.Params{})
	w.Finish()
}
