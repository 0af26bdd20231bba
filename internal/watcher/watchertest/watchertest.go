// Package watchertest defines a fake Watcher for tests.
package watchertest

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/wandb/runlens/internal/watcher"
)

// FakeWatcher is a Watcher whose events are triggered by the test.
type FakeWatcher struct {
	mu sync.Mutex

	roots    map[string]func(string)
	finished bool
}

var _ watcher.Watcher = &FakeWatcher{}

func NewFakeWatcher() *FakeWatcher {
	return &FakeWatcher{roots: make(map[string]func(string))}
}

// OnChange invokes the callback of the watched tree containing path.
func (w *FakeWatcher) OnChange(path string) {
	w.mu.Lock()
	var handler func(string)
	if !w.finished {
		for root, onChange := range w.roots {
			if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
				handler = onChange
			}
		}
	}
	w.mu.Unlock()

	if handler != nil {
		handler(path)
	}
}

// IsWatching reports whether a tree is watched at path.
func (w *FakeWatcher) IsWatching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.roots[path] != nil
}

func (w *FakeWatcher) WatchTree(path string, onChange func(string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.roots[filepath.Clean(path)] = onChange
	return nil
}

func (w *FakeWatcher) Finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finished = true
}
