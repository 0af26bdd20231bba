// Package watcher reports changes to files in a directory tree.
package watcher

import (
	"time"

	"github.com/wandb/runlens/internal/observability"
)

// DefaultPollingPeriod is how often the tree is polled if unset.
const DefaultPollingPeriod = 500 * time.Millisecond

// Watcher invokes callbacks when files in watched trees change.
type Watcher interface {
	// WatchTree begins recursively watching the directory at path.
	//
	// onChange is invoked with the path of any file below it that is
	// created, written, removed or renamed. For renames it is invoked
	// with both the old and the new path. Callbacks for one watcher run
	// one at a time.
	//
	// Changes may be missed or reported late, for example when a file
	// changes twice within one polling period. Callers must check the
	// file's current state rather than trust the event.
	WatchTree(path string, onChange func(string)) error

	// Finish stops the watcher. No callbacks run after it returns.
	Finish()
}

type Params struct {
	Logger *observability.CoreLogger

	// PollingPeriod is how often to poll files for updates.
	PollingPeriod time.Duration
}

func New(params Params) Watcher {
	return newPollingWatcher(params)
}
